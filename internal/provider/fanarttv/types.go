package fanarttv

// Response is the Fanart.tv music artist payload.
type Response struct {
	Name             string  `json:"name"`
	MBID             string  `json:"mbid_id"`
	ArtistThumb      []Image `json:"artistthumb"`
	ArtistBackground []Image `json:"artistbackground"`
	HDMusicLogo      []Image `json:"hdmusiclogo"`
	MusicLogo        []Image `json:"musiclogo"`
}

// Image is one community-submitted image. Likes arrives as a string.
type Image struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Likes string `json:"likes"`
	Lang  string `json:"lang"`
}
