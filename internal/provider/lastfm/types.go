package lastfm

// Last.fm API response types.

// InfoResponse is the top-level response from artist.getinfo. Error
// responses carry Error and Message instead of Artist.
type InfoResponse struct {
	Artist  ArtistInfo `json:"artist"`
	Error   int        `json:"error"`
	Message string     `json:"message"`
}

// ArtistInfo is the artist payload of artist.getinfo.
type ArtistInfo struct {
	Name  string     `json:"name"`
	MBID  string     `json:"mbid"`
	URL   string     `json:"url"`
	Image []Image    `json:"image"`
	Bio   ArtistBio  `json:"bio"`
	Tags  ArtistTags `json:"tags"`
}

// Image is one size variant of the artist image.
type Image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// ArtistBio holds the biography.
type ArtistBio struct {
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// ArtistTags wraps the tag array.
type ArtistTags struct {
	Tag []Tag `json:"tag"`
}

// Tag is a single tag.
type Tag struct {
	Name string `json:"name"`
}

// Last.fm error codes the adapter distinguishes.
const (
	errInvalidParameters = 6
	errInvalidAPIKey     = 10
	errSuspendedAPIKey   = 26
	errRateLimited       = 29
	errServiceOffline    = 11
	errTemporary         = 16
)
