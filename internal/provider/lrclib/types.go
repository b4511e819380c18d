package lrclib

// record is one LRCLIB lyrics entry, as returned by /api/get and as an
// element of /api/search. Duration is in seconds.
type record struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func (r *record) hasLyrics() bool {
	return r.Instrumental || r.PlainLyrics != "" || r.SyncedLyrics != ""
}
