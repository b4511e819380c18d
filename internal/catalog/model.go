package catalog

import "time"

// Song is one audio file inside a watched folder.
type Song struct {
	ID              string        `json:"id"`
	FolderID        string        `json:"folder_id"`
	AlbumID         string        `json:"album_id,omitempty"`
	Path            string        `json:"path"`
	Directory       string        `json:"directory"`
	Title           string        `json:"title"`
	Duration        time.Duration `json:"duration"`
	ModifiedAt      time.Time     `json:"modified_at"`
	ArtistName      string        `json:"artist_name"`
	LyricsCheckedAt *time.Time    `json:"lyrics_checked_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Artist is deduplicated by exact, case-sensitive name.
type Artist struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	MusicBrainzID  string     `json:"musicbrainz_id,omitempty"`
	Biography      string     `json:"biography,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	FanartURL      string     `json:"fanart_url,omitempty"`
	LogoURL        string     `json:"logo_url,omitempty"`
	Genres         string     `json:"genres,omitempty"`
	LastEnrichedAt *time.Time `json:"last_enriched_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Album identity is (Title, PrimaryArtistID). PrimaryArtistID is empty for
// albums without credited artists.
type Album struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	PrimaryArtistID string    `json:"primary_artist_id"`
	ArtistName      string    `json:"artist_name"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Credit is one ordered row of song_artists or album_artists.
type Credit struct {
	ArtistID   string `json:"artist_id"`
	ArtistName string `json:"artist_name"`
	Order      int    `json:"order"`
}

// SongRef is the slice of a persisted song the reconciler diffs against.
type SongRef struct {
	ID         string
	AlbumID    string
	ModifiedAt time.Time
}

// Lyrics is the stored lyrics payload for a song.
type Lyrics struct {
	SongID       string    `json:"song_id"`
	Plain        string    `json:"plain,omitempty"`
	Synced       string    `json:"synced,omitempty"`
	Instrumental bool      `json:"instrumental"`
	Source       string    `json:"source"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Enrichment holds merged provider fields for an artist. Empty fields leave
// the stored value untouched.
type Enrichment struct {
	MusicBrainzID string
	Biography     string
	ImageURL      string
	FanartURL     string
	LogoURL       string
	Genres        string
}
