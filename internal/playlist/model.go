package playlist

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for an unknown playlist.
	ErrNotFound = errors.New("playlist not found")
	// ErrEntryNotFound is returned for an entry that is not in the playlist.
	ErrEntryNotFound = errors.New("playlist entry not found")
	// ErrSongNotFound is returned when appending a song that does not exist.
	ErrSongNotFound = errors.New("song not found")
	// ErrInvalidOrder is returned when a target order is not a permutation of
	// the playlist's entries.
	ErrInvalidOrder = errors.New("target order must list every entry exactly once")
)

// Playlist is a named, ordered list of songs.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one song in a playlist. The same song may appear more than once.
type Entry struct {
	ID         string    `json:"id"`
	SongID     string    `json:"song_id"`
	Title      string    `json:"title"`
	ArtistName string    `json:"artist_name"`
	Order      float64   `json:"order"`
	AddedAt    time.Time `json:"added_at"`
}
