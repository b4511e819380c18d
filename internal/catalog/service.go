package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sydlexius/backwater/internal/database"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const songColumns = `id, folder_id, COALESCE(album_id, ''), path, directory, title, duration_ms,
	modified_at, artist_name, lyrics_checked_at, created_at, updated_at`

const artistColumns = `id, name, mbid, biography, image_url, fanart_url, logo_url, genres,
	last_enriched_at, created_at, updated_at`

const albumColumns = `id, title, primary_artist_id, artist_name, created_at, updated_at`

// Service provides read access to the song/artist/album graph and the
// write paths used by enrichment.
type Service struct {
	db *sql.DB
}

// NewService creates a catalog service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetSong retrieves a song by id.
func (s *Service) GetSong(ctx context.Context, id string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("song %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting song: %w", err)
	}
	return song, nil
}

// ListSongs returns the songs of a folder ordered by path.
func (s *Service) ListSongs(ctx context.Context, folderID string) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+songColumns+` FROM songs WHERE folder_id = ? ORDER BY path`, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var songs []Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		songs = append(songs, *song)
	}
	return songs, rows.Err()
}

// SongCredits returns the ordered artist credits of a song.
func (s *Service) SongCredits(ctx context.Context, songID string) ([]Credit, error) {
	return credits(ctx, s.db, "song_artists", "song_id", songID)
}

// AlbumCredits returns the ordered artist credits of an album.
func (s *Service) AlbumCredits(ctx context.Context, albumID string) ([]Credit, error) {
	return credits(ctx, s.db, "album_artists", "album_id", albumID)
}

// GetArtist retrieves an artist by id.
func (s *Service) GetArtist(ctx context.Context, id string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = ?`, id)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artist %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist: %w", err)
	}
	return a, nil
}

// GetArtistByName retrieves an artist by exact name.
// Returns nil, nil when no artist has that name.
func (s *Service) GetArtistByName(ctx context.Context, name string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE name = ?`, name)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by name: %w", err)
	}
	return a, nil
}

// ListArtists returns all artists ordered by name.
func (s *Service) ListArtists(ctx context.Context) ([]Artist, error) {
	return s.queryArtists(ctx, `SELECT `+artistColumns+` FROM artists ORDER BY name`)
}

// ListUnenriched returns up to limit artists that were never enriched.
func (s *Service) ListUnenriched(ctx context.Context, limit int) ([]Artist, error) {
	return s.queryArtists(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE last_enriched_at IS NULL ORDER BY name LIMIT ?`, limit)
}

func (s *Service) queryArtists(ctx context.Context, query string, args ...any) ([]Artist, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artist: %w", err)
		}
		artists = append(artists, *a)
	}
	return artists, rows.Err()
}

// GetAlbum retrieves an album by id.
func (s *Service) GetAlbum(ctx context.Context, id string) (*Album, error) {
	var a Album
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `SELECT `+albumColumns+` FROM albums WHERE id = ?`, id).
		Scan(&a.ID, &a.Title, &a.PrimaryArtistID, &a.ArtistName, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("album %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting album: %w", err)
	}
	a.CreatedAt = database.ParseTime(createdAt)
	a.UpdatedAt = database.ParseTime(updatedAt)
	return &a, nil
}

// ApplyArtistEnrichment stores the non-empty enrichment fields and stamps
// last_enriched_at, even when every field is empty.
func (s *Service) ApplyArtistEnrichment(ctx context.Context, artistID string, e Enrichment, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE artists SET
			mbid = CASE WHEN ? = '' THEN mbid ELSE ? END,
			biography = CASE WHEN ? = '' THEN biography ELSE ? END,
			image_url = CASE WHEN ? = '' THEN image_url ELSE ? END,
			fanart_url = CASE WHEN ? = '' THEN fanart_url ELSE ? END,
			logo_url = CASE WHEN ? = '' THEN logo_url ELSE ? END,
			genres = CASE WHEN ? = '' THEN genres ELSE ? END,
			last_enriched_at = ?, updated_at = ?
		WHERE id = ?`,
		e.MusicBrainzID, e.MusicBrainzID,
		e.Biography, e.Biography,
		e.ImageURL, e.ImageURL,
		e.FanartURL, e.FanartURL,
		e.LogoURL, e.LogoURL,
		e.Genres, e.Genres,
		database.FormatTime(at), database.FormatTime(time.Now()), artistID,
	)
	if err != nil {
		return fmt.Errorf("applying artist enrichment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("artist %s: %w", artistID, ErrNotFound)
	}
	return nil
}

// MarkLyricsChecked records that lyrics providers were consulted for a song.
func (s *Service) MarkLyricsChecked(ctx context.Context, songID string, at time.Time) error {
	return markLyricsChecked(ctx, s.db, songID, at)
}

func markLyricsChecked(ctx context.Context, q database.Querier, songID string, at time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE songs SET lyrics_checked_at = ? WHERE id = ?`, database.FormatTime(at), songID)
	if err != nil {
		return fmt.Errorf("marking lyrics checked: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("song %s: %w", songID, ErrNotFound)
	}
	return nil
}

// SaveLyrics upserts the lyrics of a song and stamps lyrics_checked_at in
// one transaction.
func (s *Service) SaveLyrics(ctx context.Context, l *Lyrics) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := markLyricsChecked(ctx, tx, l.SongID, l.FetchedAt); err != nil {
			return err
		}
		instrumental := 0
		if l.Instrumental {
			instrumental = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO song_lyrics (song_id, plain, synced, instrumental, source, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(song_id) DO UPDATE SET
				plain = excluded.plain, synced = excluded.synced,
				instrumental = excluded.instrumental, source = excluded.source,
				fetched_at = excluded.fetched_at`,
			l.SongID, l.Plain, l.Synced, instrumental, l.Source, database.FormatTime(l.FetchedAt))
		if err != nil {
			return fmt.Errorf("saving lyrics: %w", err)
		}
		return nil
	})
}

// GetLyrics returns the stored lyrics for a song, or nil, nil when none.
func (s *Service) GetLyrics(ctx context.Context, songID string) (*Lyrics, error) {
	var l Lyrics
	var instrumental int
	var fetchedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT song_id, plain, synced, instrumental, source, fetched_at FROM song_lyrics WHERE song_id = ?`,
		songID).Scan(&l.SongID, &l.Plain, &l.Synced, &instrumental, &l.Source, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting lyrics: %w", err)
	}
	l.Instrumental = instrumental == 1
	l.FetchedAt = database.ParseTime(fetchedAt)
	return &l, nil
}

// Stats counts the entities in the catalog.
type Stats struct {
	Songs   int `json:"songs"`
	Artists int `json:"artists"`
	Albums  int `json:"albums"`
}

// Stats returns entity counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM songs), (SELECT COUNT(*) FROM artists), (SELECT COUNT(*) FROM albums)`).
		Scan(&st.Songs, &st.Artists, &st.Albums)
	if err != nil {
		return st, fmt.Errorf("counting catalog: %w", err)
	}
	return st, nil
}

func scanSong(row interface{ Scan(...any) error }) (*Song, error) {
	var s Song
	var durationMS int64
	var modified, createdAt, updatedAt string
	var lyricsChecked sql.NullString
	err := row.Scan(
		&s.ID, &s.FolderID, &s.AlbumID, &s.Path, &s.Directory, &s.Title, &durationMS,
		&modified, &s.ArtistName, &lyricsChecked, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Duration = time.Duration(durationMS) * time.Millisecond
	s.ModifiedAt = database.ParseTime(modified)
	s.CreatedAt = database.ParseTime(createdAt)
	s.UpdatedAt = database.ParseTime(updatedAt)
	if lyricsChecked.Valid {
		t := database.ParseTime(lyricsChecked.String)
		s.LyricsCheckedAt = &t
	}
	return &s, nil
}

func scanArtist(row interface{ Scan(...any) error }) (*Artist, error) {
	var a Artist
	var enriched sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&a.ID, &a.Name, &a.MusicBrainzID, &a.Biography, &a.ImageURL, &a.FanartURL, &a.LogoURL,
		&a.Genres, &enriched, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = database.ParseTime(createdAt)
	a.UpdatedAt = database.ParseTime(updatedAt)
	if enriched.Valid {
		t := database.ParseTime(enriched.String)
		a.LastEnrichedAt = &t
	}
	return &a, nil
}
