package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/backwater/internal/database"
)

// The helpers in this file take a database.Querier so the reconciler can run
// them inside its per-batch transaction.

// SongsByFolder loads every persisted song of a folder keyed by path.
func SongsByFolder(ctx context.Context, q database.Querier, folderID string) (map[string]SongRef, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, path, COALESCE(album_id, ''), modified_at FROM songs WHERE folder_id = ?`, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing songs for folder: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	refs := make(map[string]SongRef)
	for rows.Next() {
		var ref SongRef
		var path, modified string
		if err := rows.Scan(&ref.ID, &path, &ref.AlbumID, &modified); err != nil {
			return nil, fmt.Errorf("scanning song ref: %w", err)
		}
		ref.ModifiedAt = database.ParseTime(modified)
		refs[path] = ref
	}
	return refs, rows.Err()
}

// FindArtistID returns the id of the artist with exactly this name, or ""
// when none exists.
func FindArtistID(ctx context.Context, q database.Querier, name string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM artists WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding artist %q: %w", name, err)
	}
	return id, nil
}

// CreateArtist inserts a bare artist row and returns its id.
func CreateArtist(ctx context.Context, q database.Querier, name string) (string, error) {
	id := uuid.New().String()
	now := database.FormatTime(time.Now())
	_, err := q.ExecContext(ctx,
		`INSERT INTO artists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now)
	if err != nil {
		return "", fmt.Errorf("creating artist %q: %w", name, err)
	}
	return id, nil
}

// FindAlbumID returns the id of the album keyed by title and primary artist,
// or "" when none exists.
func FindAlbumID(ctx context.Context, q database.Querier, title, primaryArtistID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM albums WHERE title = ? AND primary_artist_id = ?`,
		title, primaryArtistID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding album %q: %w", title, err)
	}
	return id, nil
}

// CreateAlbum inserts an album row and returns its id.
func CreateAlbum(ctx context.Context, q database.Querier, title, primaryArtistID string) (string, error) {
	id := uuid.New().String()
	now := database.FormatTime(time.Now())
	_, err := q.ExecContext(ctx,
		`INSERT INTO albums (id, title, primary_artist_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, title, primaryArtistID, now, now)
	if err != nil {
		return "", fmt.Errorf("creating album %q: %w", title, err)
	}
	return id, nil
}

// InsertSong creates a song row. ID is generated when empty.
func InsertSong(ctx context.Context, q database.Querier, s *Song) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := q.ExecContext(ctx, `
		INSERT INTO songs (id, folder_id, album_id, path, directory, title, duration_ms,
			modified_at, artist_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.FolderID, nullableString(s.AlbumID), s.Path, s.Directory, s.Title,
		s.Duration.Milliseconds(), database.FormatTime(s.ModifiedAt), s.ArtistName,
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting song %s: %w", s.Path, err)
	}
	return nil
}

// UpdateSong overwrites the scalar fields and album link of an existing song.
func UpdateSong(ctx context.Context, q database.Querier, s *Song) error {
	s.UpdatedAt = time.Now().UTC()
	result, err := q.ExecContext(ctx, `
		UPDATE songs SET album_id = ?, directory = ?, title = ?, duration_ms = ?,
			modified_at = ?, updated_at = ?
		WHERE id = ?
	`,
		nullableString(s.AlbumID), s.Directory, s.Title, s.Duration.Milliseconds(),
		database.FormatTime(s.ModifiedAt), database.FormatTime(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating song %s: %w", s.Path, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("song not found: %s", s.ID)
	}
	return nil
}

// ReplaceSongArtists rewrites the ordered credits of a song starting at
// order 0 and returns the artist ids that were credited before.
func ReplaceSongArtists(ctx context.Context, q database.Querier, songID string, artistIDs []string) ([]string, error) {
	return replaceCredits(ctx, q, "song_artists", "song_id", songID, artistIDs)
}

// ReplaceAlbumArtists rewrites the ordered credits of an album starting at
// order 0 and returns the artist ids that were credited before.
func ReplaceAlbumArtists(ctx context.Context, q database.Querier, albumID string, artistIDs []string) ([]string, error) {
	return replaceCredits(ctx, q, "album_artists", "album_id", albumID, artistIDs)
}

func replaceCredits(ctx context.Context, q database.Querier, table, ownerCol, ownerID string, artistIDs []string) ([]string, error) {
	prior, err := creditArtistIDs(ctx, q, table, ownerCol, ownerID)
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+ownerCol+` = ?`, ownerID); err != nil {
		return nil, fmt.Errorf("clearing %s: %w", table, err)
	}
	for i, artistID := range artistIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO `+table+` (`+ownerCol+`, artist_id, sort_order) VALUES (?, ?, ?)`,
			ownerID, artistID, i); err != nil {
			return nil, fmt.Errorf("inserting %s row: %w", table, err)
		}
	}
	return prior, nil
}

func creditArtistIDs(ctx context.Context, q database.Querier, table, ownerCol, ownerID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT artist_id FROM `+table+` WHERE `+ownerCol+` = ? ORDER BY sort_order`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RefreshSongArtistName recomputes songs.artist_name from song_artists.
func RefreshSongArtistName(ctx context.Context, q database.Querier, songID string) (string, error) {
	return refreshArtistName(ctx, q, "songs", "song_artists", "song_id", songID)
}

// RefreshAlbumArtistName recomputes albums.artist_name from album_artists.
func RefreshAlbumArtistName(ctx context.Context, q database.Querier, albumID string) (string, error) {
	return refreshArtistName(ctx, q, "albums", "album_artists", "album_id", albumID)
}

func refreshArtistName(ctx context.Context, q database.Querier, table, creditTable, ownerCol, ownerID string) (string, error) {
	credits, err := credits(ctx, q, creditTable, ownerCol, ownerID)
	if err != nil {
		return "", err
	}
	names := make([]string, len(credits))
	for i, c := range credits {
		names[i] = c.ArtistName
	}
	display := JoinArtistNames(names)
	if _, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET artist_name = ? WHERE id = ?`, display, ownerID); err != nil {
		return "", fmt.Errorf("updating %s.artist_name: %w", table, err)
	}
	return display, nil
}

func credits(ctx context.Context, q database.Querier, table, ownerCol, ownerID string) ([]Credit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.artist_id, a.name, c.sort_order
		FROM `+table+` c JOIN artists a ON a.id = c.artist_id
		WHERE c.`+ownerCol+` = ?
		ORDER BY c.sort_order`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing %s credits: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Credit
	for rows.Next() {
		var c Credit
		if err := rows.Scan(&c.ArtistID, &c.ArtistName, &c.Order); err != nil {
			return nil, fmt.Errorf("scanning credit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteSongs removes the given songs and reports the albums and artists
// they referenced so the caller can sweep orphans in the same transaction.
// Callers keep len(ids) below the driver's parameter ceiling.
func DeleteSongs(ctx context.Context, q database.Querier, ids []string) (albumIDs, artistIDs []string, err error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := database.Placeholders(len(ids))

	albumIDs, err = collectStrings(ctx, q,
		`SELECT DISTINCT album_id FROM songs WHERE album_id IS NOT NULL AND id IN (`+in+`)`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("collecting albums of removed songs: %w", err)
	}
	artistIDs, err = collectStrings(ctx, q,
		`SELECT DISTINCT artist_id FROM song_artists WHERE song_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("collecting artists of removed songs: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM songs WHERE id IN (`+in+`)`, args...); err != nil {
		return nil, nil, fmt.Errorf("deleting songs: %w", err)
	}
	return albumIDs, artistIDs, nil
}

func collectStrings(ctx context.Context, q database.Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
