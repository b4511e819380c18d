package catalog

import (
	"context"
	"fmt"

	"github.com/sydlexius/backwater/internal/database"
)

// Sweep lists the entities removed by an orphan sweep.
type Sweep struct {
	Albums  []string
	Artists []string
}

// SweepOrphans deletes candidate albums that no song references, then
// candidate artists that no song_artists or album_artists row references.
// Artists credited on a deleted album become candidates too.
func SweepOrphans(ctx context.Context, q database.Querier, albumIDs, artistIDs []string) (Sweep, error) {
	var out Sweep
	candidates := make(map[string]struct{}, len(artistIDs))
	for _, id := range artistIDs {
		candidates[id] = struct{}{}
	}

	for _, albumID := range dedupe(albumIDs) {
		var refs int
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM songs WHERE album_id = ?`, albumID).Scan(&refs); err != nil {
			return out, fmt.Errorf("counting album references: %w", err)
		}
		if refs > 0 {
			continue
		}
		credited, err := creditArtistIDs(ctx, q, "album_artists", "album_id", albumID)
		if err != nil {
			return out, err
		}
		for _, id := range credited {
			candidates[id] = struct{}{}
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, albumID); err != nil {
			return out, fmt.Errorf("deleting orphan album: %w", err)
		}
		out.Albums = append(out.Albums, albumID)
	}

	for id := range candidates {
		result, err := q.ExecContext(ctx, `
			DELETE FROM artists WHERE id = ?
				AND NOT EXISTS (SELECT 1 FROM song_artists WHERE artist_id = ?)
				AND NOT EXISTS (SELECT 1 FROM album_artists WHERE artist_id = ?)`,
			id, id, id)
		if err != nil {
			return out, fmt.Errorf("deleting orphan artist: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			out.Artists = append(out.Artists, id)
		}
	}
	return out, nil
}

// SweepAll removes every orphan album and artist in the database.
func SweepAll(ctx context.Context, q database.Querier) (Sweep, error) {
	albums, err := collectStrings(ctx, q,
		`SELECT id FROM albums WHERE NOT EXISTS (SELECT 1 FROM songs WHERE songs.album_id = albums.id)`)
	if err != nil {
		return Sweep{}, fmt.Errorf("listing orphan albums: %w", err)
	}
	artists, err := collectStrings(ctx, q, `SELECT id FROM artists`)
	if err != nil {
		return Sweep{}, fmt.Errorf("listing artists: %w", err)
	}
	return SweepOrphans(ctx, q, albums, artists)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
