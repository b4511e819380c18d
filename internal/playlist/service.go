// Package playlist stores playlists and keeps their entries ordered with
// fractional indexes.
package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/backwater/internal/database"
	"github.com/sydlexius/backwater/internal/event"
)

// Service manages playlists. Mutations of one playlist are serialized.
type Service struct {
	db     *sql.DB
	bus    event.Publisher
	logger *slog.Logger
	locks  sync.Map // playlist id -> *sync.Mutex
}

// NewService creates a playlist service. bus may be nil.
func NewService(db *sql.DB, bus event.Publisher, logger *slog.Logger) *Service {
	return &Service{db: db, bus: bus, logger: logger.With(slog.String("component", "playlist"))}
}

func (s *Service) lock(playlistID string) func() {
	v, _ := s.locks.LoadOrStore(playlistID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create inserts a new empty playlist.
func (s *Service) Create(ctx context.Context, name string) (*Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("playlist name is required")
	}
	now := time.Now().UTC()
	p := &Playlist{ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}
	return p, nil
}

// Get returns a playlist by id.
func (s *Service) Get(ctx context.Context, id string) (*Playlist, error) {
	return getPlaylist(ctx, s.db, id)
}

func getPlaylist(ctx context.Context, q database.Querier, id string) (*Playlist, error) {
	var p Playlist
	var created, updated string
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting playlist: %w", err)
	}
	p.CreatedAt = database.ParseTime(created)
	p.UpdatedAt = database.ParseTime(updated)
	return &p, nil
}

// List returns all playlists ordered by name.
func (s *Service) List(ctx context.Context) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM playlists ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Playlist
	for rows.Next() {
		var p Playlist
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		p.CreatedAt = database.ParseTime(created)
		p.UpdatedAt = database.ParseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Entries returns the playlist's entries in play order.
func (s *Service) Entries(ctx context.Context, playlistID string) ([]Entry, error) {
	if _, err := getPlaylist(ctx, s.db, playlistID); err != nil {
		return nil, err
	}
	return entries(ctx, s.db, playlistID)
}

func entries(ctx context.Context, q database.Querier, playlistID string) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ps.id, ps.song_id, s.title, s.artist_name, ps.sort_order, ps.added_at
		FROM playlist_songs ps JOIN songs s ON s.id = ps.song_id
		WHERE ps.playlist_id = ?
		ORDER BY ps.sort_order`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("listing playlist entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var added string
		if err := rows.Scan(&e.ID, &e.SongID, &e.Title, &e.ArtistName, &e.Order, &added); err != nil {
			return nil, fmt.Errorf("scanning playlist entry: %w", err)
		}
		e.AddedAt = database.ParseTime(added)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Append adds songs to the end of the playlist in the given order.
func (s *Service) Append(ctx context.Context, playlistID string, songIDs ...string) ([]Entry, error) {
	if len(songIDs) == 0 {
		return nil, nil
	}
	defer s.lock(playlistID)()

	var added []Entry
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getPlaylist(ctx, tx, playlistID); err != nil {
			return err
		}
		var max float64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) FROM playlist_songs WHERE playlist_id = ?`,
			playlistID).Scan(&max); err != nil {
			return fmt.Errorf("reading max order: %w", err)
		}
		now := time.Now().UTC()
		for i, order := range AppendOrders(max, len(songIDs)) {
			e := Entry{ID: uuid.New().String(), SongID: songIDs[i], Order: order, AddedAt: now}
			err := tx.QueryRowContext(ctx, `SELECT title, artist_name FROM songs WHERE id = ?`, e.SongID).
				Scan(&e.Title, &e.ArtistName)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrSongNotFound, e.SongID)
			}
			if err != nil {
				return fmt.Errorf("looking up song: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO playlist_songs (id, playlist_id, song_id, sort_order, added_at) VALUES (?, ?, ?, ?, ?)`,
				e.ID, playlistID, e.SongID, e.Order, database.FormatTime(now)); err != nil {
				return fmt.Errorf("inserting playlist entry: %w", err)
			}
			added = append(added, e)
		}
		return touch(ctx, tx, playlistID, now)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Move places an entry at index among the other entries (0 is the top) and
// returns its new order. When the neighbours are too close to split, the
// playlist is renumbered first.
func (s *Service) Move(ctx context.Context, playlistID, entryID string, index int) (float64, error) {
	defer s.lock(playlistID)()

	var order float64
	var renumbered bool
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		renumbered = false
		if _, err := getPlaylist(ctx, tx, playlistID); err != nil {
			return err
		}
		others, err := otherOrders(ctx, tx, playlistID, entryID)
		if err != nil {
			return err
		}
		o, ok := PositionFor(others, index)
		if !ok {
			current, err := entries(ctx, tx, playlistID)
			if err != nil {
				return err
			}
			if err := renumber(ctx, tx, current); err != nil {
				return err
			}
			renumbered = true
			if others, err = otherOrders(ctx, tx, playlistID, entryID); err != nil {
				return err
			}
			if o, ok = PositionFor(others, index); !ok {
				return fmt.Errorf("no order available at index %d", index)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE playlist_songs SET sort_order = ? WHERE id = ?`, o, entryID); err != nil {
			return fmt.Errorf("moving entry: %w", err)
		}
		order = o
		return touch(ctx, tx, playlistID, time.Now().UTC())
	})
	if err != nil {
		return 0, err
	}
	if renumbered {
		s.logger.Info("playlist renumbered to restore order precision", slog.String("playlist_id", playlistID))
		s.publish(playlistID, "renumber")
	}
	return order, nil
}

// MoveToTop moves an entry before every other entry.
func (s *Service) MoveToTop(ctx context.Context, playlistID, entryID string) (float64, error) {
	return s.Move(ctx, playlistID, entryID, 0)
}

// MoveToBottom moves an entry after every other entry.
func (s *Service) MoveToBottom(ctx context.Context, playlistID, entryID string) (float64, error) {
	return s.Move(ctx, playlistID, entryID, int(^uint(0)>>1))
}

// Normalize renumbers the playlist 1..N. With a nil target the current order
// is kept; otherwise target must list every entry id once, in the desired
// order.
func (s *Service) Normalize(ctx context.Context, playlistID string, target []string) error {
	defer s.lock(playlistID)()

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getPlaylist(ctx, tx, playlistID); err != nil {
			return err
		}
		current, err := entries(ctx, tx, playlistID)
		if err != nil {
			return err
		}
		ordered := current
		if target != nil {
			if ordered, err = reorder(current, target); err != nil {
				return err
			}
		}
		if err := renumber(ctx, tx, ordered); err != nil {
			return err
		}
		return touch(ctx, tx, playlistID, time.Now().UTC())
	})
	if err != nil {
		return err
	}
	s.publish(playlistID, "normalize")
	return nil
}

// Remove deletes one entry. Remaining orders are left as they are.
func (s *Service) Remove(ctx context.Context, playlistID, entryID string) error {
	defer s.lock(playlistID)()

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM playlist_songs WHERE id = ? AND playlist_id = ?`, entryID, playlistID)
		if err != nil {
			return fmt.Errorf("removing entry: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
		}
		return touch(ctx, tx, playlistID, time.Now().UTC())
	})
}

// Delete removes a playlist and its entries.
func (s *Service) Delete(ctx context.Context, playlistID string) error {
	defer s.lock(playlistID)()

	result, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, playlistID)
	if err != nil {
		return fmt.Errorf("deleting playlist: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, playlistID)
	}
	s.locks.Delete(playlistID)
	return nil
}

// otherOrders returns the sorted orders of every entry except entryID, and
// fails if entryID is not in the playlist.
func otherOrders(ctx context.Context, q database.Querier, playlistID, entryID string) ([]float64, error) {
	var exists int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM playlist_songs WHERE id = ? AND playlist_id = ?`, entryID, playlistID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking entry: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT sort_order FROM playlist_songs WHERE playlist_id = ? AND id <> ? ORDER BY sort_order`,
		playlistID, entryID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []float64
	for rows.Next() {
		var o float64
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// renumber assigns 1..N in the order given. Rows first move below every
// existing value so the unique index never sees two equal orders.
func renumber(ctx context.Context, tx *sql.Tx, ordered []Entry) error {
	if len(ordered) == 0 {
		return nil
	}
	floor := 0.0
	for _, e := range ordered {
		floor = min(floor, e.Order)
	}
	for i, e := range ordered {
		if _, err := tx.ExecContext(ctx,
			`UPDATE playlist_songs SET sort_order = ? WHERE id = ?`, floor-1-float64(i), e.ID); err != nil {
			return fmt.Errorf("parking entry: %w", err)
		}
	}
	for i, o := range Normalize(len(ordered)) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE playlist_songs SET sort_order = ? WHERE id = ?`, o, ordered[i].ID); err != nil {
			return fmt.Errorf("renumbering entry: %w", err)
		}
	}
	return nil
}

func reorder(current []Entry, target []string) ([]Entry, error) {
	if len(target) != len(current) {
		return nil, ErrInvalidOrder
	}
	byID := make(map[string]Entry, len(current))
	for _, e := range current {
		byID[e.ID] = e
	}
	out := make([]Entry, 0, len(target))
	for _, id := range target {
		e, ok := byID[id]
		if !ok {
			return nil, ErrInvalidOrder
		}
		delete(byID, id)
		out = append(out, e)
	}
	return out, nil
}

func touch(ctx context.Context, tx *sql.Tx, playlistID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET updated_at = ? WHERE id = ?`, database.FormatTime(at), playlistID); err != nil {
		return fmt.Errorf("touching playlist: %w", err)
	}
	return nil
}

func (s *Service) publish(playlistID, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: event.PlaylistReordered,
		Data: map[string]any{"playlist_id": playlistID, "reason": reason},
	})
}
