package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/database"
	"github.com/sydlexius/backwater/internal/event"
)

const lastRunKey = "maintenance.last_run_at"

// Status holds database maintenance status information.
type Status struct {
	DBFileSize  int64         `json:"db_file_size"`
	WALFileSize int64         `json:"wal_file_size"`
	PageCount   int64         `json:"page_count"`
	PageSize    int64         `json:"page_size"`
	LastRunAt   string        `json:"last_run_at,omitempty"`
	Catalog     catalog.Stats `json:"catalog"`
}

// Report describes one maintenance run.
type Report struct {
	AlbumsRemoved  int           `json:"albums_removed"`
	ArtistsRemoved int           `json:"artists_removed"`
	Duration       time.Duration `json:"duration"`
}

// Service provides database maintenance operations.
type Service struct {
	db      *sql.DB
	dbPath  string
	catalog *catalog.Service
	bus     event.Publisher
	logger  *slog.Logger
}

// NewService creates a maintenance service. bus may be nil.
func NewService(db *sql.DB, dbPath string, bus event.Publisher, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		dbPath:  dbPath,
		catalog: catalog.NewService(db),
		bus:     bus,
		logger:  logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", slog.String("error", err.Error()))
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", slog.String("error", err.Error()))
	}

	var last string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, lastRunKey).Scan(&last); err == nil {
		st.LastRunAt = last
	}

	stats, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.Catalog = stats
	return st, nil
}

// Sweep removes every album without songs and every artist without
// credits. The reconciler sweeps incrementally; this catches leftovers from
// interrupted runs.
func (s *Service) Sweep(ctx context.Context) (catalog.Sweep, error) {
	var swept catalog.Sweep
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		swept, err = catalog.SweepAll(ctx, tx)
		return err
	})
	if err != nil {
		return catalog.Sweep{}, fmt.Errorf("orphan sweep: %w", err)
	}
	return swept, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	return nil
}

// Run sweeps orphans, optimizes, and records the run.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	swept, err := s.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Optimize(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastRunKey, database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		s.logger.Warn("recording maintenance run", slog.String("error", err.Error()))
	}

	rep := &Report{
		AlbumsRemoved:  len(swept.Albums),
		ArtistsRemoved: len(swept.Artists),
		Duration:       time.Since(start),
	}
	s.logger.Info("maintenance complete",
		slog.Int("albums_removed", rep.AlbumsRemoved),
		slog.Int("artists_removed", rep.ArtistsRemoved),
		slog.Duration("duration", rep.Duration),
	)
	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.MaintenanceRan,
			Data: map[string]any{"albums_removed": rep.AlbumsRemoved, "artists_removed": rep.ArtistsRemoved},
		})
	}
	return rep, nil
}

// StartScheduler calls Run every interval until ctx is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("maintenance scheduler started", slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled maintenance failed", slog.String("error", err.Error()))
			}
		}
	}
}
