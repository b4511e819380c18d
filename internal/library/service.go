package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/database"
)

// ErrNotFound is returned when a folder does not exist.
var ErrNotFound = errors.New("folder not found")

const folderColumns = `id, name, path, watch, created_at, updated_at`

// Service provides folder data operations.
type Service struct {
	db *sql.DB
}

// NewService creates a folder service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new folder. The name defaults to the last path element.
func (s *Service) Create(ctx context.Context, f *Folder) error {
	if f.Path == "" {
		return fmt.Errorf("folder path is required")
	}
	f.Path = filepath.Clean(f.Path)
	if f.Name == "" {
		f.Name = filepath.Base(f.Path)
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, path, watch, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.Path, boolToInt(f.Watch), database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		return fmt.Errorf("creating folder: %w", err)
	}
	return nil
}

// GetByID retrieves a folder by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*Folder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder by id: %w", err)
	}
	return f, nil
}

// GetByPath retrieves a folder by filesystem path.
// Returns nil, nil when no folder matches the path.
func (s *Service) GetByPath(ctx context.Context, path string) (*Folder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE path = ?`, filepath.Clean(path))
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder by path: %w", err)
	}
	return f, nil
}

// List returns all folders ordered by name.
func (s *Service) List(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var folders []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning folder: %w", err)
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

// SetWatch toggles filesystem watching for a folder.
func (s *Service) SetWatch(ctx context.Context, id string, watch bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE folders SET watch = ?, updated_at = ? WHERE id = ?`,
		boolToInt(watch), database.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating folder: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes a folder and its songs, then sweeps the albums and artists
// left without references in the same transaction.
func (s *Service) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting folder: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if _, err := catalog.SweepAll(ctx, tx); err != nil {
			return fmt.Errorf("sweeping orphans: %w", err)
		}
		return nil
	})
}

func scanFolder(row interface{ Scan(...any) error }) (*Folder, error) {
	var f Folder
	var watch int
	var createdAt, updatedAt string
	if err := row.Scan(&f.ID, &f.Name, &f.Path, &watch, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.Watch = watch == 1
	f.CreatedAt = database.ParseTime(createdAt)
	f.UpdatedAt = database.ParseTime(updatedAt)
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
