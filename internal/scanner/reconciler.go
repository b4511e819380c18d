// Package scanner reconciles the songs stored for a watched folder with the
// files on disk.
package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/database"
	"github.com/sydlexius/backwater/internal/filesystem"
	"github.com/sydlexius/backwater/internal/library"
	"github.com/sydlexius/backwater/internal/tags"
)

// MaxBatchSize bounds songs per transaction and ids per IN clause.
const MaxBatchSize = 100

// DefaultExtensions are the audio extensions reconciled when none are
// configured.
var DefaultExtensions = []string{".mp3", ".flac", ".m4a", ".mp4", ".ogg", ".opus", ".wav", ".aac", ".wma"}

// FolderSource resolves folder ids.
type FolderSource interface {
	GetByID(ctx context.Context, id string) (*library.Folder, error)
}

// Options tunes a Reconciler.
type Options struct {
	Extensions []string
	BatchSize  int
}

// Reconciler diffs one folder against the database.
type Reconciler struct {
	db         *sql.DB
	fs         filesystem.FS
	extractor  tags.Extractor
	folders    FolderSource
	logger     *slog.Logger
	extensions map[string]struct{}
	batchSize  int
}

// NewReconciler creates a Reconciler. Zero options select the defaults.
func NewReconciler(db *sql.DB, fsys filesystem.FS, extractor tags.Extractor, folders FolderSource, logger *slog.Logger, opts Options) *Reconciler {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[e] = struct{}{}
	}
	batch := opts.BatchSize
	if batch <= 0 || batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	return &Reconciler{
		db:         db,
		fs:         fsys,
		extractor:  extractor,
		folders:    folders,
		logger:     logger.With(slog.String("component", "scanner")),
		extensions: extSet,
		batchSize:  batch,
	}
}

// workItem is a new or changed file.
type workItem struct {
	path    string
	modTime time.Time
	prior   *catalog.SongRef
}

type extracted struct {
	workItem
	meta *tags.Metadata
}

// Reconcile brings the folder's songs in line with the disk and returns the
// counts. On failure the returned Result is still populated with the work
// committed so far.
func (r *Reconciler) Reconcile(ctx context.Context, folderID string) (*Result, error) {
	res := newResult(folderID)
	err := r.run(ctx, res)
	finish(res, err)
	return res, err
}

func newResult(folderID string) *Result {
	return &Result{
		ID:        uuid.New().String(),
		FolderID:  folderID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

func finish(res *Result, err error) {
	now := time.Now().UTC()
	res.CompletedAt = &now
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return
	}
	res.Status = StatusCompleted
}

func (r *Reconciler) run(ctx context.Context, res *Result) error {
	folder, err := r.folders.GetByID(ctx, res.FolderID)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrFolderNotFound, res.FolderID)
		}
		return &PersistenceError{Op: "loading folder", Err: err}
	}
	logger := r.logger.With(slog.String("folder", folder.Path), slog.String("run", res.ID))

	onDisk, present, err := r.walk(ctx, folder.Path, res, logger)
	if err != nil {
		return err
	}

	stored, err := catalog.SongsByFolder(ctx, r.db, folder.ID)
	if err != nil {
		return &PersistenceError{Op: "loading stored songs", Err: err}
	}

	var work []workItem
	for _, f := range onDisk {
		ref, ok := stored[f.path]
		switch {
		case !ok:
			work = append(work, f)
		case f.modTime.After(ref.ModifiedAt):
			ref := ref
			f.prior = &ref
			work = append(work, f)
		default:
			res.Unchanged++
		}
	}
	var removed []string
	for p, ref := range stored {
		if _, ok := present[p]; !ok {
			removed = append(removed, ref.ID)
		}
	}
	logger.Debug("classified files",
		slog.Int("work", len(work)), slog.Int("unchanged", res.Unchanged), slog.Int("removed", len(removed)))

	idx := newNameIndex()
	for start := 0; start < len(work); start += r.batchSize {
		end := min(start+r.batchSize, len(work))
		if err := r.processBatch(ctx, folder.ID, work[start:end], idx, res, logger); err != nil {
			return err
		}
	}

	for start := 0; start < len(removed); start += r.batchSize {
		end := min(start+r.batchSize, len(removed))
		if err := r.removeBatch(ctx, removed[start:end], idx); err != nil {
			return err
		}
		res.Removed += end - start
	}

	logger.Info("reconciliation finished",
		slog.Int("added", res.Added), slog.Int("updated", res.Updated),
		slog.Int("removed", res.Removed), slog.Int("skipped", res.Skipped),
		slog.Int("unchanged", res.Unchanged))
	return nil
}

// walk lists the audio files under root with their modification times.
// present holds every listed audio path, including those whose stat failed,
// so a file that is still on disk is never treated as removed.
func (r *Reconciler) walk(ctx context.Context, root string, res *Result, logger *slog.Logger) ([]workItem, map[string]struct{}, error) {
	if !r.fs.DirectoryExists(root) {
		return nil, nil, &IoError{Path: root, Err: errors.New("directory does not exist")}
	}
	paths, err := r.fs.EnumerateFiles(root, "*", true)
	if err != nil {
		return nil, nil, &IoError{Path: root, Err: err}
	}

	files := make([]workItem, 0, len(paths))
	present := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if _, ok := r.extensions[r.fs.GetExtension(p)]; !ok {
			continue
		}
		present[p] = struct{}{}
		mod, err := r.fs.GetLastWriteTimeUTC(p)
		if err != nil {
			logger.Warn("skipping unreadable file", slog.String("path", p), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		files = append(files, workItem{path: p, modTime: mod.UTC()})
	}
	return files, present, nil
}

// processBatch extracts tags outside the transaction, then writes the whole
// batch as one unit of work.
func (r *Reconciler) processBatch(ctx context.Context, folderID string, batch []workItem, idx *nameIndex, res *Result, logger *slog.Logger) error {
	items := make([]extracted, 0, len(batch))
	for _, w := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta, err := r.extractor.ExtractMetadata(ctx, w.path, r.fs.GetExtension(w.path))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("skipping file with unreadable tags", slog.String("path", w.path), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		items = append(items, extracted{workItem: w, meta: meta})
	}
	if len(items) == 0 {
		return nil
	}

	var added, updated int
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		added, updated = 0, 0
		return r.applyBatch(ctx, tx, folderID, items, idx, &added, &updated)
	})
	if err != nil {
		idx.rollback()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PersistenceError{Op: "writing batch", Err: err}
	}
	idx.commit()
	res.Added += added
	res.Updated += updated
	return nil
}

func (r *Reconciler) applyBatch(ctx context.Context, tx *sql.Tx, folderID string, items []extracted, idx *nameIndex, added, updated *int) error {
	var orphanAlbums, orphanArtists []string
	touchedAlbums := make(map[string]struct{})

	for _, it := range items {
		artistIDs, err := resolveArtists(ctx, tx, idx, catalog.CleanNames(it.meta.Artists))
		if err != nil {
			return err
		}

		albumID := ""
		if title := strings.TrimSpace(it.meta.Album); title != "" {
			albumArtists := catalog.CleanNames(it.meta.AlbumArtists)
			if len(albumArtists) == 0 {
				albumArtists = catalog.CleanNames(it.meta.Artists)
			}
			albumArtistIDs, err := resolveArtists(ctx, tx, idx, albumArtists)
			if err != nil {
				return err
			}
			primary := ""
			if len(albumArtistIDs) > 0 {
				primary = albumArtistIDs[0]
			}
			albumID, err = resolveAlbum(ctx, tx, idx, albumKey{title: title, primaryArtistID: primary})
			if err != nil {
				return err
			}
			prior, err := catalog.ReplaceAlbumArtists(ctx, tx, albumID, albumArtistIDs)
			if err != nil {
				return err
			}
			orphanArtists = append(orphanArtists, prior...)
			touchedAlbums[albumID] = struct{}{}
		}

		song := &catalog.Song{
			FolderID:   folderID,
			AlbumID:    albumID,
			Path:       it.path,
			Directory:  filepath.Dir(it.path),
			Title:      songTitle(it.meta.Title, it.path),
			Duration:   it.meta.Duration,
			ModifiedAt: it.modTime,
		}
		if it.prior == nil {
			if err := catalog.InsertSong(ctx, tx, song); err != nil {
				return err
			}
			*added++
		} else {
			song.ID = it.prior.ID
			if err := catalog.UpdateSong(ctx, tx, song); err != nil {
				return err
			}
			if it.prior.AlbumID != "" && it.prior.AlbumID != albumID {
				orphanAlbums = append(orphanAlbums, it.prior.AlbumID)
			}
			*updated++
		}

		prior, err := catalog.ReplaceSongArtists(ctx, tx, song.ID, artistIDs)
		if err != nil {
			return err
		}
		orphanArtists = append(orphanArtists, prior...)
		if _, err := catalog.RefreshSongArtistName(ctx, tx, song.ID); err != nil {
			return err
		}
	}

	sweep, err := catalog.SweepOrphans(ctx, tx, orphanAlbums, orphanArtists)
	if err != nil {
		return err
	}
	idx.forget(sweep)

	for albumID := range touchedAlbums {
		if _, err := catalog.RefreshAlbumArtistName(ctx, tx, albumID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) removeBatch(ctx context.Context, ids []string, idx *nameIndex) error {
	var sweep catalog.Sweep
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		albumIDs, artistIDs, err := catalog.DeleteSongs(ctx, tx, ids)
		if err != nil {
			return err
		}
		sweep, err = catalog.SweepOrphans(ctx, tx, albumIDs, artistIDs)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PersistenceError{Op: "removing songs", Err: err}
	}
	idx.forget(sweep)
	return nil
}

func resolveArtists(ctx context.Context, q database.Querier, idx *nameIndex, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := idx.artist(name)
		if !ok {
			var err error
			id, err = catalog.FindArtistID(ctx, q, name)
			if err != nil {
				return nil, err
			}
			if id == "" {
				if id, err = catalog.CreateArtist(ctx, q, name); err != nil {
					return nil, err
				}
			}
			idx.putArtist(name, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func resolveAlbum(ctx context.Context, q database.Querier, idx *nameIndex, k albumKey) (string, error) {
	if id, ok := idx.album(k); ok {
		return id, nil
	}
	id, err := catalog.FindAlbumID(ctx, q, k.title, k.primaryArtistID)
	if err != nil {
		return "", err
	}
	if id == "" {
		if id, err = catalog.CreateAlbum(ctx, q, k.title, k.primaryArtistID); err != nil {
			return "", err
		}
	}
	idx.putAlbum(k, id)
	return id, nil
}

// songTitle falls back to the file name when the tag has no title.
func songTitle(tagTitle, path string) string {
	if t := strings.TrimSpace(tagTitle); t != "" {
		return t
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
