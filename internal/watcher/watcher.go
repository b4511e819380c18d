package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/backwater/internal/event"
	"github.com/sydlexius/backwater/internal/library"
	"github.com/sydlexius/backwater/internal/scanner"
)

// FolderLister returns the configured library folders.
type FolderLister interface {
	List(ctx context.Context) ([]library.Folder, error)
}

// Reconciler runs one reconciliation of a folder.
type Reconciler interface {
	Reconcile(ctx context.Context, folderID string) (*scanner.Result, error)
}

// Service watches every folder with the watch flag set and reconciles a
// folder once its changes have been quiet for the debounce interval.
type Service struct {
	reconciler    Reconciler
	folders       FolderLister
	bus           event.Publisher
	logger        *slog.Logger
	prober        *Prober
	extensions    map[string]bool
	debounce      time.Duration
	refreshPeriod time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	roots    map[string]string // folder root -> folder id
	dirs     map[string]string // watched directory -> folder id
	pending  map[string]int    // folder id -> events since last flush
	inflight sync.WaitGroup
}

// NewService creates a watcher. extensions filters file events the same way
// the reconciler filters files; directory events always count.
func NewService(reconciler Reconciler, folders FolderLister, bus event.Publisher, logger *slog.Logger, prober *Prober, extensions []string, debounce time.Duration) *Service {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Service{
		reconciler:    reconciler,
		folders:       folders,
		bus:           bus,
		logger:        logger.With(slog.String("component", "watcher")),
		prober:        prober,
		extensions:    exts,
		debounce:      debounce,
		refreshPeriod: 5 * time.Minute,
		roots:         make(map[string]string),
		dirs:          make(map[string]string),
		pending:       make(map[string]int),
	}
}

// Start blocks until ctx is canceled, then waits for in-flight
// reconciliations to return.
func (s *Service) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck
	defer s.inflight.Wait()

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	s.refresh(ctx)
	s.logger.Info("watcher started", slog.Int("folders", len(s.Roots())))

	refresh := time.NewTicker(s.refreshPeriod)
	defer refresh.Stop()

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher stopping")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if s.handle(ev) {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(s.debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", slog.String("error", err.Error()))

		case <-debounce.C:
			s.flush(ctx)

		case <-refresh.C:
			s.refresh(ctx)
		}
	}
}

// Roots returns the folder roots currently watched, sorted.
func (s *Service) Roots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.roots))
	for root := range s.roots {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// handle records an fsnotify event against its folder. It reports whether
// the event counts as a library change.
func (s *Service) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	folderID, ok := s.dirs[filepath.Dir(ev.Name)]
	if !ok {
		return false
	}

	isDir := false
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			isDir = true
			s.addTreeLocked(ev.Name, folderID)
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if _, watched := s.dirs[ev.Name]; watched {
			isDir = true
			s.dropTreeLocked(ev.Name)
		}
	}
	if !isDir && !s.extensions[strings.ToLower(filepath.Ext(ev.Name))] {
		return false
	}

	s.pending[folderID]++
	s.logger.Debug("library change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
	return true
}

// flush reconciles every folder with pending changes. A folder that is
// already reconciling stays pending for the next debounce.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]int)
	s.mu.Unlock()

	for folderID, changes := range batch {
		if s.bus != nil {
			s.bus.Publish(event.Event{
				Type: event.FolderChanged,
				Data: map[string]any{"folder_id": folderID, "changes": changes},
			})
		}
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			res, err := s.reconciler.Reconcile(ctx, folderID)
			switch {
			case errors.Is(err, scanner.ErrScanInProgress):
				s.mu.Lock()
				s.pending[folderID] += changes
				s.mu.Unlock()
				s.logger.Debug("reconcile busy, deferring", slog.String("folder_id", folderID))
			case err != nil:
				s.logger.Error("watch-triggered reconcile failed", slog.String("folder_id", folderID), slog.String("error", err.Error()))
			default:
				s.logger.Info("watch-triggered reconcile finished",
					slog.String("folder_id", folderID),
					slog.Int("added", res.Added),
					slog.Int("updated", res.Updated),
					slog.Int("removed", res.Removed),
				)
			}
		}()
	}
}

// refresh syncs the watch set with the folders that have watch enabled
// and a working fsnotify backend.
func (s *Service) refresh(ctx context.Context) {
	folders, err := s.folders.List(ctx)
	if err != nil {
		s.logger.Error("listing folders for watch refresh failed", slog.String("error", err.Error()))
		return
	}

	candidates := make([]library.Folder, 0, len(folders))
	for _, f := range folders {
		if !f.Watch {
			continue
		}
		if info, err := os.Stat(f.Path); err != nil || !info.IsDir() {
			s.logger.Warn("folder not watchable", slog.String("folder", f.Name), slog.String("path", f.Path))
			continue
		}
		candidates = append(candidates, f)
	}
	if s.prober != nil {
		candidates = s.prober.Filter(ctx, candidates)
	}
	if ctx.Err() != nil {
		return
	}

	wanted := make(map[string]string, len(candidates))
	for _, f := range candidates {
		wanted[f.Path] = f.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for root := range s.roots {
		if _, ok := wanted[root]; !ok {
			s.dropTreeLocked(root)
			delete(s.roots, root)
			if s.prober != nil {
				s.prober.Forget(root)
			}
			s.logger.Info("stopped watching folder", slog.String("path", root))
		}
	}
	for root, id := range wanted {
		if _, ok := s.roots[root]; ok {
			continue
		}
		s.roots[root] = id
		s.addTreeLocked(root, id)
		s.logger.Info("watching folder", slog.String("path", root))
	}
}

// addTreeLocked watches dir and every directory beneath it. fsnotify does
// not recurse on its own.
func (s *Service) addTreeLocked(dir, folderID string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if _, ok := s.dirs[path]; ok {
			return nil
		}
		if err := s.watcher.Add(path); err != nil {
			s.logger.Warn("adding watch failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		s.dirs[path] = folderID
		return nil
	})
}

func (s *Service) dropTreeLocked(dir string) {
	prefix := dir + string(filepath.Separator)
	for path := range s.dirs {
		if path == dir || strings.HasPrefix(path, prefix) {
			// The kernel drops watches on deleted directories itself.
			_ = s.watcher.Remove(path)
			delete(s.dirs, path)
		}
	}
}
