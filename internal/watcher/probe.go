package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/backwater/internal/library"
)

// ProbeFunc reports whether change notifications are delivered for dir.
type ProbeFunc func(ctx context.Context, dir string) bool

// Prober decides once per folder root whether fsnotify can watch it.
// Network mounts often accept a watch and then never fire, so a root is
// only trusted after a test event has round-tripped.
type Prober struct {
	probe  ProbeFunc
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

// NewProber creates a Prober. A nil probe uses NotifyProbe with a two second
// wait.
func NewProber(probe ProbeFunc, logger *slog.Logger) *Prober {
	if probe == nil {
		probe = NotifyProbe(2 * time.Second)
	}
	return &Prober{
		probe:  probe,
		logger: logger.With(slog.String("component", "probe")),
		known:  make(map[string]bool),
	}
}

// Filter returns the folders whose root supports fsnotify. Roots seen for
// the first time are probed concurrently; later calls use the cached verdict.
func (p *Prober) Filter(ctx context.Context, folders []library.Folder) []library.Folder {
	p.mu.Lock()
	var unknown []string
	queued := make(map[string]bool)
	for _, f := range folders {
		if _, ok := p.known[f.Path]; !ok && !queued[f.Path] {
			unknown = append(unknown, f.Path)
			queued[f.Path] = true
		}
	}
	p.mu.Unlock()

	if len(unknown) > 0 {
		verdicts := make([]bool, len(unknown))
		var g errgroup.Group
		g.SetLimit(4)
		for i, root := range unknown {
			g.Go(func() error {
				verdicts[i] = p.probe(ctx, root)
				return nil
			})
		}
		_ = g.Wait()

		// A canceled probe says nothing about the mount.
		if ctx.Err() != nil {
			return nil
		}
		p.mu.Lock()
		for i, root := range unknown {
			p.known[root] = verdicts[i]
		}
		p.mu.Unlock()
		for i, root := range unknown {
			if !verdicts[i] {
				p.logger.Warn("fsnotify not supported, folder needs manual reconcile", slog.String("path", root))
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]library.Folder, 0, len(folders))
	for _, f := range folders {
		if p.known[f.Path] {
			out = append(out, f)
		}
	}
	return out
}

// Supported returns the cached verdict for root. ok is false until the root
// has been probed.
func (p *Prober) Supported(root string) (supported, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	supported, ok = p.known[root]
	return supported, ok
}

// Forget drops the verdict for root so the next Filter probes it again.
func (p *Prober) Forget(root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.known, root)
}

// NotifyProbe returns a ProbeFunc that watches dir, creates a hidden
// scratch directory inside it and waits up to timeout for the Create event.
func NotifyProbe(timeout time.Duration) ProbeFunc {
	return func(ctx context.Context, dir string) bool {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return false
		}
		defer w.Close() //nolint:errcheck

		if err := w.Add(dir); err != nil {
			return false
		}
		scratch, err := os.MkdirTemp(dir, ".backwater-probe-")
		if err != nil {
			return false
		}
		defer os.Remove(scratch) //nolint:errcheck

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return false
				}
				if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == filepath.Base(scratch) {
					return true
				}
			case <-w.Errors:
				return false
			case <-ctx.Done():
				return false
			}
		}
	}
}
