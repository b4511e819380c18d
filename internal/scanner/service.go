package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sydlexius/backwater/internal/event"
)

// Service serializes reconciliations per folder and keeps the latest result
// for each.
type Service struct {
	reconciler *Reconciler
	bus        event.Publisher
	logger     *slog.Logger

	mu     sync.Mutex
	latest map[string]*Result
	active map[string]bool
	wg     sync.WaitGroup
}

// NewService wraps a Reconciler. bus may be nil.
func NewService(r *Reconciler, bus event.Publisher, logger *slog.Logger) *Service {
	return &Service{
		reconciler: r,
		bus:        bus,
		logger:     logger.With(slog.String("component", "scanner")),
		latest:     make(map[string]*Result),
		active:     make(map[string]bool),
	}
}

// Run starts an asynchronous reconciliation and returns a snapshot of the
// running result.
func (s *Service) Run(ctx context.Context, folderID string) (*Result, error) {
	res, err := s.begin(folderID)
	if err != nil {
		return nil, err
	}
	snapshot := *res

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		work := snapshot
		err := s.reconciler.run(ctx, &work)
		s.end(res, &work, err)
	}()
	return &snapshot, nil
}

// Reconcile runs a reconciliation in the calling goroutine.
func (s *Service) Reconcile(ctx context.Context, folderID string) (*Result, error) {
	res, err := s.begin(folderID)
	if err != nil {
		return nil, err
	}
	work := *res
	err = s.reconciler.run(ctx, &work)
	return s.end(res, &work, err), err
}

// Status returns a copy of the current or most recent result for the
// folder, or nil if it has never been reconciled.
func (s *Service) Status(folderID string) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.latest[folderID]
	if !ok {
		return nil
	}
	snapshot := *res
	return &snapshot
}

// Wait blocks until every asynchronous run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) begin(folderID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[folderID] {
		return nil, ErrScanInProgress
	}
	s.active[folderID] = true
	res := newResult(folderID)
	s.latest[folderID] = res
	return res, nil
}

// end publishes the counts of work, which only the run goroutine touched,
// into the shared result.
func (s *Service) end(res, work *Result, err error) *Result {
	s.mu.Lock()
	*res = *work
	finish(res, err)
	delete(s.active, res.FolderID)
	snapshot := *res
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("reconciliation failed", slog.String("folder_id", res.FolderID), slog.String("error", err.Error()))
	}
	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.ReconcileCompleted,
			Data: map[string]any{
				"run_id":    snapshot.ID,
				"folder_id": snapshot.FolderID,
				"status":    string(snapshot.Status),
				"added":     snapshot.Added,
				"updated":   snapshot.Updated,
				"removed":   snapshot.Removed,
				"skipped":   snapshot.Skipped,
			},
		})
	}
	return &snapshot
}
