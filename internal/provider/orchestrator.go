package provider

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Outcome is the merged result of one ranked fetch.
type Outcome struct {
	Fields FieldSet
	// Sources records which provider supplied each merged field.
	Sources map[Field]ProviderName
	// Invoked lists the providers actually called, in rank order. Providers
	// skipped for unmet preconditions are not included.
	Invoked []ProviderName
	Skipped []ProviderName
}

// Attempted reports whether at least one provider was called.
func (o *Outcome) Attempted() bool { return len(o.Invoked) > 0 }

// Orchestrator fans a subject out to the ranked providers of one category
// and merges their answers field by field in rank order.
type Orchestrator[S Subject] struct {
	category Category
	registry *Registry[S]
	ranks    RankSource
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator for one category.
func NewOrchestrator[S Subject](category Category, registry *Registry[S], ranks RankSource, logger *slog.Logger) *Orchestrator[S] {
	return &Orchestrator[S]{
		category: category,
		registry: registry,
		ranks:    ranks,
		logger:   logger.With(slog.String("component", "orchestrator"), slog.String("category", string(category))),
	}
}

type plannedCall[S Subject] struct {
	entry   RankEntry
	fetcher Fetcher[S]
}

// Fetch queries every enabled provider whose preconditions the subject meets,
// concurrently, and merges the results. One provider failing never cancels
// the others. The only error returned besides configuration read failures is
// the caller's cancellation.
func (o *Orchestrator[S]) Fetch(ctx context.Context, subject S) (*Outcome, error) {
	entries, err := o.ranks.GetEnabledProviders(ctx, o.category)
	if err != nil {
		return nil, fmt.Errorf("loading %s providers: %w", o.category, err)
	}

	out := &Outcome{Fields: FieldSet{}, Sources: map[Field]ProviderName{}}
	plan := o.resolve(entries)
	if len(plan) == 0 {
		return out, nil
	}

	calls := make([]plannedCall[S], 0, len(plan))
	for _, p := range plan {
		if missing, ok := unmet(subject, p.entry.Requires); !ok {
			o.logger.Debug("skipping provider, precondition unmet",
				slog.String("provider", string(p.entry.ID)),
				slog.String("requires", string(missing)))
			out.Skipped = append(out.Skipped, p.entry.ID)
			continue
		}
		calls = append(calls, p)
	}
	if len(calls) == 0 {
		return out, nil
	}

	// Each goroutine writes only its own slot.
	results := make([]Result[FieldSet], len(calls))
	errs := make([]error, len(calls))
	var g errgroup.Group
	for i, c := range calls {
		out.Invoked = append(out.Invoked, c.entry.ID)
		g.Go(func() error {
			results[i], errs[i] = c.fetcher.Fetch(ctx, subject)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, c := range calls {
		name := c.entry.ID
		if errs[i] != nil {
			o.logger.Warn("provider call aborted", slog.String("provider", string(name)), slog.Any("error", errs[i]))
			continue
		}
		r := results[i]
		switch r.Kind {
		case KindSuccess:
			for field, value := range r.Data {
				if value == "" {
					continue
				}
				if _, taken := out.Fields[field]; taken {
					continue
				}
				out.Fields[field] = value
				out.Sources[field] = name
			}
		case KindNotFound:
			o.logger.Debug("provider has no data", slog.String("provider", string(name)))
		default:
			o.logger.Warn("provider call failed",
				slog.String("provider", string(name)),
				slog.String("kind", r.Kind.String()),
				slog.Any("error", r.Err))
		}
	}
	return out, nil
}

// resolve maps rank entries to registered fetchers, dropping disabled,
// unknown and duplicate ids. Entries arrive sorted; sorting again keeps the
// orchestrator correct for any RankSource.
func (o *Orchestrator[S]) resolve(entries []RankEntry) []plannedCall[S] {
	sorted := EnabledSorted(entries)
	seen := make(map[ProviderName]bool, len(sorted))
	plan := make([]plannedCall[S], 0, len(sorted))
	for _, e := range sorted {
		if seen[e.ID] {
			o.logger.Warn("dropping duplicate provider entry", slog.String("provider", string(e.ID)))
			continue
		}
		seen[e.ID] = true
		f := o.registry.Get(e.ID)
		if f == nil {
			o.logger.Warn("dropping unknown provider entry", slog.String("provider", string(e.ID)))
			continue
		}
		plan = append(plan, plannedCall[S]{entry: e, fetcher: f})
	}
	return plan
}

func unmet[S Subject](subject S, reqs []Requirement) (Requirement, bool) {
	for _, r := range reqs {
		if !subject.Satisfies(r) {
			return r, false
		}
	}
	return "", true
}
