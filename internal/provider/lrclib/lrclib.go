// Package lrclib fetches plain and synced lyrics from LRCLIB.
package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/backwater/internal/provider"
)

const (
	defaultBaseURL = "https://lrclib.net"

	// DefaultTolerance is how far a search candidate's duration may drift
	// from the track's before it is rejected.
	DefaultTolerance = 30 * time.Second

	unknownArtist = "Unknown Artist"
)

// Adapter implements provider.Fetcher[provider.TrackQuery].
type Adapter struct {
	client    provider.HTTPClient
	limiter   *provider.RateLimiterMap
	breaker   *Breaker
	tolerance time.Duration
	logger    *slog.Logger
	baseURL   string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTolerance overrides the search duration tolerance.
func WithTolerance(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.tolerance = d
		}
	}
}

// WithBaseURL points the adapter at a different server (for testing).
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// New creates an LRCLIB adapter. The breaker should be created once per
// process and shared.
func New(client provider.HTTPClient, limiter *provider.RateLimiterMap, breaker *Breaker, logger *slog.Logger, opts ...Option) *Adapter {
	if breaker == nil {
		breaker = &Breaker{}
	}
	a := &Adapter{
		client:    client,
		limiter:   limiter,
		breaker:   breaker,
		tolerance: DefaultTolerance,
		logger:    logger.With(slog.String("provider", string(provider.NameLRCLIB))),
		baseURL:   defaultBaseURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameLRCLIB }

// Fetch looks the track up strictly when the artist is known and falls back
// to search. Cancellation and an open breaker both yield NotFound.
func (a *Adapter) Fetch(ctx context.Context, q provider.TrackQuery) (provider.Result[provider.FieldSet], error) {
	if strings.TrimSpace(q.Title) == "" || a.breaker.Tripped() {
		return provider.NotFound[provider.FieldSet](), nil
	}

	res, err := provider.Call(ctx, nil, provider.NameLRCLIB, false,
		func(ctx context.Context, _ string) (provider.FieldSet, error) {
			return a.lookup(ctx, q)
		})
	if err != nil || ctx.Err() != nil {
		// Cancelled: report no result rather than an error.
		return provider.NotFound[provider.FieldSet](), nil
	}
	return res, nil
}

func (a *Adapter) lookup(ctx context.Context, q provider.TrackQuery) (provider.FieldSet, error) {
	artist := strings.TrimSpace(q.Artist)
	if artist != "" && !strings.EqualFold(artist, unknownArtist) {
		rec, err := a.get(ctx, q)
		switch {
		case err == nil && rec.hasLyrics():
			return toFields(rec), nil
		case err == nil:
			a.logger.Debug("strict match has no lyrics, searching", slog.String("title", q.Title))
		case isNotFound(err):
			a.logger.Debug("no strict match, searching", slog.String("title", q.Title))
		default:
			return nil, err
		}
	} else {
		artist = ""
	}

	candidates, err := a.search(ctx, q.Title, artist)
	if err != nil {
		return nil, err
	}
	best := a.pick(candidates, q.Duration)
	if best == nil {
		return nil, &provider.ErrNotFound{Provider: provider.NameLRCLIB, ID: q.Title}
	}
	return toFields(best), nil
}

func (a *Adapter) get(ctx context.Context, q provider.TrackQuery) (*record, error) {
	params := url.Values{
		"track_name":  {q.Title},
		"artist_name": {q.Artist},
	}
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.Duration > 0 {
		params.Set("duration", strconv.Itoa(int(math.Round(q.Duration.Seconds()))))
	}
	body, err := a.request(ctx, "/api/get?"+params.Encode(), q.Title)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameLRCLIB, Cause: err}
	}
	return &rec, nil
}

func (a *Adapter) search(ctx context.Context, title, artist string) ([]record, error) {
	params := url.Values{"track_name": {title}}
	if artist != "" {
		params.Set("artist_name", artist)
	}
	body, err := a.request(ctx, "/api/search?"+params.Encode(), title)
	if err != nil {
		return nil, err
	}
	var recs []record
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameLRCLIB, Cause: err}
	}
	return recs, nil
}

func (a *Adapter) request(ctx context.Context, path, id string) ([]byte, error) {
	if a.breaker.Tripped() {
		return nil, &provider.ErrNotFound{Provider: provider.NameLRCLIB, ID: id}
	}
	if err := provider.WaitLimiter(ctx, a.limiter, provider.NameLRCLIB); err != nil {
		return nil, err
	}
	resp, err := provider.Get(ctx, a.client, provider.NameLRCLIB, a.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusTooManyRequests:
		if a.breaker.Trip() {
			a.logger.Warn("rate limited, disabling provider until restart")
		}
		return nil, &provider.ErrNotFound{Provider: provider.NameLRCLIB, ID: id}
	default:
		return nil, provider.StatusError(provider.NameLRCLIB, resp.StatusCode, id)
	}
}

// pick returns the candidate closest to want within tolerance. With no
// expected duration the first candidate with lyrics wins.
func (a *Adapter) pick(candidates []record, want time.Duration) *record {
	var best *record
	bestDiff := time.Duration(math.MaxInt64)
	for i := range candidates {
		c := &candidates[i]
		if !c.hasLyrics() {
			continue
		}
		if want <= 0 {
			return c
		}
		got := time.Duration(c.Duration * float64(time.Second))
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		if diff <= a.tolerance && diff < bestDiff {
			best, bestDiff = c, diff
		}
	}
	return best
}

func isNotFound(err error) bool {
	var nf *provider.ErrNotFound
	return errors.As(err, &nf)
}

func toFields(r *record) provider.FieldSet {
	fields := provider.FieldSet{
		provider.FieldLyrics:       r.PlainLyrics,
		provider.FieldSyncedLyrics: r.SyncedLyrics,
	}
	if r.Instrumental {
		fields[provider.FieldInstrumental] = "true"
	}
	return fields
}
