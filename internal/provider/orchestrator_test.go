package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher implements Fetcher[ArtistQuery] for testing.
type mockFetcher struct {
	name    ProviderName
	calls   atomic.Int32
	fetchFn func(ctx context.Context, q ArtistQuery) (Result[FieldSet], error)
}

func (m *mockFetcher) Name() ProviderName { return m.name }

func (m *mockFetcher) Fetch(ctx context.Context, q ArtistQuery) (Result[FieldSet], error) {
	m.calls.Add(1)
	if m.fetchFn != nil {
		return m.fetchFn(ctx, q)
	}
	return NotFound[FieldSet](), nil
}

func returning(fields FieldSet) func(context.Context, ArtistQuery) (Result[FieldSet], error) {
	return func(context.Context, ArtistQuery) (Result[FieldSet], error) {
		return Success(fields), nil
	}
}

type staticRanks []RankEntry

func (s staticRanks) GetEnabledProviders(_ context.Context, _ Category) ([]RankEntry, error) {
	return EnabledSorted(s), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestOrchestrator(ranks RankSource, fetchers ...Fetcher[ArtistQuery]) *Orchestrator[ArtistQuery] {
	reg := NewRegistry[ArtistQuery]()
	for _, f := range fetchers {
		reg.Register(f)
	}
	return NewOrchestrator(CategoryMetadata, reg, ranks, testLogger())
}

func TestFetch_MergesPerFieldInRankOrder(t *testing.T) {
	p1 := &mockFetcher{name: NameLastFM, fetchFn: returning(FieldSet{FieldImageURL: "a.jpg"})}
	p2 := &mockFetcher{name: NameDeezer, fetchFn: returning(FieldSet{FieldBiography: "text", FieldImageURL: "b.jpg"})}
	o := newTestOrchestrator(staticRanks{
		{ID: NameDeezer, Order: 1, Enabled: true},
		{ID: NameLastFM, Order: 0, Enabled: true},
	}, p1, p2)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "Nirvana"})
	require.NoError(t, err)
	assert.Equal(t, FieldSet{FieldBiography: "text", FieldImageURL: "a.jpg"}, out.Fields)
	assert.Equal(t, NameDeezer, out.Sources[FieldBiography])
	assert.Equal(t, NameLastFM, out.Sources[FieldImageURL])
	assert.Equal(t, []ProviderName{NameLastFM, NameDeezer}, out.Invoked)
}

func TestFetch_EmptyRankingHasNoSideEffects(t *testing.T) {
	p := &mockFetcher{name: NameLastFM}
	o := newTestOrchestrator(staticRanks{{ID: NameLastFM, Order: 0, Enabled: false}}, p)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "x"})
	require.NoError(t, err)
	assert.False(t, out.Attempted())
	assert.Empty(t, out.Fields)
	assert.Zero(t, p.calls.Load())
}

func TestFetch_SkipsUnmetPreconditionsWithoutCountingThem(t *testing.T) {
	fanart := &mockFetcher{name: NameFanartTV, fetchFn: returning(FieldSet{FieldImageURL: "f.jpg"})}
	lastfm := &mockFetcher{name: NameLastFM}
	o := newTestOrchestrator(staticRanks{
		{ID: NameFanartTV, Order: 0, Enabled: true, Requires: []Requirement{RequireMBID}},
		{ID: NameLastFM, Order: 1, Enabled: true},
	}, fanart, lastfm)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "No MBID"})
	require.NoError(t, err)
	assert.Zero(t, fanart.calls.Load())
	assert.Equal(t, []ProviderName{NameFanartTV}, out.Skipped)
	assert.Equal(t, []ProviderName{NameLastFM}, out.Invoked)
	assert.True(t, out.Attempted(), "a provider that found nothing still counts as attempted")

	out, err = o.Fetch(context.Background(), ArtistQuery{Name: "Has", MBID: "mbid-1"})
	require.NoError(t, err)
	assert.Equal(t, "f.jpg", out.Fields[FieldImageURL])
}

func TestFetch_AllSkippedIsNotAnAttempt(t *testing.T) {
	fanart := &mockFetcher{name: NameFanartTV}
	o := newTestOrchestrator(staticRanks{
		{ID: NameFanartTV, Order: 0, Enabled: true, Requires: []Requirement{RequireMBID}},
	}, fanart)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "x"})
	require.NoError(t, err)
	assert.False(t, out.Attempted())
}

func TestFetch_RunsProvidersConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	barrier := func(ctx context.Context, _ ArtistQuery) (Result[FieldSet], error) {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return Success(FieldSet{FieldGenres: "rock"}), nil
		case <-time.After(2 * time.Second):
			return Result[FieldSet]{Kind: KindTemporary, Err: errors.New("peer never started")}, nil
		}
	}
	p1 := &mockFetcher{name: NameLastFM, fetchFn: barrier}
	p2 := &mockFetcher{name: NameSpotify, fetchFn: barrier}
	o := newTestOrchestrator(staticRanks{
		{ID: NameLastFM, Order: 0, Enabled: true},
		{ID: NameSpotify, Order: 1, Enabled: true},
	}, p1, p2)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "rock", out.Fields[FieldGenres])
	assert.Equal(t, NameLastFM, out.Sources[FieldGenres])
}

func TestFetch_OneFailureDoesNotAffectOthers(t *testing.T) {
	failing := &mockFetcher{name: NameLastFM, fetchFn: func(context.Context, ArtistQuery) (Result[FieldSet], error) {
		return Result[FieldSet]{Kind: KindTemporary, Err: errors.New("HTTP 503")}, nil
	}}
	ok := &mockFetcher{name: NameDeezer, fetchFn: returning(FieldSet{FieldImageURL: "d.jpg"})}
	o := newTestOrchestrator(staticRanks{
		{ID: NameLastFM, Order: 0, Enabled: true},
		{ID: NameDeezer, Order: 1, Enabled: true},
	}, failing, ok)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, FieldSet{FieldImageURL: "d.jpg"}, out.Fields)
	assert.Len(t, out.Invoked, 2)
}

func TestFetch_DropsUnknownAndDuplicateIDs(t *testing.T) {
	p := &mockFetcher{name: NameLastFM, fetchFn: returning(FieldSet{FieldBiography: "bio"})}
	o := newTestOrchestrator(staticRanks{
		{ID: "myspace", Order: 0, Enabled: true},
		{ID: NameLastFM, Order: 1, Enabled: true},
		{ID: NameLastFM, Order: 2, Enabled: true},
	}, p)

	out, err := o.Fetch(context.Background(), ArtistQuery{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, []ProviderName{NameLastFM}, out.Invoked)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestFetch_CancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &mockFetcher{name: NameLastFM, fetchFn: func(ctx context.Context, _ ArtistQuery) (Result[FieldSet], error) {
		cancel()
		return Result[FieldSet]{}, ctx.Err()
	}}
	o := newTestOrchestrator(staticRanks{{ID: NameLastFM, Order: 0, Enabled: true}}, p)

	out, err := o.Fetch(ctx, ArtistQuery{Name: "x"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}
