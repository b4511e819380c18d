package watcher

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/library"
)

// scriptedProbe answers from a fixed verdict table and counts calls per root.
type scriptedProbe struct {
	mu       sync.Mutex
	verdicts map[string]bool
	calls    map[string]int
}

func newScriptedProbe(verdicts map[string]bool) *scriptedProbe {
	return &scriptedProbe{verdicts: verdicts, calls: make(map[string]int)}
}

func (p *scriptedProbe) probe(_ context.Context, dir string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[dir]++
	return p.verdicts[dir]
}

func (p *scriptedProbe) callCount(dir string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[dir]
}

func TestNotifyProbe_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, NotifyProbe(2*time.Second)(context.Background(), dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be cleaned up")
}

func TestNotifyProbe_MissingDirectory(t *testing.T) {
	assert.False(t, NotifyProbe(500*time.Millisecond)(context.Background(), "/nonexistent/backwater/library"))
}

func TestNotifyProbe_CanceledContextReturnsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_ = NotifyProbe(time.Minute)(ctx, t.TempDir())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProber_ProbesOnFirstSightOnly(t *testing.T) {
	sp := newScriptedProbe(map[string]bool{"/music/local": true})
	p := NewProber(sp.probe, testLogger())

	_, ok := p.Supported("/music/local")
	assert.False(t, ok)

	folders := []library.Folder{{ID: "a", Path: "/music/local"}}
	assert.Equal(t, folders, p.Filter(context.Background(), folders))
	assert.Equal(t, folders, p.Filter(context.Background(), folders))
	assert.Equal(t, 1, sp.callCount("/music/local"))

	supported, ok := p.Supported("/music/local")
	assert.True(t, ok)
	assert.True(t, supported)
}

func TestProber_SkipsUnsupportedMount(t *testing.T) {
	sp := newScriptedProbe(map[string]bool{"/music/local": true, "/mnt/nas": false})
	p := NewProber(sp.probe, testLogger())

	got := p.Filter(context.Background(), []library.Folder{
		{ID: "a", Path: "/music/local"},
		{ID: "b", Path: "/mnt/nas"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	supported, ok := p.Supported("/mnt/nas")
	assert.True(t, ok)
	assert.False(t, supported)

	// The verdict sticks until the root is forgotten.
	p.Filter(context.Background(), []library.Folder{{ID: "b", Path: "/mnt/nas"}})
	assert.Equal(t, 1, sp.callCount("/mnt/nas"))
}

func TestProber_SharedRootProbedOnce(t *testing.T) {
	sp := newScriptedProbe(map[string]bool{"/music": true})
	p := NewProber(sp.probe, testLogger())

	got := p.Filter(context.Background(), []library.Folder{
		{ID: "a", Path: "/music"},
		{ID: "b", Path: "/music"},
	})
	assert.Len(t, got, 2)
	assert.Equal(t, 1, sp.callCount("/music"))
}

func TestProber_ForgetReprobes(t *testing.T) {
	sp := newScriptedProbe(map[string]bool{"/mnt/nas": false})
	p := NewProber(sp.probe, testLogger())
	folders := []library.Folder{{ID: "b", Path: "/mnt/nas"}}

	assert.Empty(t, p.Filter(context.Background(), folders))

	sp.mu.Lock()
	sp.verdicts["/mnt/nas"] = true
	sp.mu.Unlock()
	p.Forget("/mnt/nas")

	assert.Len(t, p.Filter(context.Background(), folders), 1)
	assert.Equal(t, 2, sp.callCount("/mnt/nas"))
}

func TestProber_CanceledFilterCachesNothing(t *testing.T) {
	sp := newScriptedProbe(map[string]bool{"/music": true})
	p := NewProber(sp.probe, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, p.Filter(ctx, []library.Folder{{ID: "a", Path: "/music"}}))
	_, ok := p.Supported("/music")
	assert.False(t, ok)
}
