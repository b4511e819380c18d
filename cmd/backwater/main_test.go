package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/config"
	"github.com/sydlexius/backwater/internal/provider"
)

type harness struct {
	dir    string
	config string
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := "database:\n  path: " + filepath.Join(dir, "bw.db") + "\n" +
		"encryption:\n  key_file: " + filepath.Join(dir, "encryption.key") + "\n" +
		"logging:\n  level: error\n  format: json\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &harness{dir: dir, config: path, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.out.Reset()
	r := NewRunner(h.out, h.errOut)
	r.stdin = strings.NewReader("")
	err := newRootCommand(r).Run(context.Background(), append([]string{"backwater", "--config", h.config}, args...))
	return h.out.String(), err
}

func TestFolderAddAndList(t *testing.T) {
	h := newHarness(t)
	music := filepath.Join(h.dir, "music")
	require.NoError(t, os.Mkdir(music, 0o755))

	out, err := h.run(t, "folder", "add", "--name", "Main", music)
	require.NoError(t, err)
	assert.Contains(t, out, "added folder")

	out, err = h.run(t, "folder", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Main")
	assert.Contains(t, out, music)

	_, err = h.run(t, "folder", "add", filepath.Join(h.dir, "nope"))
	assert.Error(t, err)
}

func TestReconcileEmptyFolder(t *testing.T) {
	h := newHarness(t)
	music := filepath.Join(h.dir, "music")
	require.NoError(t, os.Mkdir(music, 0o755))
	_, err := h.run(t, "folder", "add", music)
	require.NoError(t, err)

	out, err := h.run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestPlaylistCreateAndShow(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "playlist", "create", "Road trip")
	require.NoError(t, err)
	id := strings.TrimSpace(strings.TrimPrefix(out, "created playlist "))

	out, err = h.run(t, "playlist", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Road trip (0 songs)")

	_, err = h.run(t, "playlist", "append", id, "missing-song")
	assert.Error(t, err)
}

func TestProvidersSetAndShow(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "providers", "set", "lyrics", "lrclib")
	require.NoError(t, err)

	out, err := h.run(t, "providers", "show", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"lrclib"`)

	_, err = h.run(t, "providers", "set", "lyrics", "lastfm")
	assert.Error(t, err, "metadata provider in the lyrics ranking")
}

func TestCredentialsRoundTrip(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "credentials", "set", "lastfm", "secret-key")
	require.NoError(t, err)

	out, err := h.run(t, "credentials", "list")
	require.NoError(t, err)
	assert.Equal(t, "lastfm\n", out)

	raw, err := os.ReadFile(filepath.Join(h.dir, "bw.db"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-key")

	_, err = h.run(t, "credentials", "delete", "lastfm")
	require.NoError(t, err)
	out, err = h.run(t, "credentials", "list")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = h.run(t, "credentials", "set", "lastfm")
	assert.Error(t, err, "empty stdin means no credential")
}

func TestRerank(t *testing.T) {
	current := provider.DefaultRankings()[provider.CategoryMetadata]
	got := rerank(current, []string{"Deezer", "lastfm"})

	require.Len(t, got, 4)
	assert.Equal(t, provider.NameDeezer, got[0].ID)
	assert.True(t, got[0].Enabled)
	assert.Equal(t, []provider.Requirement{provider.RequireArtist}, got[0].Requires)
	assert.Equal(t, provider.NameLastFM, got[1].ID)
	assert.Equal(t, 1, got[1].Order)
	for _, e := range got[2:] {
		assert.False(t, e.Enabled, "%s should be disabled", e.ID)
	}
	assert.NoError(t, provider.ValidateRanking(provider.CategoryMetadata, got))
}

func TestResolveEncryptionKey(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Encryption.KeyFile = filepath.Join(dir, "keys", "bw.key")

	first, err := resolveEncryptionKey(cfg, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := resolveEncryptionKey(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, first, second, "key file is reused")

	cfg.Encryption.Key = "explicit"
	got, err := resolveEncryptionKey(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
