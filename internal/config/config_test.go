package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/provider"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/data/backwater.db", cfg.Database.Path)
	assert.Equal(t, 100, cfg.Library.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Lyrics.DurationTolerance)
	assert.Contains(t, cfg.Library.Extensions, ".flac")
	assert.False(t, cfg.Providers.Spotify.Enabled())
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/file.db
library:
  extensions: [MP3, flac]
  batch_size: 50
lyrics:
  duration_tolerance: 10s
  write_sidecar: true
providers:
  rate_limits:
    lrclib: 1.5
  api_keys:
    lastfm: from-file
`)
	t.Setenv("BW_DB_PATH", "/tmp/env.db")
	t.Setenv("BW_FANARTTV_API_KEY", "fanart-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, []string{".mp3", ".flac"}, cfg.Library.Extensions)
	assert.Equal(t, 50, cfg.Library.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Lyrics.DurationTolerance)
	assert.True(t, cfg.Lyrics.WriteSidecar)
	assert.InDelta(t, 1.5, cfg.Providers.RateLimits[provider.NameLRCLIB], 0.001)
	assert.Equal(t, "from-file", cfg.Providers.APIKeys[provider.NameLastFM])
	assert.Equal(t, "fanart-env", cfg.Providers.APIKeys[provider.NameFanartTV])
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "batch too large", body: "library:\n  batch_size: 101\n"},
		{name: "bad log level", body: "logging:\n  level: loud\n"},
		{name: "no extensions", body: "library:\n  extensions: []\n"},
		{name: "negative rate", body: "providers:\n  rate_limits:\n    lastfm: -1\n"},
		{name: "unknown provider key", body: "providers:\n  api_keys:\n    napster: x\n"},
		{name: "half spotify pair", body: "providers:\n  spotify:\n    client_id: id\n"},
		{name: "misplaced ranking", body: "providers:\n  rankings:\n    lyrics:\n      - id: lastfm\n        enabled: true\n"},
		{name: "bad env duration", env: map[string]string{"BW_LYRICS_TOLERANCE": "soon"}},
		{name: "bad env int", env: map[string]string{"BW_LIBRARY_BATCH_SIZE": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestRankDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  rankings:
    lyrics:
      - id: lrclib
        order: 0
        enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	ranks := cfg.RankDefaults()
	require.Len(t, ranks[provider.CategoryLyrics], 1)
	assert.Equal(t, provider.NameLRCLIB, ranks[provider.CategoryLyrics][0].ID)
	assert.Equal(t, provider.DefaultRankings()[provider.CategoryMetadata], ranks[provider.CategoryMetadata])
}
