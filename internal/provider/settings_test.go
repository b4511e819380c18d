package provider

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	require.NoError(t, err)
	return db
}

func TestRanking_DefaultsWhenUnset(t *testing.T) {
	svc := NewSettingsService(setupTestDB(t), nil)
	ctx := context.Background()

	entries, err := svc.GetEnabledProviders(ctx, CategoryLyrics)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, NameSidecar, entries[0].ID)
	assert.Equal(t, NameLRCLIB, entries[1].ID)
}

func TestRanking_RoundTripFiltersAndSorts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettingsService(db, nil)
	ctx := context.Background()

	err := svc.SetRanking(ctx, CategoryMetadata, []RankEntry{
		{ID: NameDeezer, Order: 5, Enabled: true},
		{ID: NameLastFM, Order: 9, Enabled: false},
		{ID: NameSpotify, Order: 1, Enabled: true},
		{ID: NameFanartTV, Order: 5, Enabled: true, Requires: []Requirement{RequireMBID}},
	})
	require.NoError(t, err)

	entries, err := svc.GetEnabledProviders(ctx, CategoryMetadata)
	require.NoError(t, err)
	ids := make([]ProviderName, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []ProviderName{NameSpotify, NameDeezer, NameFanartTV}, ids)
	assert.Equal(t, []Requirement{RequireMBID}, entries[2].Requires)

	require.NoError(t, svc.ResetRanking(ctx, CategoryMetadata))
	entries, err = svc.GetEnabledProviders(ctx, CategoryMetadata)
	require.NoError(t, err)
	assert.Equal(t, NameLastFM, entries[0].ID)
}

func TestRanking_CorruptValueFallsBackToDefaults(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSettingsService(db, nil)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES ('provider.rank.lyrics', '{nope', '')`)
	require.NoError(t, err)

	entries, err := svc.GetEnabledProviders(ctx, CategoryLyrics)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestValidateRanking(t *testing.T) {
	tests := []struct {
		name    string
		cat     Category
		entries []RankEntry
		wantErr bool
	}{
		{"valid", CategoryLyrics, []RankEntry{{ID: NameLRCLIB, Enabled: true}}, false},
		{"unknown id", CategoryLyrics, []RankEntry{{ID: "genius"}}, true},
		{"wrong category", CategoryLyrics, []RankEntry{{ID: NameLastFM}}, true},
		{"negative order", CategoryMetadata, []RankEntry{{ID: NameLastFM, Order: -1}}, true},
		{"duplicate", CategoryMetadata, []RankEntry{{ID: NameLastFM}, {ID: NameLastFM, Order: 1}}, true},
		{"unknown requirement", CategoryMetadata, []RankEntry{{ID: NameLastFM, Requires: []Requirement{"isrc"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRanking(tt.cat, tt.entries)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
