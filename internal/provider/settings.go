package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// RankEntry is one administrator-configured slot in a category's provider
// ranking. Lower Order runs first in the merge.
type RankEntry struct {
	ID       ProviderName  `json:"id" yaml:"id"`
	Order    int           `json:"order" yaml:"order"`
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Requires []Requirement `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// RankSource is the configuration collaborator read by the orchestrator.
type RankSource interface {
	GetEnabledProviders(ctx context.Context, category Category) ([]RankEntry, error)
}

// DefaultRankings returns the built-in ranking per category.
func DefaultRankings() map[Category][]RankEntry {
	return map[Category][]RankEntry{
		CategoryMetadata: {
			{ID: NameLastFM, Order: 0, Enabled: true, Requires: []Requirement{RequireArtist}},
			{ID: NameFanartTV, Order: 1, Enabled: true, Requires: []Requirement{RequireMBID}},
			{ID: NameSpotify, Order: 2, Enabled: true, Requires: []Requirement{RequireArtist}},
			{ID: NameDeezer, Order: 3, Enabled: true, Requires: []Requirement{RequireArtist}},
		},
		CategoryLyrics: {
			{ID: NameSidecar, Order: 0, Enabled: true, Requires: []Requirement{RequirePath}},
			{ID: NameLRCLIB, Order: 1, Enabled: true},
		},
	}
}

// SettingsService stores provider rankings in the settings key-value table.
type SettingsService struct {
	db       *sql.DB
	defaults map[Category][]RankEntry
}

// NewSettingsService creates a SettingsService. defaults seeds categories
// that have no stored ranking; nil uses DefaultRankings.
func NewSettingsService(db *sql.DB, defaults map[Category][]RankEntry) *SettingsService {
	if defaults == nil {
		defaults = DefaultRankings()
	}
	return &SettingsService{db: db, defaults: defaults}
}

// rankSettingKey returns the settings table key for a category's ranking.
func rankSettingKey(category Category) string {
	return fmt.Sprintf("provider.rank.%s", category)
}

// GetRanking returns the stored ranking for a category, falling back to the
// defaults when nothing is stored or the stored value cannot be parsed.
func (s *SettingsService) GetRanking(ctx context.Context, category Category) ([]RankEntry, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", rankSettingKey(category)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return cloneEntries(s.defaults[category]), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ranking for %s: %w", category, err)
	}
	var entries []RankEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return cloneEntries(s.defaults[category]), nil
	}
	return entries, nil
}

// GetEnabledProviders returns the enabled entries of a category sorted by
// ascending Order. Ties keep their stored order.
func (s *SettingsService) GetEnabledProviders(ctx context.Context, category Category) ([]RankEntry, error) {
	entries, err := s.GetRanking(ctx, category)
	if err != nil {
		return nil, err
	}
	return EnabledSorted(entries), nil
}

// SetRanking validates and stores the ranking for a category.
func (s *SettingsService) SetRanking(ctx context.Context, category Category, entries []RankEntry) error {
	if err := ValidateRanking(category, entries); err != nil {
		return err
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling ranking for %s: %w", category, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		rankSettingKey(category), string(data), now,
	)
	if err != nil {
		return fmt.Errorf("storing ranking for %s: %w", category, err)
	}
	return nil
}

// ResetRanking removes the stored ranking so the defaults apply again.
func (s *SettingsService) ResetRanking(ctx context.Context, category Category) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", rankSettingKey(category)); err != nil {
		return fmt.Errorf("resetting ranking for %s: %w", category, err)
	}
	return nil
}

// ValidateRanking rejects unknown or misplaced providers, negative orders,
// duplicates and unknown requirements.
func ValidateRanking(category Category, entries []RankEntry) error {
	seen := make(map[ProviderName]bool, len(entries))
	for _, e := range entries {
		cat, ok := CategoryOf(e.ID)
		if !ok {
			return fmt.Errorf("unknown provider %q", e.ID)
		}
		if cat != category {
			return fmt.Errorf("provider %q belongs to %s, not %s", e.ID, cat, category)
		}
		if e.Order < 0 {
			return fmt.Errorf("provider %q: order must be >= 0", e.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("provider %q listed twice", e.ID)
		}
		seen[e.ID] = true
		for _, r := range e.Requires {
			switch r {
			case RequireMBID, RequirePath, RequireDuration, RequireArtist:
			default:
				return fmt.Errorf("provider %q: unknown requirement %q", e.ID, r)
			}
		}
	}
	return nil
}

// EnabledSorted filters to enabled entries and stable-sorts them by Order.
func EnabledSorted(entries []RankEntry) []RankEntry {
	out := make([]RankEntry, 0, len(entries))
	for _, e := range entries {
		if e.Enabled {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func cloneEntries(entries []RankEntry) []RankEntry {
	out := make([]RankEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Requires = append([]Requirement(nil), e.Requires...)
	}
	return out
}
