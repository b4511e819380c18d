// Package credential stores provider credentials sealed at rest and
// refreshes the ones that expire.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sydlexius/backwater/internal/database"
	"github.com/sydlexius/backwater/internal/encryption"
	"github.com/sydlexius/backwater/internal/provider"
)

const keyPrefix = "credential."

const refreshTimeout = 30 * time.Second

// ErrUnknownProvider is returned when setting a credential for a provider
// that does not exist.
var ErrUnknownProvider = errors.New("unknown provider")

// Refresher obtains a fresh credential from the provider's auth server.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Store implements provider.Credentials over the settings table.
type Store struct {
	db     *sql.DB
	enc    *encryption.Encryptor
	logger *slog.Logger

	mu         sync.RWMutex
	refreshers map[provider.ProviderName]Refresher
	group      singleflight.Group
}

// NewStore creates a credential store.
func NewStore(db *sql.DB, enc *encryption.Encryptor, logger *slog.Logger) *Store {
	return &Store{
		db:         db,
		enc:        enc,
		logger:     logger.With(slog.String("component", "credential")),
		refreshers: make(map[provider.ProviderName]Refresher),
	}
}

// RegisterRefresher makes name's credential refreshable.
func (s *Store) RegisterRefresher(name provider.ProviderName, r Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshers[name] = r
}

func (s *Store) refresher(name provider.ProviderName) Refresher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshers[name]
}

func settingKey(name provider.ProviderName) string {
	return keyPrefix + string(name)
}

// GetCredential returns the stored credential, or "" when none is stored.
// A refreshable provider with nothing stored yet is refreshed on first use.
func (s *Store) GetCredential(ctx context.Context, name provider.ProviderName) (string, error) {
	value, err := s.load(ctx, name)
	if err != nil {
		return "", err
	}
	if value == "" && s.refresher(name) != nil {
		return s.RefreshCredential(ctx, name)
	}
	return value, nil
}

func (s *Store) load(ctx context.Context, name provider.ProviderName) (string, error) {
	var sealed string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", settingKey(name)).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading credential for %s: %w", name, err)
	}
	value, err := s.enc.Decrypt(sealed, settingKey(name))
	if err != nil {
		return "", fmt.Errorf("decrypting credential for %s: %w", name, err)
	}
	return value, nil
}

// RefreshCredential asks the provider's refresher for a new credential and
// stores it. Concurrent refreshes of the same provider share one request.
// A provider without a refresher yields "".
func (s *Store) RefreshCredential(ctx context.Context, name provider.ProviderName) (string, error) {
	r := s.refresher(name)
	if r == nil {
		return "", nil
	}
	// The shared refresh outlives whichever caller started it, so one
	// caller's cancellation does not fail the others.
	ch := s.group.DoChan(string(name), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		fresh, err := r.Refresh(rctx)
		if err != nil {
			return "", fmt.Errorf("refreshing %s credential: %w", name, err)
		}
		if fresh == "" {
			return "", nil
		}
		if err := s.SetCredential(rctx, name, fresh); err != nil {
			return "", err
		}
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("credential refresh failed", slog.String("provider", string(name)), slog.String("error", res.Err.Error()))
			return "", res.Err
		}
		s.logger.Debug("credential refreshed", slog.String("provider", string(name)), slog.Bool("shared", res.Shared))
		return res.Val.(string), nil
	}
}

// SetCredential seals and stores value for name.
func (s *Store) SetCredential(ctx context.Context, name provider.ProviderName, value string) error {
	if _, ok := provider.CategoryOf(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return s.DeleteCredential(ctx, name)
	}
	sealed, err := s.enc.Encrypt(value, settingKey(name))
	if err != nil {
		return fmt.Errorf("sealing credential for %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		settingKey(name), sealed, database.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storing credential for %s: %w", name, err)
	}
	return nil
}

// DeleteCredential removes the stored credential for name.
func (s *Store) DeleteCredential(ctx context.Context, name provider.ProviderName) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", settingKey(name)); err != nil {
		return fmt.Errorf("deleting credential for %s: %w", name, err)
	}
	return nil
}

// SeedStatic stores configured credentials that are not already present.
// Values set through the CLI win over the config file.
func (s *Store) SeedStatic(ctx context.Context, values map[provider.ProviderName]string) (int, error) {
	seeded := 0
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		current, err := s.load(ctx, name)
		if err != nil {
			return seeded, err
		}
		if current != "" {
			continue
		}
		if err := s.SetCredential(ctx, name, value); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// Configured lists providers with a stored credential, sorted.
func (s *Store) Configured(ctx context.Context) ([]provider.ProviderName, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM settings WHERE key LIKE ?", keyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var names []provider.ProviderName
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning credential key: %w", err)
		}
		names = append(names, provider.ProviderName(strings.TrimPrefix(key, keyPrefix)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names, nil
}
