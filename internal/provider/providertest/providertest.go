// Package providertest holds test doubles shared by provider adapter tests.
package providertest

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/sydlexius/backwater/internal/provider"
)

// Credentials is an in-memory provider.Credentials. Refresh swaps in the
// value from Refreshed, if any.
type Credentials struct {
	mu        sync.Mutex
	Values    map[provider.ProviderName]string
	Refreshed map[provider.ProviderName]string
	Refreshes int
}

// NewCredentials returns credentials holding the given values.
func NewCredentials(values map[provider.ProviderName]string) *Credentials {
	return &Credentials{Values: values, Refreshed: map[provider.ProviderName]string{}}
}

// GetCredential implements provider.Credentials.
func (c *Credentials) GetCredential(_ context.Context, name provider.ProviderName) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Values[name], nil
}

// RefreshCredential implements provider.Credentials.
func (c *Credentials) RefreshCredential(_ context.Context, name provider.ProviderName) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Refreshes++
	v, ok := c.Refreshed[name]
	if !ok {
		return "", nil
	}
	c.Values[name] = v
	return v, nil
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
