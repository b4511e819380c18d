package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient is the transport collaborator adapters send requests through.
// *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxBodyBytes caps how much of a response body an adapter reads.
const maxBodyBytes = 1 << 20

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get issues a GET and reads the body. Transport failures come back as
// ErrProviderUnavailable; status handling is left to the adapter. The
// caller's cancellation is returned unwrapped.
func Get(ctx context.Context, client HTTPClient, name ProviderName, reqURL string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "backwater/1.0 (+https://github.com/sydlexius/backwater)")
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrProviderUnavailable{Provider: name, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrProviderUnavailable{Provider: name, Cause: fmt.Errorf("reading body: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// StatusError maps a non-200 status to the typed error the classifier
// understands: 401/403 invalid credential, 404 not found, 5xx and 429
// unavailable, anything else a plain (permanent) error.
func StatusError(name ProviderName, status int, id string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ErrInvalidCredential{Provider: name, Cause: fmt.Errorf("HTTP %d", status)}
	case status == http.StatusNotFound:
		return &ErrNotFound{Provider: name, ID: id}
	case status == http.StatusTooManyRequests || status >= 500:
		return &ErrProviderUnavailable{Provider: name, Cause: fmt.Errorf("HTTP %d", status)}
	default:
		return fmt.Errorf("provider %s: HTTP %d", name, status)
	}
}

// WaitLimiter waits on the provider's limiter, reporting a limiter failure as
// unavailability unless the caller cancelled.
func WaitLimiter(ctx context.Context, limiter *RateLimiterMap, name ProviderName) error {
	if err := limiter.Wait(ctx, name); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ErrProviderUnavailable{Provider: name, Cause: fmt.Errorf("rate limiter: %w", err)}
	}
	return nil
}
