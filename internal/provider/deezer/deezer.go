package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sydlexius/backwater/internal/provider"
)

const defaultBaseURL = "https://api.deezer.com"

// Adapter searches Deezer for artist pictures. No credential is needed.
type Adapter struct {
	client  provider.HTTPClient
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
}

// New creates a Deezer adapter.
func New(client provider.HTTPClient, limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Deezer adapter with a custom base URL (for testing).
func NewWithBaseURL(client provider.HTTPClient, limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		limiter: limiter,
		logger:  logger.With(slog.String("provider", string(provider.NameDeezer))),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameDeezer }

// Fetch searches by artist name and returns the best picture of the matching
// result.
func (a *Adapter) Fetch(ctx context.Context, q provider.ArtistQuery) (provider.Result[provider.FieldSet], error) {
	return provider.Call(ctx, nil, provider.NameDeezer, false,
		func(ctx context.Context, _ string) (provider.FieldSet, error) {
			return a.search(ctx, q.Name)
		})
}

func (a *Adapter) search(ctx context.Context, name string) (provider.FieldSet, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: name}
	}
	if err := provider.WaitLimiter(ctx, a.limiter, provider.NameDeezer); err != nil {
		return nil, err
	}

	reqURL := a.baseURL + "/search/artist?" + url.Values{"q": {name}, "limit": {"10"}}.Encode()
	a.logger.Debug("searching artist", slog.String("name", name))
	resp, err := provider.Get(ctx, a.client, provider.NameDeezer, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(provider.NameDeezer, resp.StatusCode, name)
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameDeezer, Cause: err}
	}
	if sr.Error != nil {
		cause := fmt.Errorf("%s: %s", sr.Error.Type, sr.Error.Message)
		if sr.Error.Code == errQuotaExceeded {
			return nil, &provider.ErrProviderUnavailable{Provider: provider.NameDeezer, Cause: cause}
		}
		return nil, cause
	}

	match := bestMatch(sr.Data, name)
	if match == nil {
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: name}
	}
	var images []provider.SizedImage
	for _, p := range match.images() {
		images = append(images, provider.SizedImage{Size: p.size, URL: p.url})
	}
	image := provider.PickImage(images)
	if image == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: name}
	}
	return provider.FieldSet{provider.FieldImageURL: image}, nil
}

// bestMatch returns the first result whose name equals the query ignoring
// case, or nil.
func bestMatch(results []artistResult, name string) *artistResult {
	for i := range results {
		if strings.EqualFold(strings.TrimSpace(results[i].Name), strings.TrimSpace(name)) {
			return &results[i]
		}
	}
	return nil
}
