package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/backwater/internal/provider"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// Adapter searches the Spotify Web API for artist images and genres. The
// credential is a client-credentials access token, which expires hourly; the
// credential store refreshes it when Spotify answers 401.
type Adapter struct {
	client  provider.HTTPClient
	limiter *provider.RateLimiterMap
	creds   provider.Credentials
	logger  *slog.Logger
	baseURL string
}

// New creates a Spotify adapter.
func New(client provider.HTTPClient, limiter *provider.RateLimiterMap, creds provider.Credentials, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, limiter, creds, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Spotify adapter with a custom base URL (for testing).
func NewWithBaseURL(client provider.HTTPClient, limiter *provider.RateLimiterMap, creds provider.Credentials, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		limiter: limiter,
		creds:   creds,
		logger:  logger.With(slog.String("provider", string(provider.NameSpotify))),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameSpotify }

// Fetch searches by artist name.
func (a *Adapter) Fetch(ctx context.Context, q provider.ArtistQuery) (provider.Result[provider.FieldSet], error) {
	return provider.Call(ctx, a.creds, provider.NameSpotify, true,
		func(ctx context.Context, token string) (provider.FieldSet, error) {
			return a.search(ctx, token, q.Name)
		})
}

func (a *Adapter) search(ctx context.Context, token, name string) (provider.FieldSet, error) {
	if err := provider.WaitLimiter(ctx, a.limiter, provider.NameSpotify); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":     {"artist:" + name},
		"type":  {"artist"},
		"limit": {"10"},
	}
	header := http.Header{"Authorization": {"Bearer " + token}}
	resp, err := provider.Get(ctx, a.client, provider.NameSpotify, a.baseURL+"/search?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &provider.ErrProviderUnavailable{
			Provider:   provider.NameSpotify,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(provider.NameSpotify, resp.StatusCode, name)
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameSpotify, Cause: err}
	}
	for _, item := range sr.Artists.Items {
		if !strings.EqualFold(item.Name, name) {
			continue
		}
		return provider.FieldSet{
			provider.FieldImageURL: largestImage(item.Images),
			provider.FieldGenres:   strings.Join(item.Genres, ", "),
		}, nil
	}
	return nil, &provider.ErrNotFound{Provider: provider.NameSpotify, ID: name}
}

func largestImage(images []image) string {
	best, area := "", -1
	for _, img := range images {
		if img.URL != "" && img.Width*img.Height > area {
			best, area = img.URL, img.Width*img.Height
		}
	}
	return best
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
