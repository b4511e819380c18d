package fanarttv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sydlexius/backwater/internal/provider"
)

const defaultBaseURL = "https://webservice.fanart.tv/v3/music"

// Adapter fetches artist thumbnails, backgrounds and logos from Fanart.tv.
// Lookups are keyed by MusicBrainz ID.
type Adapter struct {
	client  provider.HTTPClient
	limiter *provider.RateLimiterMap
	creds   provider.Credentials
	logger  *slog.Logger
	baseURL string
}

// New creates a Fanart.tv adapter.
func New(client provider.HTTPClient, limiter *provider.RateLimiterMap, creds provider.Credentials, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, limiter, creds, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Fanart.tv adapter with a custom base URL (for testing).
func NewWithBaseURL(client provider.HTTPClient, limiter *provider.RateLimiterMap, creds provider.Credentials, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		limiter: limiter,
		creds:   creds,
		logger:  logger.With(slog.String("provider", string(provider.NameFanartTV))),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameFanartTV }

// Fetch returns image fields for the artist. A query without an MBID is
// reported as not found without a request.
func (a *Adapter) Fetch(ctx context.Context, q provider.ArtistQuery) (provider.Result[provider.FieldSet], error) {
	if q.MBID == "" {
		return provider.NotFound[provider.FieldSet](), nil
	}
	return provider.Call(ctx, a.creds, provider.NameFanartTV, true,
		func(ctx context.Context, apiKey string) (provider.FieldSet, error) {
			return a.getImages(ctx, apiKey, q.MBID)
		})
}

func (a *Adapter) getImages(ctx context.Context, apiKey, mbid string) (provider.FieldSet, error) {
	if err := provider.WaitLimiter(ctx, a.limiter, provider.NameFanartTV); err != nil {
		return nil, err
	}

	reqURL := a.baseURL + "/" + url.PathEscape(mbid) + "?" + url.Values{"api_key": {apiKey}}.Encode()
	a.logger.Debug("requesting artist images", slog.String("mbid", mbid))
	resp, err := provider.Get(ctx, a.client, provider.NameFanartTV, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(provider.NameFanartTV, resp.StatusCode, mbid)
	}

	var r Response
	if err := json.Unmarshal(resp.Body, &r); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameFanartTV, Cause: err}
	}

	logo := mostLiked(r.HDMusicLogo)
	if logo == "" {
		logo = mostLiked(r.MusicLogo)
	}
	fields := provider.FieldSet{
		provider.FieldImageURL:  mostLiked(r.ArtistThumb),
		provider.FieldFanartURL: mostLiked(r.ArtistBackground),
		provider.FieldLogoURL:   logo,
	}
	if fields[provider.FieldImageURL] == "" && fields[provider.FieldFanartURL] == "" && logo == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameFanartTV, ID: mbid}
	}
	return fields, nil
}

// mostLiked returns the URL with the highest like count. Ties keep the
// earlier entry.
func mostLiked(images []Image) string {
	best, bestLikes := "", -1
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		likes, err := strconv.Atoi(img.Likes)
		if err != nil {
			likes = 0
		}
		if likes > bestLikes {
			best, bestLikes = img.URL, likes
		}
	}
	return best
}
