package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sydlexius/backwater/internal/provider"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0"

// Adapter fetches biography, genres and images from Last.fm's
// artist.getinfo. The API key is the credential.
type Adapter struct {
	client  provider.HTTPClient
	limiter *provider.RateLimiterMap
	creds   provider.Credentials
	logger  *slog.Logger
	baseURL string
}

// New creates a Last.fm adapter with the default base URL.
func New(client provider.HTTPClient, limiter *provider.RateLimiterMap, creds provider.Credentials, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, limiter, creds, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Last.fm adapter with a custom base URL (for testing).
func NewWithBaseURL(client provider.HTTPClient, limiter *provider.RateLimiterMap, creds provider.Credentials, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		limiter: limiter,
		creds:   creds,
		logger:  logger.With(slog.String("provider", string(provider.NameLastFM))),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameLastFM }

// Fetch looks the artist up by MBID when known, otherwise by name.
func (a *Adapter) Fetch(ctx context.Context, q provider.ArtistQuery) (provider.Result[provider.FieldSet], error) {
	return provider.Call(ctx, a.creds, provider.NameLastFM, true,
		func(ctx context.Context, apiKey string) (provider.FieldSet, error) {
			return a.getInfo(ctx, apiKey, q)
		})
}

func (a *Adapter) getInfo(ctx context.Context, apiKey string, q provider.ArtistQuery) (provider.FieldSet, error) {
	if err := provider.WaitLimiter(ctx, a.limiter, provider.NameLastFM); err != nil {
		return nil, err
	}

	params := url.Values{
		"method":      {"artist.getinfo"},
		"api_key":     {apiKey},
		"format":      {"json"},
		"autocorrect": {"1"},
	}
	id := q.Name
	if q.MBID != "" {
		params.Set("mbid", q.MBID)
		id = q.MBID
	} else {
		params.Set("artist", q.Name)
	}

	a.logger.Debug("requesting artist info", slog.String("artist", q.Name))
	resp, err := provider.Get(ctx, a.client, provider.NameLastFM, a.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var info InfoResponse
	parseErr := json.Unmarshal(resp.Body, &info)
	// Last.fm reports most failures as a JSON error code, sometimes with a
	// 200 status and sometimes with 4xx.
	if parseErr == nil && info.Error != 0 {
		return nil, mapAPIError(info.Error, info.Message, id)
	}
	if resp.StatusCode != 200 {
		return nil, provider.StatusError(provider.NameLastFM, resp.StatusCode, id)
	}
	if parseErr != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameLastFM, Cause: parseErr}
	}
	if info.Artist.Name == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameLastFM, ID: id}
	}
	return mapArtist(&info.Artist), nil
}

func mapAPIError(code int, message, id string) error {
	cause := fmt.Errorf("error %d: %s", code, message)
	switch code {
	case errInvalidParameters:
		return &provider.ErrNotFound{Provider: provider.NameLastFM, ID: id}
	case errInvalidAPIKey, errSuspendedAPIKey:
		return &provider.ErrInvalidCredential{Provider: provider.NameLastFM, Cause: cause}
	case errRateLimited, errServiceOffline, errTemporary:
		return &provider.ErrProviderUnavailable{Provider: provider.NameLastFM, Cause: cause}
	default:
		return errors.Join(errors.New("lastfm request rejected"), cause)
	}
}

func mapArtist(info *ArtistInfo) provider.FieldSet {
	bio := cleanBio(info.Bio.Content)
	if bio == "" {
		bio = cleanBio(info.Bio.Summary)
	}

	images := make([]provider.SizedImage, 0, len(info.Image))
	for _, img := range info.Image {
		images = append(images, provider.SizedImage{Size: img.Size, URL: img.URL})
	}

	var genres []string
	for _, tag := range info.Tags.Tag {
		if tag.Name != "" {
			genres = append(genres, tag.Name)
		}
	}

	return provider.FieldSet{
		provider.FieldMusicBrainzID: info.MBID,
		provider.FieldBiography:     bio,
		provider.FieldImageURL:      provider.PickImage(images),
		provider.FieldGenres:        strings.Join(genres, ", "),
	}
}

// cleanBio removes the Last.fm attribution link appended to bios.
func cleanBio(bio string) string {
	if idx := strings.Index(bio, "<a href=\"https://www.last.fm"); idx >= 0 {
		bio = bio[:idx]
	}
	return strings.TrimSpace(bio)
}
