package provider

import (
	"context"
	"fmt"
	"time"
)

// ProviderName uniquely identifies an enrichment provider.
type ProviderName string

// Known provider names. The set is closed: rank entries naming anything else
// are dropped.
const (
	NameLastFM   ProviderName = "lastfm"
	NameFanartTV ProviderName = "fanarttv"
	NameDeezer   ProviderName = "deezer"
	NameSpotify  ProviderName = "spotify"
	NameLRCLIB   ProviderName = "lrclib"
	NameSidecar  ProviderName = "sidecar"
)

// AllProviderNames returns all known provider names in display order.
func AllProviderNames() []ProviderName {
	return []ProviderName{NameLastFM, NameFanartTV, NameDeezer, NameSpotify, NameSidecar, NameLRCLIB}
}

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameLastFM:
		return "Last.fm"
	case NameFanartTV:
		return "Fanart.tv"
	case NameDeezer:
		return "Deezer"
	case NameSpotify:
		return "Spotify"
	case NameLRCLIB:
		return "LRCLIB"
	case NameSidecar:
		return "Local .lrc files"
	default:
		return string(n)
	}
}

// Category groups providers that answer the same kind of request.
type Category string

// Enrichment categories.
const (
	CategoryMetadata Category = "metadata"
	CategoryLyrics   Category = "lyrics"
)

// CategoryOf returns the category a provider belongs to.
func CategoryOf(n ProviderName) (Category, bool) {
	switch n {
	case NameLastFM, NameFanartTV, NameDeezer, NameSpotify:
		return CategoryMetadata, true
	case NameLRCLIB, NameSidecar:
		return CategoryLyrics, true
	default:
		return "", false
	}
}

// Field names an output value that providers may supply.
type Field string

// Known fields.
const (
	FieldMusicBrainzID Field = "musicbrainz_id"
	FieldBiography     Field = "biography"
	FieldImageURL      Field = "image_url"
	FieldFanartURL     Field = "fanart_url"
	FieldLogoURL       Field = "logo_url"
	FieldGenres        Field = "genres"
	FieldLyrics        Field = "lyrics"
	FieldSyncedLyrics  Field = "synced_lyrics"
	FieldInstrumental  Field = "instrumental"
)

// FieldSet is the payload one provider returns, or the merged result.
type FieldSet map[Field]string

// Requirement is a precondition a subject must satisfy before a provider is
// called. Requirements are configuration data attached to rank entries.
type Requirement string

// Known requirements.
const (
	RequireMBID     Requirement = "mbid"
	RequirePath     Requirement = "path"
	RequireDuration Requirement = "duration"
	RequireArtist   Requirement = "artist"
)

// Subject is anything a ranked provider can be asked about.
type Subject interface {
	Satisfies(r Requirement) bool
}

// ArtistQuery is the subject of a metadata request.
type ArtistQuery struct {
	ArtistID string
	Name     string
	MBID     string
}

// Satisfies reports whether the artist meets a provider precondition.
func (q ArtistQuery) Satisfies(r Requirement) bool {
	switch r {
	case RequireMBID:
		return q.MBID != ""
	case RequireArtist:
		return q.Name != ""
	default:
		return false
	}
}

// TrackQuery is the subject of a lyrics request.
type TrackQuery struct {
	SongID   string
	Path     string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// Satisfies reports whether the track meets a provider precondition.
func (q TrackQuery) Satisfies(r Requirement) bool {
	switch r {
	case RequirePath:
		return q.Path != ""
	case RequireDuration:
		return q.Duration > 0
	case RequireArtist:
		return q.Artist != ""
	default:
		return false
	}
}

// Fetcher is the single capability a ranked provider implements for its
// category. Metadata providers are Fetcher[ArtistQuery]; lyrics providers are
// Fetcher[TrackQuery]. The returned error is non-nil only for cancellation.
type Fetcher[S Subject] interface {
	Name() ProviderName
	Fetch(ctx context.Context, subject S) (Result[FieldSet], error)
}

// SizedImage is one entry of a provider's multi-size image list.
type SizedImage struct {
	Size string
	URL  string
}

// PickImage prefers "extralarge", then "large", else the last entry in the
// order the provider returned them. Entries with empty URLs are ignored.
func PickImage(images []SizedImage) string {
	var last string
	byName := make(map[string]string, len(images))
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		if _, seen := byName[img.Size]; !seen {
			byName[img.Size] = img.URL
		}
		last = img.URL
	}
	if u := byName["extralarge"]; u != "" {
		return u
	}
	if u := byName["large"]; u != "" {
		return u
	}
	return last
}

// ErrProviderUnavailable indicates a transient failure (timeout, server error).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider confirmed it has no data for the subject.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrAuthRequired indicates the provider needs a credential but none is configured.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: credential not configured", e.Provider)
}

// ErrInvalidCredential indicates the provider rejected the credential it was
// given. Call refreshes the credential once when it sees this error.
type ErrInvalidCredential struct {
	Provider ProviderName
	Cause    error
}

func (e *ErrInvalidCredential) Error() string {
	return fmt.Sprintf("provider %s: invalid credential: %v", e.Provider, e.Cause)
}

func (e *ErrInvalidCredential) Unwrap() error { return e.Cause }

// ErrMalformedResponse indicates a success status with an unparseable body.
type ErrMalformedResponse struct {
	Provider ProviderName
	Cause    error
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("provider %s: malformed response: %v", e.Provider, e.Cause)
}

func (e *ErrMalformedResponse) Unwrap() error { return e.Cause }
