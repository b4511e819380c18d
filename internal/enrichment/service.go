// Package enrichment runs the ranked providers for catalog entities and
// persists what they return.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/event"
	"github.com/sydlexius/backwater/internal/filesystem"
	"github.com/sydlexius/backwater/internal/provider"
	"github.com/sydlexius/backwater/internal/provider/sidecar"
)

// ErrNoResult means every provider was consulted and none had data.
var ErrNoResult = errors.New("no provider returned a result")

// MetadataSource is the ranked metadata fetch.
type MetadataSource interface {
	Fetch(ctx context.Context, q provider.ArtistQuery) (*provider.Outcome, error)
}

// LyricsSource is the ranked lyrics fetch.
type LyricsSource interface {
	Fetch(ctx context.Context, q provider.TrackQuery) (*provider.Outcome, error)
}

// Options tunes the service.
type Options struct {
	// WriteSidecar stores fetched lyrics next to the audio file as .lrc.
	WriteSidecar bool
	// Concurrency bounds EnrichPending. Zero means 4.
	Concurrency int
}

// Service enriches artists and songs.
type Service struct {
	catalog  *catalog.Service
	metadata MetadataSource
	lyrics   LyricsSource
	fs       filesystem.FS
	bus      event.Publisher
	logger   *slog.Logger
	opts     Options

	writeFile func(path string, data []byte, perm os.FileMode) error
	now       func() time.Time
}

// NewService creates an enrichment service. bus may be nil.
func NewService(cat *catalog.Service, metadata MetadataSource, lyrics LyricsSource, fsys filesystem.FS, bus event.Publisher, logger *slog.Logger, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{
		catalog:   cat,
		metadata:  metadata,
		lyrics:    lyrics,
		fs:        fsys,
		bus:       bus,
		logger:    logger.With(slog.String("component", "enrichment")),
		opts:      opts,
		writeFile: filesystem.WriteFileAtomic,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EnrichArtist fetches metadata for one artist and stores the merged
// fields. When at least one provider was called the artist is stamped as
// enriched, even if nothing was found.
func (s *Service) EnrichArtist(ctx context.Context, artistID string) (*provider.Outcome, error) {
	a, err := s.catalog.GetArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	out, err := s.metadata.Fetch(ctx, provider.ArtistQuery{ArtistID: a.ID, Name: a.Name, MBID: a.MusicBrainzID})
	if err != nil {
		return nil, err
	}
	if !out.Attempted() {
		s.logger.Debug("no metadata provider eligible", slog.String("artist", a.Name))
		return out, ErrNoResult
	}

	e := catalog.Enrichment{
		MusicBrainzID: out.Fields[provider.FieldMusicBrainzID],
		Biography:     out.Fields[provider.FieldBiography],
		ImageURL:      out.Fields[provider.FieldImageURL],
		FanartURL:     out.Fields[provider.FieldFanartURL],
		LogoURL:       out.Fields[provider.FieldLogoURL],
		Genres:        out.Fields[provider.FieldGenres],
	}
	// An MBID learned earlier is authoritative.
	if a.MusicBrainzID != "" {
		e.MusicBrainzID = ""
	}
	if err := s.catalog.ApplyArtistEnrichment(ctx, a.ID, e, s.now()); err != nil {
		return nil, err
	}

	s.publish(event.ArtistEnriched, map[string]any{
		"artist_id": a.ID,
		"fields":    len(out.Fields),
		"sources":   sourceNames(out),
	})
	if len(out.Fields) == 0 {
		return out, ErrNoResult
	}
	s.logger.Info("artist enriched", slog.String("artist", a.Name), slog.Int("fields", len(out.Fields)))
	return out, nil
}

// FetchLyrics fetches lyrics for a song and stores them.
func (s *Service) FetchLyrics(ctx context.Context, songID string) (*catalog.Lyrics, error) {
	song, err := s.catalog.GetSong(ctx, songID)
	if err != nil {
		return nil, err
	}
	q := provider.TrackQuery{
		SongID:   song.ID,
		Path:     song.Path,
		Title:    song.Title,
		Artist:   song.ArtistName,
		Duration: song.Duration,
	}
	// Lyrics services index a track under its lead artist, not the joined
	// display string.
	credits, err := s.catalog.SongCredits(ctx, song.ID)
	if err != nil {
		return nil, err
	}
	if len(credits) > 0 {
		q.Artist = credits[0].ArtistName
	}
	if song.AlbumID != "" {
		album, err := s.catalog.GetAlbum(ctx, song.AlbumID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
		if album != nil {
			q.Album = album.Title
		}
	}

	out, err := s.lyrics.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if !out.Attempted() {
		return nil, ErrNoResult
	}

	now := s.now()
	plain := out.Fields[provider.FieldLyrics]
	synced := out.Fields[provider.FieldSyncedLyrics]
	instrumental, _ := strconv.ParseBool(out.Fields[provider.FieldInstrumental])
	if plain == "" && synced == "" && !instrumental {
		if err := s.catalog.MarkLyricsChecked(ctx, song.ID, now); err != nil {
			return nil, err
		}
		return nil, ErrNoResult
	}

	source := out.Sources[provider.FieldLyrics]
	if source == "" {
		source = out.Sources[provider.FieldSyncedLyrics]
	}
	if source == "" {
		source = out.Sources[provider.FieldInstrumental]
	}
	l := &catalog.Lyrics{
		SongID:       song.ID,
		Plain:        plain,
		Synced:       synced,
		Instrumental: instrumental,
		Source:       string(source),
		FetchedAt:    now,
	}
	if err := s.catalog.SaveLyrics(ctx, l); err != nil {
		return nil, err
	}

	if s.opts.WriteSidecar && source != provider.NameSidecar {
		if text := sidecar.Render(plain, synced); text != "" {
			target := sidecar.Path(s.fs, song.Path)
			if err := s.writeFile(target, []byte(text), 0o644); err != nil {
				// The database copy is already stored.
				s.logger.Warn("writing lyrics sidecar failed", slog.String("path", target), slog.String("error", err.Error()))
			}
		}
	}

	s.publish(event.LyricsFetched, map[string]any{"song_id": song.ID, "source": l.Source})
	return l, nil
}

// PendingSummary counts the outcome of EnrichPending.
type PendingSummary struct {
	Enriched int `json:"enriched"`
	Empty    int `json:"empty"`
	Failed   int `json:"failed"`
}

// EnrichPending enriches up to limit artists that were never enriched,
// running a bounded number at once. Individual failures are counted, not
// returned.
func (s *Service) EnrichPending(ctx context.Context, limit int) (PendingSummary, error) {
	var sum PendingSummary
	artists, err := s.catalog.ListUnenriched(ctx, limit)
	if err != nil {
		return sum, err
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, a := range artists {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := s.EnrichArtist(ctx, a.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sum.Enriched++
			case errors.Is(err, ErrNoResult):
				sum.Empty++
			case ctx.Err() != nil:
			default:
				sum.Failed++
				s.logger.Warn("enriching artist failed", slog.String("artist", a.Name), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *Service) publish(t event.Type, data map[string]any) {
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: t, Data: data})
	}
}

func sourceNames(out *provider.Outcome) map[string]string {
	m := make(map[string]string, len(out.Sources))
	for f, p := range out.Sources {
		m[string(f)] = string(p)
	}
	return m
}

// String renders a summary for logs and the CLI.
func (p PendingSummary) String() string {
	return fmt.Sprintf("%d enriched, %d without data, %d failed", p.Enriched, p.Empty, p.Failed)
}
