package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/config"
	"github.com/sydlexius/backwater/internal/credential"
	"github.com/sydlexius/backwater/internal/database"
	"github.com/sydlexius/backwater/internal/encryption"
	"github.com/sydlexius/backwater/internal/enrichment"
	"github.com/sydlexius/backwater/internal/event"
	"github.com/sydlexius/backwater/internal/filesystem"
	"github.com/sydlexius/backwater/internal/library"
	"github.com/sydlexius/backwater/internal/logging"
	"github.com/sydlexius/backwater/internal/maintenance"
	"github.com/sydlexius/backwater/internal/playlist"
	"github.com/sydlexius/backwater/internal/provider"
	"github.com/sydlexius/backwater/internal/provider/deezer"
	"github.com/sydlexius/backwater/internal/provider/fanarttv"
	"github.com/sydlexius/backwater/internal/provider/lastfm"
	"github.com/sydlexius/backwater/internal/provider/lrclib"
	"github.com/sydlexius/backwater/internal/provider/sidecar"
	"github.com/sydlexius/backwater/internal/provider/spotify"
	"github.com/sydlexius/backwater/internal/scanner"
	"github.com/sydlexius/backwater/internal/tags"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg    *config.Config
	logs   *logging.Manager
	logger *slog.Logger
	db     *sql.DB
	bus    *event.Bus
	fs     filesystem.FS

	folders     *library.Service
	catalog     *catalog.Service
	scanner     *scanner.Service
	ranks       *provider.SettingsService
	creds       *credential.Store
	enrichment  *enrichment.Service
	playlists   *playlist.Service
	maintenance *maintenance.Service
}

func openApp(ctx context.Context, configPath, logLevel string, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logs, logger := logging.NewManager(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, stderr)
	if logLevel != "" {
		logs.SetLevel(logLevel)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logs: logs, logger: logger, fs: filesystem.OS{}}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("database ready", slog.String("path", cfg.Database.Path))

	a.bus = event.NewBus(logger, 256)
	for _, t := range []event.Type{
		event.FolderChanged, event.ReconcileCompleted, event.ArtistEnriched,
		event.LyricsFetched, event.PlaylistReordered, event.MaintenanceRan,
	} {
		a.bus.Subscribe(t, a.logEvent)
	}
	go a.bus.Start()

	encKey, err := resolveEncryptionKey(cfg, logger)
	if err != nil {
		return fmt.Errorf("resolving encryption key: %w", err)
	}
	enc, _, err := encryption.NewEncryptor(encKey)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Providers.HTTPTimeout}
	a.creds = credential.NewStore(db, enc, logger)
	if cfg.Providers.Spotify.Enabled() {
		a.creds.RegisterRefresher(provider.NameSpotify, credential.NewOAuthRefresher(
			cfg.Providers.Spotify.ClientID, cfg.Providers.Spotify.ClientSecret,
			credential.SpotifyTokenURL, httpClient))
	}
	if n, err := a.creds.SeedStatic(ctx, cfg.Providers.APIKeys); err != nil {
		return fmt.Errorf("seeding api keys: %w", err)
	} else if n > 0 {
		logger.Info("stored api keys from config", slog.Int("count", n))
	}

	limiter := provider.NewRateLimiterMap(cfg.Providers.RateLimits)

	metadata := provider.NewRegistry[provider.ArtistQuery]()
	metadata.Register(lastfm.New(httpClient, limiter, a.creds, logger))
	metadata.Register(fanarttv.New(httpClient, limiter, a.creds, logger))
	metadata.Register(deezer.New(httpClient, limiter, logger))
	metadata.Register(spotify.New(httpClient, limiter, a.creds, logger))

	// One breaker per process: a 429 from LRCLIB silences it until restart.
	breaker := &lrclib.Breaker{}
	lyrics := provider.NewRegistry[provider.TrackQuery]()
	lyrics.Register(sidecar.New(a.fs, logger))
	lyrics.Register(lrclib.New(httpClient, limiter, breaker, logger, lrclib.WithTolerance(cfg.Lyrics.DurationTolerance)))

	a.ranks = provider.NewSettingsService(db, cfg.RankDefaults())

	a.folders = library.NewService(db)
	a.catalog = catalog.NewService(db)
	reconciler := scanner.NewReconciler(db, a.fs, tags.NewTagReader(), a.folders, logger, scanner.Options{
		Extensions: cfg.Library.Extensions,
		BatchSize:  cfg.Library.BatchSize,
	})
	a.scanner = scanner.NewService(reconciler, a.bus, logger)
	a.enrichment = enrichment.NewService(a.catalog,
		provider.NewOrchestrator(provider.CategoryMetadata, metadata, a.ranks, logger),
		provider.NewOrchestrator(provider.CategoryLyrics, lyrics, a.ranks, logger),
		a.fs, a.bus, logger, enrichment.Options{WriteSidecar: cfg.Lyrics.WriteSidecar})
	a.playlists = playlist.NewService(db, a.bus, logger)
	a.maintenance = maintenance.NewService(db, cfg.Database.Path, a.bus, logger)
	return nil
}

func (a *app) logEvent(e event.Event) {
	a.logger.Debug("event", slog.String("type", string(e.Type)), slog.Any("data", e.Data))
}

// close waits for background reconciles, drains the bus, and releases the
// database and log file.
func (a *app) close() {
	if a.scanner != nil {
		a.scanner.Wait()
	}
	if a.bus != nil {
		a.bus.Stop()
		if !a.bus.Wait(5 * time.Second) {
			a.logger.Warn("event bus did not drain in time")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}
	a.logs.Close() //nolint:errcheck
}

// resolveEncryptionKey returns the configured key, the key stored in the
// key file, or a newly generated key persisted to the key file.
func resolveEncryptionKey(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.Encryption.Key != "" {
		return cfg.Encryption.Key, nil
	}

	keyFile := cfg.Encryption.KeyFile
	if keyFile == "" {
		keyFile = filepath.Join(filepath.Dir(cfg.Database.Path), "encryption.key")
	}

	data, err := os.ReadFile(keyFile) //nolint:gosec // G304: path from trusted config
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading key file: %w", err)
	}

	_, key, err := encryption.NewEncryptor("")
	if err != nil {
		return "", fmt.Errorf("generating encryption key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyFile), 0o750); err != nil {
		return "", fmt.Errorf("creating key directory: %w", err)
	}
	if err := filesystem.WriteFileAtomic(keyFile, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("saving encryption key: %w", err)
	}
	logger.Warn("generated new encryption key, back up this file", slog.String("path", keyFile))
	return key, nil
}
