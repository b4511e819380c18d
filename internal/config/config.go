package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/backwater/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Library     LibraryConfig     `yaml:"library"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Lyrics      LyricsConfig      `yaml:"lyrics"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=auto json text"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// LibraryConfig controls reconciliation.
type LibraryConfig struct {
	Extensions    []string      `yaml:"extensions" validate:"required,min=1,dive,required"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=1,lte=100"`
	WatchDebounce time.Duration `yaml:"watch_debounce" validate:"gte=0"`
}

// ProvidersConfig configures outbound enrichment calls.
type ProvidersConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout" validate:"gt=0"`
	// Rankings seeds the stored ranking for categories that have none.
	Rankings map[provider.Category][]provider.RankEntry `yaml:"rankings"`
	// RateLimits overrides requests per second by provider id.
	RateLimits map[provider.ProviderName]float64 `yaml:"rate_limits" validate:"dive,gte=0"`
	// APIKeys are static keys seeded into the credential store when absent.
	APIKeys map[provider.ProviderName]string `yaml:"api_keys"`
	Spotify SpotifyConfig                    `yaml:"spotify"`
}

// SpotifyConfig holds the client-credentials pair.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether both halves of the pair are set.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// LyricsConfig tunes lyrics lookups.
type LyricsConfig struct {
	DurationTolerance time.Duration `yaml:"duration_tolerance" validate:"gte=0"`
	WriteSidecar      bool          `yaml:"write_sidecar"`
}

// EncryptionConfig locates the credential sealing key.
type EncryptionConfig struct {
	// Key is the base64 key itself. It wins over KeyFile.
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"`
}

// MaintenanceConfig schedules database upkeep.
type MaintenanceConfig struct {
	// Interval between runs. Zero disables the scheduler.
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/data/backwater.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "auto",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		Library: LibraryConfig{
			Extensions:    []string{".mp3", ".flac", ".m4a", ".ogg", ".opus", ".wav", ".aac", ".wma"},
			BatchSize:     100,
			WatchDebounce: 2 * time.Second,
		},
		Providers: ProvidersConfig{
			HTTPTimeout: 15 * time.Second,
		},
		Lyrics: LyricsConfig{
			DurationTolerance: 30 * time.Second,
		},
		Encryption: EncryptionConfig{
			KeyFile: "/data/encryption.key",
		},
		Maintenance: MaintenanceConfig{
			Interval: 24 * time.Hour,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("BW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("BW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("BW_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("BW_LIBRARY_EXTENSIONS"); v != "" {
		c.Library.Extensions = splitList(v)
	}
	if v := os.Getenv("BW_LIBRARY_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BW_LIBRARY_BATCH_SIZE: %w", err)
		}
		c.Library.BatchSize = n
	}
	if err := envDuration("BW_WATCH_DEBOUNCE", &c.Library.WatchDebounce); err != nil {
		return err
	}
	if err := envDuration("BW_PROVIDER_TIMEOUT", &c.Providers.HTTPTimeout); err != nil {
		return err
	}
	if err := envDuration("BW_LYRICS_TOLERANCE", &c.Lyrics.DurationTolerance); err != nil {
		return err
	}
	if v := os.Getenv("BW_LYRICS_WRITE_SIDECAR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BW_LYRICS_WRITE_SIDECAR: %w", err)
		}
		c.Lyrics.WriteSidecar = b
	}
	if v := os.Getenv("BW_ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("BW_ENCRYPTION_KEY_FILE"); v != "" {
		c.Encryption.KeyFile = v
	}
	if err := envDuration("BW_MAINTENANCE_INTERVAL", &c.Maintenance.Interval); err != nil {
		return err
	}
	if v := os.Getenv("BW_SPOTIFY_CLIENT_ID"); v != "" {
		c.Providers.Spotify.ClientID = v
	}
	if v := os.Getenv("BW_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Providers.Spotify.ClientSecret = v
	}
	// BW_<PROVIDER>_API_KEY for every provider, e.g. BW_LASTFM_API_KEY.
	for _, name := range provider.AllProviderNames() {
		if v := os.Getenv("BW_" + strings.ToUpper(string(name)) + "_API_KEY"); v != "" {
			if c.Providers.APIKeys == nil {
				c.Providers.APIKeys = make(map[provider.ProviderName]string)
			}
			c.Providers.APIKeys[name] = v
		}
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c *Config) validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	for i, ext := range c.Library.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Library.Extensions[i] = ext
	}

	for name := range c.Providers.RateLimits {
		if _, ok := provider.CategoryOf(name); !ok {
			return fmt.Errorf("rate limit for unknown provider %q", name)
		}
	}
	for name := range c.Providers.APIKeys {
		if _, ok := provider.CategoryOf(name); !ok {
			return fmt.Errorf("api key for unknown provider %q", name)
		}
	}
	for category, entries := range c.Providers.Rankings {
		if err := provider.ValidateRanking(category, entries); err != nil {
			return fmt.Errorf("rankings: %w", err)
		}
	}
	if (c.Providers.Spotify.ClientID == "") != (c.Providers.Spotify.ClientSecret == "") {
		return errors.New("spotify client_id and client_secret must be set together")
	}
	return nil
}

// RankDefaults merges configured rankings over the built-in defaults.
func (c *Config) RankDefaults() map[provider.Category][]provider.RankEntry {
	out := provider.DefaultRankings()
	for category, entries := range c.Providers.Rankings {
		out[category] = entries
	}
	return out
}
