// Package logging builds the process logger: a leveled slog handler that
// writes to the terminal and optionally to a rotated file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging setup.
type Config struct {
	Level string
	// Format is json, text, or auto. Auto picks text on a terminal.
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.File != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB backups=%d max_age=%dd",
			c.File, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}
	return s
}

// SwappableHandler forwards to an inner handler that can be replaced while
// loggers derived from it stay valid.
type SwappableHandler struct {
	inner atomic.Pointer[slog.Handler]
}

// NewSwappableHandler wraps h.
func NewSwappableHandler(h slog.Handler) *SwappableHandler {
	s := &SwappableHandler{}
	s.inner.Store(&h)
	return s
}

// Swap replaces the inner handler.
func (s *SwappableHandler) Swap(h slog.Handler) { s.inner.Store(&h) }

func (s *SwappableHandler) load() slog.Handler { return *s.inner.Load() }

func (s *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.load().Enabled(ctx, level)
}

func (s *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.load().Handle(ctx, r)
}

func (s *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewSwappableHandler(s.load().WithAttrs(attrs))
}

func (s *SwappableHandler) WithGroup(name string) slog.Handler {
	return NewSwappableHandler(s.load().WithGroup(name))
}

// Manager owns the handler, the level and the log file.
type Manager struct {
	mu      sync.Mutex
	level   *slog.LevelVar
	handler *SwappableHandler
	console io.Writer
	config  Config
	file    io.Closer
}

// NewManager builds a logger writing to console (stderr when nil) and, if
// configured, a rotated file.
func NewManager(cfg Config, console io.Writer) (*Manager, *slog.Logger) {
	if console == nil {
		console = os.Stderr
	}
	m := &Manager{level: &slog.LevelVar{}, console: console, config: cfg}
	m.level.Set(ParseLevel(cfg.Level))

	w, closer := m.writer(cfg)
	m.file = closer
	m.handler = NewSwappableHandler(m.build(w, cfg.Format))
	return m, slog.New(m.handler)
}

// SetLevel changes the level without rebuilding the handler.
func (m *Manager) SetLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level.Set(ParseLevel(level))
	m.config.Level = level
}

// Reconfigure applies cfg. Format or file changes rebuild the handler and
// close the previous log file.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level.Set(ParseLevel(cfg.Level))
	old := m.config
	m.config = cfg
	if cfg.Format == old.Format && cfg.File == old.File && cfg.MaxSizeMB == old.MaxSizeMB &&
		cfg.MaxBackups == old.MaxBackups && cfg.MaxAgeDays == old.MaxAgeDays {
		return
	}

	if m.file != nil {
		m.file.Close() //nolint:errcheck
		m.file = nil
	}
	w, closer := m.writer(cfg)
	m.file = closer
	m.handler.Swap(m.build(w, cfg.Format))
}

// Config returns the active configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close closes the log file, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func (m *Manager) writer(cfg Config) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return m.console, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30),
	}
	return io.MultiWriter(m.console, lj), lj
}

func (m *Manager) build(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: m.level}
	if ResolveFormat(format, m.console) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// ResolveFormat turns "auto" into text when w is a terminal and json
// otherwise. Explicit formats pass through.
func ResolveFormat(format string, w io.Writer) string {
	switch strings.ToLower(format) {
	case "text":
		return "text"
	case "json":
		return "json"
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		return "text"
	}
	return "json"
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
