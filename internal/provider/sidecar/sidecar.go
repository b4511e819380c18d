// Package sidecar serves lyrics from .lrc files stored next to audio files.
package sidecar

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sydlexius/backwater/internal/filesystem"
	"github.com/sydlexius/backwater/internal/provider"
)

// Extension is the sidecar lyrics file extension.
const Extension = ".lrc"

// timeTag matches an LRC line timestamp such as [01:23.45] or [1:23].
var timeTag = regexp.MustCompile(`\[\d{1,3}:\d{2}(?:[.:]\d{1,3})?\]`)

// metaTag matches LRC header lines such as [ar:Artist] or [offset:+100].
var metaTag = regexp.MustCompile(`^\[[a-zA-Z#]+:[^\]]*\]$`)

// Adapter implements provider.Fetcher[provider.TrackQuery] over the local
// filesystem.
type Adapter struct {
	fs     filesystem.FS
	logger *slog.Logger
}

// New creates a sidecar lyrics adapter.
func New(fsys filesystem.FS, logger *slog.Logger) *Adapter {
	return &Adapter{fs: fsys, logger: logger.With(slog.String("provider", string(provider.NameSidecar)))}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameSidecar }

// Fetch reads the .lrc file beside the track.
func (a *Adapter) Fetch(ctx context.Context, q provider.TrackQuery) (provider.Result[provider.FieldSet], error) {
	return provider.Call(ctx, nil, provider.NameSidecar, false,
		func(ctx context.Context, _ string) (provider.FieldSet, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return a.read(q)
		})
}

func (a *Adapter) read(q provider.TrackQuery) (provider.FieldSet, error) {
	if q.Path == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameSidecar, ID: q.SongID}
	}
	p := Path(a.fs, q.Path)
	data, err := a.fs.ReadFile(p)
	if err != nil {
		if filesystem.IsNotExist(err) {
			return nil, &provider.ErrNotFound{Provider: provider.NameSidecar, ID: p}
		}
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameSidecar, Cause: errNotUTF8}
	}

	plain, synced := Parse(string(data))
	if plain == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameSidecar, ID: p}
	}
	a.logger.Debug("read sidecar lyrics", slog.String("path", p))
	return provider.FieldSet{
		provider.FieldLyrics:       plain,
		provider.FieldSyncedLyrics: synced,
	}, nil
}

// Path returns the sidecar path for an audio file.
func Path(fsys filesystem.FS, audioPath string) string {
	ext := fsys.GetExtension(audioPath)
	return audioPath[:len(audioPath)-len(ext)] + Extension
}

// Parse splits LRC text into plain lyrics and, when any line carries a
// timestamp, the synced original. Header tags are dropped from the plain
// text.
func Parse(text string) (plain, synced string) {
	text = strings.TrimPrefix(strings.ReplaceAll(text, "\r\n", "\n"), "﻿")
	isSynced := timeTag.MatchString(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if metaTag.MatchString(trimmed) {
			continue
		}
		lines = append(lines, strings.TrimSpace(timeTag.ReplaceAllString(trimmed, "")))
	}
	plain = strings.TrimSpace(strings.Join(lines, "\n"))
	if isSynced {
		synced = strings.TrimSpace(text)
	}
	return plain, synced
}

// Render returns the text to store in a sidecar file: synced lyrics when
// present, plain otherwise.
func Render(plain, synced string) string {
	if synced != "" {
		return synced + "\n"
	}
	if plain == "" {
		return ""
	}
	return plain + "\n"
}
