// Package tags extracts song metadata from audio files.
package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupported is returned for files whose content is not audio.
var ErrUnsupported = errors.New("unsupported audio content")

// Metadata is the tag payload the reconciler persists.
type Metadata struct {
	Title        string
	Album        string
	Artists      []string
	AlbumArtists []string
	Duration     time.Duration
	ModifiedAt   time.Time
}

// Extractor reads metadata from one file. hint is the lower-cased file
// extension and may be empty.
type Extractor interface {
	ExtractMetadata(ctx context.Context, path, hint string) (*Metadata, error)
}

// TagReader implements Extractor with github.com/dhowden/tag.
type TagReader struct{}

// NewTagReader returns the default extractor.
func NewTagReader() *TagReader { return &TagReader{} }

// ExtractMetadata sniffs the content type, then parses ID3, MP4, FLAC or
// Vorbis tags. Duration is only derived for FLAC, from STREAMINFO.
func (r *TagReader) ExtractMetadata(ctx context.Context, path, hint string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the library walk
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("detecting content type of %s: %w", path, err)
	}
	if !isAudio(mtype) {
		return nil, fmt.Errorf("%s is %s: %w", path, mtype.String(), ErrUnsupported)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding %s: %w", path, err)
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("reading tags of %s: %w", path, err)
	}

	md := &Metadata{
		Title:        strings.TrimSpace(m.Title()),
		Album:        strings.TrimSpace(m.Album()),
		Artists:      SplitArtists(m.Artist()),
		AlbumArtists: SplitArtists(m.AlbumArtist()),
		ModifiedAt:   info.ModTime().UTC(),
	}

	if m.FileType() == tag.FLAC || hint == ".flac" {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			md.Duration = flacDuration(f)
		}
	}
	return md, nil
}

func isAudio(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || s == "video/mp4" || s == "application/ogg" {
			return true
		}
	}
	return false
}

// SplitArtists splits a multi-valued artist tag. ID3v2.4 separates values
// with NUL; most taggers write "; ".
func SplitArtists(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == 0 })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// flacDuration reads the STREAMINFO block that follows the "fLaC" marker.
// Tags written before the marker (ID3 in FLAC) are not handled and yield 0.
func flacDuration(r io.Reader) time.Duration {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil || string(header[:]) != "fLaC" {
		return 0
	}
	var blockHeader [4]byte
	if _, err := io.ReadFull(r, blockHeader[:]); err != nil || blockHeader[0]&0x7F != 0 {
		return 0
	}
	var info [34]byte
	if _, err := io.ReadFull(r, info[:]); err != nil {
		return 0
	}
	sampleRate := int64(info[10])<<12 | int64(info[11])<<4 | int64(info[12])>>4
	totalSamples := int64(info[13]&0x0F)<<32 | int64(info[14])<<24 | int64(info[15])<<16 |
		int64(info[16])<<8 | int64(info[17])
	if sampleRate == 0 || totalSamples == 0 {
		return 0
	}
	return time.Duration(totalSamples * int64(time.Second) / sampleRate)
}
