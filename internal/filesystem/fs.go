// Package filesystem is the boundary between the library engine and the
// disk. The reconciler only sees the FS interface, so tests substitute the
// in-memory implementation.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FS is the filesystem collaborator consumed by the scanner and the sidecar
// lyrics provider.
type FS interface {
	DirectoryExists(path string) bool
	// EnumerateFiles lists regular files under root whose base name matches
	// the glob pattern. Results are sorted.
	EnumerateFiles(root, pattern string, recursive bool) ([]string, error)
	GetExtension(path string) string
	GetLastWriteTimeUTC(path string) (time.Time, error)
	ReadFile(path string) ([]byte, error)
}

// OS implements FS on the host filesystem.
type OS struct{}

// DirectoryExists reports whether path is an existing directory.
func (OS) DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnumerateFiles walks root. Hidden entries are skipped, and unreadable
// subdirectories are skipped rather than failing the whole walk.
func (OS) EnumerateFiles(root, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// GetExtension returns the lower-cased extension including the dot.
func (OS) GetExtension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// GetLastWriteTimeUTC returns the file modification time in UTC.
func (OS) GetLastWriteTimeUTC(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime().UTC(), nil
}

// ReadFile reads a whole file.
func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // paths come from the library walk
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
