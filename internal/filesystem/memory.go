package filesystem

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory FS for tests. Paths use forward slashes.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memFile
	dirs  map[string]struct{}
	// StatErr, when set, is returned by GetLastWriteTimeUTC for that path.
	StatErr map[string]error
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *Memory {
	return &Memory{
		files:   make(map[string]memFile),
		dirs:    make(map[string]struct{}),
		StatErr: make(map[string]error),
	}
}

// Write creates or replaces a file.
func (m *Memory) Write(p string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(p)] = memFile{data: data, modTime: modTime.UTC()}
}

// Mkdir registers an empty directory.
func (m *Memory) Mkdir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path.Clean(dir)] = struct{}{}
}

// Remove deletes a file.
func (m *Memory) Remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Clean(p))
}

// DirectoryExists reports whether any file lives under dir.
func (m *Memory) DirectoryExists(dir string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.dirs[path.Clean(dir)]; ok {
		return true
	}
	prefix := path.Clean(dir) + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// EnumerateFiles lists files under root matching pattern.
func (m *Memory) EnumerateFiles(root, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := path.Clean(root) + "/"
	var out []string
	for p := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		ok, err := path.Match(pattern, path.Base(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetExtension returns the lower-cased extension including the dot.
func (m *Memory) GetExtension(p string) string {
	return strings.ToLower(path.Ext(p))
}

// GetLastWriteTimeUTC returns the stored modification time.
func (m *Memory) GetLastWriteTimeUTC(p string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.StatErr[p]; err != nil {
		return time.Time{}, err
	}
	f, ok := m.files[path.Clean(p)]
	if !ok {
		return time.Time{}, fs.ErrNotExist
	}
	return f.modTime, nil
}

// ReadFile returns the stored bytes.
func (m *Memory) ReadFile(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return f.data, nil
}
