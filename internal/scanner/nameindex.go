package scanner

import "github.com/sydlexius/backwater/internal/catalog"

type albumKey struct {
	title           string
	primaryArtistID string
}

// nameIndex remembers artist and album ids resolved during one run so later
// batches reuse rows created by earlier ones. Entries added inside a batch
// stay pending until that batch commits.
type nameIndex struct {
	artists        map[string]string
	albums         map[albumKey]string
	pendingArtists map[string]string
	pendingAlbums  map[albumKey]string
}

func newNameIndex() *nameIndex {
	return &nameIndex{
		artists:        make(map[string]string),
		albums:         make(map[albumKey]string),
		pendingArtists: make(map[string]string),
		pendingAlbums:  make(map[albumKey]string),
	}
}

func (x *nameIndex) artist(name string) (string, bool) {
	if id, ok := x.pendingArtists[name]; ok {
		return id, true
	}
	id, ok := x.artists[name]
	return id, ok
}

func (x *nameIndex) album(k albumKey) (string, bool) {
	if id, ok := x.pendingAlbums[k]; ok {
		return id, true
	}
	id, ok := x.albums[k]
	return id, ok
}

func (x *nameIndex) putArtist(name, id string) { x.pendingArtists[name] = id }

func (x *nameIndex) putAlbum(k albumKey, id string) { x.pendingAlbums[k] = id }

func (x *nameIndex) commit() {
	for k, v := range x.pendingArtists {
		x.artists[k] = v
	}
	for k, v := range x.pendingAlbums {
		x.albums[k] = v
	}
	x.rollback()
}

func (x *nameIndex) rollback() {
	clear(x.pendingArtists)
	clear(x.pendingAlbums)
}

// forget drops swept ids so no later batch links to a deleted row.
func (x *nameIndex) forget(s catalog.Sweep) {
	if len(s.Artists) == 0 && len(s.Albums) == 0 {
		return
	}
	gone := make(map[string]struct{}, len(s.Artists)+len(s.Albums))
	for _, id := range s.Artists {
		gone[id] = struct{}{}
	}
	for _, id := range s.Albums {
		gone[id] = struct{}{}
	}
	for _, m := range []map[string]string{x.artists, x.pendingArtists} {
		for k, id := range m {
			if _, ok := gone[id]; ok {
				delete(m, k)
			}
		}
	}
	for _, m := range []map[albumKey]string{x.albums, x.pendingAlbums} {
		for k, id := range m {
			if _, ok := gone[id]; ok {
				delete(m, k)
			}
		}
	}
}
