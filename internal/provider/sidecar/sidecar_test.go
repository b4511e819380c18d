package sidecar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/filesystem"
	"github.com/sydlexius/backwater/internal/provider"
	"github.com/sydlexius/backwater/internal/provider/providertest"
)

const syncedLRC = "[ar:Portishead]\n[ti:Roads]\n[00:12.50]Oh, can't anybody see\n[00:18.00]We've got a war to fight\n"

func TestFetch(t *testing.T) {
	mem := filesystem.NewMemory()
	mem.Write("/music/Roads.FLAC", []byte("audio"), time.Now())
	mem.Write("/music/Roads.lrc", []byte(syncedLRC), time.Now())
	mem.Write("/music/Plain.mp3", []byte("audio"), time.Now())
	mem.Write("/music/Plain.lrc", []byte("first line\r\nsecond line\r\n"), time.Now())
	mem.Write("/music/Blank.mp3", []byte("audio"), time.Now())
	mem.Write("/music/Blank.lrc", []byte("[ar:Nobody]\n\n"), time.Now())
	mem.Write("/music/Bad.mp3", []byte("audio"), time.Now())
	mem.Write("/music/Bad.lrc", []byte{0xff, 0xfe, 0x00}, time.Now())
	a := New(mem, providertest.Logger())

	t.Run("synced", func(t *testing.T) {
		res, err := a.Fetch(context.Background(), provider.TrackQuery{Path: "/music/Roads.FLAC", Title: "Roads"})
		require.NoError(t, err)
		require.Equal(t, provider.KindSuccess, res.Kind)
		assert.Equal(t, "Oh, can't anybody see\nWe've got a war to fight", res.Data[provider.FieldLyrics])
		assert.Equal(t, syncedLRC[:len(syncedLRC)-1], res.Data[provider.FieldSyncedLyrics])
	})

	t.Run("plain", func(t *testing.T) {
		res, err := a.Fetch(context.Background(), provider.TrackQuery{Path: "/music/Plain.mp3"})
		require.NoError(t, err)
		require.Equal(t, provider.KindSuccess, res.Kind)
		assert.Equal(t, "first line\nsecond line", res.Data[provider.FieldLyrics])
		assert.Empty(t, res.Data[provider.FieldSyncedLyrics])
	})

	tests := []struct {
		name string
		path string
		want provider.Kind
	}{
		{"missing sidecar", "/music/Other.mp3", provider.KindNotFound},
		{"headers only", "/music/Blank.mp3", provider.KindNotFound},
		{"no path", "", provider.KindNotFound},
		{"invalid utf8", "/music/Bad.mp3", provider.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Fetch(context.Background(), provider.TrackQuery{Path: tt.path})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

func TestFetch_Cancelled(t *testing.T) {
	a := New(filesystem.NewMemory(), providertest.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Fetch(ctx, provider.TrackQuery{Path: "/x.mp3"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "[00:01.00]a\n", Render("a", "[00:01.00]a"))
	assert.Equal(t, "a\n", Render("a", ""))
	assert.Equal(t, "", Render("", ""))
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/m/Song.lrc", Path(filesystem.OS{}, "/m/Song.MP3"))
	assert.Equal(t, "/m/noext.lrc", Path(filesystem.OS{}, "/m/noext"))
}
