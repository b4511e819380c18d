package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertFolder(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := database.FormatTime(time.Now())
	_, err := db.Exec(`INSERT INTO folders (id, path, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "/music/"+id, id, now, now)
	require.NoError(t, err)
}

func TestJoinArtistNames(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"A"}, "A"},
		{[]string{"First", "Second"}, "First & Second"},
		{[]string{"A", "B", "C"}, "A, B & C"},
		{[]string{"A", "B", "C", "D"}, "A, B, C & D"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinArtistNames(tt.names), "names=%v", tt.names)
	}
}

func TestCleanNames(t *testing.T) {
	got := CleanNames([]string{" A ", "", "B", "A", "a"})
	assert.Equal(t, []string{"A", "B", "a"}, got)
}

func TestCreditsAndDisplayName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	insertFolder(t, db, "f1")

	a, err := CreateArtist(ctx, db, "Alpha")
	require.NoError(t, err)
	b, err := CreateArtist(ctx, db, "Beta")
	require.NoError(t, err)
	c, err := CreateArtist(ctx, db, "Gamma")
	require.NoError(t, err)

	song := &Song{FolderID: "f1", Path: "/music/f1/x.mp3", Directory: "/music/f1", Title: "x", ModifiedAt: time.Now()}
	require.NoError(t, InsertSong(ctx, db, song))

	prior, err := ReplaceSongArtists(ctx, db, song.ID, []string{a, b, c})
	require.NoError(t, err)
	assert.Empty(t, prior)

	display, err := RefreshSongArtistName(ctx, db, song.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha, Beta & Gamma", display)

	prior, err = ReplaceSongArtists(ctx, db, song.ID, []string{c, a})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, prior)

	svc := NewService(db)
	credits, err := svc.SongCredits(ctx, song.ID)
	require.NoError(t, err)
	require.Len(t, credits, 2)
	assert.Equal(t, Credit{ArtistID: c, ArtistName: "Gamma", Order: 0}, credits[0])
	assert.Equal(t, Credit{ArtistID: a, ArtistName: "Alpha", Order: 1}, credits[1])
}

func TestSweepOrphans(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	insertFolder(t, db, "f1")

	keep, err := CreateArtist(ctx, db, "Keep")
	require.NoError(t, err)
	gone, err := CreateArtist(ctx, db, "Gone")
	require.NoError(t, err)
	albumOnly, err := CreateArtist(ctx, db, "Album Only")
	require.NoError(t, err)

	albumID, err := CreateAlbum(ctx, db, "Record", albumOnly)
	require.NoError(t, err)
	_, err = ReplaceAlbumArtists(ctx, db, albumID, []string{albumOnly})
	require.NoError(t, err)

	song := &Song{FolderID: "f1", Path: "/music/f1/a.flac", Directory: "/music/f1", Title: "a", AlbumID: albumID, ModifiedAt: time.Now()}
	require.NoError(t, InsertSong(ctx, db, song))
	_, err = ReplaceSongArtists(ctx, db, song.ID, []string{keep, gone})
	require.NoError(t, err)

	// Nothing is orphaned while the song references everything.
	sweep, err := SweepOrphans(ctx, db, []string{albumID}, []string{keep, gone, albumOnly})
	require.NoError(t, err)
	assert.Empty(t, sweep.Albums)
	assert.Empty(t, sweep.Artists)

	albums, artists, err := DeleteSongs(ctx, db, []string{song.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{albumID}, albums)
	assert.ElementsMatch(t, []string{keep, gone}, artists)

	sweep, err = SweepOrphans(ctx, db, albums, artists)
	require.NoError(t, err)
	assert.Equal(t, []string{albumID}, sweep.Albums)
	assert.ElementsMatch(t, []string{keep, gone, albumOnly}, sweep.Artists)

	st, err := NewService(db).Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	// A second sweep is a no-op.
	sweep, err = SweepAll(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, sweep.Albums)
	assert.Empty(t, sweep.Artists)
}

func TestApplyArtistEnrichment_KeepsExistingOnEmpty(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewService(db)

	id, err := CreateArtist(ctx, db, "Nirvana")
	require.NoError(t, err)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, svc.ApplyArtistEnrichment(ctx, id, Enrichment{Biography: "bio", ImageURL: "a.jpg"}, at))
	require.NoError(t, svc.ApplyArtistEnrichment(ctx, id, Enrichment{ImageURL: "b.jpg"}, at.Add(time.Hour)))

	a, err := svc.GetArtist(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bio", a.Biography)
	assert.Equal(t, "b.jpg", a.ImageURL)
	require.NotNil(t, a.LastEnrichedAt)
	assert.True(t, a.LastEnrichedAt.Equal(at.Add(time.Hour)))

	pending, err := svc.ListUnenriched(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = svc.ApplyArtistEnrichment(ctx, "missing", Enrichment{}, at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAndGetLyrics(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	insertFolder(t, db, "f1")
	svc := NewService(db)

	song := &Song{FolderID: "f1", Path: "/music/f1/s.mp3", Directory: "/music/f1", Title: "s", ModifiedAt: time.Now()}
	require.NoError(t, InsertSong(ctx, db, song))

	l, err := svc.GetLyrics(ctx, song.ID)
	require.NoError(t, err)
	assert.Nil(t, l)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, svc.SaveLyrics(ctx, &Lyrics{SongID: song.ID, Plain: "la la", Source: "lrclib", FetchedAt: now}))
	require.NoError(t, svc.SaveLyrics(ctx, &Lyrics{SongID: song.ID, Plain: "la la la", Synced: "[00:01.00]la", Source: "lrclib", FetchedAt: now}))

	l, err = svc.GetLyrics(ctx, song.ID)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "la la la", l.Plain)
	assert.Equal(t, "[00:01.00]la", l.Synced)

	got, err := svc.GetSong(ctx, song.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LyricsCheckedAt)
}
