package enrichment

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/database"
	"github.com/sydlexius/backwater/internal/event"
	"github.com/sydlexius/backwater/internal/filesystem"
	"github.com/sydlexius/backwater/internal/provider"
)

type fakeMetadata struct {
	calls atomic.Int32
	out   func(q provider.ArtistQuery) (*provider.Outcome, error)
}

func (f *fakeMetadata) Fetch(_ context.Context, q provider.ArtistQuery) (*provider.Outcome, error) {
	f.calls.Add(1)
	return f.out(q)
}

type fakeLyrics struct {
	last provider.TrackQuery
	out  *provider.Outcome
}

func (f *fakeLyrics) Fetch(_ context.Context, q provider.TrackQuery) (*provider.Outcome, error) {
	f.last = q
	return f.out, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func outcome(fields provider.FieldSet, sources map[provider.Field]provider.ProviderName, invoked ...provider.ProviderName) *provider.Outcome {
	return &provider.Outcome{Fields: fields, Sources: sources, Invoked: invoked}
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedSong(t *testing.T, db *sql.DB, path string) (songID, artistID string) {
	t.Helper()
	ctx := context.Background()
	now := database.FormatTime(time.Now())
	_, err := db.Exec(`INSERT OR IGNORE INTO folders (id, path, name, created_at, updated_at) VALUES ('f', ?, 'lib', ?, ?)`, filepath.Dir(path), now, now)
	require.NoError(t, err)

	artistID, err = catalog.CreateArtist(ctx, db, "Portishead")
	require.NoError(t, err)
	albumID, err := catalog.CreateAlbum(ctx, db, "Dummy", artistID)
	require.NoError(t, err)
	s := &catalog.Song{FolderID: "f", AlbumID: albumID, Path: path, Directory: filepath.Dir(path), Title: "Roads", Duration: 305 * time.Second, ModifiedAt: time.Now()}
	require.NoError(t, catalog.InsertSong(ctx, db, s))
	_, err = catalog.ReplaceSongArtists(ctx, db, s.ID, []string{artistID})
	require.NoError(t, err)
	_, err = catalog.RefreshSongArtistName(ctx, db, s.ID)
	require.NoError(t, err)
	return s.ID, artistID
}

func newService(db *sql.DB, meta MetadataSource, lyrics LyricsSource, bus event.Publisher, opts Options) *Service {
	return NewService(catalog.NewService(db), meta, lyrics, filesystem.OS{}, bus, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func TestEnrichArtist_PersistsMergedFields(t *testing.T) {
	db := setupDB(t)
	_, artistID := seedSong(t, db, "/music/roads.mp3")
	bus := &recordingBus{}
	meta := &fakeMetadata{out: func(q provider.ArtistQuery) (*provider.Outcome, error) {
		assert.Equal(t, "Portishead", q.Name)
		return outcome(provider.FieldSet{
			provider.FieldBiography: "Bristol trio.",
			provider.FieldImageURL:  "a.jpg",
		}, map[provider.Field]provider.ProviderName{
			provider.FieldBiography: provider.NameLastFM,
			provider.FieldImageURL:  provider.NameDeezer,
		}, provider.NameLastFM, provider.NameDeezer), nil
	}}
	svc := newService(db, meta, nil, bus, Options{})

	_, err := svc.EnrichArtist(context.Background(), artistID)
	require.NoError(t, err)

	a, err := catalog.NewService(db).GetArtist(context.Background(), artistID)
	require.NoError(t, err)
	assert.Equal(t, "Bristol trio.", a.Biography)
	assert.Equal(t, "a.jpg", a.ImageURL)
	assert.NotNil(t, a.LastEnrichedAt)
	require.Len(t, bus.events, 1)
	assert.Equal(t, event.ArtistEnriched, bus.events[0].Type)
}

func TestEnrichArtist_EmptyMergeStillStamps(t *testing.T) {
	db := setupDB(t)
	_, artistID := seedSong(t, db, "/music/roads.mp3")
	meta := &fakeMetadata{out: func(provider.ArtistQuery) (*provider.Outcome, error) {
		return outcome(provider.FieldSet{}, nil, provider.NameLastFM), nil
	}}
	svc := newService(db, meta, nil, nil, Options{})

	_, err := svc.EnrichArtist(context.Background(), artistID)
	assert.ErrorIs(t, err, ErrNoResult)
	a, err := catalog.NewService(db).GetArtist(context.Background(), artistID)
	require.NoError(t, err)
	assert.NotNil(t, a.LastEnrichedAt)
}

func TestEnrichArtist_NothingInvokedLeavesArtistPending(t *testing.T) {
	db := setupDB(t)
	_, artistID := seedSong(t, db, "/music/roads.mp3")
	meta := &fakeMetadata{out: func(provider.ArtistQuery) (*provider.Outcome, error) {
		return outcome(provider.FieldSet{}, nil), nil
	}}
	svc := newService(db, meta, nil, nil, Options{})

	_, err := svc.EnrichArtist(context.Background(), artistID)
	assert.ErrorIs(t, err, ErrNoResult)
	a, _ := catalog.NewService(db).GetArtist(context.Background(), artistID)
	assert.Nil(t, a.LastEnrichedAt)
}

func TestEnrichArtist_Unknown(t *testing.T) {
	db := setupDB(t)
	svc := newService(db, &fakeMetadata{}, nil, nil, Options{})
	_, err := svc.EnrichArtist(context.Background(), "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestFetchLyrics_StoresAndWritesSidecar(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()
	songID, _ := seedSong(t, db, filepath.Join(dir, "Roads.mp3"))
	lyrics := &fakeLyrics{out: outcome(provider.FieldSet{
		provider.FieldLyrics:       "Oh, can't anybody see",
		provider.FieldSyncedLyrics: "[00:12.50]Oh, can't anybody see",
	}, map[provider.Field]provider.ProviderName{
		provider.FieldLyrics:       provider.NameLRCLIB,
		provider.FieldSyncedLyrics: provider.NameLRCLIB,
	}, provider.NameSidecar, provider.NameLRCLIB)}
	svc := newService(db, nil, lyrics, nil, Options{WriteSidecar: true})

	l, err := svc.FetchLyrics(context.Background(), songID)
	require.NoError(t, err)
	assert.Equal(t, "lrclib", l.Source)
	assert.Equal(t, "Dummy", lyrics.last.Album)
	assert.Equal(t, "Portishead", lyrics.last.Artist)
	assert.Equal(t, 305*time.Second, lyrics.last.Duration)

	stored, err := catalog.NewService(db).GetLyrics(context.Background(), songID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Oh, can't anybody see", stored.Plain)

	data, err := os.ReadFile(filepath.Join(dir, "Roads.lrc"))
	require.NoError(t, err)
	assert.Equal(t, "[00:12.50]Oh, can't anybody see\n", string(data))
}

func TestFetchLyrics_QueriesLeadArtist(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	songID, lead := seedSong(t, db, "/music/Roads.mp3")
	guest, err := catalog.CreateArtist(ctx, db, "Tricky")
	require.NoError(t, err)
	_, err = catalog.ReplaceSongArtists(ctx, db, songID, []string{lead, guest})
	require.NoError(t, err)
	_, err = catalog.RefreshSongArtistName(ctx, db, songID)
	require.NoError(t, err)

	lyrics := &fakeLyrics{out: outcome(provider.FieldSet{provider.FieldLyrics: "text"},
		map[provider.Field]provider.ProviderName{provider.FieldLyrics: provider.NameLRCLIB}, provider.NameLRCLIB)}
	svc := newService(db, nil, lyrics, nil, Options{})

	_, err = svc.FetchLyrics(ctx, songID)
	require.NoError(t, err)
	assert.Equal(t, "Portishead", lyrics.last.Artist)

	song, err := catalog.NewService(db).GetSong(ctx, songID)
	require.NoError(t, err)
	assert.Equal(t, "Portishead & Tricky", song.ArtistName)
}

func TestFetchLyrics_SidecarSourceIsNotRewritten(t *testing.T) {
	db := setupDB(t)
	songID, _ := seedSong(t, db, "/music/Roads.mp3")
	lyrics := &fakeLyrics{out: outcome(provider.FieldSet{provider.FieldLyrics: "text"},
		map[provider.Field]provider.ProviderName{provider.FieldLyrics: provider.NameSidecar}, provider.NameSidecar)}
	svc := newService(db, nil, lyrics, nil, Options{WriteSidecar: true})
	svc.writeFile = func(string, []byte, os.FileMode) error {
		t.Fatal("sidecar must not be rewritten from itself")
		return nil
	}

	_, err := svc.FetchLyrics(context.Background(), songID)
	require.NoError(t, err)
}

func TestFetchLyrics_NoResultStampsChecked(t *testing.T) {
	db := setupDB(t)
	songID, _ := seedSong(t, db, "/music/Roads.mp3")
	lyrics := &fakeLyrics{out: outcome(provider.FieldSet{}, nil, provider.NameLRCLIB)}
	svc := newService(db, nil, lyrics, nil, Options{})

	_, err := svc.FetchLyrics(context.Background(), songID)
	assert.ErrorIs(t, err, ErrNoResult)
	song, err := catalog.NewService(db).GetSong(context.Background(), songID)
	require.NoError(t, err)
	assert.NotNil(t, song.LyricsCheckedAt)
}

func TestFetchLyrics_InstrumentalCountsAsResult(t *testing.T) {
	db := setupDB(t)
	songID, _ := seedSong(t, db, "/music/Roads.mp3")
	lyrics := &fakeLyrics{out: outcome(provider.FieldSet{provider.FieldInstrumental: "true"},
		map[provider.Field]provider.ProviderName{provider.FieldInstrumental: provider.NameLRCLIB}, provider.NameLRCLIB)}
	svc := newService(db, nil, lyrics, nil, Options{})

	l, err := svc.FetchLyrics(context.Background(), songID)
	require.NoError(t, err)
	assert.True(t, l.Instrumental)
}

func TestEnrichPending(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C", "D"} {
		_, err := catalog.CreateArtist(ctx, db, name)
		require.NoError(t, err)
	}
	meta := &fakeMetadata{out: func(q provider.ArtistQuery) (*provider.Outcome, error) {
		switch q.Name {
		case "A", "B":
			return outcome(provider.FieldSet{provider.FieldBiography: "bio " + q.Name},
				map[provider.Field]provider.ProviderName{provider.FieldBiography: provider.NameLastFM}, provider.NameLastFM), nil
		case "C":
			return outcome(provider.FieldSet{}, nil, provider.NameLastFM), nil
		default:
			return nil, errors.New("ranking unreadable")
		}
	}}
	svc := newService(db, meta, nil, nil, Options{Concurrency: 2})

	sum, err := svc.EnrichPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, PendingSummary{Enriched: 2, Empty: 1, Failed: 1}, sum)
	assert.EqualValues(t, 4, meta.calls.Load())

	// Enriched and empty artists are stamped; only the failed one remains.
	sum, err = svc.EnrichPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, PendingSummary{Failed: 1}, sum)
}
