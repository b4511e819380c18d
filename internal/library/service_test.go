package library

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "opening test db")
	require.NoError(t, database.Migrate(db), "running migrations")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndGetByID(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	f := &Folder{Path: "/music/main/", Watch: true}
	require.NoError(t, svc.Create(ctx, f))
	require.NotEmpty(t, f.ID, "ID is set after Create")
	assert.Equal(t, "main", f.Name)

	got, err := svc.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "/music/main", got.Path)
	assert.True(t, got.Watch)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	_, err := svc.GetByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByPathAndList(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, p := range []string{"/music/b", "/music/a"} {
		require.NoError(t, svc.Create(ctx, &Folder{Path: p}), "Create %s", p)
	}

	got, err := svc.GetByPath(ctx, "/music/a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name)

	missing, err := svc.GetByPath(ctx, "/nowhere")
	require.NoError(t, err)
	assert.Nil(t, missing)

	folders, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "a", folders[0].Name)
	assert.Equal(t, "b", folders[1].Name)
}

func TestSetWatch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	f := &Folder{Path: "/music/w", Watch: true}
	require.NoError(t, svc.Create(ctx, f))
	require.NoError(t, svc.SetWatch(ctx, f.ID, false))

	got, err := svc.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.Watch)

	assert.ErrorIs(t, svc.SetWatch(ctx, "nope", true), ErrNotFound)
}

func TestDelete_SweepsOrphans(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	f := &Folder{Path: "/music/gone"}
	require.NoError(t, svc.Create(ctx, f))

	artistID, err := catalog.CreateArtist(ctx, db, "Solo")
	require.NoError(t, err)
	song := &catalog.Song{FolderID: f.ID, Path: "/music/gone/a.mp3", Directory: "/music/gone", Title: "a", ModifiedAt: time.Now()}
	require.NoError(t, catalog.InsertSong(ctx, db, song))
	_, err = catalog.ReplaceSongArtists(ctx, db, song.ID, []string{artistID})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, f.ID))

	st, err := catalog.NewService(db).Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Songs)
	assert.Zero(t, st.Artists)

	assert.ErrorIs(t, svc.Delete(ctx, f.ID), ErrNotFound, "second delete")
}
