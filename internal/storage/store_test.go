package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pders01/synfeed/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_WriteAndReadNested(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []string{"posts-likes", "p1", "u1"}, "u1"))
	require.NoError(t, store.Write(ctx, []string{"posts-likes", "p1", "u2"}, "u2"))

	v, ok, err := store.Read(ctx, []string{"posts-likes", "p1", "u1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)

	v, ok, err = store.Read(ctx, []string{"posts-likes", "p1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"u1": "u1", "u2": "u2"}, v)

	v, ok, err = store.Read(ctx, []string{"posts-likes"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, v.(map[string]any), "p1")
}

func TestStore_ReadMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, path := range [][]string{
		{"users"},
		{"users", "ghost"},
		{"users", "ghost", "nickname"},
	} {
		v, ok, err := store.Read(ctx, path)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	}
}

func TestStore_DeletePrunesEmptyRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []string{"favorite-posts", "u1", "p1"}, "p1"))
	require.NoError(t, store.Write(ctx, []string{"favorite-posts", "u1", "p1"}, nil))

	_, ok, err := store.Read(ctx, []string{"favorite-posts", "u1"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Read(ctx, []string{"favorite-posts"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ReplaceCollection(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []string{"stories", "old"}, map[string]any{"uid": "a"}))
	require.NoError(t, store.Write(ctx, []string{"stories"}, map[string]any{
		"s1": map[string]any{"uid": "b"},
	}))

	v, ok, err := store.Read(ctx, []string{"stories"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"s1": map[string]any{"uid": "b"}}, v)

	err = store.Write(ctx, []string{"stories"}, "scalar")
	assert.ErrorIs(t, err, ErrNotCollection)

	require.NoError(t, store.Write(ctx, []string{"stories"}, nil))
	_, ok, err = store.Read(ctx, []string{"stories"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Transact(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	path := []string{"posts-likes", "p1", "u1"}

	flip := func(current any, exists bool) (any, error) {
		if exists {
			return nil, nil
		}
		return "u1", nil
	}

	require.NoError(t, store.Transact(ctx, path, flip))
	_, ok, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Transact(ctx, path, flip))
	_, ok, err = store.Read(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	store, err := NewStore(dbPath, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, []string{"users", "u1"}, map[string]any{"nickname": "Ann"}))
	require.NoError(t, store.Close())

	store, err = NewStore(dbPath, time.Second)
	require.NoError(t, err)
	defer store.Close()

	v, ok, err := store.Read(ctx, []string{"users", "u1", "nickname"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ann", v)
}

func TestStore_QueriesThroughRemote(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rs := remote.NewStore(store)

	require.NoError(t, rs.Ref("posts").Set(ctx, map[string]any{
		"a": map[string]any{"uid": "x", "publish_date": "100"},
		"b": map[string]any{"uid": "y", "publish_date": "300"},
		"c": map[string]any{"uid": "x", "publish_date": "200"},
	}))

	snap, err := rs.Ref("posts").OrderByChild("publish_date").LimitToLast(2).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.ChildCount())
	assert.Equal(t, "c", snap.Children()[0].Key())
	assert.Equal(t, "b", snap.Children()[1].Key())

	ran, err := rs.Transact(ctx, rs.Ref("posts").Child("a").Child("uid"), func(any, bool) (any, error) {
		return "z", nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	snap, err = rs.Ref("posts").OrderByChild("uid").EqualTo("z").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ChildCount())
}

func TestStore_Sources(t *testing.T) {
	store := setupTestStore(t)

	sources := []*Source{
		{ID: "s2", URL: "http://example.com/b.xml", Title: "beta"},
		{ID: "s1", URL: "http://example.com/a.xml", Title: "Alpha"},
		{ID: "s3", URL: "http://example.com/0.xml"},
	}
	for _, src := range sources {
		require.NoError(t, store.SaveSource(src))
	}

	got, err := store.GetSource("s1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)

	_, err = store.GetSource("missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	all, err := store.GetAllSources()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s1", all[0].ID)
	assert.Equal(t, "s2", all[1].ID)
	assert.Equal(t, "s3", all[2].ID)

	require.NoError(t, store.DeleteSource("s2"))
	all, err = store.GetAllSources()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
