package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(NewMemory())
	ctx := context.Background()
	posts := map[string]any{
		"p1": map[string]any{"key": "p1", "uid": "a", "publish_date": "100"},
		"p2": map[string]any{"key": "p2", "uid": "b", "publish_date": "300"},
		"p3": map[string]any{"key": "p3", "uid": "a", "publish_date": "200"},
	}
	require.NoError(t, store.Ref("posts").Set(ctx, posts))
	return store
}

func TestHandle_GetMissing(t *testing.T) {
	store := NewStore(NewMemory())

	snap, err := store.Ref("users").Child("nobody").Get(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.Nil(t, snap.Record())
	assert.Equal(t, 0, snap.ChildCount())
	assert.Equal(t, "nobody", snap.Key())
}

func TestHandle_ChildrenDefaultToKeyOrder(t *testing.T) {
	store := seededStore(t)

	snap, err := store.Ref("posts").Get(context.Background())
	require.NoError(t, err)

	var keys []string
	for _, c := range snap.Children() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, keys)
	assert.Equal(t, 3, snap.ChildCount())
}

func TestHandle_OrderByChildEqualToLimit(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	ordered, err := store.Ref("posts").OrderByChild("publish_date").Get(ctx)
	require.NoError(t, err)
	var keys []string
	for _, c := range ordered.Children() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"p1", "p3", "p2"}, keys)

	byAuthor, err := store.Ref("posts").OrderByChild("uid").EqualTo("a").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byAuthor.ChildCount())
	assert.Len(t, byAuthor.Record(), 2)

	last, err := store.Ref("posts").OrderByChild("publish_date").LimitToLast(1).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, last.ChildCount())
	assert.Equal(t, "p2", last.Children()[0].Key())
}

func TestHandle_OrderingAcrossKinds(t *testing.T) {
	store := NewStore(NewMemory())
	ctx := context.Background()
	require.NoError(t, store.Ref("mixed").Set(ctx, map[string]any{
		"s": map[string]any{"v": "x"},
		"n": map[string]any{"v": 3},
		"b": map[string]any{"v": true},
		"f": map[string]any{"v": false},
		"m": map[string]any{"other": 1},
	}))

	snap, err := store.Ref("mixed").OrderByChild("v").Get(ctx)
	require.NoError(t, err)
	var keys []string
	for _, c := range snap.Children() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"m", "f", "b", "n", "s"}, keys)
}

func TestHandle_SetNilDeletesAndPrunes(t *testing.T) {
	store := NewStore(NewMemory())
	ctx := context.Background()
	like := store.Ref("posts-likes").Child("p1").Child("u1")

	require.NoError(t, like.Set(ctx, "u1"))
	snap, err := like.Get(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.Equal(t, "u1", snap.Value())

	require.NoError(t, like.Set(ctx, nil))
	snap, err = store.Ref("posts-likes").Child("p1").Get(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestHandle_ReadsAreCopies(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	snap, err := store.Ref("posts").Child("p1").Get(ctx)
	require.NoError(t, err)
	snap.Record()["uid"] = "mutated"

	again, err := store.Ref("posts").Child("p1").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Record()["uid"])
}

func TestHandle_MalformedPath(t *testing.T) {
	store := NewStore(NewMemory())
	ctx := context.Background()

	_, err := store.Ref("").Get(ctx)
	assert.ErrorIs(t, err, ErrMalformedPath)

	err = store.Ref("posts").Child("bad.key").Set(ctx, "x")
	assert.ErrorIs(t, err, ErrMalformedPath)
}

func TestStore_Transact(t *testing.T) {
	store := NewStore(NewMemory())
	ctx := context.Background()
	counter := store.Ref("counters").Child("c")

	for i := 0; i < 3; i++ {
		ran, err := store.Transact(ctx, counter, func(current any, exists bool) (any, error) {
			n, _ := AsInt64(current)
			return n + 1, nil
		})
		require.NoError(t, err)
		require.True(t, ran)
	}

	snap, err := counter.Get(ctx)
	require.NoError(t, err)
	n, ok := AsInt64(snap.Value())
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestValueConversions(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"string millis", "1700000000000", 1700000000000, true},
		{"float", float64(42), 42, true},
		{"int", 7, 7, true},
		{"garbage", "soon", 0, false},
		{"missing", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsInt64(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	b, ok := AsBool("true")
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = AsBool(nil)
	assert.False(t, ok)

	s, ok := AsString(float64(12))
	assert.True(t, ok)
	assert.Equal(t, "12", s)
}
