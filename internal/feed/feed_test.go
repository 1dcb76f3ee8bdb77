package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pders01/synfeed/internal/identity"
	"github.com/pders01/synfeed/internal/interaction"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/remote"
	"github.com/pders01/synfeed/internal/remote/remotetest"
	"github.com/pders01/synfeed/internal/usercache"
)

type fixture struct {
	store     *remote.Store
	faulty    *remotetest.Faulty
	loader    *Loader
	users     *usercache.Cache
	engine    *interaction.Engine
	presenter *Presenter
}

var fixedNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, viewer string) *fixture {
	t.Helper()
	faulty := remotetest.NewFaulty(remote.NewMemory())
	store := remote.NewStore(faulty)
	users := usercache.New(store)
	engine := interaction.New(store, users)
	who := identity.Static(viewer)
	return &fixture{
		store:     store,
		faulty:    faulty,
		loader:    NewLoader(store, who),
		users:     users,
		engine:    engine,
		presenter: NewPresenter(users, engine, who, WithClock(func() time.Time { return fixedNow }, time.UTC)),
	}
}

func (f *fixture) seedPosts(t *testing.T, posts map[string]map[string]any) {
	t.Helper()
	raw := make(map[string]any, len(posts))
	for k, v := range posts {
		raw[k] = v
	}
	require.NoError(t, f.store.Ref("posts").Set(context.Background(), raw))
}

func ids(posts []model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestLoad_SortsNewestFirst(t *testing.T) {
	f := newFixture(t, "me")
	f.seedPosts(t, map[string]map[string]any{
		"a": {"uid": "x", "publish_date": "100"},
		"b": {"uid": "x", "publish_date": "300"},
		"c": {"uid": "x", "publish_date": "200"},
	})

	require.NoError(t, f.loader.Load(context.Background()))

	st := f.loader.State()
	var created []int64
	for _, p := range st.Posts {
		created = append(created, p.CreatedAt)
	}
	assert.Equal(t, []int64{300, 200, 100}, created)
	assert.False(t, st.Refreshing)
	assert.False(t, st.Shimmer)
	assert.NoError(t, st.Err)
}

func TestLoad_NumericNotLexicalOrderAndMissingLast(t *testing.T) {
	f := newFixture(t, "me")
	f.seedPosts(t, map[string]map[string]any{
		"nine":    {"publish_date": "9"},
		"ten":     {"publish_date": "10"},
		"undated": {"post_text": "?"},
		"junk":    {"publish_date": "yesterday"},
	})

	require.NoError(t, f.loader.Load(context.Background()))
	assert.Equal(t, []string{"ten", "nine", "undated", "junk"}, ids(f.loader.State().Posts))
}

func TestSortPosts_StableTies(t *testing.T) {
	posts := []model.Post{
		{ID: "first", CreatedAt: 5, HasCreatedAt: true},
		{ID: "second", CreatedAt: 5, HasCreatedAt: true},
		{ID: "newer", CreatedAt: 6, HasCreatedAt: true},
	}
	SortPosts(posts)
	assert.Equal(t, []string{"newer", "first", "second"}, ids(posts))
}

func TestLoad_FailureKeepsPreviousList(t *testing.T) {
	f := newFixture(t, "me")
	f.seedPosts(t, map[string]map[string]any{
		"a": {"publish_date": "1"},
		"b": {"publish_date": "2"},
	})
	ctx := context.Background()
	require.NoError(t, f.loader.Load(ctx))
	before := f.loader.State().Posts

	f.faulty.FailReads("posts", errors.New("connection reset"))
	err := f.loader.Refresh(ctx)
	require.ErrorIs(t, err, ErrTransientFetch)

	st := f.loader.State()
	assert.Equal(t, before, st.Posts)
	assert.False(t, st.Refreshing)
	assert.False(t, st.Shimmer)
	assert.ErrorIs(t, st.Err, ErrTransientFetch)

	f.faulty.FailReads("posts", nil)
	require.NoError(t, f.loader.Refresh(ctx))
	assert.NoError(t, f.loader.State().Err)
}

func TestLoad_EmptyResultKeepsShimmer(t *testing.T) {
	f := newFixture(t, "me")
	assert.True(t, f.loader.State().Shimmer)

	require.NoError(t, f.loader.Load(context.Background()))
	st := f.loader.State()
	assert.Empty(t, st.Posts)
	assert.True(t, st.Shimmer)
	assert.False(t, st.Refreshing)
}

func TestLoad_RefreshingWhileInFlight(t *testing.T) {
	f := newFixture(t, "me")
	f.seedPosts(t, map[string]map[string]any{"a": {"publish_date": "1"}})
	release := f.faulty.Gate("posts")

	done := make(chan error, 1)
	go func() { done <- f.loader.Load(context.Background()) }()

	require.Eventually(t, func() bool {
		st := f.loader.State()
		return st.Refreshing && st.Shimmer
	}, time.Second, time.Millisecond)
	release()
	require.NoError(t, <-done)

	st := f.loader.State()
	assert.False(t, st.Refreshing)
	assert.False(t, st.Shimmer)
}

type recordingListener struct {
	mu    sync.Mutex
	calls [][]model.Post
}

func (r *recordingListener) PostsLoaded(_ context.Context, posts []model.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, posts)
}

func TestLoad_NotifiesListenersOnSuccessOnly(t *testing.T) {
	f := newFixture(t, "me")
	f.seedPosts(t, map[string]map[string]any{"a": {"publish_date": "1"}})
	l := &recordingListener{}
	f.loader.AddListener(l)
	ctx := context.Background()

	require.NoError(t, f.loader.Load(ctx))
	f.faulty.FailReads("posts", errors.New("boom"))
	require.Error(t, f.loader.Refresh(ctx))

	require.Len(t, l.calls, 1)
	assert.Equal(t, []string{"a"}, ids(l.calls[0]))
}

func TestLoadStories(t *testing.T) {
	f := newFixture(t, "me")
	ctx := context.Background()
	require.NoError(t, f.store.Ref("stories").Set(ctx, map[string]any{
		"s1": map[string]any{"uid": "ann", "publish_date": "10"},
		"s2": map[string]any{"uid": "me", "publish_date": "20"},
		"s3": map[string]any{"uid": "bob", "publish_date": "5"},
	}))

	require.NoError(t, f.loader.LoadStories(ctx))
	stories := f.loader.State().Stories
	require.Len(t, stories, 3)
	assert.True(t, stories[0].Placeholder)
	assert.Equal(t, "me", stories[0].AuthorID)
	assert.Equal(t, "s3", stories[1].ID)
	assert.Equal(t, "s1", stories[2].ID)
	for _, s := range stories[1:] {
		assert.NotEqual(t, "me", s.AuthorID)
	}

	f.faulty.FailReads("stories", errors.New("down"))
	require.ErrorIs(t, f.loader.LoadStories(ctx), ErrTransientFetch)
	assert.Equal(t, stories, f.loader.State().Stories)
}

func TestLoadStories_EmptyStillHasPlaceholder(t *testing.T) {
	f := newFixture(t, "me")
	require.NoError(t, f.loader.LoadStories(context.Background()))
	stories := f.loader.State().Stories
	require.Len(t, stories, 1)
	assert.True(t, stories[0].Placeholder)
}

func TestLoadStories_Limit(t *testing.T) {
	tests := []struct {
		name    string
		stories map[string]any
		want    []string
	}{
		{
			name: "same width",
			stories: map[string]any{
				"s1": map[string]any{"uid": "a", "publish_date": "1"},
				"s2": map[string]any{"uid": "b", "publish_date": "2"},
				"s3": map[string]any{"uid": "c", "publish_date": "3"},
			},
			want: []string{"s2", "s3"},
		},
		{
			name: "mixed width keeps numerically newest",
			stories: map[string]any{
				"s1": map[string]any{"uid": "a", "publish_date": "999"},
				"s2": map[string]any{"uid": "b", "publish_date": "1000"},
				"s3": map[string]any{"uid": "c", "publish_date": "2"},
			},
			want: []string{"s1", "s2"},
		},
		{
			name: "undated dropped first",
			stories: map[string]any{
				"s1": map[string]any{"uid": "a"},
				"s2": map[string]any{"uid": "b", "publish_date": "10"},
				"s3": map[string]any{"uid": "c", "publish_date": "9"},
			},
			want: []string{"s3", "s2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "me")
			ctx := context.Background()
			require.NoError(t, f.store.Ref("stories").Set(ctx, tt.stories))
			loader := NewLoader(f.store, identity.Static("me"), WithStoryLimit(2))

			require.NoError(t, loader.LoadStories(ctx))
			stories := loader.State().Stories
			require.Len(t, stories, 3)
			assert.True(t, stories[0].Placeholder)
			assert.Equal(t, tt.want, []string{stories[1].ID, stories[2].ID})
		})
	}
}

func TestLoadStories_SignedOutKeepsAnonymous(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.store.Ref("stories").Set(ctx, map[string]any{
		"s1": map[string]any{"publish_date": "1"},
		"s2": map[string]any{"uid": "ann", "publish_date": "2"},
	}))

	require.NoError(t, f.loader.LoadStories(ctx))
	stories := f.loader.State().Stories
	require.Len(t, stories, 3)
	assert.True(t, stories[0].Placeholder)
	assert.Equal(t, "s1", stories[1].ID)
	assert.Empty(t, stories[1].AuthorID)
	assert.Equal(t, "s2", stories[2].ID)
}

func TestPresenter_Items(t *testing.T) {
	f := newFixture(t, "me")
	ctx := context.Background()
	require.NoError(t, f.store.Ref("users").Set(ctx, map[string]any{
		"me":  map[string]any{"nickname": "Me", "avatar": "https://img/me.png"},
		"ann": map[string]any{"nickname": "null", "username": "ann", "verify": true},
	}))
	require.NoError(t, f.store.Ref("stories").Child("s1").Set(ctx, map[string]any{"uid": "ann", "publish_date": "1"}))
	f.seedPosts(t, map[string]map[string]any{
		"pub":    {"uid": "ann", "publish_date": fixedNow.Add(-90 * time.Second).UnixMilli(), "post_visibility": "public"},
		"secret": {"uid": "ann", "publish_date": fixedNow.Add(-time.Hour).UnixMilli(), "post_visibility": "private"},
		"mine":   {"uid": "me", "publish_date": fixedNow.Add(-3 * time.Hour).UnixMilli(), "post_visibility": "private"},
		"ghost":  {"uid": "nobody", "publish_date": fixedNow.Add(-8 * 24 * time.Hour).UnixMilli()},
	})
	require.NoError(t, f.store.Ref("posts-likes").Child("pub").Set(ctx, map[string]any{"me": "me", "x": "x"}))
	require.NoError(t, f.store.Ref("posts-comments").Child("pub").Child("c1").Set(ctx, map[string]any{"text": "hi"}))
	require.NoError(t, f.store.Ref("favorite-posts").Child("me").Child("mine").Set(ctx, "mine"))

	require.NoError(t, f.loader.Load(ctx))
	require.NoError(t, f.loader.LoadStories(ctx))

	items := f.presenter.Items(ctx, f.loader.State())
	require.Len(t, items, 5)

	strip, ok := items[0].(StoryStripItem)
	require.True(t, ok)
	require.Len(t, strip.Stories, 2)
	assert.Equal(t, "Your story", strip.Stories[0].Label)
	assert.Equal(t, "@ann", strip.Stories[1].Label)

	composer, ok := items[1].(ComposerItem)
	require.True(t, ok)
	assert.True(t, composer.HasViewer)
	assert.True(t, composer.Viewer.HasAvatar())

	pub := items[2].(PostItem)
	assert.Equal(t, "pub", pub.Post.ID)
	assert.Equal(t, "@ann", pub.Author.DisplayName())
	assert.Equal(t, model.BadgeVerified, pub.Author.Badge())
	assert.Equal(t, "1 minute ago", pub.Age)
	assert.Equal(t, "2", pub.Likes)
	assert.Equal(t, "1", pub.Comments)
	assert.True(t, pub.Liked)
	assert.False(t, pub.Favorited)

	mine := items[3].(PostItem)
	assert.Equal(t, "mine", mine.Post.ID)
	assert.Equal(t, "3 hours ago", mine.Age)
	assert.True(t, mine.Favorited)

	ghost := items[4].(PostItem)
	assert.True(t, ghost.Author.Fallback)
	assert.Equal(t, model.UnknownUserLabel, ghost.Author.DisplayName())
	assert.Equal(t, fixedNow.Add(-8*24*time.Hour).Format("02-01-2006"), ghost.Age)

	for _, it := range items[2:] {
		assert.NotEqual(t, "secret", it.(PostItem).Post.ID)
	}
}

func TestPresenter_CountsFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, "me")
	f.faulty.FailReads("posts-likes", errors.New("slow"))

	it := f.presenter.Present(context.Background(), model.Post{ID: "p", AuthorID: "a"})
	assert.True(t, it.Visible)
	assert.Error(t, it.CountsErr)
	assert.Equal(t, "0", it.Likes)
}

func TestPresenter_SignedOutComposer(t *testing.T) {
	f := newFixture(t, "")
	c := f.presenter.Composer(context.Background())
	assert.False(t, c.HasViewer)
	assert.True(t, c.Viewer.Fallback)
}

func TestBinder_DropsStaleResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, "me")
	binder := NewBinder(f.presenter)
	ctx := context.Background()

	var mu sync.Mutex
	delivered := map[string]Token{}
	deliver := func(tok Token, it PostItem) {
		mu.Lock()
		defer mu.Unlock()
		delivered[it.Post.ID] = tok
	}

	release := f.faulty.Gate("posts-likes/old")
	stale := binder.Bind(ctx, 0, model.Post{ID: "old", AuthorID: "a"}, deliver)
	require.Eventually(t, func() bool {
		return f.faulty.Reads("posts-likes/old") == 1
	}, time.Second, time.Millisecond)

	fresh := binder.Bind(ctx, 0, model.Post{ID: "new", AuthorID: "a"}, deliver)
	assert.False(t, binder.Live(stale))
	release()
	binder.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, delivered, "old")
	assert.Equal(t, fresh, delivered["new"])
	assert.True(t, binder.Live(fresh))
	assert.Equal(t, int64(1), binder.Dropped())
}

func TestBinder_IndependentSlots(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, "me")
	binder := NewBinder(f.presenter)

	var mu sync.Mutex
	var got []string
	for i, id := range []string{"a", "b", "c"} {
		binder.Bind(context.Background(), i, model.Post{ID: id}, func(_ Token, it PostItem) {
			mu.Lock()
			got = append(got, it.Post.ID)
			mu.Unlock()
		})
	}
	binder.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, binder.Dropped())
	assert.False(t, binder.Live(Token{Slot: 7, Gen: 1}))
}

func TestComposer_Publish(t *testing.T) {
	f := newFixture(t, "me")
	c := NewComposer(f.store, identity.Static("me"), f.loader, "posts", 0)
	c.newID = func() string { return "fixed-id" }
	c.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	post, err := c.Publish(ctx, "  hello world \n")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", post.ID)
	assert.Equal(t, "hello world", post.Text)
	assert.Equal(t, fixedNow.UnixMilli(), post.CreatedAt)

	snap, err := f.store.Ref("posts").Child("fixed-id").Get(ctx)
	require.NoError(t, err)
	rec := snap.Record()
	assert.Equal(t, "me", rec["uid"])
	assert.Equal(t, "TEXT", rec["post_type"])
	assert.Equal(t, "public", rec["post_visibility"])
	assert.Equal(t, "none", rec["post_region"])
	assert.Equal(t, false, rec["post_hide_like_count"])
	assert.Equal(t, false, rec["post_disable_favorite"])
	assert.IsType(t, "", rec["publish_date"])

	assert.Equal(t, []string{"fixed-id"}, ids(f.loader.State().Posts))
}

func TestComposer_Validation(t *testing.T) {
	f := newFixture(t, "me")
	c := NewComposer(f.store, identity.Static("me"), nil, "", 0)
	long := make([]rune, DefaultMaxPostLength+1)
	for i := range long {
		long[i] = 'é'
	}

	_, err := c.Publish(context.Background(), " \t\n")
	assert.ErrorIs(t, err, ErrEmptyPost)

	_, err = c.Publish(context.Background(), string(long))
	assert.ErrorIs(t, err, ErrPostTooLong)

	text, err := c.Validate(string(long[:DefaultMaxPostLength]))
	require.NoError(t, err)
	assert.Len(t, []rune(text), DefaultMaxPostLength)

	signedOut := NewComposer(f.store, identity.Static(""), nil, "", 0)
	_, err = signedOut.Publish(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoViewer)
}
