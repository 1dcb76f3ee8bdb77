// Package feed assembles the home feed: it loads posts and stories from the
// store, orders them, and turns them into render items with resolved authors
// and live counts.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/identity"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/remote"
)

var (
	// ErrTransientFetch wraps a failed list read. Previously loaded data is kept.
	ErrTransientFetch = errors.New("feed: fetch failed")
	// ErrNoViewer is returned by operations that need a signed-in viewer.
	ErrNoViewer = errors.New("feed: no signed-in viewer")
)

var tracer = otel.Tracer("github.com/pders01/synfeed/internal/feed")

// Paths names the post and story collections.
type Paths struct {
	Posts   string
	Stories string
}

func DefaultPaths() Paths {
	return Paths{Posts: "posts", Stories: "stories"}
}

// PostsListener is told about every successfully loaded post list.
type PostsListener interface {
	PostsLoaded(ctx context.Context, posts []model.Post)
}

// State is a snapshot of the loader. Shimmer stays on while there are no
// posts to show, including after a load that returned nothing.
type State struct {
	Posts      []model.Post
	Stories    []model.Story
	Refreshing bool
	Shimmer    bool
	Err        error
}

// Loader owns the post and story lists. Loads are not serialized: each one
// replaces the list when it completes, so the last completion wins.
type Loader struct {
	store      *remote.Store
	viewer     identity.Provider
	paths      Paths
	storyLimit int

	mu         sync.Mutex
	posts      []model.Post
	stories    []model.Story
	refreshing bool
	shimmer    bool
	err        error
	listeners  []PostsListener
}

type LoaderOption func(*Loader)

func WithPaths(p Paths) LoaderOption {
	return func(l *Loader) { l.paths = p }
}

// WithStoryLimit keeps only the newest n stories. Zero means all.
func WithStoryLimit(n int) LoaderOption {
	return func(l *Loader) { l.storyLimit = n }
}

func NewLoader(store *remote.Store, viewer identity.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   store,
		viewer:  viewer,
		paths:   DefaultPaths(),
		shimmer: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddListener registers a listener for loaded post lists.
func (l *Loader) AddListener(pl PostsListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, pl)
}

// Load shows the shimmer and fetches the post list.
func (l *Loader) Load(ctx context.Context) error {
	return l.load(ctx, "feed.Load", true)
}

// Refresh fetches the post list while keeping the current one on screen.
func (l *Loader) Refresh(ctx context.Context) error {
	return l.load(ctx, "feed.Refresh", false)
}

func (l *Loader) load(ctx context.Context, name string, shimmer bool) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	l.mu.Lock()
	l.refreshing = true
	if shimmer || len(l.posts) == 0 {
		l.shimmer = true
	}
	l.mu.Unlock()

	snap, err := l.store.Ref(l.paths.Posts).OrderByChild(model.KeyPublishDate).Get(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransientFetch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "posts fetch failed")
		debuglog.Warnf("feed: loading posts: %v", err)

		l.mu.Lock()
		l.refreshing = false
		l.shimmer = len(l.posts) == 0
		l.err = err
		l.mu.Unlock()
		return err
	}

	posts := decodePosts(snap)
	SortPosts(posts)
	span.SetAttributes(attribute.Int("posts.count", len(posts)))

	l.mu.Lock()
	l.posts = posts
	l.refreshing = false
	l.shimmer = len(posts) == 0
	l.err = nil
	listeners := append([]PostsListener(nil), l.listeners...)
	l.mu.Unlock()

	for _, pl := range listeners {
		pl.PostsLoaded(ctx, clonePosts(posts))
	}
	return nil
}

func decodePosts(snap remote.Snapshot) []model.Post {
	posts := make([]model.Post, 0, snap.ChildCount())
	for _, child := range snap.Children() {
		rec := child.Record()
		if rec == nil {
			debuglog.Debugf("feed: skipping non-record post %s", child.Key())
			continue
		}
		p, ok := model.DecodePost(child.Key(), rec)
		if !ok {
			debuglog.Debugf("feed: skipping post without key")
			continue
		}
		posts = append(posts, p)
	}
	return posts
}

// SortPosts orders posts newest first. Equal timestamps keep their order and
// posts without a timestamp go last.
func SortPosts(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.HasCreatedAt != b.HasCreatedAt {
			return a.HasCreatedAt
		}
		return a.CreatedAt > b.CreatedAt
	})
}

// LoadStories fetches stories, drops the viewer's own and puts the own-story
// placeholder first. On failure the previous stories are kept.
func (l *Loader) LoadStories(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "feed.LoadStories")
	defer span.End()

	viewerID, signedIn := l.viewer.CurrentUserID()

	snap, err := l.store.Ref(l.paths.Stories).OrderByChild(model.KeyPublishDate).Get(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransientFetch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stories fetch failed")
		debuglog.Warnf("feed: loading stories: %v", err)
		return err
	}

	var others []model.Story
	for _, child := range snap.Children() {
		s, ok := model.DecodeStory(child.Key(), child.Record())
		if !ok || (signedIn && s.AuthorID == viewerID) {
			continue
		}
		others = append(others, s)
	}
	// oldest first, numerically; the store orders the text values lexically
	sort.SliceStable(others, func(i, j int) bool {
		a, b := others[i], others[j]
		if a.HasPublishDate != b.HasPublishDate {
			return b.HasPublishDate
		}
		return a.PublishDate < b.PublishDate
	})
	// the limit applies after the numeric sort, so mixed-width timestamps
	// still keep the newest
	if l.storyLimit > 0 && len(others) > l.storyLimit {
		others = others[len(others)-l.storyLimit:]
	}
	stories := append([]model.Story{model.OwnStoryPlaceholder(viewerID)}, others...)
	span.SetAttributes(attribute.Int("stories.count", len(stories)-1))

	l.mu.Lock()
	l.stories = stories
	l.mu.Unlock()
	return nil
}

// State returns a copy of the loader state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Posts:      clonePosts(l.posts),
		Stories:    append([]model.Story(nil), l.stories...),
		Refreshing: l.refreshing,
		Shimmer:    l.shimmer,
		Err:        l.err,
	}
}

// Post returns the loaded post with id.
func (l *Loader) Post(id string) (model.Post, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.posts {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

func clonePosts(posts []model.Post) []model.Post {
	return append([]model.Post(nil), posts...)
}
