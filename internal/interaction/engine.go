// Package interaction toggles like and favorite edges and keeps optimistic
// per-post like counters.
//
// In the default mode a toggle reads the edge and then writes it in a second
// request. Two overlapping toggles can both see the same state, in which case
// the counter moves twice while the store changes once. A failed write leaves
// the optimistic counter change in place and still notifies the author.
// Hardened mode runs the flip inside a backend transaction, rolls the counter
// back when the write fails and notifies only once the like is stored.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/notify"
	"github.com/pders01/synfeed/internal/remote"
)

// ErrToggleWrite wraps a failed edge create or delete.
var ErrToggleWrite = errors.New("interaction: toggle write failed")

var tracer = otel.Tracer("github.com/pders01/synfeed/internal/interaction")

// Resolver looks up the display data of the acting user for notifications.
type Resolver interface {
	Resolve(ctx context.Context, id string) model.UserProjection
}

// Paths names the edge collections.
type Paths struct {
	Likes     string
	Comments  string
	Favorites string
}

func DefaultPaths() Paths {
	return Paths{Likes: "posts-likes", Comments: "posts-comments", Favorites: "favorite-posts"}
}

// Toggle is the visual state after a toggle. Count is the cached like count
// and is zero for favorites.
type Toggle struct {
	PostID string `json:"post_id"`
	Active bool   `json:"active"`
	Count  int64  `json:"count"`
}

// Counts are the values shown when a row is bound.
type Counts struct {
	Likes     int64 `json:"likes"`
	Comments  int64 `json:"comments"`
	Liked     bool  `json:"liked"`
	Favorited bool  `json:"favorited"`
}

type Engine struct {
	store    *remote.Store
	users    Resolver
	notifier notify.Notifier
	paths    Paths
	hardened bool

	mu       sync.Mutex
	counters map[string]int64
}

type Option func(*Engine)

func WithPaths(p Paths) Option {
	return func(e *Engine) { e.paths = p }
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithHardened switches toggles to transactional flips with rollback.
func WithHardened(on bool) Option {
	return func(e *Engine) { e.hardened = on }
}

func New(store *remote.Store, users Resolver, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		users:    users,
		notifier: notify.Log{},
		paths:    DefaultPaths(),
		counters: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hardened reports whether toggles run transactionally.
func (e *Engine) Hardened() bool {
	return e.hardened
}

// ToggleLike flips the viewer's like on post. A new like notifies the author.
func (e *Engine) ToggleLike(ctx context.Context, post model.Post, userID string) (Toggle, error) {
	ctx, span := tracer.Start(ctx, "interaction.ToggleLike", trace.WithAttributes(
		attribute.String("post.id", post.ID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	edge := e.store.Ref(e.paths.Likes).Child(post.ID).Child(userID)
	t, err := e.toggle(ctx, edge, post.ID, userID, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "toggle failed")
	}
	if t.Active && (err == nil || !e.hardened) {
		e.notifyLike(ctx, post, userID)
	}
	return t, err
}

// ToggleFavorite flips the viewer's favorite on post. It has no counter and
// never notifies.
func (e *Engine) ToggleFavorite(ctx context.Context, post model.Post, userID string) (Toggle, error) {
	ctx, span := tracer.Start(ctx, "interaction.ToggleFavorite", trace.WithAttributes(
		attribute.String("post.id", post.ID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	edge := e.store.Ref(e.paths.Favorites).Child(userID).Child(post.ID)
	t, err := e.toggle(ctx, edge, post.ID, post.ID, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "toggle failed")
	}
	return t, err
}

func (e *Engine) toggle(ctx context.Context, edge remote.Handle, postID string, value any, counted bool) (Toggle, error) {
	snap, err := edge.Get(ctx)
	if err != nil {
		return Toggle{PostID: postID}, fmt.Errorf("reading %s: %w", edge.Path(), err)
	}
	existed := snap.Exists()

	if counted {
		if err := e.ensureBaseline(ctx, postID); err != nil {
			debuglog.Warnf("interaction: deriving like count for %s: %v", postID, err)
		}
	}

	if e.hardened {
		if t, ran, err := e.transact(ctx, edge, postID, value, existed, counted); ran {
			return t, err
		}
		debuglog.Debugf("interaction: backend has no transactions, toggling %s without one", edge.Path())
	}

	t := Toggle{PostID: postID, Active: !existed}
	var write any
	delta := int64(-1)
	if !existed {
		write = value
		delta = 1
	}
	writeErr := edge.Set(ctx, write)
	if counted {
		t.Count = e.apply(postID, delta)
	}
	if writeErr != nil {
		return t, fmt.Errorf("%w: %w", ErrToggleWrite, writeErr)
	}
	return t, nil
}

// transact applies the predicted counter change, flips the edge atomically
// and then corrects or rolls back the counter to match what happened.
func (e *Engine) transact(ctx context.Context, edge remote.Handle, postID string, value any, predicted, counted bool) (Toggle, bool, error) {
	predictedDelta := int64(1)
	if predicted {
		predictedDelta = -1
	}
	if counted {
		e.apply(postID, predictedDelta)
	}

	var existed bool
	ran, err := e.store.Transact(ctx, edge, func(current any, exists bool) (any, error) {
		existed = exists
		if exists {
			return nil, nil
		}
		return value, nil
	})
	if !ran {
		if counted {
			e.apply(postID, -predictedDelta)
		}
		return Toggle{}, false, nil
	}

	t := Toggle{PostID: postID, Active: !existed}
	if err != nil {
		t.Active = predicted
		if counted {
			t.Count = e.apply(postID, -predictedDelta)
		}
		return t, true, fmt.Errorf("%w: %w", ErrToggleWrite, err)
	}

	if counted {
		actual := int64(1)
		if existed {
			actual = -1
		}
		t.Count = e.apply(postID, actual-predictedDelta)
	}
	return t, true, nil
}

func (e *Engine) notifyLike(ctx context.Context, post model.Post, userID string) {
	if e.notifier == nil {
		return
	}
	n := notify.LikeNotification{
		PostID:   post.ID,
		AuthorID: post.AuthorID,
		ActorID:  userID,
		SentAt:   time.Now().UnixMilli(),
	}
	if e.users != nil {
		n.ActorName = e.users.Resolve(ctx, userID).DisplayName()
	}
	if err := e.notifier.SendLikeNotification(ctx, n); err != nil {
		debuglog.Warnf("interaction: like notification for %s: %v", post.ID, err)
	}
}

// ensureBaseline seeds the counter from the edge collection when no bind
// has set it yet.
func (e *Engine) ensureBaseline(ctx context.Context, postID string) error {
	e.mu.Lock()
	_, ok := e.counters[postID]
	e.mu.Unlock()
	if ok {
		return nil
	}
	snap, err := e.store.Ref(e.paths.Likes).Child(postID).Get(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if _, ok := e.counters[postID]; !ok {
		e.counters[postID] = int64(snap.ChildCount())
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) apply(postID string, delta int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[postID] += delta
	return e.counters[postID]
}

// Counter returns the cached like count for postID.
func (e *Engine) Counter(postID string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.counters[postID]
	return n, ok
}

// BindCounts re-reads the counts and the viewer's edge state for a row and
// reseeds the cached like counter with the fresh count.
func (e *Engine) BindCounts(ctx context.Context, postID, viewerID string) (Counts, error) {
	ctx, span := tracer.Start(ctx, "interaction.BindCounts", trace.WithAttributes(
		attribute.String("post.id", postID),
	))
	defer span.End()

	var c Counts
	likes, err := e.store.Ref(e.paths.Likes).Child(postID).Get(ctx)
	if err != nil {
		span.RecordError(err)
		return c, fmt.Errorf("counting likes: %w", err)
	}
	c.Likes = int64(likes.ChildCount())

	e.mu.Lock()
	e.counters[postID] = c.Likes
	e.mu.Unlock()

	comments, err := e.store.Ref(e.paths.Comments).Child(postID).Get(ctx)
	if err != nil {
		span.RecordError(err)
		return c, fmt.Errorf("counting comments: %w", err)
	}
	c.Comments = int64(comments.ChildCount())

	if viewerID == "" {
		return c, nil
	}
	for _, child := range likes.Children() {
		if child.Key() == viewerID {
			c.Liked = true
			break
		}
	}
	fav, err := e.store.Ref(e.paths.Favorites).Child(viewerID).Child(postID).Get(ctx)
	if err != nil {
		span.RecordError(err)
		return c, fmt.Errorf("reading favorite: %w", err)
	}
	c.Favorited = fav.Exists()
	return c, nil
}
