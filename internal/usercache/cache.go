// Package usercache resolves author projections for feed rows and keeps them
// for the life of the process.
//
// A projection is stored as one bundle. The bundle's sentinel is written in
// the same operation as every other field, so a reader that sees the
// sentinel sees the whole projection. Nothing is ever evicted or refreshed.
package usercache

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/remote"
)

var tracer = otel.Tracer("github.com/pders01/synfeed/internal/usercache")

// Backend stores projection bundles. Get reports false when the sentinel is
// absent. Put must insert the bundle atomically.
type Backend interface {
	Get(ctx context.Context, id string) (model.UserProjection, bool, error)
	Put(ctx context.Context, u model.UserProjection) error
}

type Cache struct {
	store   *remote.Store
	users   string
	backend Backend
	fetches atomic.Int64
}

type Option func(*Cache)

// WithBackend replaces the in-process bundle store.
func WithBackend(b Backend) Option {
	return func(c *Cache) { c.backend = b }
}

// WithCollection sets the users collection name.
func WithCollection(name string) Option {
	return func(c *Cache) { c.users = name }
}

func New(store *remote.Store, opts ...Option) *Cache {
	c := &Cache{store: store, users: "users"}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		c.backend = NewMemory()
	}
	return c
}

// Resolve returns the projection for id. A cached bundle is returned without
// I/O. Otherwise the user record is fetched once; on success the bundle is
// inserted, on failure or a missing record the fallback is returned and
// nothing is cached so a later call retries.
func (c *Cache) Resolve(ctx context.Context, id string) model.UserProjection {
	ctx, span := tracer.Start(ctx, "usercache.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	if id == "" {
		return model.FallbackProjection(id)
	}

	u, ok, err := c.backend.Get(ctx, id)
	if err != nil {
		debuglog.Warnf("usercache: reading bundle for %s: %v", id, err)
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return u
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	c.fetches.Add(1)
	snap, err := c.store.Ref(c.users).Child(id).Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		debuglog.Warnf("usercache: fetching user %s: %v", id, err)
		return model.FallbackProjection(id)
	}
	rec := snap.Record()
	if !snap.Exists() || rec == nil {
		debuglog.Debugf("usercache: user %s not found", id)
		return model.FallbackProjection(id)
	}

	u = model.DecodeUser(id, rec)
	if err := c.backend.Put(ctx, u); err != nil {
		debuglog.Warnf("usercache: storing bundle for %s: %v", id, err)
	}
	return u
}

// Peek returns the cached projection without fetching.
func (c *Cache) Peek(ctx context.Context, id string) (model.UserProjection, bool) {
	u, ok, err := c.backend.Get(ctx, id)
	if err != nil || !ok {
		return model.UserProjection{}, false
	}
	return u, true
}

// Fetches reports how many user records have been read from the store.
func (c *Cache) Fetches() int64 {
	return c.fetches.Load()
}

// Memory is the default in-process bundle store.
type Memory struct {
	mu      sync.RWMutex
	bundles map[string]model.UserProjection
}

func NewMemory() *Memory {
	return &Memory{bundles: make(map[string]model.UserProjection)}
}

func (m *Memory) Get(_ context.Context, id string) (model.UserProjection, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.bundles[id]
	return u, ok, nil
}

func (m *Memory) Put(_ context.Context, u model.UserProjection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[u.ID] = u
	return nil
}

// Len returns the number of cached bundles.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bundles)
}
