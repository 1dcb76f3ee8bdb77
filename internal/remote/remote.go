// Package remote defines the accessor contract the feed engine uses to read and
// write the normalized collections (posts, stories, users and edge sets).
//
// A Store hands out Handles addressed by slash separated paths. Handles are
// immutable values: Child, OrderByChild, EqualTo and LimitToLast return
// refined copies. The tree itself lives behind a Backend, so the same query
// semantics apply whether the data sits in memory or in a bbolt file.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound reports that a path holds no value.
	ErrNotFound = errors.New("remote: not found")
	// ErrMalformedPath reports an empty or otherwise unusable path.
	ErrMalformedPath = errors.New("remote: malformed path")
)

// Backend stores a JSON-shaped tree. Read returns a deep copy of the subtree
// at path and whether anything exists there. Write replaces the subtree at
// path; a nil value deletes it.
type Backend interface {
	Read(ctx context.Context, path []string) (any, bool, error)
	Write(ctx context.Context, path []string, value any) error
}

// TransactFunc receives the current value at a path and returns its
// replacement. Returning a nil value deletes the path.
type TransactFunc func(current any, exists bool) (any, error)

// Transactor is implemented by backends that can run a read-modify-write on a
// single path atomically.
type Transactor interface {
	Transact(ctx context.Context, path []string, fn TransactFunc) error
}

// Store is the entry point for building handles over a backend.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend exposes the underlying backend, mainly so callers can probe for
// optional capabilities such as Transactor.
func (s *Store) Backend() Backend {
	return s.backend
}

// Ref returns a handle for path.
func (s *Store) Ref(path string) Handle {
	segments, err := splitPath(path)
	return Handle{backend: s.backend, path: segments, err: err}
}

// Transact runs fn atomically when the backend supports it. The boolean result
// is false when the backend has no transaction support and nothing ran.
func (s *Store) Transact(ctx context.Context, h Handle, fn TransactFunc) (bool, error) {
	tx, ok := s.backend.(Transactor)
	if !ok {
		return false, nil
	}
	if h.err != nil {
		return true, h.err
	}
	if err := tx.Transact(ctx, h.path, fn); err != nil {
		return true, fmt.Errorf("transaction on %s: %w", h.Path(), err)
	}
	return true, nil
}

// Handle addresses a path in the tree plus optional query refinements.
type Handle struct {
	backend Backend
	path    []string
	orderBy string
	equal   any
	hasEq   bool
	limit   int
	err     error
}

// Path returns the slash joined path of the handle.
func (h Handle) Path() string {
	return strings.Join(h.path, "/")
}

// Key returns the last path segment.
func (h Handle) Key() string {
	if len(h.path) == 0 {
		return ""
	}
	return h.path[len(h.path)-1]
}

// Child returns a handle for id below h. Query refinements are not inherited.
func (h Handle) Child(id string) Handle {
	segments, err := splitPath(id)
	if h.err != nil {
		err = h.err
	}
	path := make([]string, 0, len(h.path)+len(segments))
	path = append(path, h.path...)
	path = append(path, segments...)
	return Handle{backend: h.backend, path: path, err: err}
}

// OrderByChild orders the children of the result by the named field.
func (h Handle) OrderByChild(field string) Handle {
	h.orderBy = field
	return h
}

// EqualTo keeps only children whose ordered field equals value.
func (h Handle) EqualTo(value any) Handle {
	h.equal = normalizeScalar(value)
	h.hasEq = true
	return h
}

// LimitToLast keeps the last n children after ordering.
func (h Handle) LimitToLast(n int) Handle {
	h.limit = n
	return h
}

// Get reads the value at the handle's path and applies the query.
func (h Handle) Get(ctx context.Context) (Snapshot, error) {
	if h.err != nil {
		return Snapshot{}, h.err
	}
	raw, ok, err := h.backend.Read(ctx, h.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading %s: %w", h.Path(), err)
	}
	snap := newSnapshot(h.Key(), raw, ok)
	return snap.query(h.orderBy, h.hasEq, h.equal, h.limit), nil
}

// Set writes value at the handle's path. A nil value deletes the path.
func (h Handle) Set(ctx context.Context, value any) error {
	if h.err != nil {
		return h.err
	}
	normalized, err := Normalize(value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", h.Path(), err)
	}
	if err := h.backend.Write(ctx, h.path, normalized); err != nil {
		return fmt.Errorf("writing %s: %w", h.Path(), err)
	}
	return nil
}

func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedPath, path)
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPath, path)
		}
	}
	return parts, nil
}
