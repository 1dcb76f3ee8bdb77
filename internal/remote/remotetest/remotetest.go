// Package remotetest provides backends for exercising failure and concurrency
// paths of code built on package remote.
package remotetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pders01/synfeed/internal/remote"
)

// ErrInjected is returned by Faulty for paths configured to fail.
var ErrInjected = errors.New("remotetest: injected failure")

// Faulty wraps a backend, counts reads and writes per path and fails
// operations on demand. Gates let a test hold a read until it releases it,
// which makes completion order deterministic.
type Faulty struct {
	Inner remote.Backend

	mu         sync.Mutex
	reads      map[string]int
	writes     map[string]int
	failReads  map[string]error
	failWrites map[string]error
	gates      map[string]chan struct{}
}

func NewFaulty(inner remote.Backend) *Faulty {
	return &Faulty{
		Inner:      inner,
		reads:      make(map[string]int),
		writes:     make(map[string]int),
		failReads:  make(map[string]error),
		failWrites: make(map[string]error),
		gates:      make(map[string]chan struct{}),
	}
}

// FailReads makes reads of path (or any path below it) return err. A nil err
// clears the failure.
func (f *Faulty) FailReads(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failReads, path)
		return
	}
	f.failReads[path] = err
}

// FailWrites makes writes at or below path return err.
func (f *Faulty) FailWrites(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failWrites, path)
		return
	}
	f.failWrites[path] = err
}

// Gate holds the next reads of exactly path, after they have read, until the
// returned function is called.
func (f *Faulty) Gate(path string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[path] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[path] == ch {
				delete(f.gates, path)
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Reads returns how many reads hit exactly path.
func (f *Faulty) Reads(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[path]
}

// Writes returns how many writes hit exactly path.
func (f *Faulty) Writes(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[path]
}

func (f *Faulty) Read(ctx context.Context, path []string) (any, bool, error) {
	key := strings.Join(path, "/")
	f.mu.Lock()
	f.reads[key]++
	gate := f.gates[key]
	err := match(f.failReads, key)
	f.mu.Unlock()

	if err != nil {
		return nil, false, err
	}
	// Gated reads snapshot the value first, so concurrent readers all see
	// the state from before any of them was released.
	v, ok, err := f.Inner.Read(ctx, path)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	return v, ok, err
}

func (f *Faulty) Write(ctx context.Context, path []string, value any) error {
	key := strings.Join(path, "/")
	f.mu.Lock()
	f.writes[key]++
	err := match(f.failWrites, key)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Inner.Write(ctx, path, value)
}

// Transact is forwarded when the inner backend supports it. Write failures
// configured for the path apply to transactions too.
func (f *Faulty) Transact(ctx context.Context, path []string, fn remote.TransactFunc) error {
	key := strings.Join(path, "/")
	f.mu.Lock()
	f.writes[key]++
	err := match(f.failWrites, key)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	tx, ok := f.Inner.(remote.Transactor)
	if !ok {
		return errors.New("remotetest: inner backend has no transactions")
	}
	return tx.Transact(ctx, path, fn)
}

func match(rules map[string]error, key string) error {
	for prefix, err := range rules {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			return err
		}
	}
	return nil
}
