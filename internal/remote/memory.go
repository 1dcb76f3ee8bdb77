package remote

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. It is the default for tests and for
// running the engine without a database file.
type Memory struct {
	mu   sync.RWMutex
	root any
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(ctx context.Context, path []string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := Lookup(m.root, path)
	return Clone(v), ok, nil
}

func (m *Memory) Write(ctx context.Context, path []string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = Assign(m.root, path, Clone(value))
	return nil
}

func (m *Memory) Transact(ctx context.Context, path []string, fn TransactFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := Lookup(m.root, path)
	next, err := fn(Clone(current), ok)
	if err != nil {
		return err
	}
	next, err = Normalize(next)
	if err != nil {
		return err
	}
	m.root = Assign(m.root, path, next)
	return nil
}

// Lookup walks path from root.
func Lookup(root any, path []string) (any, bool) {
	cur := root
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Assign returns root with the subtree at path replaced by value. Parents are
// created as needed; a nil value deletes the path and prunes parents left
// empty. The returned root is nil once the whole tree is empty.
func Assign(root any, path []string, value any) any {
	if len(path) == 0 {
		if m, ok := value.(map[string]any); ok && len(m) == 0 {
			return nil
		}
		return value
	}
	m, ok := root.(map[string]any)
	if !ok {
		if value == nil {
			return root
		}
		m = make(map[string]any)
	}
	child := Assign(m[path[0]], path[1:], value)
	if child == nil {
		delete(m, path[0])
	} else {
		m[path[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
