package remote

import (
	"sort"
)

// Snapshot is an immutable view of a subtree as returned by Handle.Get.
type Snapshot struct {
	key      string
	value    any
	exists   bool
	children []Snapshot
}

func newSnapshot(key string, value any, exists bool) Snapshot {
	s := Snapshot{key: key, value: value, exists: exists && value != nil}
	if m, ok := value.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.children = make([]Snapshot, 0, len(keys))
		for _, k := range keys {
			s.children = append(s.children, newSnapshot(k, m[k], true))
		}
	}
	return s
}

// Key is the last path segment the snapshot was read from.
func (s Snapshot) Key() string { return s.key }

// Exists reports whether any value was stored at the path.
func (s Snapshot) Exists() bool { return s.exists }

// Value returns the raw value: a map[string]any for inner nodes, a scalar or
// slice for leaves, nil when absent.
func (s Snapshot) Value() any { return s.value }

// Record returns the value as a record, or nil when it is not a map.
func (s Snapshot) Record() map[string]any {
	m, _ := s.value.(map[string]any)
	return m
}

// Children returns child snapshots in query order (key order by default).
func (s Snapshot) Children() []Snapshot {
	return s.children
}

// ChildCount returns the number of children after query filtering.
func (s Snapshot) ChildCount() int {
	return len(s.children)
}

func (s Snapshot) query(orderBy string, hasEq bool, equal any, limit int) Snapshot {
	if orderBy == "" && !hasEq && limit <= 0 {
		return s
	}
	children := make([]Snapshot, len(s.children))
	copy(children, s.children)

	if orderBy != "" {
		sort.SliceStable(children, func(i, j int) bool {
			c := compareValues(fieldOf(children[i], orderBy), fieldOf(children[j], orderBy))
			if c != 0 {
				return c < 0
			}
			return children[i].key < children[j].key
		})
	}
	if hasEq {
		kept := children[:0]
		for _, c := range children {
			v := fieldOf(c, orderBy)
			if orderBy == "" {
				v = c.key
			}
			if compareValues(v, equal) == 0 {
				kept = append(kept, c)
			}
		}
		children = kept
	}
	if limit > 0 && len(children) > limit {
		children = children[len(children)-limit:]
	}

	out := s
	out.children = children
	if len(children) != len(s.children) {
		m := make(map[string]any, len(children))
		for _, c := range children {
			m[c.key] = c.value
		}
		out.value = m
	}
	return out
}

func fieldOf(s Snapshot, field string) any {
	if field == "" {
		return s.key
	}
	rec := s.Record()
	if rec == nil {
		return nil
	}
	return rec[field]
}

// valueRank orders value kinds: missing, booleans, numbers, strings, objects.
func valueRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareValues(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	return 0
}
