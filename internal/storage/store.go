package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pders01/synfeed/internal/remote"
	bolt "go.etcd.io/bbolt"
)

// ErrNotCollection is returned when a top-level path is written with a value
// that is not a record of children.
var ErrNotCollection = errors.New("storage: top-level value must be a collection")

// sourcesBucket holds syndication metadata. The dot keeps it out of the
// remote path space, which rejects dots in segments.
var sourcesBucket = []byte("synfeed.sources")

// Store is a bbolt backed remote.Backend. Each top-level collection is a
// bucket; each child of a collection is one key holding the JSON encoding of
// its subtree. Deeper writes rewrite that key inside a single transaction.
type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(sourcesBucket)
		return createErr
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Read(ctx context.Context, path []string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		value  any
		exists bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		value, exists, err = readTx(tx, path)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, exists, nil
}

func (s *Store) Write(ctx context.Context, path []string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeTx(tx, path, value)
	})
}

// Transact runs fn inside one bbolt write transaction. bbolt allows a single
// writer at a time, so the read and the write cannot interleave with others.
func (s *Store) Transact(ctx context.Context, path []string, fn remote.TransactFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		current, exists, err := readTx(tx, path)
		if err != nil {
			return err
		}
		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		next, err = remote.Normalize(next)
		if err != nil {
			return err
		}
		return writeTx(tx, path, next)
	})
}

func readTx(tx *bolt.Tx, path []string) (any, bool, error) {
	if len(path) == 0 {
		return nil, false, remote.ErrMalformedPath
	}
	b := tx.Bucket([]byte(path[0]))
	if b == nil {
		return nil, false, nil
	}

	if len(path) == 1 {
		children := make(map[string]any)
		err := b.ForEach(func(k, v []byte) error {
			child, err := decode(v)
			if err != nil {
				return fmt.Errorf("decoding %s/%s: %w", path[0], k, err)
			}
			children[string(k)] = child
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		if len(children) == 0 {
			return nil, false, nil
		}
		return children, true, nil
	}

	data := b.Get([]byte(path[1]))
	if data == nil {
		return nil, false, nil
	}
	child, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding %s/%s: %w", path[0], path[1], err)
	}
	v, ok := remote.Lookup(child, path[2:])
	return v, ok, nil
}

func writeTx(tx *bolt.Tx, path []string, value any) error {
	if len(path) == 0 {
		return remote.ErrMalformedPath
	}
	name := []byte(path[0])

	if len(path) == 1 {
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		if value == nil {
			return nil
		}
		children, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotCollection, path[0])
		}
		b, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		for k, v := range children {
			if err := put(b, k, v); err != nil {
				return err
			}
		}
		return nil
	}

	b := tx.Bucket(name)
	if b == nil {
		if value == nil {
			return nil
		}
		var err error
		if b, err = tx.CreateBucket(name); err != nil {
			return err
		}
	}

	var current any
	if data := b.Get([]byte(path[1])); data != nil {
		var err error
		if current, err = decode(data); err != nil {
			return fmt.Errorf("decoding %s/%s: %w", path[0], path[1], err)
		}
	}
	next := remote.Assign(current, path[2:], value)
	if next == nil {
		return b.Delete([]byte(path[1]))
	}
	return put(b, path[1], next)
}

func put(b *bolt.Bucket, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SaveSource records a syndication source and its conditional fetch state.
func (s *Store) SaveSource(src *Source) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sourcesBucket)
		data, err := json.Marshal(src)
		if err != nil {
			return err
		}
		return b.Put([]byte(src.ID), data)
	})
}

func (s *Store) GetSource(id string) (*Source, error) {
	var src Source
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sourcesBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("source %s: %w", id, remote.ErrNotFound)
		}
		return json.Unmarshal(data, &src)
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *Store) GetAllSources() ([]*Source, error) {
	var sources []*Source
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sourcesBucket).ForEach(func(_ []byte, v []byte) error {
			var src Source
			if err := json.Unmarshal(v, &src); err != nil {
				return err
			}
			sources = append(sources, &src)
			return nil
		})
	})
	// Title, case-insensitive, falling back to URL
	sort.Slice(sources, func(i, j int) bool {
		ti := sources[i].Title
		tj := sources[j].Title
		if ti == "" {
			ti = sources[i].URL
		}
		if tj == "" {
			tj = sources[j].URL
		}
		return strings.ToLower(ti) < strings.ToLower(tj)
	})
	return sources, err
}

func (s *Store) DeleteSource(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sourcesBucket).Delete([]byte(id))
	})
}
