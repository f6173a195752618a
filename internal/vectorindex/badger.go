package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/jonathan/startup-matcher/internal/embedding"
)

// BadgerStore is an embedded vector store for local runs and tests. Queries
// scan the whole collection, which is fine for a few thousand startups.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens a store at dir, creating it if needed. An empty dir opens
// an in-memory store.
func OpenBadger(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create vector directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	logger := slog.Default().With("component", "vectorindex")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Collection returns the named collection.
func (s *BadgerStore) Collection(name string) *BadgerCollection {
	return &BadgerCollection{db: s.db, prefix: []byte("vec/" + name + "/")}
}

// BadgerCollection is one namespace of vectors inside a BadgerStore.
type BadgerCollection struct {
	db     *badger.DB
	prefix []byte
}

func (c *BadgerCollection) key(id string) []byte {
	k := make([]byte, 0, len(c.prefix)+len(id))
	return append(append(k, c.prefix...), id...)
}

// Upsert writes the vector for id, replacing any previous entry.
func (c *BadgerCollection) Upsert(_ context.Context, id string, vector []float32, meta Metadata) error {
	if id == "" {
		return fmt.Errorf("vector id is required")
	}
	data, err := json.Marshal(Entry{ID: id, Vector: vector, Metadata: meta})
	if err != nil {
		return fmt.Errorf("failed to encode vector %s: %w", id, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(id), data)
	})
}

// Get returns the entry for id.
func (c *BadgerCollection) Get(_ context.Context, id string) (*Entry, error) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vector %s: %w", id, err)
	}
	return &entry, nil
}

// Query scores every vector in the collection against vector.
func (c *BadgerCollection) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	var hits []Hit
	err := c.each(ctx, func(e *Entry) error {
		if len(e.Vector) != len(vector) {
			return fmt.Errorf("%w: %s has %d dimensions, query has %d", ErrDimensionMismatch, e.ID, len(e.Vector), len(vector))
		}
		hits = append(hits, Hit{
			ID:        e.ID,
			Score:     embedding.Cosine(vector, e.Vector),
			UpdatedAt: e.Metadata.UpdatedAt,
			Attrs:     e.Metadata.Attrs,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Rank(hits, k), nil
}

// Len returns the number of vectors in the collection.
func (c *BadgerCollection) Len(ctx context.Context) (int, error) {
	n := 0
	err := c.each(ctx, func(*Entry) error {
		n++
		return nil
	})
	return n, err
}

func (c *BadgerCollection) each(ctx context.Context, fn func(*Entry) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(c.prefix); it.ValidForPrefix(c.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("failed to decode vector: %w", err)
			}
			if err := fn(&e); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Index = (*BadgerCollection)(nil)
