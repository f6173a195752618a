package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// tables maps collections to their pgvector tables. Each table has columns
// (id text primary key, embedding vector, updated_at timestamptz, attrs jsonb).
var tables = map[string]string{
	Startups:   "startup_vectors",
	Candidates: "candidate_vectors",
}

// PGStore keeps vectors in Postgres with the pgvector extension.
type PGStore struct {
	pool *pgxpool.Pool
}

// ConnectPG opens a pool with the vector type registered on every connection.
func ConnectPG(ctx context.Context, databaseURL string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vector database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping vector database: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close closes the pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Collection returns the named collection.
func (s *PGStore) Collection(name string) (*PGCollection, error) {
	table, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown vector collection %q", name)
	}
	return &PGCollection{pool: s.pool, table: table}, nil
}

// PGCollection is one pgvector table.
type PGCollection struct {
	pool  *pgxpool.Pool
	table string
}

// Upsert writes the vector for id, replacing any previous row.
func (c *PGCollection) Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error {
	if id == "" {
		return fmt.Errorf("vector id is required")
	}
	attrs := meta.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	_, err := c.pool.Exec(ctx,
		`INSERT INTO `+c.table+` (id, embedding, updated_at, attrs)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET embedding = $2, updated_at = $3, attrs = $4`,
		id, pgvector.NewVector(vector), meta.UpdatedAt, attrs,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector %s: %w", id, err)
	}
	return nil
}

// Get returns the row for id.
func (c *PGCollection) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		vec   pgvector.Vector
		entry = Entry{ID: id}
	)
	err := c.pool.QueryRow(ctx,
		`SELECT embedding, updated_at, attrs FROM `+c.table+` WHERE id = $1`,
		id,
	).Scan(&vec, &entry.Metadata.UpdatedAt, &entry.Metadata.Attrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vector %s: %w", id, err)
	}
	entry.Vector = vec.Slice()
	return &entry, nil
}

// Query returns the k nearest rows by cosine distance.
func (c *PGCollection) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS score, updated_at, attrs
		 FROM `+c.table+`
		 ORDER BY embedding <=> $1, updated_at DESC, id
		 LIMIT $2`,
		pgvector.NewVector(vector), k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h         Hit
			updatedAt time.Time
		)
		if err := rows.Scan(&h.ID, &h.Score, &updatedAt, &h.Attrs); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		h.UpdatedAt = updatedAt
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vector hits: %w", err)
	}
	// float distance ties are re-ranked with the same rule as every other index
	return Rank(hits, k), nil
}

// Len returns the number of rows.
func (c *PGCollection) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM `+c.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

var _ Index = (*PGCollection)(nil)
