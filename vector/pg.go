package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// DefaultTable is the table PGSearcher reads when none is given.
const DefaultTable = "kgraph_embeddings"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Querier is the subset of a pgx connection the searcher uses. *pgxpool.Pool
// and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
}

// PGSearcher searches embeddings stored in Postgres with the pgvector
// extension. Scores are 1 minus cosine distance, clamped to [0, 1].
type PGSearcher struct {
	conn     Querier
	embedder Embedder
	table    string
}

var (
	_ Searcher = (*PGSearcher)(nil)
	_ Indexer  = (*PGSearcher)(nil)
)

// NewPGSearcher wraps an existing connection. table must be a plain or
// schema-qualified identifier; empty selects DefaultTable.
func NewPGSearcher(conn Querier, embedder Embedder, table string) (*PGSearcher, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("vector: invalid table name %q", table)
	}
	return &PGSearcher{conn: conn, embedder: embedder, table: table}, nil
}

// Connect opens a pool that registers the pgvector types on every new
// connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the extension and table if they are missing.
func (s *PGSearcher) EnsureSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("vector: dimensions must be positive, got %d", dimensions)
	}
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	embedding vector(%d) NOT NULL
)`, s.table, dimensions)
	if _, err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Upsert embeds content and writes it under id.
func (s *PGSearcher) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	emb, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", id, err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	md, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", id, err)
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)
	if _, err := s.conn.Exec(ctx, sql, id, content, string(md), pgvector.NewVector(emb)); err != nil {
		return fmt.Errorf("upserting document %s: %w", id, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PGSearcher) Ping(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Delete removes a document.
func (s *PGSearcher) Delete(ctx context.Context, id string) error {
	if _, err := s.conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// Search embeds text and returns the k nearest documents whose metadata
// contains every filter pair.
func (s *PGSearcher) Search(ctx context.Context, text string, k int, filters map[string]any) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if filters == nil {
		filters = map[string]any{}
	}
	f, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encoding filters: %w", err)
	}

	rows, err := s.conn.Query(ctx, s.searchSQL(), pgvector.NewVector(emb), string(f), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			content string
			raw     []byte
			score   float64
		)
		if err := rows.Scan(&content, &raw, &score); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		md := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &md); err != nil {
				return nil, fmt.Errorf("decoding metadata: %w", err)
			}
		}
		results = append(results, Result{
			Content:  content,
			Metadata: md,
			Score:    math.Min(1, math.Max(0, score)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

func (s *PGSearcher) searchSQL() string {
	return fmt.Sprintf(`SELECT content, metadata, 1 - (embedding <=> $1) AS score
FROM %s
WHERE metadata @> $2::jsonb
ORDER BY embedding <=> $1
LIMIT $3`, s.table)
}
