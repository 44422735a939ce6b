package vector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	execs   []call
	queries []call
	rows    [][]any
	err     error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, call{sql, args})
	return pgconn.NewCommandTag("OK"), f.err
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, call{sql, args})
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{rows: f.rows, i: -1}, nil
}

// fakeRows scans content, metadata bytes and score.
type fakeRows struct {
	rows   [][]any
	i      int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i], nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*[]byte) = []byte(row[1].(string))
	*dest[2].(*float64) = row[2].(float64)
	return nil
}

func TestNewPGSearcher_TableName(t *testing.T) {
	s, err := NewPGSearcher(&fakeQuerier{}, wordEmbedder(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, s.table)

	_, err = NewPGSearcher(&fakeQuerier{}, wordEmbedder(), "kg.docs")
	assert.NoError(t, err)

	_, err = NewPGSearcher(&fakeQuerier{}, wordEmbedder(), "docs; DROP TABLE x")
	assert.Error(t, err)
}

func TestPGSearcher_Search(t *testing.T) {
	q := &fakeQuerier{rows: [][]any{
		{"redis notes", `{"graph_node_id":"m1"}`, 0.92},
		{"far away", `{}`, -0.3},
	}}
	s, err := NewPGSearcher(q, wordEmbedder(), "docs")
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "redis", 5, map[string]any{"kind": "message"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	id, ok := results[0].GraphNodeID()
	assert.True(t, ok)
	assert.Equal(t, "m1", id)
	assert.InDelta(t, 0.92, results[0].Score, 1e-9)
	assert.Zero(t, results[1].Score)

	require.Len(t, q.queries, 1)
	c := q.queries[0]
	assert.Contains(t, c.sql, "FROM docs")
	assert.Contains(t, c.sql, "metadata @> $2::jsonb")
	assert.Contains(t, c.sql, "ORDER BY embedding <=> $1")
	assert.Equal(t, pgvector.NewVector([]float32{1, 0, 0, 0}), c.args[0])
	assert.Equal(t, `{"kind":"message"}`, c.args[1])
	assert.Equal(t, 5, c.args[2])
}

func TestPGSearcher_SearchNoFiltersAndZeroK(t *testing.T) {
	q := &fakeQuerier{}
	s, err := NewPGSearcher(q, wordEmbedder(), "")
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "redis", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, q.queries)

	_, err = s.Search(context.Background(), "redis", 3, nil)
	require.NoError(t, err)
	require.Len(t, q.queries, 1)
	assert.Equal(t, `{}`, q.queries[0].args[1])
}

func TestPGSearcher_QueryError(t *testing.T) {
	boom := errors.New("connection refused")
	s, err := NewPGSearcher(&fakeQuerier{err: boom}, wordEmbedder(), "")
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "redis", 3, nil)
	assert.ErrorIs(t, err, boom)
}

func TestPGSearcher_EnsureSchemaAndUpsert(t *testing.T) {
	q := &fakeQuerier{}
	s, err := NewPGSearcher(q, wordEmbedder(), "docs")
	require.NoError(t, err)

	assert.Error(t, s.EnsureSchema(context.Background(), 0))
	require.NoError(t, s.EnsureSchema(context.Background(), 4))
	require.Len(t, q.execs, 2)
	assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", q.execs[0].sql)
	assert.Contains(t, q.execs[1].sql, "embedding vector(4) NOT NULL")

	require.NoError(t, s.Upsert(context.Background(), "a", "graph", map[string]any{BridgeField: "n1"}))
	up := q.execs[2]
	assert.True(t, strings.HasPrefix(up.sql, "INSERT INTO docs"))
	assert.Equal(t, []any{"a", "graph", `{"graph_node_id":"n1"}`, pgvector.NewVector([]float32{0, 1, 0, 0})}, up.args)

	require.NoError(t, s.Delete(context.Background(), "a"))
	assert.Equal(t, "DELETE FROM docs WHERE id = $1", q.execs[3].sql)
}

func TestPGSearcher_Ping(t *testing.T) {
	q := &fakeQuerier{}
	s, err := NewPGSearcher(q, wordEmbedder(), "")
	require.NoError(t, err)

	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "SELECT 1", q.execs[0].sql)

	q.err = errors.New("connection refused")
	err = s.Ping(context.Background())
	assert.ErrorIs(t, err, q.err)
}
