package kgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zero-day-ai/kgraph/config"
	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/graph/memory"
	"github.com/zero-day-ai/kgraph/linker"
	"github.com/zero-day-ai/kgraph/retrieval"
	"github.com/zero-day-ai/kgraph/schema"
	"github.com/zero-day-ai/kgraph/vector"
)

// keywordEmbedder maps text onto one axis per keyword.
var keywordEmbedder = vector.EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := make([]float32, 3)
	for i, word := range []string{"redis", "graph", "lunch"} {
		if strings.Contains(text, word) {
			vec[i] = 1
		}
	}
	return vec, nil
})

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func seedChat(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	for _, n := range []struct {
		id    string
		t     schema.NodeType
		props map[string]any
	}{
		{"m1", schema.NodeTypeMessage, map[string]any{"text": "redis cluster is down", "timestamp": "2024-03-01T10:00:00Z"}},
		{"p1", schema.NodeTypePerson, map[string]any{"name": "Ada"}},
		{"c1", schema.NodeTypeChannel, map[string]any{"name": "ops"}},
	} {
		ok, _, err := e.AddNode(ctx, n.id, n.t, n.props)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, l := range []struct {
		from, to string
		rel      schema.RelationType
	}{
		{"m1", "p1", schema.RelSentBy},
		{"m1", "c1", schema.RelInChannel},
	} {
		status, err := e.Link(ctx, l.from, l.to, l.rel, nil)
		require.NoError(t, err)
		require.Equal(t, linker.LinkCreated, status)
	}
}

func TestNew_Defaults(t *testing.T) {
	e := newEngine(t)

	assert.Equal(t, config.BackendMemory, e.Config().GetBackend())
	assert.NotNil(t, e.Schema())
	assert.True(t, e.Schema().HasNodeType(schema.NodeTypeMessage))

	_, err := e.Retrieve(context.Background(), e.NewQuery("redis"))
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
	assert.ErrorIs(t, e.Index(context.Background(), "d1", "text", "m1", nil), ErrRetrievalUnavailable)
}

func TestEngine_QueryAndGraphOps(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	seedChat(t, e)

	res, err := e.Query(ctx, `MATCH (m:Message)-[:SENT_BY]->(p:Person) WHERE m.text CONTAINS $word RETURN p.name`,
		map[string]any{"word": "redis"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.name"}, res.Columns)
	assert.Equal(t, []map[string]any{{"p.name": "Ada"}}, res.Rows)

	n, err := e.GetNode(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "Ada", n.Properties["name"])

	path, err := e.FindPath(ctx, "m1", "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "c1"}, path)

	nodes, err := e.Traverse(ctx, "m1", nil, 1, graph.Outgoing)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalNodes)
	assert.Equal(t, 2, stats.TotalRelationships)
}

func TestEngine_QueryParseError(t *testing.T) {
	e := newEngine(t)

	_, err := e.Query(context.Background(), "MATCH (n", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueryUnsupported)
}

// opaqueStore hides the embedded store's read helpers.
type opaqueStore struct {
	graph.Store
}

func TestEngine_QueryUnsupported(t *testing.T) {
	e := newEngine(t, WithStore(opaqueStore{memory.New(schema.Default())}))

	_, err := e.Query(context.Background(), "MATCH (n) RETURN n", nil)
	assert.ErrorIs(t, err, ErrQueryUnsupported)

	ok, _, err := e.AddNode(context.Background(), "p1", schema.NodeTypePerson, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_DeferredLinkResolvesOnAddNode(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	ok, _, err := e.AddNode(ctx, "m1", schema.NodeTypeMessage, map[string]any{"text": "hi", "timestamp": "2024-03-01"})
	require.NoError(t, err)
	require.True(t, ok)

	status, err := e.Link(ctx, "m1", "p1", schema.RelSentBy, nil)
	require.NoError(t, err)
	assert.Equal(t, linker.LinkDeferred, status)

	pending, err := e.PendingLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	_, res, err := e.AddNode(ctx, "p1", schema.NodeTypePerson, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	pending, err = e.PendingLinks(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	path, err := e.FindPath(ctx, "m1", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "p1"}, path)
}

func TestEngine_RedisPendingFromConfig(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	e := newEngine(t, WithConfig(&config.Config{
		Linker: &config.LinkerConfig{Backend: config.BackendRedis, RedisURL: "redis://" + mr.Addr()},
	}))

	_, _, err := e.AddNode(ctx, "m1", schema.NodeTypeMessage, map[string]any{"text": "hi", "timestamp": "2024-03-01"})
	require.NoError(t, err)
	status, err := e.Link(ctx, "m1", "p1", schema.RelSentBy, nil)
	require.NoError(t, err)
	assert.Equal(t, linker.LinkDeferred, status)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, linker.DefaultKeyPrefix+"p1", keys[0])

	_, res, err := e.AddNode(ctx, "p1", schema.NodeTypePerson, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Empty(t, mr.Keys())
}

func TestEngine_Retrieve(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, WithEmbedder(keywordEmbedder))
	seedChat(t, e)

	require.NoError(t, e.Index(ctx, "doc-m1", "redis cluster is down", "m1", map[string]any{"source": "chat"}))
	require.NoError(t, e.Index(ctx, "doc-x", "lunch plans", "", nil))

	results, err := e.Retrieve(ctx, e.NewQuery("redis outage"))
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "m1", results[0].NodeID)
	assert.True(t, results[0].Seed)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-9)

	var ids []string
	for _, r := range results {
		ids = append(ids, r.NodeID)
	}
	assert.ElementsMatch(t, []string{"m1", "p1", "c1"}, ids)
}

func TestEngine_IndexUnsupported(t *testing.T) {
	e := newEngine(t, WithSearcher(searcherFunc(func(context.Context, string, int, map[string]any) ([]vector.Result, error) {
		return nil, nil
	})))

	err := e.Index(context.Background(), "d1", "text", "m1", nil)
	assert.ErrorIs(t, err, ErrIndexUnsupported)

	results, err := e.Retrieve(context.Background(), e.NewQuery("anything"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

type searcherFunc func(ctx context.Context, text string, k int, filters map[string]any) ([]vector.Result, error)

func (f searcherFunc) Search(ctx context.Context, text string, k int, filters map[string]any) ([]vector.Result, error) {
	return f(ctx, text, k, filters)
}

func TestEngine_RetrievalDefaultsFromConfig(t *testing.T) {
	decay := 0.5
	e := newEngine(t,
		WithEmbedder(keywordEmbedder),
		WithConfig(&config.Config{
			Retrieval: &config.RetrievalConfig{Task: "research", TopK: 3, MaxResults: 7, Decay: &decay},
		}))

	q := e.NewQuery("graph")
	assert.Equal(t, retrieval.TaskResearch, q.Task)
	assert.Equal(t, retrieval.MaxHops(retrieval.TaskResearch), q.MaxHops)
	assert.Equal(t, 3, q.TopK)
	assert.Equal(t, 7, q.MaxResults)
	assert.Equal(t, 0.5, q.Decay)
	assert.Equal(t, retrieval.DefaultVectorWeight, q.VectorWeight)
}

func TestEngine_StrictModeFromConfig(t *testing.T) {
	e := newEngine(t, WithConfig(&config.Config{ValidationMode: "strict"}))

	ok, _, err := e.AddNode(context.Background(), "p1", schema.NodeTypePerson, map[string]any{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, graph.ErrSchemaValidation)
}

func TestEngine_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := newEngine(t, WithTracer(tp.Tracer("test")))
	seedChat(t, e)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "kgraph.store.add_node")
	assert.Contains(t, names, "kgraph.store.add_relationship")
	assert.Contains(t, names, "kgraph.store.get_nodes_batch")
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"unknown backend", []Option{WithConfig(&config.Config{Backend: "sqlite"})}},
		{"neo4j without uri", []Option{WithConfig(&config.Config{Backend: config.BackendNeo4j})}},
		{"missing file", []Option{WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))}},
		{"pgvector without embedder", []Option{WithConfig(&config.Config{
			Vector: &config.VectorConfig{Backend: config.BackendPGVector, DSN: "postgres://localhost/kgraph"},
		})}},
		{"bad retrieval task", []Option{WithEmbedder(keywordEmbedder), WithConfig(&config.Config{
			Retrieval: &config.RetrievalConfig{Task: "gossip"},
		})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(context.Background(), tt.opts...)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), WithConfig(&config.Config{
		Linker: &config.LinkerConfig{Backend: config.BackendRedis, RedisURL: "redis://" + addr},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestNew_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`
node_types:
  - type: person
    required: [name]
properties:
  - name: name
    type: string
relationships:
  - from: person
    relation: KNOWS
    to: [person]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kgraph.yaml"), []byte(`
validation_mode: strict
schema:
  file: `+schemaPath+`
query:
  max_rows: 1
`), 0o600))

	e := newEngine(t, WithConfigFile(dir))
	assert.Equal(t, "strict", e.Config().GetValidationMode())
	assert.True(t, e.Schema().HasNodeType(schema.NodeTypePerson))
	assert.False(t, e.Schema().HasNodeType(schema.NodeTypeMessage))

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, _, err := e.AddNode(ctx, id, schema.NodeTypePerson, map[string]any{"name": id})
		require.NoError(t, err)
	}
	res, err := e.Query(ctx, "MATCH (p:Person) RETURN p.name", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.True(t, res.Truncated)
	assert.Equal(t, 2, res.TotalRows)
}

func TestBreakerConfig(t *testing.T) {
	got, err := breakerConfig(&config.BreakerConfig{MaxRequests: 2, Timeout: "5s"})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.MaxRequests)
	assert.Equal(t, "5s", got.Timeout.String())
	assert.Equal(t, "30s", got.Interval.String())

	_, err = breakerConfig(&config.BreakerConfig{Interval: "soon"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_CloseTwice(t *testing.T) {
	e, err := New(context.Background())
	require.NoError(t, err)

	calls := 0
	e.closers = append(e.closers, namedCloser{"sidecar", closerFunc(func() error {
		calls++
		return errors.New("sidecar failed")
	})})

	err = e.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing sidecar")
	assert.Equal(t, err, e.Close(context.Background()))
	assert.Equal(t, 1, calls)
}

// flakyPending is a pending store whose backend is down.
type flakyPending struct {
	*linker.MemoryPending
}

func (flakyPending) Ping(context.Context) error { return errors.New("connection refused") }

func TestEngine_Health(t *testing.T) {
	e := newEngine(t)
	status := e.Health(context.Background())
	assert.True(t, status.IsHealthy(), status.Message)

	e = newEngine(t, WithPendingStore(flakyPending{linker.NewMemoryPending()}))
	status = e.Health(context.Background())
	assert.True(t, status.IsDegraded(), status.Message)
	assert.Equal(t, []string{"pending store unreachable: connection refused"}, status.Details["degraded_checks"])
}
