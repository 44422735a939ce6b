package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
backend: neo4j
validation_mode: strict
schema:
  etcd:
    endpoints: [localhost:2379]
    key: /kgraph/schema
    dial_timeout: 2s
neo4j:
  uri: neo4j://localhost:7687
  user: neo4j
  password: secret
  workers: 16
  connect_timeout: 3s
  breaker:
    max_requests: 2
    interval: 10s
    failure_threshold: 0.5
query:
  max_rows: 250
retrieval:
  task: research
  vector_weight: 0.7
  graph_weight: 0.3
  decay: 0.5
  top_k: 5
linker:
  backend: redis
  redis_url: redis://localhost:6379
  ttl: 72h
vector:
  backend: pgvector
  dsn: postgres://localhost/kgraph
  table: embeddings
  dimensions: 384
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendNeo4j, cfg.GetBackend())
	assert.Equal(t, "strict", cfg.GetValidationMode())
	assert.Equal(t, []string{"localhost:2379"}, cfg.Schema.Etcd.Endpoints)
	assert.Equal(t, 2*time.Second, cfg.Schema.Etcd.GetDialTimeout())
	assert.Equal(t, 16, cfg.Neo4j.GetWorkers())
	assert.Equal(t, 3*time.Second, cfg.Neo4j.GetConnectTimeout())
	assert.Equal(t, 10, cfg.Neo4j.GetStatsDepthLimit())
	assert.Equal(t, uint32(2), cfg.Neo4j.Breaker.MaxRequests)
	assert.Equal(t, 250, cfg.Query.GetMaxRows())
	assert.Equal(t, 0.7, *cfg.Retrieval.VectorWeight)
	assert.Equal(t, BackendRedis, cfg.Linker.GetBackend())
	assert.Equal(t, 72*time.Hour, cfg.Linker.GetTTL())
	assert.Equal(t, 5, cfg.Linker.GetMaxAttempts())
	assert.Equal(t, BackendPGVector, cfg.Vector.GetBackend())
	assert.Equal(t, 384, cfg.Vector.Dimensions)
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	for _, doc := range []string{"", "\n", "# nothing here\n"} {
		cfg, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.NoError(t, cfg.Validate())
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("backend: memory\nbakend: neo4j\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestGetters_NilDefaults(t *testing.T) {
	var c *Config
	assert.Equal(t, BackendMemory, c.GetBackend())
	assert.Equal(t, "warn", c.GetValidationMode())

	var n *Neo4jConfig
	assert.Equal(t, 8, n.GetWorkers())
	assert.Equal(t, 10*time.Second, n.GetConnectTimeout())
	assert.Equal(t, 10, n.GetStatsDepthLimit())

	var q *QueryConfig
	assert.Equal(t, 1000, q.GetMaxRows())

	var l *LinkerConfig
	assert.Equal(t, BackendMemory, l.GetBackend())
	assert.Equal(t, 7*24*time.Hour, l.GetTTL())

	var v *VectorConfig
	assert.Equal(t, BackendMemory, v.GetBackend())

	var e *EtcdConfig
	assert.Equal(t, 5*time.Second, e.GetDialTimeout())

	assert.Equal(t, 7*24*time.Hour, (&LinkerConfig{TTL: "soon"}).GetTTL())
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Parse([]byte("backend: memory\nquery:\n  max_rows: 10\n"))
	require.NoError(t, err)

	env := map[string]string{
		EnvBackend:        "neo4j",
		EnvValidationMode: "strict",
		EnvNeo4jURI:       "neo4j://db:7687",
		EnvNeo4jUser:      "svc",
		EnvNeo4jPassword:  "pw",
		EnvRedisURL:       "redis://cache:6379",
		EnvQueryMaxRows:   "99",
		EnvVectorDSN:      "postgres://pg/kgraph",
	}
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, BackendNeo4j, cfg.Backend)
	assert.Equal(t, "strict", cfg.ValidationMode)
	assert.Equal(t, &Neo4jConfig{URI: "neo4j://db:7687", User: "svc", Password: "pw"}, cfg.Neo4j)
	assert.Equal(t, BackendRedis, cfg.Linker.GetBackend())
	assert.Equal(t, "redis://cache:6379", cfg.Linker.RedisURL)
	assert.Equal(t, 99, cfg.Query.GetMaxRows())
	assert.Equal(t, BackendPGVector, cfg.Vector.GetBackend())
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_ProcessEnvironment(t *testing.T) {
	t.Setenv(EnvQueryMaxRows, "not-a-number")
	err := Default().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvQueryMaxRows)

	t.Setenv(EnvQueryMaxRows, "7")
	t.Setenv(EnvBackend, "memory")
	cfg := &Config{Backend: "neo4j"}
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 7, cfg.Query.MaxRows)
}

func TestValidate(t *testing.T) {
	w := func(f float64) *float64 { return &f }
	tests := []struct {
		name string
		cfg  Config
		msg  string
	}{
		{"unknown backend", Config{Backend: "sqlite"}, `unknown backend "sqlite"`},
		{"neo4j without uri", Config{Backend: BackendNeo4j}, "neo4j.uri is required"},
		{"bad mode", Config{ValidationMode: "lenient"}, `unknown validation_mode "lenient"`},
		{"schema file and etcd", Config{Schema: &SchemaConfig{File: "s.yaml", Etcd: &EtcdConfig{Endpoints: []string{"x"}, Key: "k"}}}, "mutually exclusive"},
		{"etcd without key", Config{Schema: &SchemaConfig{Etcd: &EtcdConfig{Endpoints: []string{"x"}}}}, "endpoints and key"},
		{"weights", Config{Retrieval: &RetrievalConfig{VectorWeight: w(0.9)}}, "must sum to 1.0"},
		{"decay", Config{Retrieval: &RetrievalConfig{Decay: w(0)}}, "retrieval.decay"},
		{"redis without url", Config{Linker: &LinkerConfig{Backend: BackendRedis}}, "linker.redis_url"},
		{"unknown linker", Config{Linker: &LinkerConfig{Backend: "kafka"}}, `unknown linker backend "kafka"`},
		{"pgvector without dsn", Config{Vector: &VectorConfig{Backend: BackendPGVector}}, "vector.dsn"},
		{"unknown vector", Config{Vector: &VectorConfig{Backend: "faiss"}}, `unknown vector backend "faiss"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	err := (&Config{Backend: "x", ValidationMode: "y"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
	assert.Contains(t, err.Error(), "unknown validation_mode")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kgraph.yml"), []byte("validation_mode: strict\n"), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.ValidationMode)

	cfg, err = Load(filepath.Join(dir, "kgraph.yml"))
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.ValidationMode)

	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kgraph.yaml")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
