package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendNeo4j    = "neo4j"
	BackendRedis    = "redis"
	BackendPGVector = "pgvector"
)

// Config is the kgraph.yaml configuration file.
type Config struct {
	// Backend selects the graph store: "memory" (default) or "neo4j".
	Backend string `yaml:"backend,omitempty"`

	// ValidationMode is "warn" (default) or "strict".
	ValidationMode string `yaml:"validation_mode,omitempty"`

	Schema    *SchemaConfig    `yaml:"schema,omitempty"`
	Neo4j     *Neo4jConfig     `yaml:"neo4j,omitempty"`
	Query     *QueryConfig     `yaml:"query,omitempty"`
	Retrieval *RetrievalConfig `yaml:"retrieval,omitempty"`
	Linker    *LinkerConfig    `yaml:"linker,omitempty"`
	Vector    *VectorConfig    `yaml:"vector,omitempty"`
}

// SchemaConfig locates a schema document. With neither set the built-in
// schema is used.
type SchemaConfig struct {
	// File is a YAML schema file.
	File string `yaml:"file,omitempty"`

	// Etcd reads the schema from an etcd key instead.
	Etcd *EtcdConfig `yaml:"etcd,omitempty"`
}

// EtcdConfig defines where the schema lives in etcd.
type EtcdConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	Key         string   `yaml:"key"`
	DialTimeout string   `yaml:"dial_timeout,omitempty"`
}

// GetDialTimeout parses the dial timeout. Default: 5s.
func (e *EtcdConfig) GetDialTimeout() time.Duration {
	return parseDuration(e, func(e *EtcdConfig) string { return e.DialTimeout }, 5*time.Second)
}

// Neo4jConfig configures the external graph backend.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`

	// Workers bounds concurrent Neo4j calls. Default: 8
	Workers int `yaml:"workers,omitempty"`

	// ConnectTimeout bounds the initial connectivity check. Default: 10s
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`

	// StatsDepthLimit bounds the path scan used for Stats.MaxDepth. Default: 10
	StatsDepthLimit int `yaml:"stats_depth_limit,omitempty"`

	Breaker *BreakerConfig `yaml:"breaker,omitempty"`
}

// GetWorkers returns the configured worker count or the default value.
func (n *Neo4jConfig) GetWorkers() int {
	if n == nil || n.Workers <= 0 {
		return 8
	}
	return n.Workers
}

// GetConnectTimeout parses the connect timeout. Default: 10s.
func (n *Neo4jConfig) GetConnectTimeout() time.Duration {
	return parseDuration(n, func(n *Neo4jConfig) string { return n.ConnectTimeout }, 10*time.Second)
}

// GetStatsDepthLimit returns the stats depth limit or the default value.
func (n *Neo4jConfig) GetStatsDepthLimit() int {
	if n == nil || n.StatsDepthLimit <= 0 {
		return 10
	}
	return n.StatsDepthLimit
}

// BreakerConfig tunes the circuit breaker in front of Neo4j. Zero fields
// keep the backend defaults.
type BreakerConfig struct {
	MaxRequests      uint32  `yaml:"max_requests,omitempty"`
	Interval         string  `yaml:"interval,omitempty"`
	Timeout          string  `yaml:"timeout,omitempty"`
	FailureThreshold float64 `yaml:"failure_threshold,omitempty"`
	MinRequests      uint32  `yaml:"min_requests,omitempty"`
}

// QueryConfig configures the query interpreter.
type QueryConfig struct {
	// MaxRows caps result rows. Default: 1000
	MaxRows int `yaml:"max_rows,omitempty"`
}

// GetMaxRows returns the row cap or the default value.
func (q *QueryConfig) GetMaxRows() int {
	if q == nil || q.MaxRows <= 0 {
		return 1000
	}
	return q.MaxRows
}

// RetrievalConfig overrides retrieval defaults. Nil pointers keep the
// built-in values.
type RetrievalConfig struct {
	Task         string   `yaml:"task,omitempty"`
	VectorWeight *float64 `yaml:"vector_weight,omitempty"`
	GraphWeight  *float64 `yaml:"graph_weight,omitempty"`
	Decay        *float64 `yaml:"decay,omitempty"`
	TopK         int      `yaml:"top_k,omitempty"`
	MaxResults   int      `yaml:"max_results,omitempty"`
}

// LinkerConfig configures deferred linking.
type LinkerConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend  string `yaml:"backend,omitempty"`
	RedisURL string `yaml:"redis_url,omitempty"`

	// TTL expires idle pending lists in Redis. Default: 168h
	TTL string `yaml:"ttl,omitempty"`

	// MaxAttempts bounds replays per link. Default: 5
	MaxAttempts int `yaml:"max_attempts,omitempty"`
}

// GetBackend returns the pending store backend or the default value.
func (l *LinkerConfig) GetBackend() string {
	if l == nil || l.Backend == "" {
		return BackendMemory
	}
	return l.Backend
}

// GetTTL parses the pending TTL. Default: 168h.
func (l *LinkerConfig) GetTTL() time.Duration {
	return parseDuration(l, func(l *LinkerConfig) string { return l.TTL }, 7*24*time.Hour)
}

// GetMaxAttempts returns the replay limit or the default value.
func (l *LinkerConfig) GetMaxAttempts() int {
	if l == nil || l.MaxAttempts <= 0 {
		return 5
	}
	return l.MaxAttempts
}

// VectorConfig configures the vector search boundary.
type VectorConfig struct {
	// Backend is "memory" (default) or "pgvector".
	Backend string `yaml:"backend,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
	Table   string `yaml:"table,omitempty"`

	// Dimensions sizes the embedding column when the table is created.
	Dimensions int `yaml:"dimensions,omitempty"`
}

// GetBackend returns the vector backend or the default value.
func (v *VectorConfig) GetBackend() string {
	if v == nil || v.Backend == "" {
		return BackendMemory
	}
	return v.Backend
}

// parseDuration reads a duration string through get, falling back to def
// when c is nil, the value is empty or it does not parse.
func parseDuration[T any](c *T, get func(*T) string, def time.Duration) time.Duration {
	if c == nil {
		return def
	}
	s := get(c)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Backend: BackendMemory, ValidationMode: "warn"}
}

// GetBackend returns the graph backend or the default value.
func (c *Config) GetBackend() string {
	if c == nil || c.Backend == "" {
		return BackendMemory
	}
	return c.Backend
}

// GetValidationMode returns the validation mode or the default value.
func (c *Config) GetValidationMode() string {
	if c == nil || c.ValidationMode == "" {
		return "warn"
	}
	return c.ValidationMode
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
// If the path is a directory, it looks for kgraph.yaml or kgraph.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"kgraph.yaml", "kgraph.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no kgraph.yaml or kgraph.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Environment variables read by ApplyEnv.
const (
	EnvBackend        = "KGRAPH_BACKEND"
	EnvValidationMode = "KGRAPH_VALIDATION_MODE"
	EnvNeo4jURI       = "KGRAPH_NEO4J_URI"
	EnvNeo4jUser      = "KGRAPH_NEO4J_USER"
	EnvNeo4jPassword  = "KGRAPH_NEO4J_PASSWORD"
	EnvRedisURL       = "KGRAPH_REDIS_URL"
	EnvQueryMaxRows   = "KGRAPH_QUERY_MAX_ROWS"
	EnvVectorDSN      = "KGRAPH_VECTOR_DSN"
)

// ApplyEnv overrides file values with any KGRAPH_* variables that are set.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackend); ok {
		c.Backend = v
	}
	if v, ok := lookup(EnvValidationMode); ok {
		c.ValidationMode = v
	}

	neo := func() *Neo4jConfig {
		if c.Neo4j == nil {
			c.Neo4j = &Neo4jConfig{}
		}
		return c.Neo4j
	}
	if v, ok := lookup(EnvNeo4jURI); ok {
		neo().URI = v
	}
	if v, ok := lookup(EnvNeo4jUser); ok {
		neo().User = v
	}
	if v, ok := lookup(EnvNeo4jPassword); ok {
		neo().Password = v
	}

	if v, ok := lookup(EnvRedisURL); ok {
		if c.Linker == nil {
			c.Linker = &LinkerConfig{}
		}
		c.Linker.RedisURL = v
		if c.Linker.Backend == "" {
			c.Linker.Backend = BackendRedis
		}
	}
	if v, ok := lookup(EnvQueryMaxRows); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvQueryMaxRows, err)
		}
		if c.Query == nil {
			c.Query = &QueryConfig{}
		}
		c.Query.MaxRows = n
	}
	if v, ok := lookup(EnvVectorDSN); ok {
		if c.Vector == nil {
			c.Vector = &VectorConfig{}
		}
		c.Vector.DSN = v
		if c.Vector.Backend == "" {
			c.Vector.Backend = BackendPGVector
		}
	}
	return nil
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.GetBackend() {
	case BackendMemory:
	case BackendNeo4j:
		if c.Neo4j == nil || c.Neo4j.URI == "" {
			errs = append(errs, errors.New("neo4j.uri is required for the neo4j backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.GetValidationMode() {
	case "warn", "strict":
	default:
		errs = append(errs, fmt.Errorf("unknown validation_mode %q", c.ValidationMode))
	}

	if s := c.Schema; s != nil {
		if s.File != "" && s.Etcd != nil {
			errs = append(errs, errors.New("schema.file and schema.etcd are mutually exclusive"))
		}
		if s.Etcd != nil && (len(s.Etcd.Endpoints) == 0 || s.Etcd.Key == "") {
			errs = append(errs, errors.New("schema.etcd needs endpoints and key"))
		}
	}

	if r := c.Retrieval; r != nil {
		vw, gw := 0.6, 0.4
		if r.VectorWeight != nil {
			vw = *r.VectorWeight
		}
		if r.GraphWeight != nil {
			gw = *r.GraphWeight
		}
		if sum := vw + gw; sum < 0.9999 || sum > 1.0001 {
			errs = append(errs, fmt.Errorf("retrieval weights must sum to 1.0, got %f", sum))
		}
		if r.Decay != nil && (*r.Decay <= 0 || *r.Decay > 1) {
			errs = append(errs, fmt.Errorf("retrieval.decay must be in (0, 1], got %f", *r.Decay))
		}
	}

	switch c.Linker.GetBackend() {
	case BackendMemory:
	case BackendRedis:
		if c.Linker.RedisURL == "" {
			errs = append(errs, errors.New("linker.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown linker backend %q", c.Linker.Backend))
	}

	switch c.Vector.GetBackend() {
	case BackendMemory:
	case BackendPGVector:
		if c.Vector.DSN == "" {
			errs = append(errs, errors.New("vector.dsn is required for the pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector backend %q", c.Vector.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
