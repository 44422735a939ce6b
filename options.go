package kgraph

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/kgraph/config"
	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/linker"
	"github.com/zero-day-ai/kgraph/schema"
	"github.com/zero-day-ai/kgraph/vector"
)

// Option configures the Engine.
type Option func(*engineConfig)

// engineConfig holds configuration for the Engine instance.
type engineConfig struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	schema     *schema.Schema
	store      graph.Store
	searcher   vector.Searcher
	embedder   vector.Embedder
	pending    linker.PendingStore
}

// WithConfig sets the configuration directly. It takes precedence over
// WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(c *engineConfig) {
		c.cfg = cfg
	}
}

// WithConfigFile loads the configuration from a kgraph.yaml file or a
// directory containing one.
func WithConfigFile(path string) Option {
	return func(c *engineConfig) {
		c.configPath = path
	}
}

// WithLogger sets a custom logger for the engine and every component it builds.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for store spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for store metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *engineConfig) {
		c.meter = meter
	}
}

// WithSchema overrides the schema named in the configuration.
func WithSchema(s *schema.Schema) Option {
	return func(c *engineConfig) {
		c.schema = s
	}
}

// WithStore supplies a ready graph store instead of building one from the
// configuration. The engine takes ownership and closes it.
func WithStore(s graph.Store) Option {
	return func(c *engineConfig) {
		c.store = s
	}
}

// WithSearcher supplies the vector searcher used for retrieval.
func WithSearcher(s vector.Searcher) Option {
	return func(c *engineConfig) {
		c.searcher = s
	}
}

// WithEmbedder sets the embedder used by the searcher the engine builds from
// configuration. Ignored when WithSearcher is given.
func WithEmbedder(e vector.Embedder) Option {
	return func(c *engineConfig) {
		c.embedder = e
	}
}

// WithPendingStore supplies the store for deferred links.
func WithPendingStore(p linker.PendingStore) Option {
	return func(c *engineConfig) {
		c.pending = p
	}
}
