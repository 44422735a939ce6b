package kgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/kgraph/config"
	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/graph/memory"
	"github.com/zero-day-ai/kgraph/graph/neo4j"
	"github.com/zero-day-ai/kgraph/health"
	"github.com/zero-day-ai/kgraph/linker"
	"github.com/zero-day-ai/kgraph/query"
	"github.com/zero-day-ai/kgraph/retrieval"
	"github.com/zero-day-ai/kgraph/schema"
	"github.com/zero-day-ai/kgraph/telemetry"
	"github.com/zero-day-ai/kgraph/vector"
)

// Engine ties the graph store, query interpreter, linker and retriever
// together behind one handle. The backend is selected once, in New.
type Engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	schema    *schema.Schema
	store     graph.Store
	interp    *query.Interpreter
	linker    *linker.Linker
	pending   linker.PendingStore
	searcher  vector.Searcher
	retriever *retrieval.Retriever

	// closers release resources other than the store, in order.
	closers   []namedCloser
	closeOnce sync.Once
	closeErr  error
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// New builds an Engine: schema, then store, telemetry wrapper, interpreter,
// linker and retriever. Resources opened before a failure are released.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	ec := &engineConfig{}
	for _, opt := range opts {
		opt(ec)
	}
	if ec.logger == nil {
		ec.logger = slog.Default()
	}

	cfg, err := resolveConfig(ec)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, logger: ec.logger}
	if err := e.build(ctx, ec); err != nil {
		_ = e.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	e.logger.Info("kgraph engine ready",
		"backend", cfg.GetBackend(),
		"validation_mode", cfg.GetValidationMode(),
		"query", e.interp != nil,
		"retrieval", e.retriever != nil)
	return e, nil
}

func resolveConfig(ec *engineConfig) (*config.Config, error) {
	cfg := ec.cfg
	if cfg == nil && ec.configPath != "" {
		loaded, err := config.Load(ec.configPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (e *Engine) build(ctx context.Context, ec *engineConfig) error {
	s, err := e.loadSchema(ctx, ec)
	if err != nil {
		return err
	}
	e.schema = s

	inner := ec.store
	if inner == nil {
		if inner, err = e.openStore(ctx); err != nil {
			return err
		}
	}
	if g, ok := inner.(query.Graph); ok {
		e.interp = query.New(g,
			query.WithMaxRows(e.cfg.Query.GetMaxRows()),
			query.WithLogger(e.logger))
	}

	wrapped, err := telemetry.NewStore(inner, ec.tracer, ec.meter)
	if err != nil {
		e.store = inner
		return fmt.Errorf("creating store telemetry: %w", err)
	}
	e.store = wrapped

	pending := ec.pending
	if pending == nil {
		if pending, err = e.openPending(); err != nil {
			return err
		}
	}
	e.pending = pending
	e.linker = linker.New(e.store, pending,
		linker.WithLogger(e.logger),
		linker.WithMaxAttempts(e.cfg.Linker.GetMaxAttempts()))

	e.searcher = ec.searcher
	if e.searcher == nil {
		if e.searcher, err = e.openSearcher(ctx, ec.embedder); err != nil {
			return err
		}
	}
	if e.searcher == nil {
		return nil
	}

	defaults, err := retrievalDefaults(e.cfg.Retrieval)
	if err != nil {
		return err
	}
	e.retriever, err = retrieval.New(e.store, e.searcher,
		retrieval.WithLogger(e.logger),
		retrieval.WithDefaults(defaults))
	return err
}

func (e *Engine) loadSchema(ctx context.Context, ec *engineConfig) (*schema.Schema, error) {
	if ec.schema != nil {
		return ec.schema, nil
	}

	sc := e.cfg.Schema
	switch {
	case sc != nil && sc.File != "":
		s, err := schema.LoadFile(sc.File)
		if err != nil {
			return nil, err
		}
		e.logger.Info("schema loaded", "source", "file", "path", sc.File)
		return s, nil

	case sc != nil && sc.Etcd != nil:
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   sc.Etcd.Endpoints,
			DialTimeout: sc.Etcd.GetDialTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd client: %w", err)
		}
		defer CloseWithLog(cli, e.logger, "etcd client")

		getCtx, cancel := context.WithTimeout(ctx, sc.Etcd.GetDialTimeout())
		defer cancel()
		s, err := schema.LoadFromEtcd(getCtx, cli, sc.Etcd.Key)
		if err != nil {
			return nil, err
		}
		e.logger.Info("schema loaded", "source", "etcd", "key", sc.Etcd.Key)
		return s, nil
	}
	return schema.Default(), nil
}

func (e *Engine) openStore(ctx context.Context) (graph.Store, error) {
	mode, err := graph.ParseValidationMode(e.cfg.GetValidationMode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch e.cfg.GetBackend() {
	case config.BackendNeo4j:
		nc := e.cfg.Neo4j
		breaker, err := breakerConfig(nc.Breaker)
		if err != nil {
			return nil, err
		}

		connectCtx, cancel := context.WithTimeout(ctx, nc.GetConnectTimeout())
		defer cancel()
		client, err := neo4j.NewDriverClient(connectCtx, neo4j.Config{
			URI:      nc.URI,
			Username: nc.User,
			Password: nc.Password,
			Database: nc.Database,
		})
		if err != nil {
			return nil, graph.NewError("Engine.New", graph.KindBackendUnavailable, err)
		}
		if err := client.EnsureIndexes(connectCtx); err != nil {
			_ = client.Close(context.WithoutCancel(ctx))
			return nil, graph.NewError("Engine.New", graph.KindBackendUnavailable, err)
		}
		return neo4j.New(client, e.schema,
			neo4j.WithMode(mode),
			neo4j.WithLogger(e.logger),
			neo4j.WithWorkers(nc.GetWorkers()),
			neo4j.WithBreaker(breaker),
			neo4j.WithStatsDepthLimit(nc.GetStatsDepthLimit())), nil

	default:
		return memory.New(e.schema,
			memory.WithMode(mode),
			memory.WithLogger(e.logger)), nil
	}
}

// breakerConfig overlays the configured breaker settings on the defaults.
func breakerConfig(bc *config.BreakerConfig) (neo4j.BreakerConfig, error) {
	out := neo4j.DefaultBreakerConfig()
	if bc == nil {
		return out, nil
	}
	if bc.MaxRequests > 0 {
		out.MaxRequests = bc.MaxRequests
	}
	if bc.MinRequests > 0 {
		out.MinRequests = bc.MinRequests
	}
	if bc.FailureThreshold > 0 {
		out.FailureThreshold = bc.FailureThreshold
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"interval", bc.Interval, &out.Interval},
		{"timeout", bc.Timeout, &out.Timeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return out, fmt.Errorf("%w: neo4j.breaker.%s: %w", ErrInvalidConfig, d.name, err)
		}
		*d.dst = v
	}
	return out, nil
}

func (e *Engine) openPending() (linker.PendingStore, error) {
	lc := e.cfg.Linker
	if lc.GetBackend() != config.BackendRedis {
		return linker.NewMemoryPending(), nil
	}
	rp, err := linker.NewRedisPending(linker.RedisOptions{
		URL:    lc.RedisURL,
		TTL:    lc.GetTTL(),
		Logger: e.logger,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, namedCloser{"redis pending store", rp})
	return rp, nil
}

// openSearcher builds the configured searcher. It returns nil, nil when the
// in-memory backend is selected without an embedder.
func (e *Engine) openSearcher(ctx context.Context, embedder vector.Embedder) (vector.Searcher, error) {
	vc := e.cfg.Vector
	switch vc.GetBackend() {
	case config.BackendPGVector:
		if embedder == nil {
			return nil, fmt.Errorf("%w: the pgvector backend needs an embedder", ErrInvalidConfig)
		}
		pool, err := vector.Connect(ctx, vc.DSN)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, namedCloser{"vector pool", closerFunc(func() error {
			pool.Close()
			return nil
		})})

		pg, err := vector.NewPGSearcher(pool, embedder, vc.Table)
		if err != nil {
			return nil, err
		}
		if vc.Dimensions > 0 {
			if err := pg.EnsureSchema(ctx, vc.Dimensions); err != nil {
				return nil, err
			}
		}
		return pg, nil

	default:
		if embedder == nil {
			e.logger.Debug("retrieval disabled: no searcher or embedder configured")
			return nil, nil
		}
		return vector.NewMemoryIndex(embedder), nil
	}
}

// retrievalDefaults turns the retrieval config section into a function
// applied to every query built with Engine.NewQuery.
func retrievalDefaults(rc *config.RetrievalConfig) (func(*retrieval.Query), error) {
	if rc == nil {
		return nil, nil
	}
	task, err := retrieval.ParseTask(rc.Task)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return func(q *retrieval.Query) {
		q.WithTask(task)
		if rc.VectorWeight != nil || rc.GraphWeight != nil {
			vw, gw := q.VectorWeight, q.GraphWeight
			if rc.VectorWeight != nil {
				vw = *rc.VectorWeight
			}
			if rc.GraphWeight != nil {
				gw = *rc.GraphWeight
			}
			q.WithWeights(vw, gw)
		}
		if rc.Decay != nil {
			q.WithDecay(*rc.Decay)
		}
		if rc.TopK > 0 {
			q.WithTopK(rc.TopK)
		}
		if rc.MaxResults > 0 {
			q.WithMaxResults(rc.MaxResults)
		}
	}, nil
}

// Config returns the effective configuration, after environment overrides.
func (e *Engine) Config() *config.Config { return e.cfg }

// Schema returns the schema writes are validated against.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Store returns the instrumented graph store.
func (e *Engine) Store() graph.Store { return e.store }

// AddNode stores a node and replays any links that were waiting for it.
func (e *Engine) AddNode(ctx context.Context, id string, t schema.NodeType, props map[string]any) (bool, linker.Resolution, error) {
	return e.linker.AddNode(ctx, id, t, props)
}

// Link creates a relationship, deferring it when an endpoint does not exist
// yet.
func (e *Engine) Link(ctx context.Context, fromID, toID string, rel schema.RelationType, props map[string]any) (linker.LinkStatus, error) {
	return e.linker.Link(ctx, fromID, toID, rel, props)
}

// PendingLinks returns the number of deferred links.
func (e *Engine) PendingLinks(ctx context.Context) (int, error) {
	return e.linker.Pending(ctx)
}

// GetNode returns the node with id, or nil.
func (e *Engine) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	return e.store.GetNode(ctx, id)
}

// Traverse returns the nodes reachable from startID within depth hops.
func (e *Engine) Traverse(ctx context.Context, startID string, rels []schema.RelationType, depth int, dir graph.Direction) ([]*graph.Node, error) {
	return e.store.Traverse(ctx, startID, rels, depth, dir)
}

// FindPath returns the shortest path of node ids, or nil.
func (e *Engine) FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]string, error) {
	return e.store.FindPath(ctx, fromID, toID, maxDepth)
}

// Stats summarizes the graph.
func (e *Engine) Stats(ctx context.Context) (*graph.Stats, error) {
	return e.store.Stats(ctx)
}

// Query runs a query-language statement. Only the embedded backend
// interprets the language; other backends return ErrQueryUnsupported.
func (e *Engine) Query(ctx context.Context, text string, params map[string]any) (*query.Result, error) {
	if e.interp == nil {
		return nil, ErrQueryUnsupported
	}
	return e.interp.Execute(ctx, text, params)
}

// NewQuery returns a retrieval query with the configured defaults applied.
func (e *Engine) NewQuery(text string) *retrieval.Query {
	if e.retriever == nil {
		return retrieval.NewQuery(text)
	}
	return e.retriever.NewQuery(text)
}

// Retrieve runs hybrid retrieval.
func (e *Engine) Retrieve(ctx context.Context, q *retrieval.Query) ([]retrieval.Result, error) {
	if e.retriever == nil {
		return nil, ErrRetrievalUnavailable
	}
	return e.retriever.Retrieve(ctx, q)
}

// Index stores a document in the vector searcher, bridged to graph node
// nodeID when it is not empty.
func (e *Engine) Index(ctx context.Context, id, content, nodeID string, metadata map[string]any) error {
	if e.searcher == nil {
		return ErrRetrievalUnavailable
	}
	ix, ok := e.searcher.(vector.Indexer)
	if !ok {
		return ErrIndexUnsupported
	}
	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	if nodeID != "" {
		md[vector.BridgeField] = nodeID
	}
	return ix.Upsert(ctx, id, content, md)
}

// Health pings the graph store, the pending link store and the vector
// searcher. Only the graph store is critical; the others degrade the result.
func (e *Engine) Health(ctx context.Context) health.Status {
	return health.Combine(
		health.PingCheck(ctx, "graph store", pinger(e.store), true),
		health.PingCheck(ctx, "pending store", pinger(e.pending), false),
		health.PingCheck(ctx, "vector searcher", pinger(e.searcher), false),
	)
}

// pinger returns v as a health.Pinger, or nil when it cannot be pinged.
func pinger(v any) health.Pinger {
	if p, ok := v.(health.Pinger); ok {
		return p
	}
	return nil
}

// Close releases the store and every connection the engine opened. It is
// safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.store != nil {
			if err := e.store.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("closing graph store: %w", err))
			}
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			c := e.closers[i]
			if err := c.closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
			}
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
