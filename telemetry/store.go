package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// InstrumentationName names the tracer and meter.
const InstrumentationName = "github.com/zero-day-ai/kgraph"

// Metric names.
const (
	MetricOperations = "kgraph.store.operations"
	MetricDuration   = "kgraph.store.duration"
)

// Outcome values recorded on every operation.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Store decorates a graph.Store with one span and two metric points per
// call. Nil tracer or meter fall back to no-op implementations.
type Store struct {
	inner    graph.Store
	tracer   trace.Tracer
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

var _ graph.Store = (*Store)(nil)

// NewStore wraps inner.
func NewStore(inner graph.Store, tracer trace.Tracer, meter metric.Meter) (*Store, error) {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(InstrumentationName)
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}

	ops, err := meter.Int64Counter(MetricOperations,
		metric.WithDescription("Number of graph store operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Graph store operation duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Store{inner: inner, tracer: tracer, ops: ops, duration: duration}, nil
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() graph.Store {
	return s.inner
}

// call is one in-flight operation.
type call struct {
	s     *Store
	op    string
	span  trace.Span
	start time.Time
}

func (s *Store) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, *call) {
	ctx, span := s.tracer.Start(ctx, "kgraph.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	return ctx, &call{s: s, op: op, span: span, start: time.Now()}
}

// end records the outcome. empty marks a false or nil result, which is how
// stores report backend failures.
func (c *call) end(ctx context.Context, empty bool, err error) {
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	case empty:
		outcome = OutcomeEmpty
	}
	c.span.SetAttributes(attribute.String("kgraph.outcome", outcome))
	c.span.End()

	opts := metric.WithAttributes(
		attribute.String("op", c.op),
		attribute.String("outcome", outcome),
	)
	c.s.ops.Add(ctx, 1, opts)
	c.s.duration.Record(ctx, float64(time.Since(c.start).Microseconds())/1000, opts)
}

func nodeID(id string) attribute.KeyValue { return attribute.String("kgraph.node_id", id) }

func relType(rel schema.RelationType) attribute.KeyValue {
	return attribute.String("kgraph.rel_type", rel.String())
}

func relTypes(rels []schema.RelationType) attribute.KeyValue {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.String()
	}
	return attribute.StringSlice("kgraph.rel_types", out)
}

func (s *Store) AddNode(ctx context.Context, id string, t schema.NodeType, props map[string]any) (bool, error) {
	ctx, c := s.begin(ctx, "add_node", nodeID(id), attribute.String("kgraph.node_type", t.String()))
	ok, err := s.inner.AddNode(ctx, id, t, props)
	c.end(ctx, !ok, err)
	return ok, err
}

func (s *Store) AddRelationship(ctx context.Context, fromID, toID string, rel schema.RelationType, props map[string]any) (bool, error) {
	ctx, c := s.begin(ctx, "add_relationship",
		attribute.String("kgraph.from_id", fromID),
		attribute.String("kgraph.to_id", toID),
		relType(rel))
	ok, err := s.inner.AddRelationship(ctx, fromID, toID, rel, props)
	c.end(ctx, !ok, err)
	return ok, err
}

func (s *Store) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	ctx, c := s.begin(ctx, "get_node", nodeID(id))
	n, err := s.inner.GetNode(ctx, id)
	c.end(ctx, n == nil, err)
	return n, err
}

func (s *Store) GetNodesBatch(ctx context.Context, ids []string, t schema.NodeType) (map[string]*graph.Node, error) {
	ctx, c := s.begin(ctx, "get_nodes_batch",
		attribute.Int("kgraph.ids", len(ids)),
		attribute.String("kgraph.node_type", t.String()))
	nodes, err := s.inner.GetNodesBatch(ctx, ids, t)
	c.span.SetAttributes(attribute.Int("kgraph.found", len(nodes)))
	c.end(ctx, len(nodes) == 0, err)
	return nodes, err
}

func (s *Store) GetNeighbors(ctx context.Context, id string, rel schema.RelationType, dir graph.Direction) ([]graph.Neighbor, error) {
	ctx, c := s.begin(ctx, "get_neighbors", nodeID(id), relType(rel),
		attribute.String("kgraph.direction", string(dir)))
	nbs, err := s.inner.GetNeighbors(ctx, id, rel, dir)
	c.end(ctx, len(nbs) == 0, err)
	return nbs, err
}

func (s *Store) GetNeighborsBatch(ctx context.Context, ids []string, opts graph.NeighborOptions) (map[string][]graph.Neighbor, error) {
	ctx, c := s.begin(ctx, "get_neighbors_batch",
		attribute.Int("kgraph.ids", len(ids)),
		relTypes(opts.RelTypes),
		attribute.String("kgraph.direction", string(opts.Direction)))
	out, err := s.inner.GetNeighborsBatch(ctx, ids, opts)
	c.end(ctx, len(out) == 0, err)
	return out, err
}

func (s *Store) Traverse(ctx context.Context, startID string, rels []schema.RelationType, depth int, dir graph.Direction) ([]*graph.Node, error) {
	ctx, c := s.begin(ctx, "traverse", nodeID(startID), relTypes(rels),
		attribute.Int("kgraph.depth", depth),
		attribute.String("kgraph.direction", string(dir)))
	nodes, err := s.inner.Traverse(ctx, startID, rels, depth, dir)
	c.span.SetAttributes(attribute.Int("kgraph.found", len(nodes)))
	c.end(ctx, len(nodes) == 0, err)
	return nodes, err
}

func (s *Store) FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]string, error) {
	ctx, c := s.begin(ctx, "find_path",
		attribute.String("kgraph.from_id", fromID),
		attribute.String("kgraph.to_id", toID),
		attribute.Int("kgraph.depth", maxDepth))
	path, err := s.inner.FindPath(ctx, fromID, toID, maxDepth)
	c.end(ctx, path == nil, err)
	return path, err
}

func (s *Store) Stats(ctx context.Context) (*graph.Stats, error) {
	ctx, c := s.begin(ctx, "stats")
	st, err := s.inner.Stats(ctx)
	c.end(ctx, st == nil, err)
	return st, err
}

func (s *Store) DeleteNode(ctx context.Context, id string) (bool, error) {
	ctx, c := s.begin(ctx, "delete_node", nodeID(id))
	ok, err := s.inner.DeleteNode(ctx, id)
	c.end(ctx, !ok, err)
	return ok, err
}

func (s *Store) Clear(ctx context.Context) (bool, error) {
	ctx, c := s.begin(ctx, "clear")
	ok, err := s.inner.Clear(ctx)
	c.end(ctx, !ok, err)
	return ok, err
}

// Ping checks the inner store when it supports pinging and succeeds
// otherwise.
func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.inner.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	ctx, c := s.begin(ctx, "ping")
	err := p.Ping(ctx)
	c.end(ctx, false, err)
	return err
}

func (s *Store) Close(ctx context.Context) error {
	ctx, c := s.begin(ctx, "close")
	err := s.inner.Close(ctx)
	c.end(ctx, false, err)
	return err
}
