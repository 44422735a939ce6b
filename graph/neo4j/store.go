package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
	"github.com/zero-day-ai/kgraph/workpool"
)

// baseLabel is carried by every node the store writes, next to its type label.
const baseLabel = "Node"

var nodeFields = []string{"id", "type", "props", "created_at"}

// Store is the graph.Store backend for Neo4j.
//
// Nodes are stored as (:Node:<Label> {id, type, props, created_at, ...scalars})
// and merged by id. Every call runs on a worker pool behind a circuit breaker;
// the store itself never retries.
type Store struct {
	client     CypherClient
	gate       *graph.Gate
	logger     *slog.Logger
	pool       *workpool.Pool
	ownsPool   bool
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time
	labels     []string
	statsDepth int
}

// Option configures a Store.
type Option func(*options)

type options struct {
	mode       graph.ValidationMode
	logger     *slog.Logger
	pool       *workpool.Pool
	workers    int
	breaker    BreakerConfig
	now        func() time.Time
	statsDepth int
}

// WithMode sets the validation mode. Default ModeWarn.
func WithMode(mode graph.ValidationMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPool runs calls on an existing pool. The store does not close it.
func WithPool(p *workpool.Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithWorkers sets the size of the store's own pool. Default 8.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// WithClock sets the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStatsDepthLimit bounds the path length Stats searches when computing
// MaxDepth. Default 10.
func WithStatsDepthLimit(n int) Option {
	return func(o *options) { o.statsDepth = n }
}

var _ graph.Store = (*Store)(nil)

// New creates a store over client validating against s.
func New(client CypherClient, s *schema.Schema, opts ...Option) *Store {
	o := options{
		mode:       graph.ModeWarn,
		workers:    8,
		breaker:    DefaultBreakerConfig(),
		now:        time.Now,
		statsDepth: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("backend", "neo4j")

	st := &Store{
		client:     client,
		gate:       graph.NewGate(s, o.mode, logger),
		logger:     logger,
		pool:       o.pool,
		breaker:    newBreaker(o.breaker, logger),
		now:        o.now,
		statsDepth: o.statsDepth,
	}
	if st.pool == nil {
		st.pool = workpool.New(workpool.Options{Concurrency: o.workers, Logger: logger})
		st.ownsPool = true
	}
	for _, t := range s.NodeTypes() {
		st.labels = append(st.labels, t.Label())
	}
	return st
}

// Mode returns the store's validation mode.
func (s *Store) Mode() graph.ValidationMode { return s.gate.Mode() }

// exec sends one call through the circuit breaker.
func (s *Store) exec(ctx context.Context, fn func(context.Context, string, map[string]any) ([]Row, error), cypher string, params map[string]any) ([]Row, error) {
	out, err := s.breaker.Execute(func() (any, error) {
		return fn(ctx, cypher, params)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := out.([]Row)
	return rows, nil
}

func (s *Store) read(ctx context.Context, cypher string, params map[string]any) ([]Row, error) {
	return workpool.Submit(ctx, s.pool, func(ctx context.Context) ([]Row, error) {
		return s.exec(ctx, s.client.Read, cypher, params)
	})
}

func (s *Store) write(ctx context.Context, cypher string, params map[string]any) ([]Row, error) {
	return workpool.Submit(ctx, s.pool, func(ctx context.Context) ([]Row, error) {
		return s.exec(ctx, s.client.Write, cypher, params)
	})
}

// AddNode validates the node and merges it by id. The node keeps its first
// creation time; its properties and type label are replaced.
func (s *Store) AddNode(ctx context.Context, id string, t schema.NodeType, props map[string]any) (bool, error) {
	const op = "AddNode"
	if err := s.gate.CheckNode(op, id, t, props); err != nil {
		return false, err
	}
	label := t.Label()
	if err := checkIdentifiers("node label", label); err != nil {
		return false, graph.NewError(op, graph.KindInvalidArgument, err)
	}

	now := s.now().UTC()
	encoded, err := encodeProps(graph.StampProps(props, t, now))
	if err != nil {
		return false, graph.NewError(op, graph.KindInvalidArgument, err)
	}
	fields := scalarFields(props)
	fields["id"] = id
	fields["type"] = t.String()
	fields["props"] = encoded

	cypher := fmt.Sprintf(`MERGE (n:%s {id: $id})
ON CREATE SET n.created_at = $created_at
WITH n, n.created_at AS created
SET n = $fields, n.created_at = created, n:%s%s
RETURN n.id AS id`, baseLabel, label, s.removeOtherLabels(label))

	rows, err := s.write(ctx, cypher, map[string]any{
		"id":         id,
		"created_at": formatTime(now),
		"fields":     fields,
	})
	if err != nil {
		s.gate.Unavailable(op, err, "node_id", id)
		return false, nil
	}
	return len(rows) > 0, nil
}

func (s *Store) removeOtherLabels(keep string) string {
	var others []string
	for _, l := range s.labels {
		if l != keep && isIdentifier(l) {
			others = append(others, l)
		}
	}
	if len(others) == 0 {
		return ""
	}
	return "\nREMOVE n:" + strings.Join(others, ":")
}

// AddRelationship merges a typed edge between two existing nodes. The
// endpoints are read in one batch first so their types can be checked.
func (s *Store) AddRelationship(ctx context.Context, fromID, toID string, rel schema.RelationType, props map[string]any) (bool, error) {
	const op = "AddRelationship"
	if err := checkIdentifiers("relationship type", string(rel)); err != nil {
		return false, graph.NewError(op, graph.KindInvalidArgument, err)
	}

	nodes, err := s.fetchNodes(ctx, []string{fromID, toID}, "")
	if err != nil {
		s.gate.Unavailable(op, err, "from_id", fromID, "to_id", toID)
		return false, nil
	}
	from, ok := nodes[fromID]
	if !ok {
		return false, s.gate.MissingEndpoint(op, fromID, toID, fromID, rel)
	}
	to, ok := nodes[toID]
	if !ok {
		return false, s.gate.MissingEndpoint(op, fromID, toID, toID, rel)
	}
	if err := s.gate.CheckRelationship(op, from, to, rel); err != nil {
		return false, err
	}

	encoded, err := encodeProps(props)
	if err != nil {
		return false, graph.NewError(op, graph.KindInvalidArgument, err)
	}

	// If an endpoint is deleted after the read above, MATCH finds nothing and
	// no edge is written.
	cypher := fmt.Sprintf(`MATCH (a:%[1]s {id: $from}), (b:%[1]s {id: $to})
MERGE (a)-[r:%[2]s]->(b)
ON CREATE SET r.created_at = $created_at
SET r.props = $props
RETURN count(r) AS created`, baseLabel, rel)

	rows, err := s.write(ctx, cypher, map[string]any{
		"from":       fromID,
		"to":         toID,
		"created_at": formatTime(s.now()),
		"props":      encoded,
	})
	if err != nil {
		s.gate.Unavailable(op, err, "from_id", fromID, "to_id", toID, "rel_type", rel)
		return false, nil
	}
	return len(rows) > 0 && toInt(rows[0]["created"]) > 0, nil
}

// GetNode returns the node or nil.
func (s *Store) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	nodes, err := s.GetNodesBatch(ctx, []string{id}, "")
	if err != nil || nodes == nil {
		return nil, err
	}
	return nodes[id], nil
}

// GetNodesBatch fetches the nodes among ids with a single query.
func (s *Store) GetNodesBatch(ctx context.Context, ids []string, t schema.NodeType) (map[string]*graph.Node, error) {
	nodes, err := s.fetchNodes(ctx, ids, t)
	if err != nil {
		s.gate.Unavailable("GetNodesBatch", err, "count", len(ids))
		return nil, nil
	}
	return nodes, nil
}

func (s *Store) fetchNodes(ctx context.Context, ids []string, t schema.NodeType) (map[string]*graph.Node, error) {
	out := make(map[string]*graph.Node, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cypher := BuildMatch("", "n") + "\nWHERE n.id IN $ids"
	params := map[string]any{"ids": ids}
	if t != "" {
		cypher += " AND n.type = $type"
		params["type"] = t.String()
	}
	cypher += "\n" + BuildReturn("n", nodeFields)

	rows, err := s.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		n, err := decodeNode(row)
		if err != nil {
			s.logger.Warn("skipping undecodable node", "error", err)
			continue
		}
		out[n.ID] = n
	}
	return out, nil
}

// GetNeighbors lists the edges of one node.
func (s *Store) GetNeighbors(ctx context.Context, id string, rel schema.RelationType, dir graph.Direction) ([]graph.Neighbor, error) {
	opts := graph.NeighborOptions{Direction: dir}
	if rel != "" {
		opts.RelTypes = []schema.RelationType{rel}
	}
	nbs, err := s.GetNeighborsBatch(ctx, []string{id}, opts)
	if err != nil || nbs == nil {
		return nil, err
	}
	return nbs[id], nil
}

// GetNeighborsBatch lists the edges of every id with a single query.
func (s *Store) GetNeighborsBatch(ctx context.Context, ids []string, opts graph.NeighborOptions) (map[string][]graph.Neighbor, error) {
	nbs, err := s.fetchNeighbors(ctx, ids, opts)
	if err != nil {
		s.gate.Unavailable("GetNeighborsBatch", err, "count", len(ids))
		return nil, nil
	}
	return nbs, nil
}

const outgoingNeighbors = `UNWIND $ids AS sid
MATCH (s:Node {id: sid})-[r]->(t:Node)
WHERE (size($rels) = 0 OR type(r) IN $rels) AND (size($types) = 0 OR t.type IN $types)
RETURN sid AS source, t.id AS id, type(r) AS rel, r.props AS props, r.created_at AS created_at, 'outgoing' AS direction`

const incomingNeighbors = `UNWIND $ids AS sid
MATCH (s:Node {id: sid})<-[r]-(t:Node)
WHERE (size($rels) = 0 OR type(r) IN $rels) AND (size($types) = 0 OR t.type IN $types)
RETURN sid AS source, t.id AS id, type(r) AS rel, r.props AS props, r.created_at AS created_at, 'incoming' AS direction`

func neighborQuery(dir graph.Direction) string {
	switch dir {
	case graph.Incoming:
		return incomingNeighbors
	case graph.Both:
		return outgoingNeighbors + "\nUNION ALL\n" + incomingNeighbors
	default:
		return outgoingNeighbors
	}
}

func (s *Store) fetchNeighbors(ctx context.Context, ids []string, opts graph.NeighborOptions) (map[string][]graph.Neighbor, error) {
	out := make(map[string][]graph.Neighbor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rels := make([]string, len(opts.RelTypes))
	for i, r := range opts.RelTypes {
		rels[i] = r.String()
	}
	types := make([]string, len(opts.TargetTypes))
	for i, t := range opts.TargetTypes {
		types[i] = t.String()
	}

	rows, err := s.read(ctx, neighborQuery(opts.Direction), map[string]any{
		"ids":   ids,
		"rels":  rels,
		"types": types,
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		source, _ := row["source"].(string)
		nb, err := decodeNeighbor(row)
		if err != nil {
			s.logger.Warn("skipping undecodable relationship", "source", source, "error", err)
			continue
		}
		out[source] = append(out[source], nb)
	}
	return out, nil
}

// Traverse runs graph.BFS with one batched neighbor query per level and one
// node query for the result.
func (s *Store) Traverse(ctx context.Context, startID string, rels []schema.RelationType, depth int, dir graph.Direction) ([]*graph.Node, error) {
	const op = "Traverse"
	expand := func(ctx context.Context, frontier []string) (map[string][]graph.Neighbor, error) {
		return s.fetchNeighbors(ctx, frontier, graph.NeighborOptions{RelTypes: rels, Direction: dir})
	}

	visits, err := graph.BFS(ctx, expand, startID, depth)
	if err != nil {
		s.gate.Unavailable(op, err, "node_id", startID)
		return nil, nil
	}
	if len(visits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(visits))
	for i, v := range visits {
		ids[i] = v.ID
	}
	nodes, err := s.fetchNodes(ctx, ids, "")
	if err != nil {
		s.gate.Unavailable(op, err, "node_id", startID)
		return nil, nil
	}

	out := make([]*graph.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// FindPath uses Cypher's shortestPath over outgoing edges of any type.
func (s *Store) FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]string, error) {
	const op = "FindPath"
	if fromID == toID {
		n, err := s.GetNode(ctx, fromID)
		if err != nil || n == nil {
			return nil, err
		}
		return []string{fromID}, nil
	}
	if maxDepth < 1 {
		return nil, nil
	}

	cypher := fmt.Sprintf(`MATCH (a:%[1]s {id: $from}), (b:%[1]s {id: $to})
MATCH p = shortestPath((a)-[*..%[2]d]->(b))
RETURN [x IN nodes(p) | x.id] AS path`, baseLabel, maxDepth)

	rows, err := s.read(ctx, cypher, map[string]any{"from": fromID, "to": toID})
	if err != nil {
		s.gate.Unavailable(op, err, "from_id", fromID, "to_id", toID)
		return nil, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}
	raw, _ := rows[0]["path"].([]any)
	path := make([]string, 0, len(raw))
	for _, v := range raw {
		id, _ := v.(string)
		path = append(path, id)
	}
	if len(path) == 0 {
		return nil, nil
	}
	return path, nil
}

const (
	nodeCountsQuery = `MATCH (n:Node) RETURN n.type AS type, count(n) AS count`
	relCountsQuery  = `MATCH (:Node)-[r]->(:Node) RETURN type(r) AS type, count(r) AS count`
)

// Stats runs the count and depth queries concurrently. MaxDepth only
// considers paths up to the configured stats depth limit.
func (s *Store) Stats(ctx context.Context) (*graph.Stats, error) {
	depthQuery := fmt.Sprintf(`MATCH (a:%[1]s), (b:%[1]s) WHERE a <> b
MATCH p = shortestPath((a)-[*..%[2]d]->(b))
RETURN max(length(p)) AS max_depth`, baseLabel, s.statsDepth)

	var nodeRows, relRows, depthRows []Row
	query := func(cypher string, dst *[]Row) func(context.Context) error {
		return func(ctx context.Context) error {
			rows, err := s.exec(ctx, s.client.Read, cypher, nil)
			*dst = rows
			return err
		}
	}
	err := s.pool.All(ctx,
		query(nodeCountsQuery, &nodeRows),
		query(relCountsQuery, &relRows),
		query(depthQuery, &depthRows),
	)
	if err != nil {
		s.gate.Unavailable("Stats", err)
		return nil, nil
	}

	st := &graph.Stats{
		NodesByType:         make(map[string]int),
		RelationshipsByType: make(map[string]int),
	}
	for _, row := range nodeRows {
		t, _ := row["type"].(string)
		n := toInt(row["count"])
		st.NodesByType[t] += n
		st.TotalNodes += n
	}
	for _, row := range relRows {
		t, _ := row["type"].(string)
		n := toInt(row["count"])
		st.RelationshipsByType[t] += n
		st.TotalRelationships += n
	}
	if len(depthRows) > 0 {
		st.MaxDepth = toInt(depthRows[0]["max_depth"])
	}
	if st.TotalNodes > 0 {
		st.AvgDegree = 2 * float64(st.TotalRelationships) / float64(st.TotalNodes)
	}
	return st, nil
}

// DeleteNode removes the node and its relationships.
func (s *Store) DeleteNode(ctx context.Context, id string) (bool, error) {
	rows, err := s.write(ctx, `MATCH (n:Node {id: $id})
WITH n, n.id AS id
DETACH DELETE n
RETURN count(id) AS deleted`, map[string]any{"id": id})
	if err != nil {
		s.gate.Unavailable("DeleteNode", err, "node_id", id)
		return false, nil
	}
	return len(rows) > 0 && toInt(rows[0]["deleted"]) > 0, nil
}

// Clear deletes every node the store manages.
func (s *Store) Clear(ctx context.Context) (bool, error) {
	if _, err := s.write(ctx, `MATCH (n:Node) DETACH DELETE n`, nil); err != nil {
		s.gate.Unavailable("Clear", err)
		return false, nil
	}
	return true, nil
}

// Close shuts down the store's pool (when it owns one) and the client.
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	if s.ownsPool {
		if err := s.pool.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.client.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ping runs a trivial read through the breaker and worker pool.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.read(ctx, "RETURN 1 AS ok", nil); err != nil {
		return graph.NewError("Ping", graph.KindBackendUnavailable, err)
	}
	return nil
}

// ExecuteCypherRead runs a read-only native query. Unlike the Store methods
// it returns backend errors to the caller.
func (s *Store) ExecuteCypherRead(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	rows, err := s.read(ctx, cypher, params)
	if err != nil {
		return nil, graph.NewError("ExecuteCypherRead", graph.KindBackendUnavailable, err)
	}
	return rows, nil
}

// FindNodes returns the nodes of type t (any type when empty) whose scalar
// properties satisfy every predicate.
func (s *Store) FindNodes(ctx context.Context, t schema.NodeType, predicates []Predicate) ([]*graph.Node, error) {
	const op = "FindNodes"
	label := ""
	if t != "" {
		label = t.Label()
	}
	if label != "" {
		if err := checkIdentifiers("node label", label); err != nil {
			return nil, graph.NewError(op, graph.KindInvalidArgument, err)
		}
	}
	for _, p := range predicates {
		if err := checkIdentifiers("property", p.Field); err != nil {
			return nil, graph.NewError(op, graph.KindInvalidArgument, err)
		}
	}

	where, params := BuildWhere(predicates, "n")
	return s.queryNodes(ctx, op, joinClauses(BuildMatch(label, "n"), where, BuildReturn("n", nodeFields)), params)
}

// Related returns the nodes one hop from id along the traversal pattern.
func (s *Store) Related(ctx context.Context, id string, t Traversal) ([]*graph.Node, error) {
	const op = "Related"
	if t.Relationship != "" {
		if err := checkIdentifiers("relationship type", t.Relationship); err != nil {
			return nil, graph.NewError(op, graph.KindInvalidArgument, err)
		}
	}
	if t.TargetLabel != "" {
		if err := checkIdentifiers("node label", t.TargetLabel); err != nil {
			return nil, graph.NewError(op, graph.KindInvalidArgument, err)
		}
	}

	cypher := joinClauses(
		fmt.Sprintf("MATCH (s:%s {id: $id})", baseLabel),
		"MATCH "+BuildTraversal(t, "s", "n"),
		"RETURN DISTINCT "+strings.TrimPrefix(BuildReturn("n", nodeFields), "RETURN "),
	)
	return s.queryNodes(ctx, op, cypher, map[string]any{"id": id})
}

func (s *Store) queryNodes(ctx context.Context, op, cypher string, params map[string]any) ([]*graph.Node, error) {
	rows, err := s.read(ctx, cypher, params)
	if err != nil {
		s.gate.Unavailable(op, err)
		return nil, nil
	}
	out := make([]*graph.Node, 0, len(rows))
	for _, row := range rows {
		n, err := decodeNode(row)
		if err != nil {
			s.logger.Warn("skipping undecodable node", "op", op, "error", err)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func joinClauses(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}
