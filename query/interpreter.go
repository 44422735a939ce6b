package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// DefaultMaxRows is the row cap used when none is configured.
const DefaultMaxRows = 1000

// Graph is the read access the interpreter needs. memory.Store implements it.
type Graph interface {
	Node(id string) *graph.Node
	Nodes(t schema.NodeType) []*graph.Node
	Neighbors(id string, rel schema.RelationType, dir graph.Direction) []graph.Neighbor
	Walk(startID string, rels []schema.RelationType, depth int, dir graph.Direction) []graph.Reached
	Path(fromID, toID string, maxDepth int) []string
}

// Result holds the rows of one query.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	// Truncated is set when the row cap dropped rows.
	Truncated bool `json:"truncated"`
	// TotalRows is the row count before the cap, after LIMIT.
	TotalRows int `json:"total_rows"`
}

// Interpreter executes query text against a Graph.
type Interpreter struct {
	graph   Graph
	maxRows int
	logger  *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxRows sets the row cap. Zero or less disables it.
func WithMaxRows(n int) Option {
	return func(in *Interpreter) { in.maxRows = n }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = logger }
}

// New creates an interpreter over g.
func New(g Graph, opts ...Option) *Interpreter {
	in := &Interpreter{graph: g, maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = slog.Default()
	}
	return in
}

// Execute parses and runs text. On a parse error it returns an empty result
// together with a *ParseError.
func (in *Interpreter) Execute(ctx context.Context, text string, params map[string]any) (*Result, error) {
	stmt, err := Parse(text)
	if err != nil {
		in.logger.Error("query parse failed", "error", err, "query", text)
		return emptyResult(), err
	}
	return in.Run(ctx, stmt, params)
}

// Run executes a parsed statement.
func (in *Interpreter) Run(ctx context.Context, stmt *Statement, params map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return emptyResult(), err
	}

	var (
		res *Result
		err error
	)
	switch stmt.Kind {
	case KindMatch:
		res, err = in.runMatch(ctx, stmt.Match, params)
	case KindTraverse:
		res, err = in.runTraverse(stmt.Traverse, params)
	case KindPath:
		res, err = in.runPath(stmt.Path, params)
	default:
		err = &ParseError{Msg: fmt.Sprintf("unsupported statement %v", stmt.Kind)}
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			in.logger.Error("query parse failed", "error", err)
		}
		return emptyResult(), err
	}

	res.TotalRows = len(res.Rows)
	if in.maxRows > 0 && len(res.Rows) > in.maxRows {
		in.logger.Warn("query result truncated", "rows", len(res.Rows), "max_rows", in.maxRows)
		res.Rows = res.Rows[:in.maxRows]
		res.Truncated = true
	}
	in.logger.Debug("query executed", "kind", stmt.Kind.String(), "rows", len(res.Rows))
	return res, nil
}

func emptyResult() *Result {
	return &Result{Rows: []map[string]any{}}
}

func (in *Interpreter) runMatch(ctx context.Context, m *MatchClause, params map[string]any) (*Result, error) {
	var (
		conds []condition
		logic Logic
	)
	if m.Where != nil {
		logic = m.Where.Logic
		for _, c := range m.Where.Conditions {
			v, err := c.Right.resolve(params)
			if err != nil {
				return nil, &ParseError{Msg: err.Error()}
			}
			conds = append(conds, condition{left: c.Left, op: c.Op, right: v})
		}
	}

	primary := m.Nodes[0]
	var matched []binding
	for _, n := range in.graph.Nodes(primary.Type()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := binding{}
		if primary.Var != "" {
			b[primary.Var] = n.Record()
		}
		if in.bind(m, 0, n, b, logic, conds) {
			matched = append(matched, b)
		}
	}

	var res *Result
	if m.HasAggregate() {
		res = aggregateRows(m, matched)
	} else {
		res = projectRows(m, matched)
	}
	if m.Limit >= 0 && len(res.Rows) > m.Limit {
		res.Rows = res.Rows[:m.Limit]
	}
	return res, nil
}

// bind extends b along relationship pattern i onwards, depth first. It stops
// at the first complete binding that satisfies the WHERE clause and leaves
// it in b.
func (in *Interpreter) bind(m *MatchClause, i int, cur *graph.Node, b binding, logic Logic, conds []condition) bool {
	if i == len(m.Rels) {
		return matches(logic, conds, b)
	}

	rel, next := m.Rels[i], m.Nodes[i+1]
	for _, nb := range in.graph.Neighbors(cur.ID, rel.Type, rel.Direction) {
		target := in.graph.Node(nb.ID)
		if target == nil {
			continue
		}
		if next.Label != "" && target.Type != next.Type() {
			continue
		}
		if next.Var != "" {
			b[next.Var] = target.Record()
		}
		if rel.Var != "" {
			b[rel.Var] = relRecord(nb)
		}
		if in.bind(m, i+1, target, b, logic, conds) {
			return true
		}
		delete(b, next.Var)
		delete(b, rel.Var)
	}
	return false
}

func relRecord(nb graph.Neighbor) record {
	rec := make(record, len(nb.Properties)+2)
	for k, v := range nb.Properties {
		rec[k] = v
	}
	rec["type"] = nb.RelType.String()
	rec["direction"] = string(nb.Direction)
	return rec
}

func projectRows(m *MatchClause, matched []binding) *Result {
	res := &Result{Rows: make([]map[string]any, 0, len(matched))}

	star := len(m.Return) == 1 && m.Return[0].Star
	if star {
		res.Columns = m.Vars()
	} else {
		for _, item := range m.Return {
			res.Columns = append(res.Columns, item.Column())
		}
	}

	for _, b := range matched {
		row := make(map[string]any, len(res.Columns))
		if star {
			for _, v := range res.Columns {
				if rec, ok := b[v]; ok {
					row[v] = map[string]any(rec)
				}
			}
		} else {
			for _, item := range m.Return {
				v, _ := b.lookup(item.Ref)
				row[item.Column()] = v
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func aggregateRows(m *MatchClause, matched []binding) *Result {
	res := &Result{Rows: []map[string]any{}}

	var buckets [][]binding
	keyCol := ""
	if m.GroupBy != nil {
		buckets = group(*m.GroupBy, matched)
		keyCol = m.GroupBy.String()
		for _, item := range m.Return {
			if item.Agg == AggNone && item.Ref == *m.GroupBy {
				keyCol = ""
			}
		}
		if keyCol != "" {
			res.Columns = append(res.Columns, keyCol)
		}
	} else {
		buckets = [][]binding{matched}
	}
	for _, item := range m.Return {
		res.Columns = append(res.Columns, item.Column())
	}

	for _, bucket := range buckets {
		row := make(map[string]any, len(res.Columns))
		if keyCol != "" {
			row[keyCol], _ = bucket[0].lookup(*m.GroupBy)
		}
		for _, item := range m.Return {
			if item.Agg == AggNone {
				row[item.Column()], _ = bucket[0].lookup(item.Ref)
				continue
			}
			row[item.Column()] = aggregate(item.Agg, item.Ref, bucket)
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func (in *Interpreter) runTraverse(t *TraverseClause, params map[string]any) (*Result, error) {
	from, err := resolveID(t.From, params)
	if err != nil {
		return nil, err
	}

	reached := in.graph.Walk(from, t.Rels, t.Depth, graph.Outgoing)
	res := &Result{Columns: []string{"node", "depth"}, Rows: make([]map[string]any, 0, len(reached))}
	for _, r := range reached {
		res.Rows = append(res.Rows, map[string]any{"node": r.Node.Record(), "depth": r.Depth})
	}
	return res, nil
}

func (in *Interpreter) runPath(p *PathClause, params map[string]any) (*Result, error) {
	from, err := resolveID(p.From, params)
	if err != nil {
		return nil, err
	}
	to, err := resolveID(p.To, params)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: []string{"path", "length"}, Rows: []map[string]any{}}
	if path := in.graph.Path(from, to, p.MaxDepth); path != nil {
		res.Rows = append(res.Rows, map[string]any{"path": path, "length": len(path) - 1})
	}
	return res, nil
}

func resolveID(o Operand, params map[string]any) (string, error) {
	v, err := o.resolve(params)
	if err != nil {
		return "", &ParseError{Msg: err.Error()}
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}
