package query

import (
	"fmt"
	"strings"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// Kind is the statement form.
type Kind int

const (
	KindMatch Kind = iota
	KindTraverse
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "MATCH"
	case KindTraverse:
		return "TRAVERSE"
	case KindPath:
		return "PATH"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Statement is a parsed query. Exactly one of Match, Traverse and Path is
// set, according to Kind.
type Statement struct {
	Kind     Kind
	Match    *MatchClause
	Traverse *TraverseClause
	Path     *PathClause
}

// NodePattern is "(var:Label)". Both parts are optional.
type NodePattern struct {
	Var   string
	Label string
}

// Type returns the node type the label names, or "" for any type.
func (p NodePattern) Type() schema.NodeType {
	return schema.NodeType(strings.ToLower(p.Label))
}

// RelPattern is "-[var:TYPE]->", "<-[var:TYPE]-" or "-[var:TYPE]-".
type RelPattern struct {
	Var       string
	Type      schema.RelationType
	Direction graph.Direction
}

// MatchClause is the MATCH form. Rels[i] connects Nodes[i] to Nodes[i+1].
type MatchClause struct {
	Nodes   []NodePattern
	Rels    []RelPattern
	Where   *Where
	Return  []ReturnItem
	GroupBy *FieldRef
	// Limit is -1 when the query has no LIMIT.
	Limit int
}

// Vars returns the named pattern variables in pattern order.
func (m *MatchClause) Vars() []string {
	var vars []string
	for i, n := range m.Nodes {
		if n.Var != "" {
			vars = append(vars, n.Var)
		}
		if i < len(m.Rels) && m.Rels[i].Var != "" {
			vars = append(vars, m.Rels[i].Var)
		}
	}
	return vars
}

// HasAggregate reports whether any return item aggregates.
func (m *MatchClause) HasAggregate() bool {
	for _, item := range m.Return {
		if item.Agg != AggNone {
			return true
		}
	}
	return false
}

// FieldRef is "var.field", or just "var" when Field is empty.
type FieldRef struct {
	Var   string
	Field string
}

func (f FieldRef) String() string {
	if f.Field == "" {
		return f.Var
	}
	return f.Var + "." + f.Field
}

// Logic joins the conditions of a WHERE clause.
type Logic int

const (
	LogicAnd Logic = iota
	LogicOr
)

// Where is a flat list of conditions joined by one operator.
type Where struct {
	Logic      Logic
	Conditions []Condition
}

// CompareOp is a WHERE comparison.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpContains
	OpStartsWith
	OpEndsWith
	OpIn
)

func (o CompareOp) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpContains:
		return "CONTAINS"
	case OpStartsWith:
		return "STARTS_WITH"
	case OpEndsWith:
		return "ENDS_WITH"
	case OpIn:
		return "IN"
	default:
		return fmt.Sprintf("CompareOp(%d)", int(o))
	}
}

// Condition is "var.field OP operand".
type Condition struct {
	Left  FieldRef
	Op    CompareOp
	Right Operand
}

// Operand is a literal value or a $parameter.
type Operand struct {
	Value any
	Param string
}

// resolve returns the operand's value, looking parameters up in params.
func (o Operand) resolve(params map[string]any) (any, error) {
	if o.Param == "" {
		return o.Value, nil
	}
	v, ok := params[o.Param]
	if !ok {
		return nil, fmt.Errorf("missing parameter $%s", o.Param)
	}
	return v, nil
}

// AggFunc is an aggregation function.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

var aggNames = map[string]AggFunc{
	"COUNT": AggCount,
	"SUM":   AggSum,
	"AVG":   AggAvg,
	"MIN":   AggMin,
	"MAX":   AggMax,
}

func (a AggFunc) String() string {
	for name, fn := range aggNames {
		if fn == a {
			return name
		}
	}
	return ""
}

// ReturnItem is one RETURN projection.
type ReturnItem struct {
	// Star is RETURN *.
	Star bool
	Ref  FieldRef
	Agg  AggFunc
	// CountAll is COUNT(*).
	CountAll bool
	Alias    string
}

// Column returns the result column name.
func (r ReturnItem) Column() string {
	if r.Alias != "" {
		return r.Alias
	}
	if r.Agg != AggNone {
		arg := r.Ref.String()
		if r.CountAll {
			arg = "*"
		}
		return fmt.Sprintf("%s(%s)", r.Agg, arg)
	}
	return r.Ref.String()
}

// TraverseClause is "TRAVERSE FROM id FOLLOW [...] DEPTH n RETURN nodes".
type TraverseClause struct {
	From Operand
	// Rels is empty when every relationship type is followed.
	Rels  []schema.RelationType
	Depth int
}

// PathClause is "PATH FROM id TO id MAX_DEPTH n RETURN path".
type PathClause struct {
	From     Operand
	To       Operand
	MaxDepth int
}
