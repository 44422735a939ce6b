package neo4j

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zero-day-ai/kgraph/graph"
)

// Op represents a comparison or filter operation in a query predicate.
type Op int

const (
	// Eq represents equality comparison (=)
	Eq Op = iota
	// Neq represents inequality comparison (<>)
	Neq
	// Lt represents less than comparison (<)
	Lt
	// Lte represents less than or equal comparison (<=)
	Lte
	// Gt represents greater than comparison (>)
	Gt
	// Gte represents greater than or equal comparison (>=)
	Gte
	// Contains represents string containment check (CONTAINS)
	Contains
	// StartsWith represents string prefix check (STARTS WITH)
	StartsWith
	// EndsWith represents string suffix check (ENDS WITH)
	EndsWith
	// In represents membership check (IN)
	In
	// IsNull represents null check (IS NULL)
	IsNull
	// IsNotNull represents non-null check (IS NOT NULL)
	IsNotNull
)

// String returns the Cypher spelling of the operation.
func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Neq:
		return "<>"
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Contains:
		return "CONTAINS"
	case StartsWith:
		return "STARTS WITH"
	case EndsWith:
		return "ENDS WITH"
	case In:
		return "IN"
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Predicate is a filter on one scalar node property.
type Predicate struct {
	Field string
	Op    Op
	// Value is ignored for IsNull and IsNotNull.
	Value any
}

// Traversal describes one relationship hop in a Cypher pattern.
type Traversal struct {
	Relationship string
	TargetLabel  string
	Direction    graph.Direction
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// isIdentifier reports whether s can be spliced into Cypher as a label,
// relationship type, alias or property key. Values always go through
// parameters; names cannot, so they are checked instead.
func isIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

func checkIdentifiers(kind string, names ...string) error {
	for _, n := range names {
		if !isIdentifier(n) {
			return fmt.Errorf("invalid %s %q", kind, n)
		}
	}
	return nil
}

// BuildMatch generates a MATCH clause for nodes with the given label.
//
//	BuildMatch("Message", "m") // MATCH (m:Node:Message)
//	BuildMatch("", "n")        // MATCH (n:Node)
func BuildMatch(label, alias string) string {
	if label == "" {
		return fmt.Sprintf("MATCH (%s:%s)", alias, baseLabel)
	}
	return fmt.Sprintf("MATCH (%s:%s:%s)", alias, baseLabel, label)
}

// BuildWhere generates a WHERE clause from predicates joined by AND.
// Values are bound as parameters $p0, $p1, ...; nothing is returned for
// an empty predicate list.
//
//	where, params := BuildWhere([]Predicate{{Field: "name", Op: Eq, Value: "general"}}, "c")
//	// WHERE c.name = $p0, {"p0": "general"}
func BuildWhere(predicates []Predicate, alias string) (string, map[string]any) {
	if len(predicates) == 0 {
		return "", nil
	}

	params := make(map[string]any)
	conditions := make([]string, 0, len(predicates))
	for i, pred := range predicates {
		paramName := fmt.Sprintf("p%d", i)
		conditions = append(conditions, buildCondition(pred, alias, paramName))
		if requiresValue(pred.Op) {
			params[paramName] = pred.Value
		}
	}
	return "WHERE " + strings.Join(conditions, " AND "), params
}

func buildCondition(pred Predicate, alias, paramName string) string {
	fieldRef := fmt.Sprintf("%s.%s", alias, pred.Field)
	switch pred.Op {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", fieldRef, pred.Op)
	case Neq, Lt, Lte, Gt, Gte, Contains, StartsWith, EndsWith, In:
		return fmt.Sprintf("%s %s $%s", fieldRef, pred.Op, paramName)
	default:
		return fmt.Sprintf("%s = $%s", fieldRef, paramName)
	}
}

func requiresValue(op Op) bool {
	return op != IsNull && op != IsNotNull
}

// BuildReturn generates a RETURN clause. With no fields the whole node is
// returned; otherwise each field is aliased to its own name.
//
//	BuildReturn("n", nil)                   // RETURN n
//	BuildReturn("n", []string{"id", "type"}) // RETURN n.id AS id, n.type AS type
func BuildReturn(alias string, fields []string) string {
	if len(fields) == 0 {
		return "RETURN " + alias
	}
	refs := make([]string, len(fields))
	for i, f := range fields {
		refs[i] = fmt.Sprintf("%s.%s AS %s", alias, f, f)
	}
	return "RETURN " + strings.Join(refs, ", ")
}

// BuildTraversal generates a relationship pattern between two aliases.
// An empty Relationship matches any type and an empty TargetLabel any node.
//
//	BuildTraversal(Traversal{Relationship: "IN_CHANNEL", TargetLabel: "Channel", Direction: graph.Outgoing}, "m", "c")
//	// (m)-[:IN_CHANNEL]->(c:Channel)
func BuildTraversal(t Traversal, fromAlias, toAlias string) string {
	rel := "[]"
	if t.Relationship != "" {
		rel = fmt.Sprintf("[:%s]", t.Relationship)
	}
	target := toAlias
	if t.TargetLabel != "" {
		target = fmt.Sprintf("%s:%s", toAlias, t.TargetLabel)
	}

	switch t.Direction {
	case graph.Incoming:
		return fmt.Sprintf("(%s)<-%s-(%s)", fromAlias, rel, target)
	case graph.Both:
		return fmt.Sprintf("(%s)-%s-(%s)", fromAlias, rel, target)
	default:
		return fmt.Sprintf("(%s)-%s->(%s)", fromAlias, rel, target)
	}
}
