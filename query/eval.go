package query

import (
	"reflect"
	"strings"
	"time"

	"github.com/zero-day-ai/kgraph/schema"
)

// record is one bound pattern variable: a node record or a relationship's
// properties plus its type.
type record map[string]any

// binding maps pattern variables to records.
type binding map[string]record

// condition is a Condition with its operand resolved.
type condition struct {
	left  FieldRef
	op    CompareOp
	right any
}

func (b binding) lookup(ref FieldRef) (any, bool) {
	rec, ok := b[ref.Var]
	if !ok {
		return nil, false
	}
	if ref.Field == "" {
		return map[string]any(rec), true
	}
	v, ok := rec[ref.Field]
	return v, ok
}

// matches evaluates the WHERE clause. A condition on a missing property is
// false.
func matches(logic Logic, conds []condition, b binding) bool {
	if len(conds) == 0 {
		return true
	}
	for _, c := range conds {
		v, ok := b.lookup(c.left)
		hit := ok && compare(c.op, v, c.right)
		if logic == LogicOr && hit {
			return true
		}
		if logic == LogicAnd && !hit {
			return false
		}
	}
	return logic == LogicAnd
}

func compare(op CompareOp, left, right any) bool {
	switch op {
	case OpEq:
		return equal(left, right)
	case OpNe:
		return !equal(left, right)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := order(left, right)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpContains:
		if s, ok := left.(string); ok {
			sub, ok := right.(string)
			return ok && strings.Contains(s, sub)
		}
		return member(right, left)
	case OpStartsWith:
		s, ok1 := left.(string)
		prefix, ok2 := right.(string)
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	case OpEndsWith:
		s, ok1 := left.(string)
		suffix, ok2 := right.(string)
		return ok1 && ok2 && strings.HasSuffix(s, suffix)
	case OpIn:
		return member(left, right)
	}
	return false
}

// member reports whether v equals an element of list. Non-list values
// contain nothing.
func member(v, list any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(v, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// equal compares numbers by value across int and float, times against ISO
// strings, and everything else structurally.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, tb, ok := asTimes(a, b); ok {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// order returns -1, 0 or 1 for comparable pairs: numbers, strings, and
// times (a time compares with an ISO-8601 string).
func order(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ta, tb, ok := asTimes(a, b); ok {
		return ta.Compare(tb), true
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if ok1 && ok2 {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// asTimes converts the pair to times when at least one side is a time.Time
// and the other is a time or a parseable date string.
func asTimes(a, b any) (time.Time, time.Time, bool) {
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if !aIsTime && !bIsTime {
		return time.Time{}, time.Time{}, false
	}
	ta, err := schema.ParseDateTime(a)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	tb, err := schema.ParseDateTime(b)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return ta, tb, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
