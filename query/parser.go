package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// Parse parses query text into a Statement. Keywords are case-insensitive.
//
//	MATCH (m:Message)-[:IN_CHANNEL]->(c:Channel) WHERE c.name = $channel RETURN m
//	MATCH (r:Receipt) RETURN r.vendor, SUM(r.total) AS total GROUP BY r.vendor LIMIT 10
//	TRAVERSE FROM "m1" FOLLOW [SENT_BY, IN_CHANNEL] DEPTH 2 RETURN nodes
//	PATH FROM "p1" TO "p2" MAX_DEPTH 4 RETURN path
func Parse(text string) (*Statement, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	var stmt *Statement
	switch cur := p.current(); {
	case cur.is("MATCH"):
		stmt, err = p.parseMatch()
	case cur.is("TRAVERSE"):
		stmt, err = p.parseTraverse()
	case cur.is("PATH"):
		stmt, err = p.parsePath()
	case cur.typ == tokenEOF:
		return nil, &ParseError{Pos: cur.pos, Msg: "empty query"}
	default:
		return nil, p.errorf("expected MATCH, TRAVERSE or PATH, got %q", cur.value)
	}
	if err != nil {
		return nil, err
	}
	if cur := p.current(); cur.typ != tokenEOF {
		return nil, p.errorf("unexpected %q after end of query", cur.value)
	}
	return stmt, nil
}

// parser implements a recursive descent parser over the token stream.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() token {
	if p.pos+1 >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *parser) advance() token {
	t := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Pos: p.current().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(typ tokenType) (token, error) {
	if cur := p.current(); cur.typ != typ {
		return token{}, p.errorf("expected %v, got %s", typ, describe(cur))
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.current().is(kw) {
		return p.errorf("expected %s, got %s", kw, describe(p.current()))
	}
	p.advance()
	return nil
}

// acceptKeyword consumes kw when it is next.
func (p *parser) acceptKeyword(kw string) bool {
	if p.current().is(kw) {
		p.advance()
		return true
	}
	return false
}

func describe(t token) string {
	if t.typ == tokenEOF {
		return "end of query"
	}
	return fmt.Sprintf("%q", t.value)
}

func (p *parser) parseInt(what string) (int, error) {
	t, err := p.expect(tokenNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t.value)
	if err != nil || n < 0 {
		return 0, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("%s must be a non-negative integer, got %q", what, t.value)}
	}
	return n, nil
}

func (p *parser) parseMatch() (*Statement, error) {
	p.advance() // MATCH
	m := &MatchClause{Limit: -1}

	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	m.Nodes = append(m.Nodes, node)

	for p.current().typ == tokenDash || p.current().typ == tokenLT {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		m.Rels = append(m.Rels, rel)
		m.Nodes = append(m.Nodes, node)
	}

	vars := make(map[string]bool)
	for _, v := range m.Vars() {
		if vars[v] {
			return nil, p.errorf("variable %q is bound more than once", v)
		}
		vars[v] = true
	}

	if p.acceptKeyword("WHERE") {
		if m.Where, err = p.parseWhere(vars); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	if m.Return, err = p.parseReturn(vars); err != nil {
		return nil, err
	}

	if p.acceptKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		ref, err := p.parseFieldRef(vars, true)
		if err != nil {
			return nil, err
		}
		m.GroupBy = &ref
	}

	if p.acceptKeyword("LIMIT") {
		if m.Limit, err = p.parseInt("LIMIT"); err != nil {
			return nil, err
		}
	}

	if err := p.checkAggregation(m); err != nil {
		return nil, err
	}
	return &Statement{Kind: KindMatch, Match: m}, nil
}

// checkAggregation rejects projections that mix aggregates with plain
// fields other than the GROUP BY key.
func (p *parser) checkAggregation(m *MatchClause) error {
	if !m.HasAggregate() {
		if m.GroupBy != nil {
			return p.errorf("GROUP BY requires an aggregation in RETURN")
		}
		return nil
	}
	for _, item := range m.Return {
		if item.Agg != AggNone {
			continue
		}
		if item.Star || m.GroupBy == nil || item.Ref != *m.GroupBy {
			return p.errorf("%s must be aggregated or be the GROUP BY key", item.Column())
		}
	}
	return nil
}

func (p *parser) parseNodePattern() (NodePattern, error) {
	var n NodePattern
	if _, err := p.expect(tokenLParen); err != nil {
		return n, err
	}
	if p.current().typ == tokenIdent {
		n.Var = p.advance().value
	}
	if p.current().typ == tokenColon {
		p.advance()
		t, err := p.expect(tokenIdent)
		if err != nil {
			return n, err
		}
		n.Label = t.value
	}
	_, err := p.expect(tokenRParen)
	return n, err
}

func (p *parser) parseRelPattern() (RelPattern, error) {
	var r RelPattern
	start := p.current()

	incoming := false
	if p.current().typ == tokenLT {
		p.advance()
		incoming = true
	}
	if _, err := p.expect(tokenDash); err != nil {
		return r, err
	}
	if _, err := p.expect(tokenLBracket); err != nil {
		return r, err
	}
	if p.current().typ == tokenIdent {
		r.Var = p.advance().value
	}
	if p.current().typ == tokenColon {
		p.advance()
		t, err := p.expect(tokenIdent)
		if err != nil {
			return r, err
		}
		r.Type = schema.RelationType(strings.ToUpper(t.value))
	}
	if _, err := p.expect(tokenRBracket); err != nil {
		return r, err
	}
	if _, err := p.expect(tokenDash); err != nil {
		return r, err
	}
	outgoing := false
	if p.current().typ == tokenGT {
		p.advance()
		outgoing = true
	}

	switch {
	case incoming && outgoing:
		return r, &ParseError{Pos: start.pos, Msg: "relationship cannot point both ways"}
	case incoming:
		r.Direction = graph.Incoming
	case outgoing:
		r.Direction = graph.Outgoing
	default:
		r.Direction = graph.Both
	}
	return r, nil
}

// parseFieldRef parses "var.field", or a bare "var" unless needField is set.
func (p *parser) parseFieldRef(vars map[string]bool, needField bool) (FieldRef, error) {
	t, err := p.expect(tokenIdent)
	if err != nil {
		return FieldRef{}, err
	}
	if !vars[t.value] {
		return FieldRef{}, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unknown variable %q", t.value)}
	}
	ref := FieldRef{Var: t.value}
	if p.current().typ == tokenDot {
		p.advance()
		f, err := p.expect(tokenIdent)
		if err != nil {
			return FieldRef{}, err
		}
		ref.Field = f.value
	} else if needField {
		return FieldRef{}, p.errorf("expected '.' and a property name after %q", t.value)
	}
	return ref, nil
}

func (p *parser) parseWhere(vars map[string]bool) (*Where, error) {
	w := &Where{}
	var joiner string
	for {
		cond, err := p.parseCondition(vars)
		if err != nil {
			return nil, err
		}
		w.Conditions = append(w.Conditions, cond)

		cur := p.current()
		var next string
		switch {
		case cur.is("AND"):
			next = "AND"
		case cur.is("OR"):
			next = "OR"
		default:
			return w, nil
		}
		if joiner != "" && joiner != next {
			return nil, p.errorf("cannot mix AND and OR in one WHERE clause")
		}
		joiner = next
		if next == "OR" {
			w.Logic = LogicOr
		}
		p.advance()
	}
}

func (p *parser) parseCondition(vars map[string]bool) (Condition, error) {
	var c Condition
	left, err := p.parseFieldRef(vars, true)
	if err != nil {
		return c, err
	}
	c.Left = left

	if c.Op, err = p.parseCompareOp(); err != nil {
		return c, err
	}
	if c.Right, err = p.parseOperand(); err != nil {
		return c, err
	}
	return c, nil
}

func (p *parser) parseCompareOp() (CompareOp, error) {
	cur := p.current()
	switch cur.typ {
	case tokenEQ:
		p.advance()
		return OpEq, nil
	case tokenNE:
		p.advance()
		return OpNe, nil
	case tokenLT:
		p.advance()
		return OpLt, nil
	case tokenLE:
		p.advance()
		return OpLte, nil
	case tokenGT:
		p.advance()
		return OpGt, nil
	case tokenGE:
		p.advance()
		return OpGte, nil
	}

	switch {
	case cur.is("CONTAINS"):
		p.advance()
		return OpContains, nil
	case cur.is("IN"):
		p.advance()
		return OpIn, nil
	case cur.is("STARTS_WITH"):
		p.advance()
		return OpStartsWith, nil
	case cur.is("ENDS_WITH"):
		p.advance()
		return OpEndsWith, nil
	case cur.is("STARTS"), cur.is("ENDS"):
		p.advance()
		if err := p.expectKeyword("WITH"); err != nil {
			return 0, err
		}
		if cur.is("STARTS") {
			return OpStartsWith, nil
		}
		return OpEndsWith, nil
	}
	return 0, p.errorf("expected comparison operator, got %s", describe(cur))
}

func (p *parser) parseOperand() (Operand, error) {
	if p.current().typ == tokenParam {
		return Operand{Param: p.advance().value}, nil
	}
	v, err := p.parseValue()
	return Operand{Value: v}, err
}

// parseValue parses a literal: string, number, boolean, null or list.
// Integers become int64 and other numbers float64.
func (p *parser) parseValue() (any, error) {
	cur := p.current()
	switch {
	case cur.typ == tokenString:
		p.advance()
		return cur.value, nil
	case cur.typ == tokenNumber:
		p.advance()
		return parseNumber(cur)
	case cur.typ == tokenDash && p.peek().typ == tokenNumber:
		p.advance()
		n, err := parseNumber(p.advance())
		if err != nil {
			return nil, err
		}
		if i, ok := n.(int64); ok {
			return -i, nil
		}
		return -n.(float64), nil
	case cur.is("true"):
		p.advance()
		return true, nil
	case cur.is("false"):
		p.advance()
		return false, nil
	case cur.is("null"):
		p.advance()
		return nil, nil
	case cur.typ == tokenLBracket:
		p.advance()
		list := []any{}
		if p.current().typ == tokenRBracket {
			p.advance()
			return list, nil
		}
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			list = append(list, v)
			if p.current().typ == tokenComma {
				p.advance()
				continue
			}
			if _, err := p.expect(tokenRBracket); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
	return nil, p.errorf("expected a value, got %s", describe(cur))
}

func parseNumber(t token) (any, error) {
	if !strings.Contains(t.value, ".") {
		if i, err := strconv.ParseInt(t.value, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(t.value, 64)
	if err != nil {
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("invalid number %q", t.value)}
	}
	return f, nil
}

func (p *parser) parseReturn(vars map[string]bool) ([]ReturnItem, error) {
	if p.current().typ == tokenStar {
		p.advance()
		return []ReturnItem{{Star: true}}, nil
	}

	var items []ReturnItem
	for {
		item, err := p.parseReturnItem(vars)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.current().typ != tokenComma {
			return items, nil
		}
		p.advance()
	}
}

func (p *parser) parseReturnItem(vars map[string]bool) (ReturnItem, error) {
	var item ReturnItem
	cur := p.current()

	agg, isAgg := aggNames[strings.ToUpper(cur.value)]
	if cur.typ == tokenIdent && isAgg && p.peek().typ == tokenLParen {
		p.advance()
		p.advance()
		item.Agg = agg
		if p.current().typ == tokenStar {
			if agg != AggCount {
				return item, p.errorf("%s(*) is not supported; name a property", agg)
			}
			p.advance()
			item.CountAll = true
		} else {
			ref, err := p.parseFieldRef(vars, agg != AggCount)
			if err != nil {
				return item, err
			}
			item.Ref = ref
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return item, err
		}
	} else {
		ref, err := p.parseFieldRef(vars, false)
		if err != nil {
			return item, err
		}
		item.Ref = ref
	}

	if p.acceptKeyword("AS") {
		alias, err := p.expect(tokenIdent)
		if err != nil {
			return item, err
		}
		item.Alias = alias.value
	}
	return item, nil
}

func (p *parser) parseTraverse() (*Statement, error) {
	p.advance() // TRAVERSE
	t := &TraverseClause{}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseID()
	if err != nil {
		return nil, err
	}
	t.From = from

	if p.acceptKeyword("FOLLOW") {
		if t.Rels, err = p.parseRelList(); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("DEPTH"); err != nil {
		return nil, err
	}
	if t.Depth, err = p.parseInt("DEPTH"); err != nil {
		return nil, err
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("nodes"); err != nil {
		return nil, err
	}
	return &Statement{Kind: KindTraverse, Traverse: t}, nil
}

// parseRelList parses "[A, B]", "[]" or a single bare type.
func (p *parser) parseRelList() ([]schema.RelationType, error) {
	if p.current().typ == tokenIdent {
		return []schema.RelationType{schema.RelationType(strings.ToUpper(p.advance().value))}, nil
	}
	if _, err := p.expect(tokenLBracket); err != nil {
		return nil, err
	}
	var rels []schema.RelationType
	for p.current().typ != tokenRBracket {
		t, err := p.expect(tokenIdent)
		if err != nil {
			return nil, err
		}
		rels = append(rels, schema.RelationType(strings.ToUpper(t.value)))
		if p.current().typ == tokenComma {
			p.advance()
		} else if p.current().typ != tokenRBracket {
			return nil, p.errorf("expected ',' or ']', got %s", describe(p.current()))
		}
	}
	p.advance()
	return rels, nil
}

func (p *parser) parsePath() (*Statement, error) {
	p.advance() // PATH
	path := &PathClause{}
	var err error

	if err = p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if path.From, err = p.parseID(); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("TO"); err != nil {
		return nil, err
	}
	if path.To, err = p.parseID(); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("MAX_DEPTH"); err != nil {
		return nil, err
	}
	if path.MaxDepth, err = p.parseInt("MAX_DEPTH"); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("path"); err != nil {
		return nil, err
	}
	return &Statement{Kind: KindPath, Path: path}, nil
}

// parseID parses a node id: a quoted string, a $parameter or a bare word.
func (p *parser) parseID() (Operand, error) {
	switch cur := p.current(); cur.typ {
	case tokenString, tokenIdent:
		p.advance()
		return Operand{Value: cur.value}, nil
	case tokenParam:
		p.advance()
		return Operand{Param: cur.value}, nil
	default:
		return Operand{}, p.errorf("expected a node id, got %s", describe(cur))
	}
}
