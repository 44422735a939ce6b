package query_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/graph/memory"
	"github.com/zero-day-ai/kgraph/query"
	"github.com/zero-day-ai/kgraph/schema"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	t     *testing.T
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New(schema.Default(),
		memory.WithMode(graph.ModeStrict),
		memory.WithClock(func() time.Time { return testTime }))
	return &fixture{store: s, t: t}
}

func (f *fixture) node(id string, nt schema.NodeType, props map[string]any) *fixture {
	f.t.Helper()
	ok, err := f.store.AddNode(context.Background(), id, nt, props)
	require.NoError(f.t, err)
	require.True(f.t, ok)
	return f
}

func (f *fixture) link(from, to string, rel schema.RelationType) *fixture {
	f.t.Helper()
	ok, err := f.store.AddRelationship(context.Background(), from, to, rel, map[string]any{"weight": 1})
	require.NoError(f.t, err)
	require.True(f.t, ok)
	return f
}

// chat builds:
//
//	m1 "hello world" -SENT_BY-> p1, -IN_CHANNEL-> c1 (general)
//	m2 "hi back"     -SENT_BY-> p2, -IN_CHANNEL-> c1, -REPLY_TO-> m1
//	m3 "random talk" -SENT_BY-> p1, -IN_CHANNEL-> c2 (random)
//	p1 -KNOWS-> p2
//	r1 Acme 10, r2 Acme 20, r3 Bolt 30
func chat(t *testing.T) *memory.Store {
	f := newFixture(t).
		node("m1", schema.NodeTypeMessage, map[string]any{"text": "hello world", "timestamp": "2024-03-01T09:00:00Z"}).
		node("m2", schema.NodeTypeMessage, map[string]any{"text": "hi back", "timestamp": "2024-03-02T10:00:00Z"}).
		node("m3", schema.NodeTypeMessage, map[string]any{"text": "random talk", "timestamp": "2024-03-03T11:00:00Z"}).
		node("c1", schema.NodeTypeChannel, map[string]any{"name": "general"}).
		node("c2", schema.NodeTypeChannel, map[string]any{"name": "random"}).
		node("p1", schema.NodeTypePerson, map[string]any{"name": "Ada", "aliases": []any{"Countess"}}).
		node("p2", schema.NodeTypePerson, map[string]any{"name": "Grace"}).
		node("r1", schema.NodeTypeReceipt, map[string]any{"merchant": "Acme", "total": 10.0}).
		node("r2", schema.NodeTypeReceipt, map[string]any{"merchant": "Acme", "total": 20.0}).
		node("r3", schema.NodeTypeReceipt, map[string]any{"merchant": "Bolt", "total": 30.0}).
		link("m1", "p1", schema.RelSentBy).
		link("m1", "c1", schema.RelInChannel).
		link("m2", "p2", schema.RelSentBy).
		link("m2", "c1", schema.RelInChannel).
		link("m2", "m1", schema.RelReplyTo).
		link("m3", "p1", schema.RelSentBy).
		link("m3", "c2", schema.RelInChannel).
		link("p1", "p2", schema.RelKnows)
	return f.store
}

func run(t *testing.T, in *query.Interpreter, text string, params map[string]any) *query.Result {
	t.Helper()
	res, err := in.Execute(context.Background(), text, params)
	require.NoError(t, err)
	return res
}

func ids(rows []map[string]any, col string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		rec, _ := row[col].(map[string]any)
		id, _ := rec["id"].(string)
		out = append(out, id)
	}
	return out
}

func TestInterpreter_MatchChannelName(t *testing.T) {
	for _, name := range []string{"general", "random"} {
		t.Run(name, func(t *testing.T) {
			s := newFixture(t).
				node("m1", schema.NodeTypeMessage, map[string]any{"text": "...", "timestamp": "2024-03-01"}).
				node("c1", schema.NodeTypeChannel, map[string]any{"name": name}).
				link("m1", "c1", schema.RelInChannel).store

			res := run(t, query.New(s),
				`MATCH (m:Message)-[:IN_CHANNEL]->(c:Channel) WHERE c.name = "general" RETURN m`, nil)

			assert.Equal(t, []string{"m"}, res.Columns)
			if name == "general" {
				assert.Equal(t, []string{"m1"}, ids(res.Rows, "m"))
			} else {
				assert.Empty(t, res.Rows)
			}
		})
	}
}

func TestInterpreter_Sum(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `MATCH (r:Receipt) RETURN SUM(r.total) AS total`, nil)
	assert.Equal(t, []string{"total"}, res.Columns)
	assert.Equal(t, []map[string]any{{"total": 60.0}}, res.Rows)
}

func TestInterpreter_Aggregations(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `MATCH (r:Receipt) RETURN COUNT(*) AS n, AVG(r.total) AS avg, MIN(r.total) AS lo, MAX(r.total) AS hi`, nil)
	assert.Equal(t, []map[string]any{{"n": 3, "avg": 20.0, "lo": 10.0, "hi": 30.0}}, res.Rows)

	res = run(t, in, `MATCH (t:Task) RETURN COUNT(t) AS n, SUM(t.priority) AS s, AVG(t.priority) AS a, MAX(t.priority) AS m`, nil)
	assert.Equal(t, []map[string]any{{"n": 0, "s": 0.0, "a": nil, "m": nil}}, res.Rows)

	res = run(t, in, `MATCH (p:Person) RETURN MIN(p.name) AS first`, nil)
	assert.Equal(t, "Ada", res.Rows[0]["first"])
}

func TestInterpreter_GroupBy(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `MATCH (r:Receipt) RETURN r.merchant AS merchant, COUNT(*) AS n, SUM(r.total) AS total GROUP BY r.merchant`, nil)
	assert.Equal(t, []string{"merchant", "n", "total"}, res.Columns)
	assert.Equal(t, []map[string]any{
		{"merchant": "Acme", "n": 2, "total": 30.0},
		{"merchant": "Bolt", "n": 1, "total": 30.0},
	}, res.Rows)

	res = run(t, in, `MATCH (m:Message)-[:IN_CHANNEL]->(c:Channel) RETURN COUNT(*) AS messages GROUP BY c.name`, nil)
	assert.Equal(t, []string{"c.name", "messages"}, res.Columns)
	assert.Equal(t, []map[string]any{
		{"c.name": "general", "messages": 2},
		{"c.name": "random", "messages": 1},
	}, res.Rows)
}

func TestInterpreter_Where(t *testing.T) {
	in := query.New(chat(t))

	tests := []struct {
		name   string
		match  string
		where  string
		params map[string]any
		want   []string
	}{
		{"contains", "Message", `n.text CONTAINS "world"`, nil, []string{"m1"}},
		{"starts_with", "Message", `n.text STARTS_WITH "hi"`, nil, []string{"m2"}},
		{"starts with", "Message", `n.text STARTS WITH "ran"`, nil, []string{"m3"}},
		{"ends_with", "Message", `n.text ENDS_WITH "back"`, nil, []string{"m2"}},
		{"in", "Person", `n.name IN ["Grace", "Alan"]`, nil, []string{"p2"}},
		{"not equal", "Person", `n.name != "Ada"`, nil, []string{"p2"}},
		{"list contains", "Person", `n.aliases CONTAINS "Countess"`, nil, []string{"p1"}},
		{"numeric across int and float", "Receipt", `n.total >= 20`, nil, []string{"r2", "r3"}},
		{"numeric equality", "Receipt", `n.total = 10`, nil, []string{"r1"}},
		{"iso string order", "Message", `n.timestamp > "2024-03-02"`, nil, []string{"m2", "m3"}},
		{"time against string", "Message", `n.created_at >= "2024-03-01"`, nil, []string{"m1", "m2", "m3"}},
		{"and", "Receipt", `n.merchant = "Acme" AND n.total > 15`, nil, []string{"r2"}},
		{"or", "Receipt", `n.merchant = "Bolt" OR n.total < 15`, nil, []string{"r1", "r3"}},
		{"param", "Person", `n.name = $name`, map[string]any{"name": "Grace"}, []string{"p2"}},
		{"missing property", "Person", `n.email = "x"`, nil, []string{}},
		{"missing property not equal", "Person", `n.email != "x"`, nil, []string{}},
		{"type mismatch", "Receipt", `n.total > "a"`, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, in, "MATCH (n:"+tt.match+") WHERE "+tt.where+" RETURN n", tt.params)
			assert.Equal(t, tt.want, ids(res.Rows, "n"))
		})
	}
}

func TestInterpreter_Patterns(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `MATCH (p:Person)<-[:SENT_BY]-(m:Message) WHERE m.text = "hi back" RETURN p.name AS name`, nil)
	assert.Equal(t, []map[string]any{{"name": "Grace"}}, res.Rows)

	// Only m2 has a REPLY_TO edge.
	res = run(t, in, `MATCH (m:Message)-[:REPLY_TO]->(o:Message) RETURN m`, nil)
	assert.Equal(t, []string{"m2"}, ids(res.Rows, "m"))

	res = run(t, in, `MATCH (m:Message)-[:REPLY_TO]->(o:Message)-[:SENT_BY]->(p:Person) RETURN p.name AS author`, nil)
	assert.Equal(t, []map[string]any{{"author": "Ada"}}, res.Rows)

	// Both relationship patterns must hold.
	res = run(t, in, `MATCH (m:Message)-[:SENT_BY]->(p:Person)-[:KNOWS]->(q) RETURN m`, nil)
	assert.Equal(t, []string{"m1", "m3"}, ids(res.Rows, "m"))

	// One row per primary node even with several satisfying bindings.
	res = run(t, in, `MATCH (p:Person)<-[:SENT_BY]-(m) RETURN p`, nil)
	assert.Equal(t, []string{"p1", "p2"}, ids(res.Rows, "p"))

	res = run(t, in, `MATCH (p:Person)-[:KNOWS]-(q:Person) RETURN p`, nil)
	assert.Equal(t, []string{"p1", "p2"}, ids(res.Rows, "p"), "undirected pattern")

	// The first binding that satisfies WHERE is used.
	res = run(t, in, `MATCH (c:Channel)<-[:IN_CHANNEL]-(m) WHERE m.text = "hi back" RETURN c.name AS channel, m.text AS text`, nil)
	assert.Equal(t, []map[string]any{{"channel": "general", "text": "hi back"}}, res.Rows)
}

func TestInterpreter_Return(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `MATCH (m:Message)-[r:IN_CHANNEL]->(c) WHERE c.name = "random" RETURN *`, nil)
	assert.Equal(t, []string{"m", "r", "c"}, res.Columns)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "m3", row["m"].(map[string]any)["id"])
	assert.Equal(t, "c2", row["c"].(map[string]any)["id"])
	assert.Equal(t, "IN_CHANNEL", row["r"].(map[string]any)["type"])

	res = run(t, in, `MATCH (m:Message)-[r:IN_CHANNEL]->(c) RETURN r.type AS rel, r.weight AS weight LIMIT 1`, nil)
	assert.Equal(t, []map[string]any{{"rel": "IN_CHANNEL", "weight": 1}}, res.Rows)

	res = run(t, in, `MATCH (p:Person) RETURN p.name, p.email`, nil)
	assert.Equal(t, []string{"p.name", "p.email"}, res.Columns)
	assert.Equal(t, []map[string]any{
		{"p.name": "Ada", "p.email": nil},
		{"p.name": "Grace", "p.email": nil},
	}, res.Rows)

	rec := run(t, in, `MATCH (p:Person) WHERE p.name = "Grace" RETURN p`, nil).Rows[0]["p"].(map[string]any)
	assert.Equal(t, "person", rec[graph.PropType])
	assert.Equal(t, testTime, rec[graph.PropCreatedAt])
}

func TestInterpreter_LimitAndRowCap(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	in := query.New(chat(t), query.WithMaxRows(4), query.WithLogger(logger))

	res := run(t, in, `MATCH (n) RETURN n`, nil)
	assert.True(t, res.Truncated)
	assert.Equal(t, 10, res.TotalRows)
	assert.Len(t, res.Rows, 4)
	assert.Contains(t, buf.String(), "query result truncated")

	res = run(t, in, `MATCH (n) RETURN n LIMIT 3`, nil)
	assert.False(t, res.Truncated)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(res.Rows, "n"))

	res = run(t, query.New(chat(t), query.WithMaxRows(0)), `MATCH (n) RETURN n`, nil)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 10)
}

func TestInterpreter_Traverse(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `TRAVERSE FROM "m2" FOLLOW [REPLY_TO, SENT_BY] DEPTH 2 RETURN nodes`, nil)
	assert.Equal(t, []string{"node", "depth"}, res.Columns)
	assert.Equal(t, []string{"p2", "m1", "p1"}, ids(res.Rows, "node"))
	assert.Equal(t, 1, res.Rows[0]["depth"])
	assert.Equal(t, 2, res.Rows[2]["depth"])

	res = run(t, in, `TRAVERSE FROM $start DEPTH 1 RETURN nodes`, map[string]any{"start": "p1"})
	assert.Equal(t, []string{"p2"}, ids(res.Rows, "node"))

	res = run(t, in, `TRAVERSE FROM ghost DEPTH 3 RETURN nodes`, nil)
	assert.Empty(t, res.Rows)
}

func TestInterpreter_Path(t *testing.T) {
	in := query.New(chat(t))

	res := run(t, in, `PATH FROM "m2" TO "p1" MAX_DEPTH 3 RETURN path`, nil)
	assert.Equal(t, []string{"path", "length"}, res.Columns)
	assert.Equal(t, []map[string]any{{"path": []string{"m2", "m1", "p1"}, "length": 2}}, res.Rows)

	res = run(t, in, `PATH FROM $a TO $b MAX_DEPTH 1 RETURN path`, map[string]any{"a": "m2", "b": "p1"})
	assert.Empty(t, res.Rows)

	res = run(t, in, `PATH FROM "p2" TO "m2" MAX_DEPTH 5 RETURN path`, nil)
	assert.Empty(t, res.Rows, "paths follow outgoing edges")
}

func TestInterpreter_ParseErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	in := query.New(chat(t), query.WithLogger(logger))

	res, err := in.Execute(context.Background(), `MATCH (n) WHERE n.a = 1 AND n.b = 2 OR n.c = 3 RETURN n`, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, query.ErrQueryParse))
	require.NotNil(t, res)
	assert.Empty(t, res.Rows)
	assert.Contains(t, buf.String(), "query parse failed")

	res, err = in.Execute(context.Background(), `MATCH (p:Person) WHERE p.name = $name RETURN p`, nil)
	assert.True(t, errors.Is(err, query.ErrQueryParse))
	assert.Contains(t, err.Error(), "missing parameter $name")
	assert.Empty(t, res.Rows)
}

func TestInterpreter_Cancelled(t *testing.T) {
	in := query.New(chat(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := in.Execute(ctx, `MATCH (n) RETURN n`, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Rows)
}
