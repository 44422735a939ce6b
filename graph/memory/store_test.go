package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, mode graph.ValidationMode) *Store {
	t.Helper()
	return New(schema.Default(), WithMode(mode), WithClock(func() time.Time { return testTime }))
}

func mustAddNode(t *testing.T, s *Store, id string, nt schema.NodeType, props map[string]any) {
	t.Helper()
	ok, err := s.AddNode(context.Background(), id, nt, props)
	require.NoError(t, err)
	require.True(t, ok)
}

func mustLink(t *testing.T, s *Store, from, to string, rel schema.RelationType) {
	t.Helper()
	ok, err := s.AddRelationship(context.Background(), from, to, rel, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func person(name string) map[string]any { return map[string]any{"name": name} }

func message(text string) map[string]any {
	return map[string]any{"text": text, "timestamp": "2024-03-01T09:00:00Z"}
}

func TestStore_AddNode_RoundTrip(t *testing.T) {
	s := newTestStore(t, graph.ModeStrict)
	ctx := context.Background()
	props := map[string]any{"name": "Ada", "email": "ada@example.com", "aliases": []any{"A"}}

	mustAddNode(t, s, "p1", schema.NodeTypePerson, props)

	n, err := s.GetNode(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, n)

	want := map[string]any{
		"name":              "Ada",
		"email":             "ada@example.com",
		"aliases":           []any{"A"},
		graph.PropCreatedAt: testTime,
		graph.PropType:      "person",
	}
	assert.Equal(t, want, n.Properties)
	assert.Equal(t, testTime, n.CreatedAt)
	assert.Len(t, props, 3, "input map is not modified")

	missing, err := s.GetNode(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_AddNode_StrictRequiresProperties(t *testing.T) {
	s := newTestStore(t, graph.ModeStrict)

	ok, err := s.AddNode(context.Background(), "m1", schema.NodeTypeMessage, map[string]any{"timestamp": "2024-01-01"})
	assert.False(t, ok)
	assert.True(t, errors.Is(err, graph.ErrSchemaValidation))

	st, _ := s.Stats(context.Background())
	assert.Equal(t, 0, st.TotalNodes)
}

func TestStore_AddNode_WarnProceeds(t *testing.T) {
	var buf bytes.Buffer
	s := New(schema.Default(), WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	ok, err := s.AddNode(context.Background(), "p1", schema.NodeTypePerson, map[string]any{"email": "nope"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "node failed schema validation")
	assert.Equal(t, graph.ModeWarn, s.Mode())
}

func TestStore_NestedPropertiesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, graph.ModeStrict)

	tags := []any{"work"}
	meta := map[string]any{"source": "imap", "labels": []any{"inbox"}}
	mustAddNode(t, s, "m1", schema.NodeTypeMessage, map[string]any{
		"text":      "hi",
		"timestamp": "2024-03-01",
		"tags":      tags,
		"metadata":  meta,
	})

	tags[0] = "changed-after-add"
	meta["source"] = "changed-after-add"
	meta["labels"].([]any)[0] = "changed-after-add"

	got, err := s.GetNode(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	got.Properties["tags"].([]any)[0] = "changed-via-get"
	got.Properties["metadata"].(map[string]any)["source"] = "changed-via-get"

	batch, err := s.GetNodesBatch(ctx, []string{"m1"}, "")
	require.NoError(t, err)
	batch["m1"].Properties["tags"].([]any)[0] = "changed-via-batch"

	stored, err := s.GetNode(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []any{"work"}, stored.Properties["tags"])
	assert.Equal(t, map[string]any{"source": "imap", "labels": []any{"inbox"}}, stored.Properties["metadata"])
}

func TestStore_AddNode_Idempotent(t *testing.T) {
	s := New(schema.Default(), WithMode(graph.ModeStrict))
	ctx := context.Background()

	mustAddNode(t, s, "p1", schema.NodeTypePerson, person("Ada"))
	first, _ := s.GetNode(ctx, "p1")

	mustAddNode(t, s, "p1", schema.NodeTypePerson, person("Ada"))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalNodes)

	second, _ := s.GetNode(ctx, "p1")
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "overwrite keeps the creation time")
}

func TestStore_AddNode_Overwrites(t *testing.T) {
	s := newTestStore(t, graph.ModeStrict)
	ctx := context.Background()

	mustAddNode(t, s, "p1", schema.NodeTypePerson, map[string]any{"name": "Ada", "phone": "555"})
	mustAddNode(t, s, "p1", schema.NodeTypePerson, person("Ada Lovelace"))

	n, _ := s.GetNode(ctx, "p1")
	assert.Equal(t, "Ada Lovelace", n.Properties["name"])
	_, hasPhone := n.Properties["phone"]
	assert.False(t, hasPhone)
}

func TestStore_AddRelationship_MissingEndpoint(t *testing.T) {
	for _, mode := range []graph.ValidationMode{graph.ModeStrict, graph.ModeWarn} {
		t.Run(string(mode), func(t *testing.T) {
			s := newTestStore(t, mode)
			ctx := context.Background()
			mustAddNode(t, s, "m1", schema.NodeTypeMessage, message("hi"))

			ok, err := s.AddRelationship(ctx, "m1", "p404", schema.RelSentBy, nil)
			assert.False(t, ok)
			if mode == graph.ModeStrict {
				assert.True(t, errors.Is(err, graph.ErrMissingEndpoint))
			} else {
				assert.NoError(t, err)
			}

			ok, _ = s.AddRelationship(ctx, "p404", "m1", schema.RelSentBy, nil)
			assert.False(t, ok)

			st, _ := s.Stats(ctx)
			assert.Equal(t, 1, st.TotalNodes, "no placeholder endpoint is created")
			assert.Equal(t, 0, st.TotalRelationships)
		})
	}
}

func TestStore_AddRelationship_Schema(t *testing.T) {
	ctx := context.Background()

	strict := newTestStore(t, graph.ModeStrict)
	mustAddNode(t, strict, "m1", schema.NodeTypeMessage, message("hi"))
	mustAddNode(t, strict, "c1", schema.NodeTypeChannel, map[string]any{"name": "general"})

	ok, err := strict.AddRelationship(ctx, "m1", "c1", schema.RelSentBy, nil)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, graph.ErrRelationshipSchema))
	st, _ := strict.Stats(ctx)
	assert.Equal(t, 0, st.TotalRelationships, "a rejected edge leaves nothing behind")

	warn := newTestStore(t, graph.ModeWarn)
	mustAddNode(t, warn, "m1", schema.NodeTypeMessage, message("hi"))
	mustAddNode(t, warn, "c1", schema.NodeTypeChannel, map[string]any{"name": "general"})
	ok, err = warn.AddRelationship(ctx, "m1", "c1", schema.RelSentBy, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_AddRelationship_ParallelEdges(t *testing.T) {
	s := newTestStore(t, graph.ModeStrict)
	ctx := context.Background()
	mustAddNode(t, s, "t1", schema.NodeTypeTask, map[string]any{"title": "a", "status": "pending"})
	mustAddNode(t, s, "t2", schema.NodeTypeTask, map[string]any{"title": "b", "status": "pending"})

	mustLink(t, s, "t1", "t2", schema.RelDependsOn)
	mustLink(t, s, "t1", "t2", schema.RelBlocks)
	_, err := s.AddRelationship(ctx, "t1", "t2", schema.RelDependsOn, map[string]any{"weight": 2})
	require.NoError(t, err)

	nbs, err := s.GetNeighbors(ctx, "t1", "", graph.Outgoing)
	require.NoError(t, err)
	require.Len(t, nbs, 2)
	assert.Equal(t, schema.RelDependsOn, nbs[0].RelType)
	assert.Equal(t, 2, nbs[0].Properties["weight"], "same triple replaces properties")
	assert.Equal(t, testTime, nbs[0].Properties[graph.PropCreatedAt])
	assert.Equal(t, schema.RelBlocks, nbs[1].RelType)

	st, _ := s.Stats(ctx)
	assert.Equal(t, 2, st.TotalRelationships)
}

// chatGraph:
//
//	m1 -SENT_BY-> p1
//	m1 -IN_CHANNEL-> c1
//	m2 -SENT_BY-> p2
//	m2 -IN_CHANNEL-> c1
//	m2 -REPLY_TO-> m1
//	p1 -KNOWS-> p2
func chatGraph(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t, graph.ModeStrict)
	mustAddNode(t, s, "m1", schema.NodeTypeMessage, message("hello"))
	mustAddNode(t, s, "m2", schema.NodeTypeMessage, message("hi back"))
	mustAddNode(t, s, "p1", schema.NodeTypePerson, person("Ada"))
	mustAddNode(t, s, "p2", schema.NodeTypePerson, person("Grace"))
	mustAddNode(t, s, "c1", schema.NodeTypeChannel, map[string]any{"name": "general"})
	mustLink(t, s, "m1", "p1", schema.RelSentBy)
	mustLink(t, s, "m1", "c1", schema.RelInChannel)
	mustLink(t, s, "m2", "p2", schema.RelSentBy)
	mustLink(t, s, "m2", "c1", schema.RelInChannel)
	mustLink(t, s, "m2", "m1", schema.RelReplyTo)
	mustLink(t, s, "p1", "p2", schema.RelKnows)
	return s
}

func TestStore_GetNodesBatch(t *testing.T) {
	s := chatGraph(t)
	ctx := context.Background()
	ids := []string{"m1", "p1", "missing", "c1"}

	batch, err := s.GetNodesBatch(ctx, ids, "")
	require.NoError(t, err)

	sequential := make(map[string]*graph.Node)
	for _, id := range ids {
		n, err := s.GetNode(ctx, id)
		require.NoError(t, err)
		if n != nil {
			sequential[id] = n
		}
	}
	assert.Equal(t, sequential, batch)

	people, err := s.GetNodesBatch(ctx, ids, schema.NodeTypePerson)
	require.NoError(t, err)
	assert.Len(t, people, 1)
	assert.Contains(t, people, "p1")
}

func TestStore_GetNeighbors(t *testing.T) {
	s := chatGraph(t)
	ctx := context.Background()

	out, err := s.GetNeighbors(ctx, "m2", "", graph.Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "c1", "m1"}, neighborIDs(out))

	in, err := s.GetNeighbors(ctx, "c1", schema.RelInChannel, graph.Incoming)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, neighborIDs(in))
	assert.Equal(t, graph.Incoming, in[0].Direction)

	both, err := s.GetNeighbors(ctx, "m1", "", graph.Both)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "c1", "m2"}, neighborIDs(both))
}

func TestStore_GetNeighborsBatch(t *testing.T) {
	s := chatGraph(t)

	got, err := s.GetNeighborsBatch(context.Background(), []string{"m1", "m2", "c1"}, graph.NeighborOptions{
		Direction:   graph.Outgoing,
		TargetTypes: []schema.NodeType{schema.NodeTypePerson},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, neighborIDs(got["m1"]))
	assert.Equal(t, []string{"p2"}, neighborIDs(got["m2"]))
	assert.NotContains(t, got, "c1")
}

func TestStore_Traverse(t *testing.T) {
	s := chatGraph(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		start string
		rels  []schema.RelationType
		depth int
		dir   graph.Direction
		want  []string
	}{
		{"one hop outgoing", "m2", nil, 1, graph.Outgoing, []string{"p2", "c1", "m1"}},
		{"two hops outgoing", "m2", nil, 2, graph.Outgoing, []string{"p2", "c1", "m1", "p1"}},
		{"filtered by type", "m2", []schema.RelationType{schema.RelReplyTo, schema.RelSentBy}, 2, graph.Outgoing, []string{"p2", "m1", "p1"}},
		{"both directions", "c1", []schema.RelationType{schema.RelInChannel}, 1, graph.Both, []string{"m1", "m2"}},
		{"no edges followed", "p2", nil, 3, graph.Outgoing, nil},
		{"missing start", "x", nil, 3, graph.Outgoing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := s.Traverse(ctx, tt.start, tt.rels, tt.depth, tt.dir)
			require.NoError(t, err)
			var ids []string
			for _, n := range nodes {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_TraverseNeverRepeats(t *testing.T) {
	s := chatGraph(t)
	for depth := 0; depth <= 4; depth++ {
		reached := s.Walk("m2", nil, depth, graph.Both)
		seen := make(map[string]bool)
		for _, r := range reached {
			assert.False(t, seen[r.Node.ID], "node %s returned twice", r.Node.ID)
			seen[r.Node.ID] = true
			assert.LessOrEqual(t, r.Depth, depth)
			assert.NotEqual(t, "m2", r.Node.ID)
		}
	}
}

func TestStore_FindPath(t *testing.T) {
	s := chatGraph(t)
	ctx := context.Background()

	path, err := s.FindPath(ctx, "m2", "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1", "p1"}, path)

	path, err = s.FindPath(ctx, "m2", "p1", 1)
	require.NoError(t, err)
	assert.Nil(t, path)

	path, err = s.FindPath(ctx, "p1", "m2", 5)
	require.NoError(t, err)
	assert.Nil(t, path, "only outgoing edges are followed")

	path, err = s.FindPath(ctx, "m1", "missing", 5)
	require.NoError(t, err)
	assert.Nil(t, path)

	assert.Equal(t, []string{"m1", "p1", "p2"}, s.Path("m1", "p2", 3))
}

func TestStore_Stats(t *testing.T) {
	s := chatGraph(t)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalNodes)
	assert.Equal(t, 6, st.TotalRelationships)
	assert.Equal(t, map[string]int{"message": 2, "person": 2, "channel": 1}, st.NodesByType)
	assert.Equal(t, map[string]int{"SENT_BY": 2, "IN_CHANNEL": 2, "REPLY_TO": 1, "KNOWS": 1}, st.RelationshipsByType)
	assert.InDelta(t, 2.4, st.AvgDegree, 1e-9)
	assert.Equal(t, 2, st.MaxDepth, "m2 -> m1 -> p1")

	empty := newTestStore(t, graph.ModeWarn)
	st, err = empty.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.AvgDegree)
}

func TestStore_DeleteNode(t *testing.T) {
	s := chatGraph(t)
	ctx := context.Background()

	ok, err := s.DeleteNode(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	st, _ := s.Stats(ctx)
	assert.Equal(t, 4, st.TotalNodes)
	assert.Equal(t, 3, st.TotalRelationships, "edges touching m1 are gone")

	in, _ := s.GetNeighbors(ctx, "c1", "", graph.Incoming)
	assert.Equal(t, []string{"m2"}, neighborIDs(in))

	ok, err = s.DeleteNode(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"m2", "p1", "p2", "c1"}, nodeIDs(s.Nodes("")))
}

func TestStore_DeleteNode_SelfLoop(t *testing.T) {
	s := newTestStore(t, graph.ModeWarn)
	ctx := context.Background()
	mustAddNode(t, s, "p1", schema.NodeTypePerson, person("Ada"))
	mustLink(t, s, "p1", "p1", schema.RelKnows)

	ok, err := s.DeleteNode(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	st, _ := s.Stats(ctx)
	assert.Equal(t, 0, st.TotalRelationships)
}

func TestStore_Clear(t *testing.T) {
	s := chatGraph(t)
	ctx := context.Background()

	ok, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	st, _ := s.Stats(ctx)
	assert.Equal(t, 0, st.TotalNodes)
	assert.Equal(t, 0, st.TotalRelationships)
	assert.Empty(t, s.Nodes(""))
	assert.NoError(t, s.Close(ctx))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(schema.Default())
	ctx := context.Background()
	mustAddNode(t, s, "c1", schema.NodeTypeChannel, map[string]any{"name": "general"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("m%d-%d", i, j)
				_, _ = s.AddNode(ctx, id, schema.NodeTypeMessage, message("x"))
				_, _ = s.AddRelationship(ctx, id, "c1", schema.RelInChannel, nil)
				_, _ = s.Traverse(ctx, "c1", nil, 1, graph.Incoming)
				_, _ = s.GetNodesBatch(ctx, []string{id, "c1"}, "")
			}
		}(i)
	}
	wg.Wait()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 401, st.TotalNodes)
	assert.Equal(t, 400, st.TotalRelationships)
}

func neighborIDs(nbs []graph.Neighbor) []string {
	var ids []string
	for _, nb := range nbs {
		ids = append(ids, nb.ID)
	}
	return ids
}

func nodeIDs(nodes []*graph.Node) []string {
	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
