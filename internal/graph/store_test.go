package graph_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type snapshotFetcher struct {
	snap models.GraphSnapshot
	err  error
}

func (f snapshotFetcher) GraphSnapshot(context.Context) (models.GraphSnapshot, error) {
	return f.snap, f.err
}

func sampleSnapshot() models.GraphSnapshot {
	return models.GraphSnapshot{
		Nodes: []models.RawGraphNode{
			{ID: "repo:mnemo", Data: &models.RawGraphLabel{Label: "mnemo repo"}, Type: "repo"},
			{ID: "file:main.rs", Label: "main.rs", NodeType: "file"},
			{ID: "chunk:1", Label: "fn main"},
			{ID: "concept:rag", Label: "Retrieval"},
		},
		Edges: []models.RawGraphEdge{
			{ID: "e1", Source: "repo:mnemo", Target: "file:main.rs"},
			{Source: "file:main.rs", Target: "chunk:1"},
		},
	}
}

func graphEvent(t *testing.T, s string) reconcile.RawEvent {
	t.Helper()
	ev, err := reconcile.ParseEvent([]byte(s))
	require.NoError(t, err)
	return ev
}

func TestLoadSnapshot(t *testing.T) {
	s := graph.NewStore(nil)
	require.NoError(t, s.LoadSnapshot(context.Background(), snapshotFetcher{snap: sampleSnapshot()}))

	nodes := s.Nodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, "mnemo repo", nodes[0].Label)
	assert.Equal(t, "repo", nodes[0].Type)
	assert.Equal(t, "file", nodes[1].Type, "node_type fallback")
	assert.Equal(t, graph.Position{X: 400, Y: 0}, nodes[2].Position)

	assert.Equal(t, graph.KindRepo, nodes[0].Kind)
	assert.Equal(t, graph.KindFile, nodes[1].Kind)
	assert.Equal(t, graph.KindChunk, nodes[2].Kind)
	assert.Equal(t, graph.KindOther, nodes[3].Kind)

	edges := s.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "e1", edges[0].ID)
	assert.Equal(t, "edge-1", edges[1].ID)
}

func TestLoadSnapshotErrorKeepsGraph(t *testing.T) {
	s := graph.NewStore(nil)
	s.Replace(sampleSnapshot())

	err := s.LoadSnapshot(context.Background(), snapshotFetcher{err: errors.New("down")})
	require.Error(t, err)
	assert.Len(t, s.Nodes(), 4)
}

func TestApplyGraphUpdateIsIdempotent(t *testing.T) {
	s := graph.NewStore(nil)
	s.Replace(sampleSnapshot())

	ev := graphEvent(t, `{"event":"graph_update","node":{"id":"chunk:2","label":"fn helper"},"edge":{"source":"file:main.rs","target":"chunk:2"}}`)

	nodeAdded, edgeAdded, err := s.ApplyGraphUpdate(ev, t0)
	require.NoError(t, err)
	assert.True(t, nodeAdded)
	assert.True(t, edgeAdded)
	once := struct {
		nodes []graph.Node
		edges []graph.Edge
	}{s.Nodes(), s.Edges()}

	nodeAdded, edgeAdded, err = s.ApplyGraphUpdate(ev, t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, nodeAdded)
	assert.False(t, edgeAdded)
	assert.Equal(t, once.nodes, s.Nodes())
	assert.Equal(t, once.edges, s.Edges())
}

func TestApplyGraphUpdatePlacementAndIDs(t *testing.T) {
	s := graph.NewStore(nil)
	s.Replace(sampleSnapshot())

	_, _, err := s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","node":{"id":"file:lib.rs","label":"lib.rs"}}`), t0)
	require.NoError(t, err)

	n, ok := s.Node("file:lib.rs")
	require.True(t, ok)
	assert.Equal(t, graph.Position{X: 4 * 80, Y: 4 * 40}, n.Position)
	assert.True(t, n.Highlighted(t0.Add(time.Second)))
	assert.False(t, n.Highlighted(t0.Add(2*time.Second)))

	_, added, err := s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","edge":{"source":"repo:mnemo","target":"file:lib.rs"}}`), t0)
	require.NoError(t, err)
	require.True(t, added)
	edges := s.Edges()
	assert.Equal(t, fmt.Sprintf("repo:mnemo-file:lib.rs-%d", t0.UnixMilli()), edges[len(edges)-1].ID)

	// Same pair with an explicit id is still a duplicate.
	_, added, _ = s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","edge":{"id":"x","source":"repo:mnemo","target":"file:lib.rs"}}`), t0)
	assert.False(t, added)
	// Reverse direction is a different pair.
	_, added, _ = s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","edge":{"id":"x","source":"file:lib.rs","target":"repo:mnemo"}}`), t0)
	assert.True(t, added)
}

func TestApplyGraphUpdateIgnoresIncomplete(t *testing.T) {
	s := graph.NewStore(nil)

	nodeAdded, edgeAdded, err := s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","node":{"label":"no id"},"edge":{"source":"a"}}`), t0)
	require.NoError(t, err)
	assert.False(t, nodeAdded)
	assert.False(t, edgeAdded)

	_, _, err = s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","node":"bad"}`), t0)
	assert.Error(t, err)
}

func TestClearExpiredHighlights(t *testing.T) {
	s := graph.NewStore(nil)
	s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","node":{"id":"a"}}`), t0)
	s.ApplyGraphUpdate(graphEvent(t, `{"event":"graph_update","node":{"id":"b"}}`), t0.Add(time.Second))

	assert.Equal(t, 0, s.ClearExpiredHighlights(t0.Add(time.Second)))
	assert.Equal(t, 1, s.ClearExpiredHighlights(t0.Add(2*time.Second)))

	a, _ := s.Node("a")
	assert.True(t, a.HighlightUntil.IsZero())
	b, _ := s.Node("b")
	assert.False(t, b.HighlightUntil.IsZero())
}

func TestAutoLayout(t *testing.T) {
	s := graph.NewStore(nil)
	s.Replace(sampleSnapshot())
	s.AutoLayout()

	ys := map[string]int{}
	for _, n := range s.Nodes() {
		ys[n.ID] = n.Position.Y
	}
	assert.Equal(t, map[string]int{
		"repo:mnemo":   0,
		"file:main.rs": 200,
		"chunk:1":      400,
		"concept:rag":  600,
	}, ys)
}

func TestShortLabel(t *testing.T) {
	n := graph.Node{Label: "abcdefghij"}
	assert.Equal(t, "abcde…", n.ShortLabel(5))
	assert.Equal(t, "abcdefghij", n.ShortLabel(40))
}
