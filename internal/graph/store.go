// Package graph holds the client-side knowledge graph: the REST snapshot
// merged with incremental graph_update events.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
)

// Layout spacing.
const (
	snapshotSpacingX = 200
	updateSpacingX   = 80
	updateSpacingY   = 40
	layoutSpacingY   = 200
)

// HighlightDuration is how long a node added by a live update stays highlighted.
const HighlightDuration = 2 * time.Second

// Kind is the node class inferred from its id.
type Kind string

const (
	KindRepo  Kind = "repo"
	KindFile  Kind = "file"
	KindChunk Kind = "chunk"
	KindOther Kind = "other"
)

// KindOf classifies a node id by the first of repo, file or chunk it contains.
func KindOf(id string) Kind {
	switch {
	case strings.Contains(id, "repo"):
		return KindRepo
	case strings.Contains(id, "file"):
		return KindFile
	case strings.Contains(id, "chunk"):
		return KindChunk
	default:
		return KindOther
	}
}

// Style is the display palette for a node class.
type Style struct {
	Background string
	Border     string
	Foreground string
	Icon       string
}

var styles = map[Kind]Style{
	KindRepo:  {Background: "#1d4ed8", Border: "#bfdbfe", Foreground: "#e5edff", Icon: "📦"},
	KindFile:  {Background: "#166534", Border: "#bbf7d0", Foreground: "#e5ffef", Icon: "📄"},
	KindChunk: {Background: "#f59e0b", Border: "#fef08a", Foreground: "#1f1f1f", Icon: "✂️"},
	KindOther: {Background: "", Border: "", Foreground: "", Icon: "🧩"},
}

// StyleFor returns the palette for a kind.
func StyleFor(k Kind) Style {
	return styles[k]
}

// Position is a node's layout coordinate.
type Position struct {
	X int
	Y int
}

// Node is a graph vertex ready for display.
type Node struct {
	ID             string
	Label          string
	Type           string
	Kind           Kind
	Position       Position
	HighlightUntil time.Time
}

// Highlighted reports whether the node is still within its highlight window.
func (n Node) Highlighted(now time.Time) bool {
	return !n.HighlightUntil.IsZero() && now.Before(n.HighlightUntil)
}

// ShortLabel truncates the label to max runes with an ellipsis.
func (n Node) ShortLabel(max int) string {
	r := []rune(n.Label)
	if max <= 0 || len(r) <= max {
		return n.Label
	}
	return string(r[:max]) + "…"
}

// Edge connects two node ids.
type Edge struct {
	ID     string
	Source string
	Target string
}

type edgeKey struct{ source, target string }

// Fetcher loads the graph snapshot from the backend.
type Fetcher interface {
	GraphSnapshot(ctx context.Context) (models.GraphSnapshot, error)
}

// Store holds the full node and edge sets. It is not safe for concurrent use.
type Store struct {
	nodes  []Node
	edges  []Edge
	byID   map[string]int
	pairs  map[edgeKey]struct{}
	logger *slog.Logger
}

// NewStore creates an empty graph. A nil logger uses slog.Default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byID:   make(map[string]int),
		pairs:  make(map[edgeKey]struct{}),
		logger: logger,
	}
}

// LoadSnapshot fetches the graph and replaces the store. On error the store
// is left unchanged.
func (s *Store) LoadSnapshot(ctx context.Context, f Fetcher) error {
	snap, err := f.GraphSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	s.Replace(snap)
	return nil
}

// Replace swaps the full node and edge sets for a snapshot, laying nodes out
// along the x axis in snapshot order.
func (s *Store) Replace(snap models.GraphSnapshot) {
	s.nodes = make([]Node, 0, len(snap.Nodes))
	s.edges = make([]Edge, 0, len(snap.Edges))
	clear(s.byID)
	clear(s.pairs)

	for i, raw := range snap.Nodes {
		s.addNode(Node{
			ID:       raw.ID,
			Label:    raw.DisplayLabel(),
			Type:     raw.Kind(),
			Kind:     KindOf(raw.ID),
			Position: Position{X: i * snapshotSpacingX},
		})
	}
	for i, raw := range snap.Edges {
		id := raw.ID
		if id == "" {
			id = fmt.Sprintf("edge-%d", i)
		}
		s.addEdge(Edge{ID: id, Source: raw.Source, Target: raw.Target})
	}
	s.logger.Debug("graph snapshot loaded", "nodes", len(s.nodes), "edges", len(s.edges))
}

func (s *Store) addNode(n Node) {
	if _, ok := s.byID[n.ID]; !ok {
		s.byID[n.ID] = len(s.nodes)
	}
	s.nodes = append(s.nodes, n)
}

func (s *Store) addEdge(e Edge) {
	s.pairs[edgeKey{e.Source, e.Target}] = struct{}{}
	s.edges = append(s.edges, e)
}

// ApplyGraphUpdate merges a graph_update event. Unseen nodes are appended
// with a highlight lasting HighlightDuration from now; unseen
// (source, target) pairs are appended as edges. Known nodes and edges are
// left untouched.
func (s *Store) ApplyGraphUpdate(ev reconcile.RawEvent, now time.Time) (nodeAdded, edgeAdded bool, err error) {
	var node *models.RawGraphNode
	if err := ev.Decode("node", &node); err != nil {
		return false, false, err
	}
	var edge *models.RawGraphEdge
	if err := ev.Decode("edge", &edge); err != nil {
		return false, false, err
	}

	if node != nil && node.ID != "" {
		if _, seen := s.byID[node.ID]; !seen {
			n := len(s.nodes)
			s.addNode(Node{
				ID:             node.ID,
				Label:          node.DisplayLabel(),
				Type:           node.Kind(),
				Kind:           KindOf(node.ID),
				Position:       Position{X: n * updateSpacingX, Y: n * updateSpacingY},
				HighlightUntil: now.Add(HighlightDuration),
			})
			nodeAdded = true
		}
	}

	if edge != nil && edge.Source != "" && edge.Target != "" {
		if _, seen := s.pairs[edgeKey{edge.Source, edge.Target}]; !seen {
			id := edge.ID
			if id == "" {
				id = fmt.Sprintf("%s-%s-%d", edge.Source, edge.Target, now.UnixMilli())
			}
			s.addEdge(Edge{ID: id, Source: edge.Source, Target: edge.Target})
			edgeAdded = true
		}
	}
	return nodeAdded, edgeAdded, nil
}

// ClearExpiredHighlights drops highlights that ended at or before now and
// returns how many were cleared.
func (s *Store) ClearExpiredHighlights(now time.Time) int {
	n := 0
	for i := range s.nodes {
		if !s.nodes[i].HighlightUntil.IsZero() && !s.nodes[i].Highlighted(now) {
			s.nodes[i].HighlightUntil = time.Time{}
			n++
		}
	}
	return n
}

// AutoLayout rows nodes by class: repos first, then files, chunks and the rest.
func (s *Store) AutoLayout() {
	for i := range s.nodes {
		s.nodes[i].Position = Position{
			X: i * snapshotSpacingX,
			Y: typeWeight(s.nodes[i]) * layoutSpacingY,
		}
	}
}

func typeWeight(n Node) int {
	lower := strings.ToLower(n.Label)
	switch {
	case strings.HasPrefix(n.ID, "repo:") || strings.Contains(lower, "repo"):
		return 0
	case strings.HasPrefix(n.ID, "file:") || strings.Contains(lower, "file"):
		return 1
	case strings.HasPrefix(n.ID, "chunk:") || strings.Contains(lower, "chunk"):
		return 2
	default:
		return 3
	}
}

// Node returns the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	if i, ok := s.byID[id]; ok {
		return s.nodes[i], true
	}
	return Node{}, false
}

// Nodes returns a copy of every node in insertion order.
func (s *Store) Nodes() []Node { return slices.Clone(s.nodes) }

// Edges returns a copy of every edge in insertion order.
func (s *Store) Edges() []Edge { return slices.Clone(s.edges) }

// Filter derives the visible subgraph. See Filter.
func (s *Store) Filter(text string, tf TypeFilter) View {
	return Filter(s.nodes, s.edges, text, tf)
}
