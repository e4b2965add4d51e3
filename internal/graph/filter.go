package graph

import (
	"fmt"
	"strings"
)

// TypeFilter restricts the visible nodes to one class.
type TypeFilter string

const (
	FilterAll   TypeFilter = "All"
	FilterRepo  TypeFilter = "Repo"
	FilterFile  TypeFilter = "File"
	FilterChunk TypeFilter = "Chunk"
)

// MaxSearchHits bounds View.Hits.
const MaxSearchHits = 10

// ParseTypeFilter accepts a filter name case-insensitively. Empty means All.
func ParseTypeFilter(s string) (TypeFilter, error) {
	for _, tf := range []TypeFilter{FilterAll, FilterRepo, FilterFile, FilterChunk} {
		if strings.EqualFold(s, string(tf)) {
			return tf, nil
		}
	}
	if s == "" {
		return FilterAll, nil
	}
	return "", fmt.Errorf("unknown type filter %q (want All, Repo, File or Chunk)", s)
}

func (tf TypeFilter) matches(n Node, lowerLabel string) bool {
	var kind Kind
	switch tf {
	case FilterRepo:
		kind = KindRepo
	case FilterFile:
		kind = KindFile
	case FilterChunk:
		kind = KindChunk
	default:
		return true
	}
	return n.Kind == kind || strings.Contains(lowerLabel, string(kind))
}

// View is a filtered subgraph plus the first search hits for the text.
type View struct {
	Nodes []Node
	Edges []Edge
	Hits  []Node
}

// Filter keeps nodes whose label contains text (case-insensitive) and that
// match the type filter, then keeps only edges whose endpoints both survive.
// Hits lists up to MaxSearchHits nodes matching text regardless of type; it
// is empty when text is empty. The inputs are not modified.
func Filter(nodes []Node, edges []Edge, text string, tf TypeFilter) View {
	text = strings.ToLower(text)
	view := View{Nodes: []Node{}, Edges: []Edge{}, Hits: []Node{}}

	keep := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		label := strings.ToLower(n.Label)
		textMatch := text == "" || strings.Contains(label, text)
		if textMatch && text != "" && len(view.Hits) < MaxSearchHits {
			view.Hits = append(view.Hits, n)
		}
		if textMatch && tf.matches(n, label) {
			view.Nodes = append(view.Nodes, n)
			keep[n.ID] = struct{}{}
		}
	}

	for _, e := range edges {
		_, src := keep[e.Source]
		_, dst := keep[e.Target]
		if src && dst {
			view.Edges = append(view.Edges, e)
		}
	}
	return view
}
