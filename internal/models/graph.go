package models

// RawGraphNode is a node as returned by GET /v1/graph/snapshot.
// The label may live under data.label or at the top level, and the type
// under type or node_type depending on the backend version.
type RawGraphNode struct {
	ID       string         `json:"id"`
	Data     *RawGraphLabel `json:"data,omitempty"`
	Label    string         `json:"label,omitempty"`
	Type     string         `json:"type,omitempty"`
	NodeType string         `json:"node_type,omitempty"`
}

// RawGraphLabel is the data payload of a snapshot node.
type RawGraphLabel struct {
	Label string `json:"label"`
}

// DisplayLabel returns data.label, falling back to label.
func (n RawGraphNode) DisplayLabel() string {
	if n.Data != nil && n.Data.Label != "" {
		return n.Data.Label
	}
	return n.Label
}

// Kind returns type, falling back to node_type.
func (n RawGraphNode) Kind() string {
	if n.Type != "" {
		return n.Type
	}
	return n.NodeType
}

// RawGraphEdge is an edge as returned by the snapshot or a graph_update event.
type RawGraphEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// GraphSnapshot is the response of GET /v1/graph/snapshot.
type GraphSnapshot struct {
	TotalNodes int            `json:"total_nodes,omitempty"`
	Nodes      []RawGraphNode `json:"nodes"`
	Edges      []RawGraphEdge `json:"edges"`
}

// GraphNodeDetail is the response of GET /v1/graph/node/{id}.
type GraphNodeDetail struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	Type       string          `json:"type"`
	EdgesCount int             `json:"edges_count,omitempty"`
	Neighbors  []GraphNeighbor `json:"neighbors"`
}

// GraphNeighbor is one adjacent node in a GraphNodeDetail.
type GraphNeighbor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}
