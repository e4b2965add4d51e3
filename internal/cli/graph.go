package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/models"
)

var (
	graphFilter string
	graphType   string
	graphLayout bool
	graphLimit  int
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "List knowledge graph nodes",
	Long: `List nodes of the knowledge graph snapshot.

The filter matches node labels case-insensitively. The type restricts
nodes to repositories, files or chunks; edges are kept only when both
endpoints are visible.

Examples:
  mnemo graph
  mnemo graph --filter main.go
  mnemo graph --type repo --layout
  mnemo graph node repo:mnemo`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

var graphNodeCmd = &cobra.Command{
	Use:   "node <node-id>",
	Short: "Show a node and its neighbors",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphNode,
}

func init() {
	graphCmd.Flags().StringVarP(&graphFilter, "filter", "f", "", "label substring to match")
	graphCmd.Flags().StringVarP(&graphType, "type", "t", "all", "node type: all, repo, file, chunk")
	graphCmd.Flags().BoolVar(&graphLayout, "layout", false, "apply the layered auto layout")
	graphCmd.Flags().IntVarP(&graphLimit, "limit", "n", 50, "max nodes to show (0 for all)")

	graphCmd.AddCommand(graphNodeCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	tf, err := graph.ParseTypeFilter(graphType)
	if err != nil {
		return err
	}

	store := graph.NewStore(logger)
	if err := store.LoadSnapshot(ctx, backendClient); err != nil {
		return err
	}
	if graphLayout {
		store.AutoLayout()
	}

	printGraph(cmd.OutOrStdout(), store.Filter(graphFilter, tf), len(store.Nodes()), graphLimit)
	return nil
}

func printGraph(w io.Writer, view graph.View, total, limit int) {
	fmt.Fprintf(w, "Nodes: %d/%d  Edges: %d\n\n", len(view.Nodes), total, len(view.Edges))
	if len(view.Nodes) == 0 {
		fmt.Fprintln(w, "No nodes found")
		return
	}

	fmt.Fprintf(w, "%-40s %-6s %-10s %s\n", "ID", "KIND", "POSITION", "LABEL")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------------------")
	for i, n := range view.Nodes {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "... and %d more\n", len(view.Nodes)-limit)
			break
		}
		pos := fmt.Sprintf("%d,%d", n.Position.X, n.Position.Y)
		fmt.Fprintf(w, "%-40s %-6s %-10s %s\n", n.ID, n.Kind, pos, n.ShortLabel(60))
	}
}

func runGraphNode(cmd *cobra.Command, args []string) error {
	detail, err := backendClient.GraphNode(context.Background(), args[0])
	if err != nil {
		return err
	}
	printNodeDetail(cmd.OutOrStdout(), detail)
	return nil
}

func printNodeDetail(w io.Writer, d models.GraphNodeDetail) {
	fmt.Fprintf(w, "%s %s\n", graph.StyleFor(graph.KindOf(d.ID)).Icon, d.Label)
	fmt.Fprintf(w, "  ID:    %s\n", d.ID)
	if d.Type != "" {
		fmt.Fprintf(w, "  Type:  %s\n", d.Type)
	}
	fmt.Fprintf(w, "  Edges: %d\n", max(d.EdgesCount, len(d.Neighbors)))

	if len(d.Neighbors) == 0 {
		return
	}
	fmt.Fprintf(w, "\nNeighbors:\n")
	for _, n := range d.Neighbors {
		fmt.Fprintf(w, "  • %s [%s]\n", n.Label, n.ID)
	}
}
