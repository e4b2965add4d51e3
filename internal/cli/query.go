package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mnemo-go/internal/models"
)

var (
	queryDebug      bool
	querySession    string
	queryOutputFile string
	queryCandidates int
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask the RAG pipeline a question",
	Long: `Ask the backend's RAG pipeline a question and print the answer with
its retrieval metadata.

Pass --session with the id printed by a previous query to continue that
conversation.

Examples:
  mnemo query "How does ingestion chunk markdown?"
  mnemo query "and for code?" --session 6f1c0f9e-2f7a-4c55-9d0e-0b8a1c7d3e21
  mnemo query "auth flow" --debug
  mnemo query "auth flow" -o answer.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryDebug, "debug", false, "show ranked retrieval candidates")
	queryCmd.Flags().StringVar(&querySession, "session", "", "continue an existing conversation")
	queryCmd.Flags().StringVarP(&queryOutputFile, "output", "o", "", "write the answer to file")
	queryCmd.Flags().IntVar(&queryCandidates, "candidates", 5, "max debug candidates to show")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("query: empty question")
	}

	var session *string
	if querySession != "" {
		id, err := uuid.Parse(querySession)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", querySession, err)
		}
		s := id.String()
		session = &s
	}

	resp, err := backendClient.RAGQuery(ctx, session, question)
	if err != nil {
		return err
	}

	if queryOutputFile != "" {
		if err := os.WriteFile(queryOutputFile, []byte(resp.Response+"\n"), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Answer written to %s\n", queryOutputFile)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
	}

	// Metadata and debug are best effort
	fmt.Fprintln(cmd.OutOrStdout())
	if meta, err := backendClient.RAGMetadata(ctx); err == nil {
		printRAGMetadata(cmd.OutOrStdout(), meta)
	} else {
		logger.Debug("rag metadata unavailable", "error", err)
	}
	if queryDebug {
		if d, err := backendClient.RAGDebug(ctx, question); err == nil {
			printCandidates(cmd.OutOrStdout(), d.Candidates, queryCandidates)
		} else {
			logger.Warn("rag debug unavailable", "error", err)
		}
	}
	if resp.SessionID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", resp.SessionID)
	}
	return nil
}

func printRAGMetadata(w io.Writer, meta models.RAGMetadata) {
	fmt.Fprintf(w, "Vector hits: %d, graph depth: %d, response time: %dms\n",
		meta.VectorHits, meta.GraphDepth, meta.ResponseTimeMs)
}

func printCandidates(w io.Writer, candidates []models.RAGCandidate, limit int) {
	if len(candidates) == 0 {
		fmt.Fprintln(w, "No candidates")
		return
	}

	fmt.Fprintf(w, "\n%-7s %-7s %-7s %-7s %-7s %s\n", "FINAL", "VECTOR", "KEYWORD", "GRAPH", "KNOW", "CHUNK")
	for i, c := range candidates {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "... and %d more\n", len(candidates)-limit)
			break
		}
		chunk := strings.Join(strings.Fields(c.Chunk), " ")
		if r := []rune(chunk); len(r) > 60 {
			chunk = string(r[:60]) + "…"
		}
		fmt.Fprintf(w, "%-7.3f %-7.3f %-7.3f %-7.3f %-7.3f %s\n",
			c.FinalScore, c.VectorScore, c.KeywordScore, c.GraphScore, c.KnowledgeScore, chunk)
		if len(c.Tags) > 0 {
			fmt.Fprintf(w, "        tags: %s, neighbors: %d\n", strings.Join(c.Tags, ", "), c.NeighborsCount)
		}
	}
	fmt.Fprintln(w)
}
