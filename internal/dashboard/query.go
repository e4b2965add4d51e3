package dashboard

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/models"
)

// QueryResult is one answered RAG query.
type QueryResult struct {
	Query     string
	SessionID string
	Response  string
	At        time.Time

	Metadata    models.RAGMetadata
	HasMetadata bool
	Debug       *models.RAGDebugResponse
}

// Query asks the backend a question within the session's RAG conversation,
// then fetches the retrieval metadata and, when debug is set, the ranked
// candidates. Metadata and debug failures do not fail the query. The result
// is prepended to the query history.
func (s *Session) Query(ctx context.Context, query string, debug bool) (QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryResult{}, fmt.Errorf("query: empty question")
	}

	session, err := call(ctx, s, func() *string {
		if s.sessionID == nil {
			return nil
		}
		id := *s.sessionID
		return &id
	})
	if err != nil {
		return QueryResult{}, err
	}

	resp, err := s.backend.RAGQuery(ctx, session, query)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query: %w", err)
	}
	result := QueryResult{
		Query:     query,
		SessionID: resp.SessionID,
		Response:  resp.Response,
		At:        s.now(),
	}

	if meta, err := s.backend.RAGMetadata(ctx); err == nil {
		result.Metadata, result.HasMetadata = meta, true
	}
	if debug {
		if d, err := s.backend.RAGDebug(ctx, query); err == nil {
			result.Debug = &d
		}
	}

	err = s.post(ctx, func() {
		if result.SessionID != "" {
			id := result.SessionID
			s.sessionID = &id
		}
		s.queries = slices.Insert(s.queries, 0, result)
		if len(s.queries) > MaxQueryHistory {
			s.queries = s.queries[:MaxQueryHistory]
		}
	})
	return result, err
}

// ResetConversation forgets the RAG session id so the next query starts a
// new conversation.
func (s *Session) ResetConversation(ctx context.Context) error {
	return s.post(ctx, func() { s.sessionID = nil })
}
