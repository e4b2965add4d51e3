package models

// RAGQueryRequest is the body of POST /v1/rag/query.
type RAGQueryRequest struct {
	Session *string `json:"session,omitempty"`
	Query   string  `json:"query"`
}

// RAGQueryResponse is the answer for a RAG query within a session.
type RAGQueryResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// RAGMetadata describes the retrieval that produced the last answer.
type RAGMetadata struct {
	VectorHits     int64 `json:"vector_hits"`
	GraphDepth     int   `json:"graph_depth"`
	ResponseTimeMs int64 `json:"response_time_ms"`
}

// RAGDebugResponse lists ranked retrieval candidates for a query.
type RAGDebugResponse struct {
	Candidates []RAGCandidate `json:"candidates"`
}

// RAGCandidate is one scored chunk considered by the retriever.
type RAGCandidate struct {
	Chunk          string   `json:"chunk"`
	VectorScore    float64  `json:"vector_score"`
	KeywordScore   float64  `json:"keyword_score"`
	GraphScore     float64  `json:"graph_score"`
	KnowledgeScore float64  `json:"knowledge_score"`
	FinalScore     float64  `json:"final_score"`
	Tags           []string `json:"tags"`
	NeighborsCount int      `json:"neighbors_count"`
}
