package handlers

import (
	"net/http"
	"strings"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/rag"
	"github.com/neuralchat/ragserver/internal/vectorstore"
)

type QueryHandler struct {
	orch      *rag.Orchestrator
	retriever *rag.Retriever
}

func NewQueryHandler(orch *rag.Orchestrator, retriever *rag.Retriever) *QueryHandler {
	return &QueryHandler{orch: orch, retriever: retriever}
}

type queryRequest struct {
	Query    string   `json:"query"`
	TopK     int      `json:"top_k"`
	MinScore *float64 `json:"min_score"`
}

type queryResponse struct {
	Answer       string   `json:"answer"`
	Docs         []string `json:"docs"`
	SourcesCount int      `json:"sources_count"`
	LatencyMs    int64    `json:"latency_ms"`
}

type llmRequest struct {
	Prompt string `json:"prompt"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	answer, err := h.orch.Execute(r.Context(), rag.Query{
		Text:     req.Query,
		Mode:     rag.ModeRAG,
		TopK:     req.TopK,
		MinScore: req.MinScore,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	docs := make([]string, len(answer.Sources))
	for i, s := range answer.Sources {
		docs[i] = s.Content
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:       answer.Text,
		Docs:         docs,
		SourcesCount: answer.SourcesCount,
		LatencyMs:    answer.LatencyMs,
	})
}

// LLM answers a prompt directly, without retrieval.
func (h *QueryHandler) LLM(w http.ResponseWriter, r *http.Request) {
	var req llmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	answer, err := h.orch.Execute(r.Context(), rag.Query{Text: req.Prompt, Mode: rag.ModeDirect})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": answer.Text})
}

// Search returns the ranked chunks for a query without generating.
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text := strings.TrimSpace(req.Query)
	if text == "" {
		writeError(w, r, apperr.Validation("Query cannot be empty."))
		return
	}

	results, err := h.retriever.Retrieve(r.Context(), text, rag.RetrieveOptions{TopK: req.TopK, MinScore: req.MinScore})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []vectorstore.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}
