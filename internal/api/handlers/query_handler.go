package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/asaifulas/ragcrawler/internal/query"
)

type QueryHandler struct {
	service *query.Service
}

func NewQueryHandler(service *query.Service) *QueryHandler {
	return &QueryHandler{service: service}
}

type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// Query answers POST /api/query. A nil answer with populated sources means
// retrieval worked but generation did not.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Query(ctx, req.Question, req.TopK)
	if err != nil {
		http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
