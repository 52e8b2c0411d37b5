package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
	"github.com/asaifulas/ragcrawler/internal/models"
	"github.com/asaifulas/ragcrawler/internal/query"
)

type canned struct {
	vectorindex.Index
	neighbors []vectorindex.Neighbor
}

func (c *canned) Search(ctx context.Context, vector []float32, topK int) ([]vectorindex.Neighbor, error) {
	return c.neighbors, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func testHandler() *QueryHandler {
	idx := &canned{neighbors: []vectorindex.Neighbor{{
		DatapointID: "doc_0_1_7",
		Score:       0.88,
		Restricts: []vectorindex.Restrict{
			{Namespace: "text", AllowList: []string{"retrieved body"}},
			{Namespace: "url", AllowList: []string{"https://example.com/a.pdf"}},
		},
	}}}
	return NewQueryHandler(query.NewService(fixedEmbedder{}, nil, idx))
}

func TestQueryEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"what is alpha?","top_k":3}`))
	rec := httptest.NewRecorder()
	testHandler().Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp models.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "retrieved body", resp.Sources[0].Text)
	assert.Equal(t, "doc_0_1_7", resp.Sources[0].DatapointID)
}

func TestQueryEndpointRejectsMissingQuestion(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"top_k":3}`))
	rec := httptest.NewRecorder()
	testHandler().Query(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpointRejectsBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":`))
	rec := httptest.NewRecorder()
	testHandler().Query(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
