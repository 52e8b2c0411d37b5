package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

type stubLLM struct {
	answer     string
	err        error
	lastPrompt string
}

func (s *stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.lastPrompt = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type stubIndex struct {
	vectorindex.Index
	neighbors []vectorindex.Neighbor
	searchErr error
	gotTopK   int
}

func (s *stubIndex) Search(ctx context.Context, vector []float32, topK int) ([]vectorindex.Neighbor, error) {
	s.gotTopK = topK
	return s.neighbors, s.searchErr
}

func neighbor(id, text, url, page string, score float32) vectorindex.Neighbor {
	return vectorindex.Neighbor{
		DatapointID: id,
		Score:       score,
		Restricts: []vectorindex.Restrict{
			{Namespace: "text", AllowList: []string{text}},
			{Namespace: "url", AllowList: []string{url}},
			{Namespace: "page", AllowList: []string{page}},
		},
	}
}

func TestQueryReturnsAnswerAndSources(t *testing.T) {
	idx := &stubIndex{neighbors: []vectorindex.Neighbor{
		neighbor("doc_0_1_1", "alpha text", "https://example.com/a.pdf", "1", 0.91),
		neighbor("doc_5_2_2", "beta text", "https://example.com/b.pdf", "2", 0.84),
	}}
	llm := &stubLLM{answer: "Alpha is documented [Source 1]."}
	svc := NewService(&stubEmbedder{vector: []float32{1, 2, 3}}, llm, idx)

	resp, err := svc.Query(context.Background(), "what is alpha?", 5)
	require.NoError(t, err)

	require.NotNil(t, resp.Answer)
	assert.Equal(t, "Alpha is documented [Source 1].", *resp.Answer)
	assert.Equal(t, 5, idx.gotTopK)

	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "alpha text", resp.Sources[0].Text)
	assert.Equal(t, "https://example.com/a.pdf", resp.Sources[0].Metadata["url"])
	assert.Equal(t, float32(0.91), resp.Sources[0].Score)
	assert.Equal(t, "doc_0_1_1", resp.Sources[0].DatapointID)

	// The prompt numbers sources to match the response order.
	assert.Contains(t, llm.lastPrompt, "[Source 1] (https://example.com/a.pdf, page 1)")
	assert.Contains(t, llm.lastPrompt, "[Source 2] (https://example.com/b.pdf, page 2)")
	assert.True(t, strings.HasSuffix(llm.lastPrompt, "Question: what is alpha?"))
}

func TestQueryGenerationFailureKeepsSources(t *testing.T) {
	idx := &stubIndex{neighbors: []vectorindex.Neighbor{
		neighbor("doc_0_1_1", "alpha text", "https://example.com/a.pdf", "1", 0.9),
	}}
	svc := NewService(&stubEmbedder{vector: []float32{1}}, &stubLLM{err: errors.New("model overloaded")}, idx)

	resp, err := svc.Query(context.Background(), "what is alpha?", 0)
	require.NoError(t, err)
	assert.Nil(t, resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, DefaultTopK, idx.gotTopK)
	assert.Equal(t, 3, idx.gotTopK)
}

func TestQueryWithoutLLMReturnsSourcesOnly(t *testing.T) {
	idx := &stubIndex{neighbors: []vectorindex.Neighbor{
		neighbor("doc_0_1_1", "alpha text", "https://example.com/a.pdf", "1", 0.9),
	}}
	svc := NewService(&stubEmbedder{vector: []float32{1}}, nil, idx)

	resp, err := svc.Query(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Nil(t, resp.Answer)
	assert.Len(t, resp.Sources, 1)
}

func TestQueryNoNeighborsSkipsGeneration(t *testing.T) {
	llm := &stubLLM{answer: "should never be used"}
	svc := NewService(&stubEmbedder{vector: []float32{1}}, llm, &stubIndex{})

	resp, err := svc.Query(context.Background(), "unknown topic", 3)
	require.NoError(t, err)
	assert.Nil(t, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, llm.lastPrompt)
}

func TestQueryEmptyQuestionRejected(t *testing.T) {
	svc := NewService(&stubEmbedder{vector: []float32{1}}, nil, &stubIndex{})
	_, err := svc.Query(context.Background(), "   ", 3)
	require.Error(t, err)
}

func TestQueryEmbedFailureIsFatal(t *testing.T) {
	svc := NewService(&stubEmbedder{err: errors.New("quota exhausted")}, nil, &stubIndex{})
	_, err := svc.Query(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed question")
}
