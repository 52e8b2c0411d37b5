// Package query is the read path: embed a question, search the vector index
// and optionally generate a grounded answer over the retrieved chunks.
package query

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/asaifulas/ragcrawler/internal/core"
	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
	"github.com/asaifulas/ragcrawler/internal/models"
)

// DefaultTopK is used when the caller does not ask for a specific number of
// neighbors.
const DefaultTopK = 3

const systemPrompt = `You are a research assistant answering questions from a set of retrieved document excerpts.
Answer using only the provided sources. Cite every claim with its source marker, e.g. [Source 2].
If the sources do not contain the answer, say so plainly instead of guessing.`

// Service answers questions against the index. LLM may be nil, in which case
// responses carry sources only.
type Service struct {
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	index    vectorindex.Index
}

func NewService(embedder core.EmbeddingProvider, llm core.LLMProvider, index vectorindex.Index) *Service {
	return &Service{embedder: embedder, llm: llm, index: index}
}

// Query retrieves the topK most similar chunks and, when an LLM is
// configured, generates an answer over them. A generation failure never
// blocks retrieval: the response then has a nil answer and full sources.
func (s *Service) Query(ctx context.Context, question string, topK int) (*models.QueryResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}

	neighbors, err := s.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	resp := &models.QueryResponse{Sources: make([]models.QueryResult, 0, len(neighbors))}
	for _, n := range neighbors {
		meta := metadataMap(n.Restricts)
		resp.Sources = append(resp.Sources, models.QueryResult{
			Text:        meta["text"],
			Metadata:    meta,
			Score:       n.Score,
			DatapointID: n.DatapointID,
		})
	}

	if s.llm == nil || len(resp.Sources) == 0 {
		return resp, nil
	}

	answer, err := s.llm.Generate(ctx, systemPrompt, userPrompt(question, resp.Sources))
	if err != nil {
		log.Printf("answer generation failed, returning sources only: %v", err)
		return resp, nil
	}
	resp.Answer = &answer
	return resp, nil
}

func metadataMap(restricts []vectorindex.Restrict) map[string]string {
	meta := make(map[string]string, len(restricts))
	for _, r := range restricts {
		if len(r.AllowList) > 0 {
			meta[r.Namespace] = r.AllowList[0]
		}
	}
	return meta
}

// userPrompt numbers each retrieved chunk so the model's citations line up
// with the response's sources array.
func userPrompt(question string, sources []models.QueryResult) string {
	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[Source %d]", i+1)
		if url := src.Metadata["url"]; url != "" {
			fmt.Fprintf(&b, " (%s", url)
			if page := src.Metadata["page"]; page != "" && page != "0" {
				fmt.Fprintf(&b, ", page %s", page)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
		b.WriteString(src.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
