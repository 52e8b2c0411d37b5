package llm

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/asaifulas/ragcrawler/internal/core"
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-005"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts batches all texts in one request via EmbeddingBatch. The caller
// (the embedding batcher) owns batch sizing; a single call here is a single
// request against the endpoint.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classifyEmbedError(err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

// classifyEmbedError maps endpoint failures onto the codes the batcher's
// recovery logic keys on: 429/quota -> Throttled, token or payload overflow
// -> PayloadTooLarge, everything else stays an opaque APIError.
func classifyEmbedError(err error) error {
	msg := strings.ToLower(err.Error())

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429:
			return core.NewEmbeddingError("BatchEmbedContents", core.ErrCodeThrottled, gerr.Message, err)
		case gerr.Code == 400 && (strings.Contains(msg, "token") || strings.Contains(msg, "payload") || strings.Contains(msg, "exceed")):
			return core.NewEmbeddingError("BatchEmbedContents", core.ErrCodePayloadTooLarge, gerr.Message, err)
		}
	}

	// The SDK sometimes surfaces throttling as a plain error string.
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource exhausted") {
		return core.NewEmbeddingError("BatchEmbedContents", core.ErrCodeThrottled, err.Error(), err)
	}
	if strings.Contains(msg, "payload size exceeds") || strings.Contains(msg, "token count") {
		return core.NewEmbeddingError("BatchEmbedContents", core.ErrCodePayloadTooLarge, err.Error(), err)
	}

	return core.NewEmbeddingError("BatchEmbedContents", core.ErrCodeAPIError, err.Error(), err)
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
