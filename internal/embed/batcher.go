// Package embed turns chunks into vector records by calling the embedding
// provider in batches. Batches are bounded by both a record count and a token
// budget, throttled calls back off, and oversized payloads are split in half
// until they fit. A batch that cannot be embedded after all of that is
// recorded as failed instead of aborting the run.
package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"strings"

	"github.com/asaifulas/ragcrawler/internal/core"
	"github.com/asaifulas/ragcrawler/internal/models"
	"github.com/asaifulas/ragcrawler/internal/retry"
)

// Batcher embeds chunks through an EmbeddingProvider.
type Batcher struct {
	provider    core.EmbeddingProvider
	batchSize   int
	tokenBudget int
	counter     *TokenCounter
	policy      retry.Policy
}

// Result reports the outcome of an embedding run. Records holds the
// successfully embedded datapoints in input order; FailedIDs names the
// datapoints whose batches could not be embedded.
type Result struct {
	Records      []models.VectorRecord
	FailedIDs    []string
	SkippedEmpty int
}

func NewBatcher(provider core.EmbeddingProvider, batchSize, tokenBudget int) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if tokenBudget <= 0 {
		tokenBudget = 18000
	}
	policy := retry.Default()
	policy.Retryable = core.IsThrottled
	return &Batcher{
		provider:    provider,
		batchSize:   batchSize,
		tokenBudget: tokenBudget,
		counter:     &TokenCounter{},
		policy:      policy,
	}
}

// SetRetryPolicy overrides the throttle backoff schedule. Used by tests.
func (b *Batcher) SetRetryPolicy(p retry.Policy) {
	p.Retryable = core.IsThrottled
	b.policy = p
}

// EmbedChunks embeds every non-empty chunk and returns the resulting vector
// records. Chunks with whitespace-free empty text are skipped and counted.
// Provider failures mark the affected datapoints failed; only a context
// cancellation is returned as an error.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []models.Chunk) (*Result, error) {
	res := &Result{}

	type pending struct {
		id     string
		tokens int
		chunk  models.Chunk
	}
	var queue []pending
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			res.SkippedEmpty++
			continue
		}
		queue = append(queue, pending{
			id:     RecordID(i, c.PageNumber(), c.Text),
			tokens: b.counter.Count(c.Text),
			chunk:  c,
		})
	}

	for start := 0; start < len(queue); {
		end := start
		tokens := 0
		for end < len(queue) && end-start < b.batchSize {
			if end > start && tokens+queue[end].tokens > b.tokenBudget {
				break
			}
			tokens += queue[end].tokens
			end++
		}

		batch := queue[start:end]
		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		meta := make([]models.Chunk, len(batch))
		for i, p := range batch {
			texts[i] = p.chunk.Text
			ids[i] = p.id
			meta[i] = p.chunk
		}

		if err := b.embedBatch(ctx, texts, ids, meta, res); err != nil {
			return res, err
		}
		start = end
	}

	log.Printf("embedding complete: %d records, %d failed, %d empty chunks skipped",
		len(res.Records), len(res.FailedIDs), res.SkippedEmpty)
	return res, nil
}

// embedBatch embeds one batch, halving it on payload-too-large responses down
// to single chunks. Failures land in res.FailedIDs.
func (b *Batcher) embedBatch(ctx context.Context, texts, ids []string, meta []models.Chunk, res *Result) error {
	var vectors [][]float32
	err := b.policy.Do(ctx, func() error {
		var callErr error
		vectors, callErr = b.provider.EmbedTexts(ctx, texts)
		return callErr
	})
	if err == nil {
		if len(vectors) != len(texts) {
			err = fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
		} else {
			for i, vec := range vectors {
				res.Records = append(res.Records, models.VectorRecord{
					ID:        ids[i],
					Embedding: vec,
					Metadata:  metadataFor(meta[i]),
				})
			}
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if core.IsPayloadTooLarge(err) && len(texts) > 1 {
		mid := len(texts) / 2
		log.Printf("batch of %d rejected as too large, splitting into %d + %d", len(texts), mid, len(texts)-mid)
		if err := b.embedBatch(ctx, texts[:mid], ids[:mid], meta[:mid], res); err != nil {
			return err
		}
		return b.embedBatch(ctx, texts[mid:], ids[mid:], meta[mid:], res)
	}

	log.Printf("embedding batch of %d failed permanently: %v", len(texts), err)
	res.FailedIDs = append(res.FailedIDs, ids...)
	return nil
}

// RecordID derives the deterministic datapoint ID for a chunk:
// doc_<index>_<page>_<hash of the first 50 characters, mod 100000>.
func RecordID(index, page int, text string) string {
	prefix := text
	if runes := []rune(text); len(runes) > 50 {
		prefix = string(runes[:50])
	}
	h := fnv.New32a()
	h.Write([]byte(prefix))
	return fmt.Sprintf("doc_%d_%d_%d", index, page, h.Sum32()%100000)
}

func metadataFor(c models.Chunk) models.RecordMetadata {
	// Free-text fields are capped so one oversized description cannot blow
	// the per-datapoint metadata budget.
	return models.RecordMetadata{
		Text:        c.Text,
		URL:         truncate(c.URL, 500),
		Page:        c.PageNumber(),
		SourceType:  c.SourceType,
		SourceURL:   truncate(c.SourceURL, 500),
		Description: truncate(c.Description, 500),
		LocalSource: truncate(c.LocalSource, 200),
		PDFURL:      truncate(c.PDFURL, 500),
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
