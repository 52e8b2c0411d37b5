// Package upload moves embedded records into the vector index. The
// coordinator inspects the index's capabilities once per run: indexes that
// accept streaming updates get batched upserts, everything else gets the
// staged bulk-import path (NDJSON in object storage, then a tracked import
// job).
package upload

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/asaifulas/ragcrawler/internal/config"
	objectclient "github.com/asaifulas/ragcrawler/internal/core/object-client"
	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
	"github.com/asaifulas/ragcrawler/internal/models"
	"github.com/asaifulas/ragcrawler/internal/retry"
)

// Upload modes reported back to the caller.
const (
	ModeStream = "stream"
	ModeBatch  = "batch"
)

// Report summarizes one upload run.
type Report struct {
	Mode       string
	Upserted   int
	JobID      string
	StagingURL string
}

// ImportFailedError is returned when a batch import reaches IMPORT_FAILED or
// never reaches a terminal state inside the polling window. The staged file
// is deliberately left in place for inspection and re-import.
type ImportFailedError struct {
	JobID      string
	StagingURL string
	Reason     string
}

func (e *ImportFailedError) Error() string {
	return fmt.Sprintf("import job %s failed: %s (staged file kept at %s)", e.JobID, e.Reason, e.StagingURL)
}

// Coordinator drives uploads against one index and one staging bucket.
type Coordinator struct {
	index   vectorindex.Index
	objects objectclient.ObjectClient
	bucket  string

	batchSize    int
	pollInterval time.Duration
	pollTimeout  time.Duration
	policy       retry.Policy
	now          func() time.Time
}

func NewCoordinator(cfg *config.Config, index vectorindex.Index, objects objectclient.ObjectClient) *Coordinator {
	policy := retry.Default()
	policy.Retryable = vectorindex.IsThrottled
	return &Coordinator{
		index:        index,
		objects:      objects,
		bucket:       cfg.BucketName,
		batchSize:    cfg.UploadBatchSize,
		pollInterval: cfg.ImportPollInterval,
		pollTimeout:  cfg.ImportPollTimeout,
		policy:       policy,
		now:          time.Now,
	}
}

// Upload writes records through whichever path the index supports. The same
// records can be uploaded again later; datapoint IDs make the write
// idempotent either way.
func (c *Coordinator) Upload(ctx context.Context, records []models.VectorRecord) (*Report, error) {
	if len(records) == 0 {
		return &Report{}, nil
	}
	caps, err := c.index.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index capabilities: %w", err)
	}

	points := DatapointsFor(records)
	if caps.StreamUpdate {
		return c.uploadStreaming(ctx, points)
	}
	return c.uploadBatch(ctx, points)
}

func (c *Coordinator) uploadStreaming(ctx context.Context, points []vectorindex.Datapoint) (*Report, error) {
	report := &Report{Mode: ModeStream}
	size := c.batchSize
	if size <= 0 {
		size = 100
	}
	for start := 0; start < len(points); start += size {
		end := start + size
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]
		err := c.policy.Do(ctx, func() error {
			return c.index.Upsert(ctx, batch)
		})
		if err != nil {
			return report, fmt.Errorf("upsert datapoints %d..%d: %w", start, end-1, err)
		}
		report.Upserted += len(batch)
	}
	log.Printf("streamed %d datapoints to the index", report.Upserted)
	return report, nil
}

func (c *Coordinator) uploadBatch(ctx context.Context, points []vectorindex.Datapoint) (*Report, error) {
	report := &Report{Mode: ModeBatch}

	var buf bytes.Buffer
	if err := EncodeNDJSON(&buf, points); err != nil {
		return report, err
	}

	key := fmt.Sprintf("vector-updates/%s/datapoints.json", c.now().UTC().Format("20060102-150405"))
	stagingURL, err := c.objects.UploadFile(ctx, c.bucket, key, buf.Bytes(), "application/x-ndjson")
	if err != nil {
		return report, fmt.Errorf("stage datapoints file: %w", err)
	}
	report.StagingURL = stagingURL
	log.Printf("staged %d datapoints at %s", len(points), stagingURL)

	var job *vectorindex.ImportJob
	err = c.policy.Do(ctx, func() error {
		var startErr error
		job, startErr = c.index.StartImport(ctx, stagingURL)
		return startErr
	})
	if err != nil {
		return report, fmt.Errorf("trigger import: %w", err)
	}
	report.JobID = job.ID

	final, err := c.awaitImport(ctx, job.ID)
	if err != nil {
		return report, err
	}
	if final.State == vectorindex.JobStateFailed {
		return report, &ImportFailedError{JobID: job.ID, StagingURL: stagingURL, Reason: final.Error}
	}
	report.Upserted = final.Datapoints
	log.Printf("import job %s applied %d datapoints", job.ID, final.Datapoints)
	return report, nil
}

// awaitImport polls the job until it terminates or the polling window closes.
// A job still running at the deadline is reported as failed; the job itself
// keeps running server-side and can be checked again later.
func (c *Coordinator) awaitImport(ctx context.Context, jobID string) (*vectorindex.ImportJob, error) {
	interval := c.pollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := c.now().Add(c.pollTimeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.index.ImportStatus(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("poll import job %s: %w", jobID, err)
		}
		if job.Done() {
			return job, nil
		}
		if c.pollTimeout > 0 && !c.now().Before(deadline) {
			return nil, &ImportFailedError{
				JobID:      jobID,
				StagingURL: job.StagingURL,
				Reason:     fmt.Sprintf("still %s after %s", job.State, c.pollTimeout),
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
