// Package vectorindex abstracts the vector index behind stream and batch
// write paths plus nearest-neighbor search, so the upload coordinator and
// query service never depend on a specific backend.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Restrict is one namespaced filter attached to a datapoint.
type Restrict struct {
	Namespace string   `json:"namespace"`
	AllowList []string `json:"allow_list"`
}

// Datapoint is the index's unit of storage. DatapointID is the idempotency
// key: upserting the same ID twice overwrites, never duplicates.
type Datapoint struct {
	DatapointID   string     `json:"datapoint_id"`
	FeatureVector []float32  `json:"feature_vector"`
	Restricts     []Restrict `json:"restricts,omitempty"`
}

// Neighbor is one search result. Score is a similarity in [0,1], higher is
// closer.
type Neighbor struct {
	DatapointID string
	Score       float32
	Restricts   []Restrict
}

// Capabilities describes the index the caller is talking to. StreamUpdate
// decides whether the uploader streams upserts or stages a bulk import.
type Capabilities struct {
	Dimension    int
	Distance     string
	StreamUpdate bool
}

// Import job states. A job moves STAGED -> IMPORT_TRIGGERED and terminates in
// exactly one of IMPORT_SUCCEEDED or IMPORT_FAILED.
const (
	JobStateTriggered = "IMPORT_TRIGGERED"
	JobStateSucceeded = "IMPORT_SUCCEEDED"
	JobStateFailed    = "IMPORT_FAILED"
)

// ImportJob is the persisted record of one batch import.
type ImportJob struct {
	ID          string
	StagingURL  string
	State       string
	Datapoints  int
	Error       string
	TriggeredAt time.Time
	FinishedAt  *time.Time
}

// Done reports whether the job reached a terminal state.
func (j *ImportJob) Done() bool {
	return j.State == JobStateSucceeded || j.State == JobStateFailed
}

// Index is the vector index contract.
type Index interface {
	Capabilities(ctx context.Context) (Capabilities, error)
	Upsert(ctx context.Context, points []Datapoint) error
	StartImport(ctx context.Context, stagingURL string) (*ImportJob, error)
	ImportStatus(ctx context.Context, jobID string) (*ImportJob, error)
	Search(ctx context.Context, vector []float32, topK int) ([]Neighbor, error)
	Close() error
}

// IndexError classifies a failure of the index backend.
type IndexError struct {
	Op        string
	Throttled bool
	Err       error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vectorindex.%s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// IsThrottled reports whether err is a transient capacity rejection that the
// uploader should retry with backoff.
func IsThrottled(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie) && ie.Throttled
}
