package vectorindex

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/asaifulas/ragcrawler/internal/config"
	objectclient "github.com/asaifulas/ragcrawler/internal/core/object-client"
)

//go:embed scripts/initdb.sql

var bootstrapFS embed.FS

// importBatchSize bounds the transaction size of the async import worker.
const importBatchSize = 500

// PgIndex implements Index on Postgres with the pgvector extension. Batch
// imports read staged NDJSON back from object storage and apply it through
// the same upsert path the streaming writer uses.
type PgIndex struct {
	db      *sql.DB
	objects objectclient.ObjectClient
	dim     int
}

func NewPgIndex(ctx context.Context, cfg *config.Config, objects objectclient.ObjectClient) (*PgIndex, error) {
	if cfg == nil {
		return nil, fmt.Errorf("index configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := ensureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &PgIndex{db: db, objects: objects, dim: cfg.EmbedDim}, nil
}

func ensureBootstrapped(ctx context.Context, db *sql.DB, dim int) error {
	bootCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(bootCtx, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'index_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if exists {
		var stored int
		if err := db.QueryRowContext(bootCtx, `SELECT dimension FROM index_meta WHERE version = 1`).Scan(&stored); err == nil {
			if stored != dim {
				return fmt.Errorf("index dimension is %d but configuration expects %d", stored, dim)
			}
			return nil
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("meta version check failed: %w", err)
		}
	}
	return runBootstrap(bootCtx, db, dim)
}

func runBootstrap(ctx context.Context, db *sql.DB, dim int) error {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}
	script := strings.ReplaceAll(string(sqlBytes), "__DIM__", strconv.Itoa(dim))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

func (p *PgIndex) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PgIndex) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	err := p.db.QueryRowContext(ctx,
		`SELECT dimension, distance, stream_update FROM index_meta WHERE version = 1`).
		Scan(&caps.Dimension, &caps.Distance, &caps.StreamUpdate)
	if err != nil {
		return Capabilities{}, wrapDBError("Capabilities", err)
	}
	return caps, nil
}

// Upsert writes points in one transaction. Conflicting datapoint IDs are
// overwritten, which makes re-runs of the crawler idempotent.
func (p *PgIndex) Upsert(ctx context.Context, points []Datapoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return wrapDBError("Upsert", err)
	}

	const q = `
		INSERT INTO datapoints (datapoint_id, embedding, restricts)
		VALUES ($1, $2, $3)
		ON CONFLICT (datapoint_id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    restricts = EXCLUDED.restricts,
		    updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return wrapDBError("Upsert", err)
	}
	defer stmt.Close()

	for i := range points {
		pt := &points[i]
		if len(pt.FeatureVector) != p.dim {
			_ = tx.Rollback()
			return &IndexError{Op: "Upsert", Err: fmt.Errorf(
				"datapoint %s has dimension %d, index expects %d", pt.DatapointID, len(pt.FeatureVector), p.dim)}
		}
		restricts, err := json.Marshal(pt.Restricts)
		if err != nil {
			_ = tx.Rollback()
			return &IndexError{Op: "Upsert", Err: fmt.Errorf("marshal restricts for %s: %w", pt.DatapointID, err)}
		}
		vec := pgvector.NewVector(pt.FeatureVector)
		if _, err := stmt.ExecContext(ctx, pt.DatapointID, vec, restricts); err != nil {
			_ = tx.Rollback()
			return wrapDBError("Upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapDBError("Upsert", err)
	}
	return nil
}

// StartImport records an IMPORT_TRIGGERED job for the staged NDJSON file and
// applies it in the background. Callers observe the outcome via ImportStatus.
func (p *PgIndex) StartImport(ctx context.Context, stagingURL string) (*ImportJob, error) {
	job := &ImportJob{
		ID:          uuid.NewString(),
		StagingURL:  stagingURL,
		State:       JobStateTriggered,
		TriggeredAt: time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO import_jobs (id, staging_url, state, triggered_at)
		VALUES ($1, $2, $3, $4)`,
		job.ID, job.StagingURL, job.State, job.TriggeredAt)
	if err != nil {
		return nil, wrapDBError("StartImport", err)
	}

	go p.runImport(job.ID, stagingURL)
	return job, nil
}

func (p *PgIndex) ImportStatus(ctx context.Context, jobID string) (*ImportJob, error) {
	const q = `
		SELECT id, staging_url, state, datapoints, error, triggered_at, finished_at
		FROM import_jobs WHERE id = $1
	`
	var job ImportJob
	err := p.db.QueryRowContext(ctx, q, jobID).Scan(
		&job.ID, &job.StagingURL, &job.State, &job.Datapoints, &job.Error, &job.TriggeredAt, &job.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &IndexError{Op: "ImportStatus", Err: fmt.Errorf("import job not found: %s", jobID)}
	}
	if err != nil {
		return nil, wrapDBError("ImportStatus", err)
	}
	return &job, nil
}

// runImport is the async import worker. It re-reads the staged file, applies
// it in bounded transactions and records the terminal state on the job row.
func (p *PgIndex) runImport(jobID, stagingURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	count, err := p.applyStagedFile(ctx, stagingURL)
	state := JobStateSucceeded
	msg := ""
	if err != nil {
		state = JobStateFailed
		msg = err.Error()
		log.Printf("import job %s failed: %v", jobID, err)
	} else {
		log.Printf("import job %s succeeded: %d datapoints", jobID, count)
	}

	if _, uerr := p.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET state = $2, datapoints = $3, error = $4, finished_at = now()
		WHERE id = $1`,
		jobID, state, count, msg); uerr != nil {
		log.Printf("import job %s: recording state %s failed: %v", jobID, state, uerr)
	}
}

func (p *PgIndex) applyStagedFile(ctx context.Context, stagingURL string) (int, error) {
	bucket, key, err := objectclient.ParseURL(stagingURL)
	if err != nil {
		return 0, err
	}
	body, err := p.objects.GetObjectReader(ctx, bucket, key)
	if err != nil {
		return 0, fmt.Errorf("open staged file: %w", err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		batch []Datapoint
		total int
		line  int
	)
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var pt Datapoint
		if err := json.Unmarshal([]byte(raw), &pt); err != nil {
			return total, fmt.Errorf("staged file line %d: %w", line, err)
		}
		batch = append(batch, pt)
		if len(batch) >= importBatchSize {
			if err := p.Upsert(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("read staged file: %w", err)
	}
	if len(batch) > 0 {
		if err := p.Upsert(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}

// Search returns the topK nearest datapoints by cosine distance. Score is
// 1 - distance so that 1.0 means identical direction.
func (p *PgIndex) Search(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	if topK <= 0 {
		topK = 10
	}
	const q = `
		SELECT datapoint_id, restricts, 1 - (embedding <=> $1) AS score
		FROM datapoints
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	vec := pgvector.NewVector(vector)
	rows, err := p.db.QueryContext(ctx, q, vec, topK)
	if err != nil {
		return nil, wrapDBError("Search", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var (
			n   Neighbor
			raw []byte
		)
		if err := rows.Scan(&n.DatapointID, &raw, &n.Score); err != nil {
			return nil, wrapDBError("Search", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &n.Restricts); err != nil {
				return nil, &IndexError{Op: "Search", Err: fmt.Errorf("decode restricts for %s: %w", n.DatapointID, err)}
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("Search", err)
	}
	return out, nil
}

// wrapDBError classifies Postgres capacity rejections (SQLSTATE classes 53
// and 57) as throttled so callers back off instead of failing the batch.
func wrapDBError(op string, err error) error {
	var pgErr *pgconn.PgError
	throttled := false
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		throttled = class == "53" || class == "57"
	}
	return &IndexError{Op: op, Throttled: throttled, Err: err}
}
