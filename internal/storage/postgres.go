/**
 * PostgreSQL Client for the docparse worker
 *
 * Handles parse job tracking: one row per job, upserted at every status
 * change so the worker can create the row if the API did not.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
)

// Job statuses
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update. Zero values leave the stored
// column untouched on conflict.
type JobUpdate struct {
	JobID            string
	UserID           string
	FileName         string
	BucketPath       string
	MimeType         string
	Status           string
	ArtifactPath     string
	Provider         string
	PageCount        int
	LineCount        int
	TotalChunks      int
	ChunksProcessed  int
	FailedChunks     []int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorStage       string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// ParseJob is a stored parse job row
type ParseJob struct {
	ID               string
	UserID           string
	FileName         string
	BucketPath       string
	MimeType         string
	Status           string
	ArtifactPath     string
	Provider         string
	PageCount        int
	LineCount        int
	TotalChunks      int
	ChunksProcessed  int
	FailedChunks     []int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorStage       string
	ErrorMessage     string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS docparse;
	CREATE TABLE IF NOT EXISTS docparse.parse_jobs (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL DEFAULT 'anonymous',
		file_name          TEXT NOT NULL DEFAULT '',
		bucket_path        TEXT NOT NULL DEFAULT '',
		mime_type          TEXT,
		status             TEXT NOT NULL,
		artifact_path      TEXT,
		provider           TEXT,
		page_count         INTEGER,
		line_count         INTEGER,
		total_chunks       INTEGER,
		chunks_processed   INTEGER,
		failed_chunks      INTEGER[],
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_stage        TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS parse_jobs_bucket_path_idx ON docparse.parse_jobs (bucket_path);
`

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the job table if it does not exist
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create parse job schema: %w", err)
	}
	return nil
}

const upsertJobSQL = `
	INSERT INTO docparse.parse_jobs (
		id, user_id, file_name, bucket_path, mime_type, status,
		artifact_path, provider, page_count, line_count,
		total_chunks, chunks_processed, failed_chunks, processing_time_ms,
		error_code, error_stage, error_message, metadata,
		created_at, updated_at
	) VALUES (
		$1, COALESCE(NULLIF($2, ''), 'anonymous'), $3, $4, NULLIF($5, ''), $6,
		NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, 0), NULLIF($10, 0),
		NULLIF($11, 0), NULLIF($12, 0), $13, NULLIF($14, 0),
		NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), COALESCE($18::jsonb, '{}'::jsonb),
		NOW(), NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		user_id = COALESCE(NULLIF(EXCLUDED.user_id, 'anonymous'), docparse.parse_jobs.user_id),
		file_name = COALESCE(NULLIF(EXCLUDED.file_name, ''), docparse.parse_jobs.file_name),
		bucket_path = COALESCE(NULLIF(EXCLUDED.bucket_path, ''), docparse.parse_jobs.bucket_path),
		mime_type = COALESCE(EXCLUDED.mime_type, docparse.parse_jobs.mime_type),
		artifact_path = COALESCE(EXCLUDED.artifact_path, docparse.parse_jobs.artifact_path),
		provider = COALESCE(EXCLUDED.provider, docparse.parse_jobs.provider),
		page_count = COALESCE(EXCLUDED.page_count, docparse.parse_jobs.page_count),
		line_count = COALESCE(EXCLUDED.line_count, docparse.parse_jobs.line_count),
		total_chunks = COALESCE(EXCLUDED.total_chunks, docparse.parse_jobs.total_chunks),
		chunks_processed = COALESCE(EXCLUDED.chunks_processed, docparse.parse_jobs.chunks_processed),
		failed_chunks = COALESCE(EXCLUDED.failed_chunks, docparse.parse_jobs.failed_chunks),
		processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, docparse.parse_jobs.processing_time_ms),
		error_code = EXCLUDED.error_code,
		error_stage = EXCLUDED.error_stage,
		error_message = EXCLUDED.error_message,
		metadata = docparse.parse_jobs.metadata || EXCLUDED.metadata,
		updated_at = NOW()
	RETURNING id
`

// jobArgs flattens an update into the positional arguments of upsertJobSQL.
func jobArgs(update *JobUpdate) ([]interface{}, error) {
	metadataJSON := []byte("{}")
	if len(update.Metadata) > 0 {
		raw, err := json.Marshal(update.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sanitizeJSONForPostgres(raw)
	}

	var failed interface{}
	if len(update.FailedChunks) > 0 {
		chunks := make([]int64, len(update.FailedChunks))
		for i, c := range update.FailedChunks {
			chunks[i] = int64(c)
		}
		failed = pq.Array(chunks)
	}

	return []interface{}{
		update.JobID,            // $1
		update.UserID,           // $2
		update.FileName,         // $3
		update.BucketPath,       // $4
		update.MimeType,         // $5
		update.Status,           // $6
		update.ArtifactPath,     // $7
		update.Provider,         // $8
		update.PageCount,        // $9
		update.LineCount,        // $10
		update.TotalChunks,      // $11
		update.ChunksProcessed,  // $12
		failed,                  // $13
		update.ProcessingTimeMs, // $14
		update.ErrorCode,        // $15
		update.ErrorStage,       // $16
		update.ErrorMessage,     // $17
		string(metadataJSON),    // $18
	}, nil
}

// UpdateJobStatus upserts the job row with the given update
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	args, err := jobArgs(update)
	if err != nil {
		return err
	}

	var returnedID string
	if err := p.db.QueryRowContext(ctx, upsertJobSQL, args...).Scan(&returnedID); err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w", update.JobID, update.Status, err)
	}
	return nil
}

// GetJobByID retrieves a job by ID, or errors.ErrNotFound
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*ParseJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, user_id, file_name, bucket_path, mime_type, status,
			artifact_path, provider, page_count, line_count,
			total_chunks, chunks_processed, failed_chunks, processing_time_ms,
			error_code, error_stage, error_message, metadata,
			created_at, updated_at
		FROM docparse.parse_jobs
		WHERE id = $1
	`

	var (
		job                                       ParseJob
		mimeType, artifactPath, provider          sql.NullString
		errorCode, errorStage, errorMessage       sql.NullString
		pageCount, lineCount, totalChunks, chunks sql.NullInt64
		processingTimeMs                          sql.NullInt64
		failed                                    pq.Int64Array
		metadataJSON                              []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.UserID, &job.FileName, &job.BucketPath, &mimeType, &job.Status,
		&artifactPath, &provider, &pageCount, &lineCount,
		&totalChunks, &chunks, &failed, &processingTimeMs,
		&errorCode, &errorStage, &errorMessage, &metadataJSON,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: job %s", errors.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.MimeType = mimeType.String
	job.ArtifactPath = artifactPath.String
	job.Provider = provider.String
	job.PageCount = int(pageCount.Int64)
	job.LineCount = int(lineCount.Int64)
	job.TotalChunks = int(totalChunks.Int64)
	job.ChunksProcessed = int(chunks.Int64)
	job.ProcessingTimeMs = processingTimeMs.Int64
	job.ErrorCode = errorCode.String
	job.ErrorStage = errorStage.String
	job.ErrorMessage = errorMessage.String
	for _, c := range failed {
		job.FailedChunks = append(job.FailedChunks, int(c))
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escapes JSONB rejects. \u0000 is
// dropped; other control characters become a space.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
