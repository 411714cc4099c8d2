/**
 * Queue payloads shared by the Redis list consumer, the asynq server and
 * the producers.
 *
 * Compatible with the TypeScript API that enqueues parse jobs: fileBuffer
 * may arrive as a base64 string or as a serialized Node.js Buffer.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/processor"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

// TaskParseDocument is the asynq task type of a parse job.
const TaskParseDocument = "parse-document"

// DefaultQueueName is used when no queue name is configured.
const DefaultQueueName = "docparse:jobs"

// RedisJobData represents a job from the Redis list queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload is the trigger of one parse job.
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId"`
	FileName   string                 `json:"fileName"`
	BucketPath string                 `json:"bucketPath"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileBuffer []byte                 `json:"fileBuffer,omitempty"` // base64 on the wire
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts fileBuffer as a base64 string or as a Node.js
// Buffer object ({"type":"Buffer","data":[...]}).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer json.RawMessage `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	p.FileBuffer = nil
	if len(aux.FileBuffer) == 0 || string(aux.FileBuffer) == "null" {
		return nil
	}

	switch aux.FileBuffer[0] {
	case '"':
		var s string
		if err := json.Unmarshal(aux.FileBuffer, &s); err != nil {
			return fmt.Errorf("invalid fileBuffer string: %w", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case '{':
		var buf struct {
			Type string `json:"type"`
			Data []int  `json:"data"`
		}
		if err := json.Unmarshal(aux.FileBuffer, &buf); err != nil {
			return fmt.Errorf("invalid Buffer object: %w", err)
		}
		if buf.Type != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		if buf.Data == nil {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(buf.Data))
		for i, b := range buf.Data {
			if b < 0 || b > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(b)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object")
	}
	return nil
}

// Validate checks the fields every job needs.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if p.BucketPath == "" {
		return fmt.Errorf("bucketPath is required")
	}
	return nil
}

// Request converts the payload into a processor request.
func (p *JobPayload) Request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		FileName:   p.FileName,
		BucketPath: p.BucketPath,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileBuffer: p.FileBuffer,
		Metadata:   p.Metadata,
	}
}

func (p *JobPayload) baseUpdate(status string) *storage.JobUpdate {
	return &storage.JobUpdate{
		JobID:      p.JobID,
		UserID:     p.UserID,
		FileName:   p.FileName,
		BucketPath: p.BucketPath,
		MimeType:   p.MimeType,
		Status:     status,
		Metadata:   p.Metadata,
	}
}

// processingUpdate marks the job as picked up by a worker.
func processingUpdate(p *JobPayload) *storage.JobUpdate {
	return p.baseUpdate(storage.JobStatusProcessing)
}

// completedUpdate records a finished job.
func completedUpdate(p *JobPayload, res *processor.ProcessResult) *storage.JobUpdate {
	u := p.baseUpdate(storage.JobStatusCompleted)
	u.ArtifactPath = res.ArtifactPath
	u.MimeType = res.MimeType
	u.Provider = res.Provider
	u.PageCount = res.PageCount
	u.LineCount = res.LineCount
	u.TotalChunks = res.TotalChunks
	u.ChunksProcessed = res.ChunksProcessed
	u.FailedChunks = res.FailedChunks
	u.ProcessingTimeMs = res.ProcessingTimeMs

	if len(res.IndexFailures) > 0 {
		meta := make(map[string]interface{}, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			meta[k] = v
		}
		meta["indexFailures"] = res.IndexFailures
		u.Metadata = meta
	}
	return u
}

// failedUpdate records a job that will not be retried. Code and stage come
// from the ProcessingError in err's chain when there is one.
func failedUpdate(p *JobPayload, err error, elapsed time.Duration) *storage.JobUpdate {
	u := p.baseUpdate(storage.JobStatusFailed)
	u.ErrorMessage = err.Error()
	u.ProcessingTimeMs = elapsed.Milliseconds()
	if pe, ok := errors.AsProcessingError(err); ok {
		u.ErrorCode = string(pe.Code)
		u.ErrorStage = string(pe.Stage)
		// Every chunk failed: record the counts for the status page.
		if total, ok := pe.Details["total_chunks"].(int); ok {
			u.TotalChunks = total
			u.FailedChunks = make([]int, total)
			for i := range u.FailedChunks {
				u.FailedChunks[i] = i
			}
		}
	} else {
		u.ErrorCode = string(errors.ErrorStorageFailed)
	}
	return u
}

// failureBody is the record kept in the errors hash of a job that has
// failed for good.
func failureBody(err error, update *storage.JobUpdate, attempts int) map[string]interface{} {
	body := map[string]interface{}{
		"error_code": update.ErrorCode,
		"message":    update.ErrorMessage,
	}
	if pe, ok := errors.AsProcessingError(err); ok {
		body = pe.ToMap()
	}
	body["error"] = update.ErrorMessage
	body["attempts"] = attempts
	return body
}

// retryable reports whether a failed job is worth another attempt. Input
// problems fail the same way every time.
func retryable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrorUnsupportedFormat, errors.ErrorIndexIntegrity:
		return false
	}
	return true
}
