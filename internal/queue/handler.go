package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/processor"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

// DefaultProcessingTimeout bounds one job when no timeout is configured.
const DefaultProcessingTimeout = 15 * time.Minute

// jobRunner runs one job through the processor and keeps the job record
// in step. Both consumers share it.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.DocumentProcessorInterface, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := DefaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: proc, timeout: timeout, logger: logger}
}

// run processes one payload under the processing timeout. The job record
// is marked processing first; completion and failure are left to the
// caller, which knows whether a retry follows.
func (r *jobRunner) run(ctx context.Context, p *JobPayload) (*processor.ProcessResult, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.NewSourceFetchError(p.JobID, p.BucketPath, err)
	}

	// The job row may not exist yet; the upsert creates it.
	if err := r.processor.UpdateJobStatus(ctx, processingUpdate(p)); err != nil {
		r.logger.Warn(fmt.Sprintf("[Job %s] Could not mark job as processing", p.JobID), "error", err)
	}

	r.logger.Info(fmt.Sprintf("[Job %s] Processing document: file=%s, path=%s, size=%d bytes, user=%s",
		p.JobID, p.FileName, p.BucketPath, p.FileSize, p.UserID), "timeout", r.timeout)

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := r.processor.ProcessDocument(processCtx, p.Request())
	if err != nil {
		if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) && errors.CodeOf(err) != errors.ErrorProcessingTimeout {
			r.logger.Warn(fmt.Sprintf("[Job %s] Processing timed out after %v", p.JobID, time.Since(start)))
			err = errors.NewProcessingTimeoutError(p.JobID, r.timeout, err)
		}
		return nil, err
	}
	return res, nil
}

// complete records a successful job.
func (r *jobRunner) complete(ctx context.Context, p *JobPayload, res *processor.ProcessResult) {
	if err := r.processor.UpdateJobStatus(ctx, completedUpdate(p, res)); err != nil {
		r.logger.Error(fmt.Sprintf("[Job %s] Failed to update status to completed", p.JobID), "error", err)
		return
	}
	r.logger.Info(fmt.Sprintf("[Job %s] Completed", p.JobID),
		"artifact", res.ArtifactPath, "pages", res.PageCount, "lines", res.LineCount,
		"duration_ms", res.ProcessingTimeMs)
}

// fail records a job that will not be retried and returns the update it
// stored.
func (r *jobRunner) fail(ctx context.Context, p *JobPayload, err error, elapsed time.Duration) *storage.JobUpdate {
	update := failedUpdate(p, err, elapsed)
	r.logger.Error(fmt.Sprintf("[Job %s] Failed", p.JobID),
		"code", update.ErrorCode, "stage", update.ErrorStage, "error", err)
	if uerr := r.processor.UpdateJobStatus(ctx, update); uerr != nil {
		r.logger.Warn(fmt.Sprintf("[Job %s] Failed to update status to failed", p.JobID), "error", uerr)
	}
	return update
}
