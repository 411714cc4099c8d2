package ocr

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/retry"
)

// Source is one document (or chunk of one) handed to a provider.
type Source struct {
	Name     string
	Path     string // local file holding Data, when the provider wants a file
	Data     []byte
	MimeType string
	Pages    int // page count when known, 0 otherwise
}

// Provider recognizes a whole source in one logical call.
type Provider interface {
	Name() string
	// MaxPages is the per-call page cap, 0 for none.
	MaxPages() int
	Supports(mimeType string) bool
	Recognize(ctx context.Context, src Source) (*Result, error)
}

// PollStatus is the state of an asynchronous OCR task.
type PollStatus string

const (
	StatusPending   PollStatus = "pending"
	StatusCompleted PollStatus = "completed"
	StatusFailed    PollStatus = "error"
)

// PollResult is one status check of an asynchronous OCR task.
type PollResult struct {
	Status PollStatus
	Result *Result
	Error  string
}

// AsyncBackend is an OCR service with a submit/poll contract.
type AsyncBackend interface {
	Name() string
	MaxPages() int
	Supports(mimeType string) bool
	Submit(ctx context.Context, src Source) (string, error)
	Poll(ctx context.Context, taskID string) (*PollResult, error)
}

// PollingProvider adapts an AsyncBackend to Provider by polling each task
// until it completes, fails, or the policy budget is spent.
type PollingProvider struct {
	backend AsyncBackend
	policy  retry.Policy
	logger  *logging.Logger
}

// NewPollingProvider wraps backend with the given poll policy.
func NewPollingProvider(backend AsyncBackend, policy retry.Policy) *PollingProvider {
	return &PollingProvider{
		backend: backend,
		policy:  policy,
		logger:  logging.NewLogger("OCR"),
	}
}

func (p *PollingProvider) Name() string                  { return p.backend.Name() }
func (p *PollingProvider) MaxPages() int                 { return p.backend.MaxPages() }
func (p *PollingProvider) Supports(mimeType string) bool { return p.backend.Supports(mimeType) }

var errTaskFailed = stderrors.New("OCR task failed")

// Recognize submits src and polls the task to a terminal state. Submission
// and task failures become OCR submission errors; an exhausted budget
// becomes an OCR timeout error.
func (p *PollingProvider) Recognize(ctx context.Context, src Source) (*Result, error) {
	name := p.backend.Name()

	taskID, err := p.backend.Submit(ctx, src)
	if err != nil {
		return nil, errors.NewOCRSubmissionError("", name, -1, err)
	}
	p.logger.Debug("OCR task submitted", "provider", name, "task_id", taskID, "source", src.Name)

	res, err := retry.Poll(ctx, p.policy, func(ctx context.Context) (*Result, bool, error) {
		status, err := p.backend.Poll(ctx, taskID)
		if err != nil {
			return nil, false, retry.Transient(err)
		}
		switch status.Status {
		case StatusCompleted:
			if status.Result == nil {
				return nil, false, fmt.Errorf("%w: task %s completed without a result", errTaskFailed, taskID)
			}
			return status.Result, true, nil
		case StatusFailed:
			msg := strings.TrimSpace(status.Error)
			if msg == "" {
				msg = "no error message"
			}
			return nil, false, fmt.Errorf("%w: task %s: %s", errTaskFailed, taskID, msg)
		default:
			return nil, false, nil
		}
	})
	if err != nil {
		if stderrors.Is(err, retry.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewOCRTimeoutError("", name, -1, p.policy.Timeout, err).
				WithDetail("task_id", taskID)
		}
		return nil, errors.NewOCRSubmissionError("", name, -1, err).WithDetail("task_id", taskID)
	}

	if res.Provider == "" {
		res.Provider = name
	}
	return res, nil
}
