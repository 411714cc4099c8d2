package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the docparse worker
 *
 * Every failure that leaves the pipeline is a *ProcessingError carrying
 * the stage it came from, so callers can report which step failed.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorSourceFetch         ErrorCode = "SOURCE_FETCH_FAILED"
	ErrorOCRSubmission       ErrorCode = "OCR_SUBMISSION_FAILED"
	ErrorOCRTimeout          ErrorCode = "OCR_TIMEOUT"
	ErrorClassificationParse ErrorCode = "CLASSIFICATION_PARSE_FAILED"
	ErrorClassifierFailed    ErrorCode = "CLASSIFIER_FAILED"
	ErrorIndexIntegrity      ErrorCode = "INDEX_INTEGRITY"
	ErrorArtifactWrite       ErrorCode = "ARTIFACT_WRITE_FAILED"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// Stage names the pipeline step an error belongs to.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageOCR      Stage = "ocr"
	StageClassify Stage = "classify"
	StageAssemble Stage = "assemble"
	StagePersist  Stage = "persist"
	StageIndex    Stage = "index"
)

// ErrNotFound is returned by artifact stores when a path does not exist.
var ErrNotFound = stderrors.New("artifact not found")

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Stage     Stage
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// WithDetail records one more diagnostic field and returns the error.
func (e *ProcessingError) WithDetail(key string, value interface{}) *ProcessingError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, stage Stage, jobID, message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      code,
		Stage:     stage,
		Message:   message,
		JobID:     jobID,
		Timestamp: time.Now(),
		Details:   map[string]interface{}{},
		Cause:     cause,
	}
}

// Factory functions for common errors

func NewSourceFetchError(jobID string, path string, cause error) *ProcessingError {
	return newError(ErrorSourceFetch, StageFetch, jobID,
		fmt.Sprintf("Failed to fetch source document: %s", path), cause).
		WithDetail("source_path", path)
}

// NewOCRSubmissionError reports a rejected or failed OCR call. chunk is -1
// when the whole document was submitted at once.
func NewOCRSubmissionError(jobID string, provider string, chunk int, cause error) *ProcessingError {
	return newError(ErrorOCRSubmission, StageOCR, jobID,
		fmt.Sprintf("OCR submission failed (provider: %s)", provider), cause).
		WithDetail("ocr_provider", provider).
		WithDetail("chunk", chunk)
}

func NewOCRTimeoutError(jobID string, provider string, chunk int, budget time.Duration, cause error) *ProcessingError {
	return newError(ErrorOCRTimeout, StageOCR, jobID,
		fmt.Sprintf("OCR did not complete within %v (provider: %s)", budget, provider), cause).
		WithDetail("ocr_provider", provider).
		WithDetail("chunk", chunk).
		WithDetail("timeout_duration", budget.String())
}

func NewClassificationParseError(jobID string, pages []int, attempts int, cause error) *ProcessingError {
	return newError(ErrorClassificationParse, StageClassify, jobID,
		fmt.Sprintf("Classifier output unusable after %d attempt(s)", attempts), cause).
		WithDetail("pages", pages).
		WithDetail("attempts", attempts)
}

func NewClassifierError(jobID string, classifier string, attempts int, cause error) *ProcessingError {
	return newError(ErrorClassifierFailed, StageClassify, jobID,
		fmt.Sprintf("Classifier %s failed after %d attempt(s)", classifier, attempts), cause).
		WithDetail("classifier", classifier).
		WithDetail("attempts", attempts)
}

// NewIndexIntegrityError reports a group or entity that points outside the
// line array it is supposed to reference.
func NewIndexIntegrityError(jobID string, page int, index int, size int, message string) *ProcessingError {
	return newError(ErrorIndexIntegrity, StageAssemble, jobID,
		fmt.Sprintf("Index %d out of range on page %d (size %d): %s", index, page, size, message), nil).
		WithDetail("page", page).
		WithDetail("index", index).
		WithDetail("size", size)
}

func NewArtifactWriteError(jobID string, path string, cause error) *ProcessingError {
	return newError(ErrorArtifactWrite, StagePersist, jobID,
		fmt.Sprintf("Failed to persist parsed document to %s", path), cause).
		WithDetail("artifact_path", path)
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return newError(ErrorProcessingTimeout, "", jobID,
		fmt.Sprintf("Processing timed out after %v", duration), cause).
		WithDetail("timeout_duration", duration.String())
}

func NewUnsupportedFormatError(jobID string, mimeType string, provider string) *ProcessingError {
	return newError(ErrorUnsupportedFormat, StageOCR, jobID,
		fmt.Sprintf("Unsupported file format for %s: %s", provider, mimeType), nil).
		WithDetail("mime_type", mimeType).
		WithDetail("ocr_provider", provider)
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return newError(ErrorStorageFailed, StagePersist, jobID, "Failed to store processing results", cause)
}

// AsProcessingError finds the first *ProcessingError in err's chain.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the code of the first *ProcessingError in err's chain, or
// an empty code.
func CodeOf(err error) ErrorCode {
	if pe, ok := AsProcessingError(err); ok {
		return pe.Code
	}
	return ""
}

// WithJob stamps jobID onto the first *ProcessingError in err's chain when
// it has none yet, and returns err unchanged otherwise.
func WithJob(err error, jobID string) error {
	if pe, ok := AsProcessingError(err); ok && pe.JobID == "" {
		pe.JobID = jobID
	}
	return err
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.Stage != "" {
		result["stage"] = string(e.Stage)
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
