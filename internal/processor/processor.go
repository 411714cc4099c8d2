/**
 * Document Processor for the docparse worker
 *
 * Orchestrates the reconciliation pipeline for one source document:
 * - Fetch the source from the artifact store (or the inline job buffer)
 * - OCR through the configured provider, chunked when it caps page counts
 * - Line extraction and dense re-indexing per page
 * - Semantic grouping and Q/R/I classification
 * - Region merge and document assembly
 * - Upload of the parsed JSON next to the source
 * - Optional index fan-out (Qdrant vectors, GraphRAG)
 */

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/chunker"
	"github.com/adverant/nexus/docparse-worker/internal/classify"
	"github.com/adverant/nexus/docparse-worker/internal/document"
	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/index"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
	"github.com/adverant/nexus/docparse-worker/internal/retry"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

// DefaultArtifactSuffix is appended to the source path stem of every artifact.
const DefaultArtifactSuffix = "_parsed"

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ArtifactStore reads sources and writes artifacts by bucket path.
type ArtifactStore interface {
	Upload(ctx context.Context, storagePath string, data []byte, contentType string) error
	Download(ctx context.Context, storagePath string) ([]byte, error)
}

// Classifier groups and labels the dense lines of pages.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, pages []classify.Page) ([][]classify.Group, error)
}

// JobTracker persists job status.
type JobTracker interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Provider   ocr.Provider
	Chunker    *chunker.Chunker // nil runs the provider on the whole source
	Classifier Classifier
	Store      ArtifactStore
	Indexers   index.Fanout // optional
	Tracker    JobTracker   // optional

	TempDir        string
	MaxFileSize    int64
	ArtifactSuffix string
	DropIrrelevant bool
	FetchBackoff   retry.Backoff
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	UserID     string
	FileName   string
	BucketPath string
	MimeType   string
	FileSize   int64
	FileBuffer []byte
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	ArtifactPath     string            `json:"artifactPath"`
	PageCount        int               `json:"pageCount"`
	LineCount        int               `json:"lineCount"`
	QuestionCount    int               `json:"questionCount"`
	TotalChunks      int               `json:"totalChunks"`
	ChunksProcessed  int               `json:"chunksProcessed"`
	FailedChunks     []int             `json:"failedChunks,omitempty"`
	Provider         string            `json:"provider"`
	Classifier       string            `json:"classifier"`
	MimeType         string            `json:"mimeType"`
	IndexFailures    map[string]string `json:"indexFailures,omitempty"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`

	Document *document.Document `json:"-"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config    *ProcessorConfig
	assembler document.Assembler
	logger    *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("OCR provider is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if cfg.ArtifactSuffix == "" {
		cfg.ArtifactSuffix = DefaultArtifactSuffix
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.FetchBackoff.Attempts == 0 {
		cfg.FetchBackoff = retry.DefaultBackoff
	}

	return &DocumentProcessor{
		config:    cfg,
		assembler: document.Assembler{DropIrrelevant: cfg.DropIrrelevant},
		logger:    logging.NewLogger("Processor"),
	}, nil
}

// DeriveArtifactPath replaces the extension of the source path with
// suffix + ".json": "a/b/form.pdf" becomes "a/b/form_parsed.json".
func DeriveArtifactPath(bucketPath, suffix string) string {
	return strings.TrimSuffix(bucketPath, path.Ext(bucketPath)) + suffix + ".json"
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	log := p.logger.With("job_id", req.JobID)
	log.Info(fmt.Sprintf("[Job %s] Starting document processing pipeline", req.JobID))

	res, err := p.process(ctx, req, log)
	if err != nil {
		err = p.structure(ctx, req, err)
		log.Error(fmt.Sprintf("[Job %s] Processing failed", req.JobID),
			"code", errors.CodeOf(err), "error", err, "duration", time.Since(startTime))
		return nil, err
	}

	res.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	log.Info(fmt.Sprintf("[Job %s] Processing pipeline complete", req.JobID),
		"artifact", res.ArtifactPath,
		"pages", res.PageCount,
		"lines", res.LineCount,
		"chunks", fmt.Sprintf("%d/%d", res.ChunksProcessed, res.TotalChunks),
		"duration_ms", res.ProcessingTimeMs)
	return res, nil
}

func (p *DocumentProcessor) process(ctx context.Context, req *ProcessRequest, log *logging.Logger) (*ProcessResult, error) {
	if req.BucketPath == "" {
		return nil, errors.NewSourceFetchError(req.JobID, "", fmt.Errorf("bucket path is required"))
	}
	provider := p.config.Provider

	// Step 1: Load source
	log.Info(fmt.Sprintf("[Job %s] Step 1: Loading source %s", req.JobID, req.BucketPath))
	fileData, err := p.loadFile(ctx, req, log)
	if err != nil {
		return nil, err
	}
	if p.config.MaxFileSize > 0 && int64(len(fileData)) > p.config.MaxFileSize {
		return nil, errors.NewSourceFetchError(req.JobID, req.BucketPath,
			fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(fileData), p.config.MaxFileSize)).
			WithDetail("file_size", len(fileData))
	}

	// Step 2: Detect actual MIME type from magic bytes
	mimeType := req.MimeType
	if detected := detectMimeTypeFromMagicBytes(fileData); detected != "" && (mimeType == "" || mimeType == "application/octet-stream") {
		log.Info(fmt.Sprintf("[Job %s] Corrected MIME type from '%s' to '%s' (magic byte detection)", req.JobID, mimeType, detected))
		mimeType = detected
	}
	if !provider.Supports(mimeType) {
		return nil, errors.NewUnsupportedFormatError(req.JobID, mimeType, provider.Name())
	}

	// Step 3: Working directory, removed on every exit path
	workDir, err := p.createWorkDir(req.JobID)
	if err != nil {
		return nil, errors.NewStorageFailedError(req.JobID, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("Failed to remove working directory", "dir", workDir, "error", err)
		}
	}()
	sourceFile := filepath.Join(workDir, "source"+path.Ext(req.BucketPath))
	if err := os.WriteFile(sourceFile, fileData, 0o600); err != nil {
		return nil, errors.NewStorageFailedError(req.JobID, err)
	}

	// Step 4: OCR
	log.Info(fmt.Sprintf("[Job %s] Step 4: Running OCR (provider: %s, mime: %s)", req.JobID, provider.Name(), mimeType))
	src := ocr.Source{Name: path.Base(req.BucketPath), Path: sourceFile, Data: fileData, MimeType: mimeType}
	outcome, err := p.recognize(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(outcome.Failures) > 0 {
		log.Warn(fmt.Sprintf("[Job %s] Continuing with partial OCR result", req.JobID),
			"chunks_processed", outcome.ChunksProcessed,
			"total_chunks", outcome.TotalChunks,
			"failed_chunks", outcome.FailedChunks())
	}

	// Step 5: Extract lines and build dense views
	pages, err := ocr.Extract(outcome.Result)
	if err != nil {
		return nil, err
	}
	views := make([]ocr.DenseView, len(pages))
	batch := make([]classify.Page, len(pages))
	for i, page := range pages {
		views[i] = ocr.Reindex(page)
		// Keyed by position: backends may repeat or skip page numbers.
		batch[i] = classify.Page{Page: views[i].Page + 1, Items: views[i].Items}
	}
	log.Info(fmt.Sprintf("[Job %s] Step 5: Extracted %d pages", req.JobID, len(pages)))

	// Step 6: Classify
	log.Info(fmt.Sprintf("[Job %s] Step 6: Classifying lines (classifier: %s)", req.JobID, p.config.Classifier.Name()))
	groups, err := p.config.Classifier.Classify(ctx, batch)
	if err != nil {
		return nil, err
	}

	// Step 7: Assemble
	doc, err := p.assembler.Assemble(pages, views, groups)
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("[Job %s] Step 7: Assembled %d content lines", req.JobID, doc.LineCount()))

	// Step 8: Persist artifact; re-runs overwrite the same path
	artifactPath := DeriveArtifactPath(req.BucketPath, p.config.ArtifactSuffix)
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewArtifactWriteError(req.JobID, artifactPath, err)
	}
	log.Info(fmt.Sprintf("[Job %s] Step 8: Uploading artifact (%d bytes)", req.JobID, len(payload)), "path", artifactPath)
	if err := p.config.Store.Upload(ctx, artifactPath, payload, "application/json"); err != nil {
		return nil, errors.NewArtifactWriteError(req.JobID, artifactPath, err)
	}

	result := &ProcessResult{
		ArtifactPath:    artifactPath,
		PageCount:       len(doc.Page),
		LineCount:       doc.LineCount(),
		QuestionCount:   doc.CountRole(classify.RoleQuestion),
		TotalChunks:     outcome.TotalChunks,
		ChunksProcessed: outcome.ChunksProcessed,
		FailedChunks:    outcome.FailedChunks(),
		Provider:        provider.Name(),
		Classifier:      p.config.Classifier.Name(),
		MimeType:        mimeType,
		Document:        doc,
	}

	// Step 9: Index fan-out (non-fatal)
	if len(p.config.Indexers) > 0 {
		log.Info(fmt.Sprintf("[Job %s] Step 9: Indexing parsed document", req.JobID))
		failures := p.config.Indexers.Index(ctx, &index.Request{
			JobID:        req.JobID,
			UserID:       req.UserID,
			FileName:     req.FileName,
			SourcePath:   req.BucketPath,
			ArtifactPath: artifactPath,
			MimeType:     mimeType,
			Document:     doc,
		})
		for name, ierr := range failures {
			log.Warn(fmt.Sprintf("[Job %s] WARNING: %s indexing failed, artifact is still stored", req.JobID, name), "error", ierr)
			if result.IndexFailures == nil {
				result.IndexFailures = make(map[string]string)
			}
			result.IndexFailures[name] = ierr.Error()
		}
	}

	return result, nil
}

func (p *DocumentProcessor) recognize(ctx context.Context, src ocr.Source) (*chunker.Outcome, error) {
	if p.config.Chunker != nil {
		return p.config.Chunker.Recognize(ctx, p.config.Provider, src)
	}
	res, err := p.config.Provider.Recognize(ctx, src)
	if err != nil {
		if _, ok := errors.AsProcessingError(err); ok {
			return nil, err
		}
		return nil, errors.NewOCRSubmissionError("", p.config.Provider.Name(), -1, err)
	}
	return &chunker.Outcome{Result: res, TotalChunks: 1, ChunksProcessed: 1}, nil
}

// structure makes sure every error leaving the pipeline is a
// ProcessingError stamped with the job id.
func (p *DocumentProcessor) structure(ctx context.Context, req *ProcessRequest, err error) error {
	if _, ok := errors.AsProcessingError(err); !ok {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			var budget time.Duration
			if deadline, ok := ctx.Deadline(); ok {
				budget = time.Until(deadline)
			}
			err = errors.NewProcessingTimeoutError(req.JobID, budget, err)
		} else {
			err = errors.NewStorageFailedError(req.JobID, err)
		}
	}
	return errors.WithJob(err, req.JobID)
}

// loadFile loads the source from the job buffer or the artifact store
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest, log *logging.Logger) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		log.Info(fmt.Sprintf("[Job %s] Using file buffer (%d bytes)", req.JobID, len(req.FileBuffer)))
		return req.FileBuffer, nil
	}

	var data []byte
	err := retry.Do(ctx, p.config.FetchBackoff, func(ctx context.Context, attempt int) error {
		var err error
		data, err = p.config.Store.Download(ctx, req.BucketPath)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, errors.ErrNotFound) {
			return retry.Permanent(err)
		}
		log.Warn(fmt.Sprintf("[Job %s] Download attempt %d failed", req.JobID, attempt), "error", err)
		return err
	})
	if err != nil {
		return nil, errors.NewSourceFetchError(req.JobID, req.BucketPath, err)
	}

	if req.FileSize > 0 && int64(len(data)) != req.FileSize {
		log.Warn(fmt.Sprintf("[Job %s] WARNING: size mismatch. Expected=%d, Got=%d", req.JobID, req.FileSize, len(data)))
	}
	log.Info(fmt.Sprintf("[Job %s] Source downloaded (%d bytes)", req.JobID, len(data)))
	return data, nil
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (p *DocumentProcessor) createWorkDir(jobID string) (string, error) {
	if err := os.MkdirAll(p.config.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	prefix := "job-" + unsafeDirChars.ReplaceAllString(jobID, "_") + "-"
	return os.MkdirTemp(p.config.TempDir, prefix)
}

// UpdateJobStatus forwards a status update to the job tracker, if any
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	if p.config.Tracker == nil {
		return nil
	}
	return p.config.Tracker.UpdateJobStatus(ctx, update)
}

// detectMimeTypeFromMagicBytes detects the actual MIME type from file content magic bytes
// This is essential when stores return generic "application/octet-stream"
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	// TIFF: little-endian II*\0 or big-endian MM\0*
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}

	return ""
}
