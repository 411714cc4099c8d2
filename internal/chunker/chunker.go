/**
 * Chunker - page-window fan-out for OCR backends with page caps
 *
 * A document longer than the provider's page cap is cut into consecutive
 * windows, every window is recognized concurrently, and the results are
 * recombined by page offset. A failed window costs its pages, not the
 * document; only a document with no successful window fails.
 */

package chunker

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
	"github.com/adverant/nexus/docparse-worker/internal/retry"
)

// Window is one page range of the source document.
type Window struct {
	Index  int // chunk number, 0-based
	Offset int // pages before this window
	Pages  int
}

// First returns the 1-based number of the window's first page.
func (w Window) First() int { return w.Offset + 1 }

// Last returns the 1-based number of the window's last page.
func (w Window) Last() int { return w.Offset + w.Pages }

// Plan cuts total pages into consecutive windows of at most size pages.
// Windows never split a page and only the last may be short.
func Plan(total, size int) []Window {
	if total <= 0 {
		return nil
	}
	if size <= 0 || size >= total {
		return []Window{{Index: 0, Offset: 0, Pages: total}}
	}

	windows := make([]Window, 0, (total+size-1)/size)
	for offset := 0; offset < total; offset += size {
		pages := size
		if offset+pages > total {
			pages = total - offset
		}
		windows = append(windows, Window{Index: len(windows), Offset: offset, Pages: pages})
	}
	return windows
}

// Failure records a window whose OCR call failed.
type Failure struct {
	Window Window
	Err    error
}

// Outcome is the recombined OCR result of a document.
type Outcome struct {
	Result          *ocr.Result
	TotalChunks     int
	ChunksProcessed int
	Failures        []Failure
}

// FailedChunks returns the indexes of the failed windows in order.
func (o *Outcome) FailedChunks() []int {
	out := make([]int, 0, len(o.Failures))
	for _, f := range o.Failures {
		out = append(out, f.Window.Index)
	}
	return out
}

// Config holds chunker configuration
type Config struct {
	// MaxParallel caps concurrent chunk calls, 0 for no cap.
	MaxParallel int
}

// Chunker runs page-capped providers over whole documents.
type Chunker struct {
	splitter    Splitter
	maxParallel int
	logger      *logging.Logger
}

// New creates a chunker that cuts documents with splitter.
func New(splitter Splitter, cfg *Config) *Chunker {
	c := &Chunker{splitter: splitter, logger: logging.NewLogger("Chunker")}
	if cfg != nil {
		c.maxParallel = cfg.MaxParallel
	}
	return c
}

const mimePDF = "application/pdf"

// Recognize runs provider over src, in windows when the provider caps the
// page count of a call.
func (c *Chunker) Recognize(ctx context.Context, provider ocr.Provider, src ocr.Source) (*Outcome, error) {
	limit := provider.MaxPages()
	if limit <= 0 || !strings.EqualFold(src.MimeType, mimePDF) || c.splitter == nil {
		return c.single(ctx, provider, src)
	}

	total := src.Pages
	if total <= 0 {
		n, err := c.splitter.PageCount(src.Data)
		if err != nil {
			return nil, errors.NewOCRSubmissionError("", provider.Name(), -1, err)
		}
		total = n
	}
	if total <= limit {
		src.Pages = total
		return c.single(ctx, provider, src)
	}

	windows := Plan(total, limit)
	c.logger.Info("Splitting document into chunks",
		"source", src.Name, "pages", total, "chunks", len(windows), "max_pages", limit)

	results := make([]*ocr.Result, len(windows))
	failures := make([]error, len(windows))

	// Goroutines never return an error: one failed window must not cancel
	// the others.
	var g errgroup.Group
	if c.maxParallel > 0 {
		g.SetLimit(c.maxParallel)
	}
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			results[i], failures[i] = c.recognizeWindow(ctx, provider, src, w)
			return nil
		})
	}
	_ = g.Wait()

	outcome := &Outcome{TotalChunks: len(windows)}
	chunks := make([]ocr.ChunkResult, 0, len(windows))
	for i, w := range windows {
		if failures[i] != nil {
			c.logger.Warn("Chunk failed, continuing with remaining chunks",
				"source", src.Name, "chunk", w.Index, "pages", fmt.Sprintf("%d-%d", w.First(), w.Last()),
				"error", failures[i])
			outcome.Failures = append(outcome.Failures, Failure{Window: w, Err: failures[i]})
			continue
		}
		chunks = append(chunks, ocr.ChunkResult{Offset: w.Offset, Result: results[i]})
	}
	outcome.ChunksProcessed = len(chunks)

	if len(chunks) == 0 {
		err := outcome.Failures[0].Err
		if pe, ok := errors.AsProcessingError(err); ok {
			pe.WithDetail("chunks_failed", len(windows)).WithDetail("total_chunks", len(windows))
		}
		return nil, err
	}

	merged, err := ocr.MergeChunks(chunks)
	if err != nil {
		return nil, errors.NewOCRSubmissionError("", provider.Name(), -1, err)
	}
	outcome.Result = merged
	return outcome, nil
}

func (c *Chunker) single(ctx context.Context, provider ocr.Provider, src ocr.Source) (*Outcome, error) {
	res, err := provider.Recognize(ctx, src)
	if err != nil {
		return nil, chunkError(err, provider.Name(), -1)
	}
	return &Outcome{Result: res, TotalChunks: 1, ChunksProcessed: 1}, nil
}

func (c *Chunker) recognizeWindow(ctx context.Context, provider ocr.Provider, src ocr.Source, w Window) (*ocr.Result, error) {
	data, err := c.splitter.Extract(src.Data, w.First(), w.Last())
	if err != nil {
		return nil, chunkError(err, provider.Name(), w.Index)
	}

	res, err := provider.Recognize(ctx, ocr.Source{
		Name:     fmt.Sprintf("%s[%d-%d]", src.Name, w.First(), w.Last()),
		Data:     data,
		MimeType: src.MimeType,
		Pages:    w.Pages,
	})
	if err != nil {
		return nil, chunkError(err, provider.Name(), w.Index)
	}
	if res == nil {
		return nil, errors.NewOCRSubmissionError("", provider.Name(), w.Index, fmt.Errorf("provider returned no result"))
	}
	return res, nil
}

// chunkError turns a provider error into an OCR ProcessingError tagged with
// the chunk it belongs to.
func chunkError(err error, provider string, chunk int) error {
	if pe, ok := errors.AsProcessingError(err); ok {
		pe.WithDetail("chunk", chunk)
		return err
	}
	if stderrors.Is(err, retry.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewOCRTimeoutError("", provider, chunk, 0, err)
	}
	return errors.NewOCRSubmissionError("", provider, chunk, err)
}
