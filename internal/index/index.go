// Package index pushes parsed documents into the search backends. Index
// failures never fail a job: the artifact is already persisted, so the
// orchestrator only logs what went wrong.
package index

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docparse-worker/internal/document"
)

// Request is one parsed document ready for indexing.
type Request struct {
	JobID        string
	UserID       string
	FileName     string
	SourcePath   string
	ArtifactPath string
	MimeType     string
	Document     *document.Document
}

// Indexer is one search backend.
type Indexer interface {
	Name() string
	Index(ctx context.Context, req *Request) error
}

// Fanout runs several indexers side by side.
type Fanout []Indexer

// Index runs every indexer concurrently and returns the failures keyed by
// indexer name. A nil map means every indexer succeeded.
func (f Fanout) Index(ctx context.Context, req *Request) map[string]error {
	var (
		mu       sync.Mutex
		failures map[string]error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range f {
		idx := idx
		g.Go(func() error {
			if err := idx.Index(gctx, req); err != nil {
				mu.Lock()
				if failures == nil {
					failures = make(map[string]error)
				}
				failures[idx.Name()] = err
				mu.Unlock()
			}
			// One backend failing must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	return failures
}
