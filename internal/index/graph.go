package index

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/docparse-worker/internal/classify"
	"github.com/adverant/nexus/docparse-worker/internal/clients"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/retry"
)

// GraphStore is the GraphRAG document API.
type GraphStore interface {
	StoreDocument(ctx context.Context, req *clients.GraphRAGDocumentRequest) (*clients.GraphRAGDocumentResponse, error)
	GetDocumentStatus(ctx context.Context, documentID string) (*clients.GraphRAGDocumentStatus, error)
}

// GraphIndexer stores the document text in GraphRAG and waits until
// GraphRAG reports it indexed.
type GraphIndexer struct {
	store  GraphStore
	policy retry.Policy
	logger *logging.Logger
}

// NewGraphIndexer creates a GraphRAG indexer. policy bounds the wait for
// indexing to finish.
func NewGraphIndexer(store GraphStore, policy retry.Policy) *GraphIndexer {
	return &GraphIndexer{
		store:  store,
		policy: policy,
		logger: logging.NewLogger("GraphIndex"),
	}
}

func (g *GraphIndexer) Name() string { return "graphrag" }

// Index stores and then polls until GraphRAG finishes or gives up.
func (g *GraphIndexer) Index(ctx context.Context, req *Request) error {
	if req.Document == nil {
		return fmt.Errorf("document is required")
	}

	content, pages := pageText(req)
	if strings.TrimSpace(content) == "" {
		g.logger.Info("Document has no text, skipping GraphRAG", "job_id", req.JobID)
		return nil
	}

	resp, err := g.store.StoreDocument(ctx, &clients.GraphRAGDocumentRequest{
		Content: content,
		Title:   req.FileName,
		Metadata: clients.GraphRAGDocumentMeta{
			Source:       "docparse-worker",
			Tags:         []string{"parsed-document"},
			Type:         "text",
			MimeType:     req.MimeType,
			UploadedBy:   req.UserID,
			ProcessingID: req.JobID,
			Pages:        pages,
			PageCount:    len(pages),
			ArtifactPath: req.ArtifactPath,
			SourcePath:   req.SourcePath,
		},
	})
	if err != nil {
		return err
	}

	status, err := retry.Poll(ctx, g.policy, func(ctx context.Context) (*clients.GraphRAGDocumentStatus, bool, error) {
		s, err := g.store.GetDocumentStatus(ctx, resp.DocumentID)
		if err != nil {
			return nil, false, retry.Transient(err)
		}
		if s.Failed() {
			return nil, false, fmt.Errorf("GraphRAG failed to index document %s: %s", resp.DocumentID, s.Error)
		}
		return s, s.Indexed(), nil
	})
	if err != nil {
		return fmt.Errorf("waiting for GraphRAG document %s: %w", resp.DocumentID, err)
	}

	g.logger.Info("GraphRAG indexing complete", "job_id", req.JobID, "document_id", resp.DocumentID, "chunks", status.ChunkCount)
	return nil
}

// pageText joins the irrelevant-free lines of each page and records where
// each page starts and ends, in characters.
func pageText(req *Request) (string, []clients.PageInfo) {
	var (
		b     strings.Builder
		pages []clients.PageInfo
		pos   int
	)
	for i, page := range req.Document.Page {
		if i > 0 {
			b.WriteString("\n\n")
			pos += 2
		}
		start := pos
		first := true
		for _, line := range page.Lines {
			if line.TextType == classify.RoleIrrelevant || line.Text == "" {
				continue
			}
			if !first {
				b.WriteString("\n")
				pos++
			}
			b.WriteString(line.Text)
			pos += utf8.RuneCountInString(line.Text)
			first = false
		}
		pages = append(pages, clients.PageInfo{PageNumber: page.PageNumber, StartChar: start, EndChar: pos})
	}
	return b.String(), pages
}
