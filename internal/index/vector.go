package index

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docparse-worker/internal/classify"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore replaces the vectors of one artifact.
type VectorStore interface {
	ReplaceLineVectors(ctx context.Context, artifactPath string, points []*storage.VectorPoint) error
}

// VectorIndexer embeds every question and relevant line of a document and
// stores one point per line.
type VectorIndexer struct {
	embedder Embedder
	store    VectorStore
	logger   *logging.Logger
}

// NewVectorIndexer creates a vector indexer
func NewVectorIndexer(embedder Embedder, store VectorStore) *VectorIndexer {
	return &VectorIndexer{
		embedder: embedder,
		store:    store,
		logger:   logging.NewLogger("VectorIndex"),
	}
}

func (v *VectorIndexer) Name() string { return "vector" }

// PointID derives a stable point id for a line, so re-indexing the same
// artifact produces the same ids.
func PointID(artifactPath string, pageNumber, line int) string {
	name := fmt.Sprintf("%s#page=%d#line=%d", artifactPath, pageNumber, line)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Index replaces the artifact's points with the current document's lines.
func (v *VectorIndexer) Index(ctx context.Context, req *Request) error {
	if req.Document == nil {
		return fmt.Errorf("document is required")
	}

	var (
		texts  []string
		points []*storage.VectorPoint
	)
	for _, page := range req.Document.Page {
		for i, line := range page.Lines {
			if line.TextType == classify.RoleIrrelevant || line.Text == "" {
				continue
			}
			texts = append(texts, line.Text)
			points = append(points, &storage.VectorPoint{
				ID: PointID(req.ArtifactPath, page.PageNumber, i),
				Metadata: map[string]interface{}{
					"job_id":      req.JobID,
					"user_id":     req.UserID,
					"source_path": req.SourcePath,
					"page":        page.PageNumber,
					"line":        i,
					"text":        line.Text,
					"text_type":   string(line.TextType),
					"indexed_at":  time.Now().Unix(),
				},
			})
		}
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = v.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed %d lines: %w", len(texts), err)
		}
		if len(vectors) != len(points) {
			return fmt.Errorf("embedder returned %d vectors for %d lines", len(vectors), len(points))
		}
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}

	// An empty set still clears the artifact's previous points.
	if err := v.store.ReplaceLineVectors(ctx, req.ArtifactPath, points); err != nil {
		return err
	}

	v.logger.Info("Indexed document lines", "job_id", req.JobID, "artifact", req.ArtifactPath, "points", len(points))
	return nil
}
