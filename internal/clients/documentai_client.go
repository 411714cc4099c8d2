/**
 * Document AI Client - entity-oriented OCR backend
 *
 * Synchronous online processing through Google Document AI. Geometry
 * comes back as normalized polygon vertices, so results are emitted in
 * the entity-oriented shape and scaled to pixels by the extractor. Online
 * requests are capped at 15 pages; longer documents go through the
 * chunker.
 */

package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/adverant/nexus/docparse-worker/internal/geometry"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

// DefaultDocumentAIMaxPages is the online processing page limit.
const DefaultDocumentAIMaxPages = 15

// DocumentAIConfig holds Document AI configuration
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // "us" or "eu"
	ProcessorID string
	MaxPages    int
	Timeout     time.Duration
}

// DocumentAIClient recognizes documents with a Document AI processor
type DocumentAIClient struct {
	client   *documentai.DocumentProcessorClient
	name     string
	maxPages int
	timeout  time.Duration
	logger   *logging.Logger
}

var _ ocr.Provider = (*DocumentAIClient)(nil)

var documentAIMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/tiff":      true,
	"image/bmp":       true,
	"image/webp":      true,
}

// NewDocumentAIClient creates a new Document AI client. Credentials come
// from the environment (GOOGLE_APPLICATION_CREDENTIALS or workload identity).
func NewDocumentAIClient(ctx context.Context, cfg *DocumentAIConfig) (*DocumentAIClient, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document AI project and processor are required")
	}
	location := cfg.Location
	if location == "" {
		location = "us"
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultDocumentAIMaxPages
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &DocumentAIClient{
		client:   client,
		name:     fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, location, cfg.ProcessorID),
		maxPages: maxPages,
		timeout:  timeout,
		logger:   logging.NewLogger("DocumentAIClient"),
	}, nil
}

func (c *DocumentAIClient) Name() string  { return "documentai" }
func (c *DocumentAIClient) MaxPages() int { return c.maxPages }

func (c *DocumentAIClient) Supports(mimeType string) bool {
	return documentAIMimeTypes[strings.ToLower(mimeType)]
}

// Recognize processes src online and returns its entities.
func (c *DocumentAIClient) Recognize(ctx context.Context, src ocr.Source) (*ocr.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("Processing document", "source", src.Name, "size", len(src.Data), "pages", src.Pages)

	start := time.Now()
	resp, err := c.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: c.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: src.Data, MimeType: src.MimeType},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("document AI processing failed: %w", err)
	}

	res := entitiesFromDocument(resp.GetDocument())
	res.Provider = c.Name()

	c.logger.Info("Document processed",
		"source", src.Name,
		"pages", len(res.EntityPages),
		"entities", len(res.Entities),
		"duration", time.Since(start))

	return res, nil
}

// Close releases the underlying gRPC connection.
func (c *DocumentAIClient) Close() error {
	return c.client.Close()
}

// entitiesFromDocument converts a processed document into the
// entity-oriented shape. Extracted entities are used when the processor
// returns any; otherwise every detected page line becomes one entity.
func entitiesFromDocument(doc *documentaipb.Document) *ocr.Result {
	res := &ocr.Result{Kind: ocr.KindEntityOriented}
	if doc == nil {
		return res
	}
	// Text anchor offsets count characters, not bytes.
	text := []rune(doc.GetText())

	for i, p := range doc.GetPages() {
		number := int(p.GetPageNumber())
		if number <= 0 {
			number = i + 1
		}
		dim := p.GetDimension()
		res.EntityPages = append(res.EntityPages, ocr.EntityPage{
			Number: number,
			Width:  float64(dim.GetWidth()),
			Height: float64(dim.GetHeight()),
		})
	}

	if len(doc.GetEntities()) > 0 {
		for n, e := range doc.GetEntities() {
			refs := e.GetPageAnchor().GetPageRefs()
			page := 1
			var poly *documentaipb.BoundingPoly
			if len(refs) > 0 {
				page = int(refs[0].GetPage()) + 1 // page refs are 0-based
				poly = refs[0].GetBoundingPoly()
			}
			mention := e.GetMentionText()
			if mention == "" {
				mention = anchorText(text, e.GetTextAnchor())
			}
			res.Entities = append(res.Entities, ocr.Entity{
				Page:     page,
				Text:     strings.TrimSpace(mention),
				Type:     e.GetType(),
				Vertices: normalizedVertices(poly),
				Line:     n + 1,
				Column:   e.GetId(),
			})
		}
		return res
	}

	for i, p := range doc.GetPages() {
		for j, l := range p.GetLines() {
			layout := l.GetLayout()
			res.Entities = append(res.Entities, ocr.Entity{
				Page:     res.EntityPages[i].Number,
				Text:     strings.TrimSpace(anchorText(text, layout.GetTextAnchor())),
				Type:     "text",
				Vertices: normalizedVertices(layout.GetBoundingPoly()),
				Line:     j + 1,
				Column:   1,
			})
		}
	}
	return res
}

func normalizedVertices(poly *documentaipb.BoundingPoly) []geometry.Vertex {
	vs := poly.GetNormalizedVertices()
	if len(vs) == 0 {
		return nil
	}
	out := make([]geometry.Vertex, len(vs))
	for i, v := range vs {
		out[i] = geometry.Vertex{X: float64(v.GetX()), Y: float64(v.GetY())}
	}
	return out
}

// anchorText resolves the text segments of anchor against the document text.
func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) string {
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		b.WriteString(string(text[start:end]))
	}
	return b.String()
}
