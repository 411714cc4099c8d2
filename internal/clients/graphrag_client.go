/**
 * GraphRAG Client for the docparse worker
 *
 * Stores the text of parsed documents in GraphRAG for:
 * - Semantic chunking and embedding
 * - Memory recall alongside other ingested documents
 *
 * Storage is asynchronous on the GraphRAG side: StoreDocument returns a
 * document ID, and GetDocumentStatus reports when chunking and embedding
 * have finished.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/logging"
)

// GraphRAGClient handles communication with the GraphRAG service
type GraphRAGClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// GraphRAGDocumentRequest represents a document storage request
type GraphRAGDocumentRequest struct {
	Content  string               `json:"content"`
	Title    string               `json:"title"`
	Metadata GraphRAGDocumentMeta `json:"metadata,omitempty"`
}

// PageInfo represents page boundary information for multi-page documents
type PageInfo struct {
	PageNumber int `json:"pageNumber"` // 1-indexed page number
	StartChar  int `json:"startChar"`  // Character offset where page content starts
	EndChar    int `json:"endChar"`    // Character offset where page content ends
}

// GraphRAGDocumentMeta contains document metadata
type GraphRAGDocumentMeta struct {
	Source       string     `json:"source,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Type         string     `json:"type,omitempty"`
	MimeType     string     `json:"mimeType,omitempty"`
	UploadedBy   string     `json:"uploadedBy,omitempty"`
	ProcessingID string     `json:"processingJobId,omitempty"`
	Pages        []PageInfo `json:"pages,omitempty"`
	PageCount    int        `json:"pageCount,omitempty"`

	// Where the parsed document lives, so recall can link back to it
	ArtifactPath string `json:"artifactPath,omitempty"`
	SourcePath   string `json:"sourcePath,omitempty"`
}

// GraphRAGDocumentResponse represents the response from storing a document
type GraphRAGDocumentResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId,omitempty"`
	ChunkCount int    `json:"chunkCount,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// GraphRAGDocumentStatus is the indexing state of a stored document
type GraphRAGDocumentStatus struct {
	DocumentID string `json:"documentId"`
	Status     string `json:"status"` // "pending", "indexing", "indexed", "failed"
	ChunkCount int    `json:"chunkCount,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Indexed reports whether GraphRAG finished with the document.
func (s *GraphRAGDocumentStatus) Indexed() bool { return s.Status == "indexed" }

// Failed reports whether GraphRAG gave up on the document.
func (s *GraphRAGDocumentStatus) Failed() bool { return s.Status == "failed" }

// NewGraphRAGClient creates a new GraphRAG client
func NewGraphRAGClient(baseURL string) *GraphRAGClient {
	return &GraphRAGClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Long timeout for large documents
		},
		logger: logging.NewLogger("GraphRAG"),
	}
}

// HealthCheck verifies GraphRAG service is available
func (c *GraphRAGClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GraphRAG health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GraphRAG health check returned status %d", resp.StatusCode)
	}

	return nil
}

func setTenantHeaders(req *http.Request) {
	// System-level tenant context for document processing
	req.Header.Set("X-Company-ID", "adverant")
	req.Header.Set("X-App-ID", "docparse")
	req.Header.Set("X-User-ID", "system")
}

// StoreDocument stores parsed content in GraphRAG for chunking and search
func (c *GraphRAGClient) StoreDocument(ctx context.Context, req *GraphRAGDocumentRequest) (*GraphRAGDocumentResponse, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("document content is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/graphrag/api/documents", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create store request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setTenantHeaders(httpReq)

	c.logger.Info("Storing document", "title", req.Title, "contentLength", len(req.Content), "pages", req.Metadata.PageCount)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to store document in GraphRAG: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read GraphRAG response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GraphRAG returned error status %d: %s", resp.StatusCode, string(body))
	}

	var result GraphRAGDocumentResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse GraphRAG response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("GraphRAG document storage failed: %s", result.Error)
	}

	c.logger.Info("Document accepted", "id", result.DocumentID, "chunks", result.ChunkCount)
	return &result, nil
}

// GetDocumentStatus reports the indexing state of a stored document
func (c *GraphRAGClient) GetDocumentStatus(ctx context.Context, documentID string) (*GraphRAGDocumentStatus, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	endpoint := fmt.Sprintf("%s/graphrag/api/documents/%s/status", c.baseURL, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	setTenantHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GraphRAG status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read GraphRAG status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GraphRAG status returned %d: %s", resp.StatusCode, string(body))
	}

	var status GraphRAGDocumentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse GraphRAG status: %w", err)
	}
	if status.DocumentID == "" {
		status.DocumentID = documentID
	}
	return &status, nil
}
