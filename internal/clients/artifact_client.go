/**
 * Artifact Client for the docparse worker
 *
 * Reads source documents from, and writes parsed-document JSON to, the
 * FileProcess API's path-addressed file storage.
 *
 * Storage Flow:
 * 1. Job payload names the source by bucket path
 * 2. Worker downloads the source via /fileprocess/api/files/content
 * 3. Worker parses it and uploads the artifact to a path derived from
 *    the source path via /fileprocess/api/files/upload
 * 4. Uploads to an existing path overwrite it, so re-processing a source
 *    replaces its artifact instead of adding a second one
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
)

const sourceService = "docparse-worker"

// ArtifactClient handles communication with the FileProcess API for artifact storage
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ArtifactUploadResponse represents the response from uploading an artifact
type ArtifactUploadResponse struct {
	Success  bool `json:"success"`
	Artifact struct {
		ID             string `json:"id"`
		Path           string `json:"path"`
		FileSize       int64  `json:"file_size"`
		MimeType       string `json:"mime_type"`
		StorageBackend string `json:"storage_backend"` // postgres_buffer, minio, google_drive
		CreatedAt      string `json:"created_at"`
	} `json:"artifact,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewArtifactClient creates a new artifact client
func NewArtifactClient(baseURL string) *ArtifactClient {
	return &ArtifactClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // 5 minutes for large file uploads
		},
		logger: logging.NewLogger("ArtifactClient"),
	}
}

// HealthCheck verifies the FileProcess API is available
func (c *ArtifactClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("artifact service health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Upload stores data at storagePath, replacing whatever is there.
func (c *ArtifactClient) Upload(ctx context.Context, storagePath string, data []byte, contentType string) error {
	if storagePath == "" {
		return fmt.Errorf("storage path is required: received empty string")
	}

	c.logger.Info("Uploading artifact", "path", storagePath, "size", len(data), "content_type", contentType)

	// Create multipart form request
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", path.Base(storagePath))
	if err != nil {
		return fmt.Errorf("failed to create form file part: %w", err)
	}
	bytesWritten, err := part.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write file data to form: %w", err)
	}
	if bytesWritten != len(data) {
		return fmt.Errorf("incomplete file write: expected %d bytes, wrote %d bytes", len(data), bytesWritten)
	}

	fields := []struct{ name, value string }{
		{"path", storagePath},
		{"mime_type", contentType},
		{"source_service", sourceService},
		{"overwrite", "true"},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("failed to write %s field: %w", f.name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	// FileProcess API mounts routes at /fileprocess/api/*
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/fileprocess/api/files/upload", &body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request to artifact storage failed after %v: %w", time.Since(startTime), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("artifact upload failed with HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result ArtifactUploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse artifact upload response: %w (raw response: %s)", err, string(respBody))
	}
	if !result.Success {
		return fmt.Errorf("artifact upload returned success=false: %s", result.Error)
	}

	c.logger.Info("Artifact uploaded",
		"path", storagePath,
		"id", result.Artifact.ID,
		"storage", result.Artifact.StorageBackend,
		"duration", time.Since(startTime))

	return nil
}

// Download returns the bytes stored at storagePath, or errors.ErrNotFound.
func (c *ArtifactClient) Download(ctx context.Context, storagePath string) ([]byte, error) {
	if storagePath == "" {
		return nil, fmt.Errorf("storage path is required: received empty string")
	}

	endpoint := c.baseURL + "/fileprocess/api/files/content?path=" + url.QueryEscape(storagePath)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, storagePath)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}
	return data, nil
}
