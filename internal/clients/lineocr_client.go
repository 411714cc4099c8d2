/**
 * Line OCR Client - asynchronous line-oriented OCR service
 *
 * Submits a document to the OCR service and polls the task API for the
 * result. The service answers pages of lines with pixel rectangles:
 *
 *   {"pages":[{"page_number":1,"page_width":1700,"page_height":2200,
 *     "lines":[{"text":"...","type":"text","line":1,"column":1,
 *       "region":{"top_left_x":..,"top_left_y":..,"width":..,"height":..}}]}]}
 *
 * Submission returns 202 Accepted with a taskId; GET /api/tasks/:taskId
 * reports pending, processing, completed or failed.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/geometry"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

// LineOCRClient handles communication with the line OCR service
type LineOCRClient struct {
	baseURL    string
	apiKey     string
	maxPages   int
	httpClient *http.Client
	logger     *logging.Logger
}

// LineOCRConfig holds line OCR client configuration
type LineOCRConfig struct {
	BaseURL  string
	APIKey   string
	MaxPages int // per-task page cap, 0 for none
}

// LineOCRRequest is the submission body
type LineOCRRequest struct {
	Document string `json:"document"` // Base64 encoded document
	Format   string `json:"format"`   // "base64"
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
	Async    bool   `json:"async"`
}

// LineOCRAsyncResponse represents an async (202 Accepted) response with taskId
type LineOCRAsyncResponse struct {
	Success bool `json:"success"`
	Data    struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
	Message string `json:"message"`
	Meta    struct {
		PollURL           string `json:"pollUrl"`
		EstimatedDuration string `json:"estimatedDuration"`
	} `json:"meta"`
}

// TaskStatusResponse represents the response from polling /api/tasks/:taskId
type TaskStatusResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Task TaskInfo `json:"task"`
	} `json:"data"`
	Message string `json:"message"`
}

// TaskInfo contains detailed task information
type TaskInfo struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`   // "pending", "processing", "completed", "failed"
	Progress int             `json:"progress"` // 0-100
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// LineOCRResult is the task result of a completed line OCR task
type LineOCRResult struct {
	Pages []LineOCRPage `json:"pages"`
}

// LineOCRPage is one page of a line OCR result
type LineOCRPage struct {
	PageNumber int           `json:"page_number"`
	PageWidth  float64       `json:"page_width"`
	PageHeight float64       `json:"page_height"`
	Lines      []LineOCRLine `json:"lines"`

	// Page size in PDF points, sent for pages read from a text layer.
	PointWidth  float64 `json:"page_width_pt,omitempty"`
	PointHeight float64 `json:"page_height_pt,omitempty"`
}

// LineOCRLine is one detected line
type LineOCRLine struct {
	Text   string           `json:"text"`
	Type   string           `json:"type"`
	Region *geometry.Region `json:"region"`
	Line   any              `json:"line"`
	Column any              `json:"column"`

	// PDFBox is set instead of Region for text-layer lines.
	PDFBox *PDFBox `json:"pdf_bbox,omitempty"`
}

// PDFBox is a box in PDF points with the origin at the page bottom.
type PDFBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var _ ocr.AsyncBackend = (*LineOCRClient)(nil)

// NewLineOCRClient creates a new line OCR client
func NewLineOCRClient(cfg *LineOCRConfig) *LineOCRClient {
	return &LineOCRClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		maxPages: cfg.MaxPages,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // uploads of large scans take time
		},
		logger: logging.NewLogger("LineOCRClient"),
	}
}

func (c *LineOCRClient) Name() string  { return "lines" }
func (c *LineOCRClient) MaxPages() int { return c.maxPages }

func (c *LineOCRClient) Supports(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	return mimeType == "application/pdf" || strings.HasPrefix(mimeType, "image/")
}

func (c *LineOCRClient) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("X-Source", "docparse-worker")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Submit starts an async OCR task and returns the taskId for polling
func (c *LineOCRClient) Submit(ctx context.Context, src ocr.Source) (string, error) {
	c.logger.Info("Starting async line OCR", "source", src.Name, "size", len(src.Data), "pages", src.Pages)

	reqBody, err := json.Marshal(&LineOCRRequest{
		Document: base64.StdEncoding.EncodeToString(src.Data),
		Format:   "base64",
		MimeType: src.MimeType,
		FileName: src.Name,
		Async:    true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/internal/ocr/lines", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq, fmt.Sprintf("ocr-async-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("async request to OCR service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	// Check status code - expect 202 Accepted for async
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("OCR service returned unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var asyncResp LineOCRAsyncResponse
	if err := json.Unmarshal(body, &asyncResp); err != nil {
		return "", fmt.Errorf("failed to parse async response: %w", err)
	}
	if !asyncResp.Success || asyncResp.Data.TaskID == "" {
		return "", fmt.Errorf("OCR service async operation failed: %s", asyncResp.Message)
	}

	c.logger.Info("Async OCR task created",
		"taskId", asyncResp.Data.TaskID,
		"estimatedDuration", asyncResp.Meta.EstimatedDuration,
		"pollUrl", asyncResp.Meta.PollURL)

	return asyncResp.Data.TaskID, nil
}

// GetTaskStatus fetches the raw status of an async task
func (c *LineOCRClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tasks/%s", c.baseURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	c.setHeaders(req, "ocr-poll-"+taskID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status check failed with status %d: %s", resp.StatusCode, string(body))
	}

	var statusResp TaskStatusResponse
	if err := json.Unmarshal(body, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &statusResp, nil
}

// Poll maps the task status onto the OCR poll contract
func (c *LineOCRClient) Poll(ctx context.Context, taskID string) (*ocr.PollResult, error) {
	status, err := c.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task := status.Data.Task

	c.logger.Debug("Task status update", "taskId", taskID, "status", task.Status, "progress", task.Progress)

	switch task.Status {
	case "completed":
		var result LineOCRResult
		if err := json.Unmarshal(task.Result, &result); err != nil {
			return &ocr.PollResult{Status: ocr.StatusFailed, Error: fmt.Sprintf("unreadable task result: %v", err)}, nil
		}
		return &ocr.PollResult{Status: ocr.StatusCompleted, Result: result.toOCR(c.Name())}, nil
	case "failed":
		return &ocr.PollResult{Status: ocr.StatusFailed, Error: task.Error}, nil
	case "pending", "processing":
		return &ocr.PollResult{Status: ocr.StatusPending}, nil
	default:
		c.logger.Warn("Unknown task status", "taskId", taskID, "status", task.Status)
		return &ocr.PollResult{Status: ocr.StatusPending}, nil
	}
}

// region returns the pixel region of l, converting text-layer boxes from
// points with the page's pixel-per-point scale.
func (p *LineOCRPage) region(l LineOCRLine) *geometry.Region {
	if l.Region != nil || l.PDFBox == nil || p.PointHeight <= 0 {
		return l.Region
	}
	scale := 1.0
	if p.PointWidth > 0 && p.PageWidth > 0 {
		scale = p.PageWidth / p.PointWidth
	}
	b := l.PDFBox
	return geometry.FromBottomLeft(b.X, b.Y, b.Width, b.Height, p.PointHeight, scale)
}

func (r *LineOCRResult) toOCR(provider string) *ocr.Result {
	res := &ocr.Result{Kind: ocr.KindLineOriented, Provider: provider, Pages: make([]ocr.LinePage, len(r.Pages))}
	for i, p := range r.Pages {
		number := p.PageNumber
		if number <= 0 {
			number = i + 1
		}
		lines := make([]ocr.LineItem, len(p.Lines))
		for j, l := range p.Lines {
			lines[j] = ocr.LineItem{Text: l.Text, Type: l.Type, Region: p.region(l), Line: l.Line, Column: l.Column}
		}
		res.Pages[i] = ocr.LinePage{Number: number, Width: p.PageWidth, Height: p.PageHeight, Lines: lines}
	}
	return res
}
