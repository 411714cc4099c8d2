/**
 * Embedding Client for the docparse worker
 *
 * Generates VoyageAI voyage-3 embeddings (1024 dimensions) for the content
 * lines of parsed documents.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/logging"
)

// VoyageDimensions is the vector size of voyage-3 embeddings.
const VoyageDimensions = 1024

const (
	voyageModel     = "voyage-3"
	voyageBatchSize = 100 // VoyageAI batch API limit
	voyageMaxChars  = 16000
)

// EmbeddingClient handles VoyageAI embedding generation
type EmbeddingClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// VoyageBatchEmbeddingRequest represents a batch request to VoyageAI API (multiple texts)
type VoyageBatchEmbeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"` // "document" or "query"
}

// VoyageEmbeddingResponse represents the response from VoyageAI API
type VoyageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(apiKey string) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}

	return &EmbeddingClient{
		apiKey:  apiKey,
		baseURL: "https://api.voyageai.com/v1/embeddings",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("Embedding"),
	}, nil
}

// WithBaseURL points the client at another embeddings endpoint.
func (e *EmbeddingClient) WithBaseURL(u string) *EmbeddingClient {
	e.baseURL = u
	return e
}

// Dimensions returns the embedding vector size.
func (e *EmbeddingClient) Dimensions() int { return VoyageDimensions }

// EmbedDocuments generates one embedding per text, in input order, in
// batches of 100.
func (e *EmbeddingClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += voyageBatchSize {
		end := i + voyageBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", i, end-1, err)
		}
		all = append(all, batch...)
	}

	e.logger.Info("Batch embedding generation complete", "embeddings", len(all))
	return all, nil
}

// embedBatch makes the actual batch API call to VoyageAI
func (e *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, text := range texts {
		if len(text) > voyageMaxChars {
			e.logger.Warn("Text too long, truncating", "index", i, "chars", len(text), "max", voyageMaxChars)
			text = text[:voyageMaxChars]
		}
		truncated[i] = text
	}

	jsonData, err := json.Marshal(VoyageBatchEmbeddingRequest{Input: truncated, Model: voyageModel, InputType: "document"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	startTime := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("VoyageAI batch API returned status %d: %s", resp.StatusCode, string(body))
	}

	var voyageResp VoyageEmbeddingResponse
	if err := json.Unmarshal(body, &voyageResp); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	if len(voyageResp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(voyageResp.Data), len(texts))
	}

	// Responses carry their input index; order by it.
	embeddings := make([][]float32, len(texts))
	for _, data := range voyageResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		if len(data.Embedding) != VoyageDimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for text %d: got %d, expected %d",
				data.Index, len(data.Embedding), VoyageDimensions)
		}
		embeddings[data.Index] = data.Embedding
	}

	e.logger.Debug("VoyageAI batch embedding complete",
		"texts", len(texts), "tokens", voyageResp.Usage.TotalTokens, "duration", time.Since(startTime))

	return embeddings, nil
}
