package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/chunker"
	"github.com/adverant/nexus/docparse-worker/internal/classify"
	"github.com/adverant/nexus/docparse-worker/internal/clients"
	"github.com/adverant/nexus/docparse-worker/internal/config"
	"github.com/adverant/nexus/docparse-worker/internal/index"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
	"github.com/adverant/nexus/docparse-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/docparse-worker/internal/processor"
	"github.com/adverant/nexus/docparse-worker/internal/retry"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

// closers collects cleanup functions, run in reverse order.
type closers []func() error

func (c *closers) add(f func() error) { *c = append(*c, f) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i]()
	}
}

func buildProvider(ctx context.Context, cfg *config.Config, cl *closers) (ocr.Provider, error) {
	switch cfg.OCRProvider {
	case "lines":
		client := clients.NewLineOCRClient(&clients.LineOCRConfig{
			BaseURL:  cfg.OCRAPIURL,
			APIKey:   cfg.OCRAPIKey,
			MaxPages: cfg.OCRMaxPages,
		})
		return ocr.NewPollingProvider(client, retry.Policy{
			Interval:    cfg.OCRPollInterval,
			MaxInterval: 4 * cfg.OCRPollInterval,
			Multiplier:  1.5,
			Timeout:     cfg.OCRTimeout,
		}), nil

	case "documentai":
		client, err := clients.NewDocumentAIClient(ctx, &clients.DocumentAIConfig{
			ProjectID:   cfg.DocumentAIProject,
			Location:    cfg.DocumentAILocation,
			ProcessorID: cfg.DocumentAIProcessor,
			MaxPages:    cfg.OCRMaxPages,
			Timeout:     cfg.OCRTimeout,
		})
		if err != nil {
			return nil, err
		}
		cl.add(client.Close)
		return client, nil

	case "tesseract":
		return tesseract.NewProvider(&tesseract.Config{Languages: cfg.TesseractLangs}), nil
	}
	return nil, fmt.Errorf("unknown OCR provider %q", cfg.OCRProvider)
}

func buildClassifier(ctx context.Context, cfg *config.Config, cl *closers) (*classify.Classifier, error) {
	var completer classify.Completer
	switch cfg.ClassifierProvider {
	case "openai":
		completer = classify.NewOpenAICompleter(&classify.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.ClassifierModel,
		})
	case "gemini":
		g, err := classify.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.ClassifierModel)
		if err != nil {
			return nil, err
		}
		cl.add(g.Close)
		completer = g
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.ClassifierProvider)
	}

	return classify.NewClassifier(completer, &classify.Config{
		MaxAttempts:  cfg.ClassifierMaxAttempts,
		PagesPerCall: cfg.ClassifierPagesPerCall,
		Timeout:      cfg.ClassifierTimeout,
	}), nil
}

// buildIndexers wires the optional vector and GraphRAG indexers. A nil
// vector store disables vector indexing.
func buildIndexers(cfg *config.Config, vectors index.VectorStore) (index.Fanout, error) {
	var fanout index.Fanout

	if vectors != nil {
		embedder, err := clients.NewEmbeddingClient(cfg.VoyageAPIKey)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, index.NewVectorIndexer(embedder, vectors))
	}

	if cfg.GraphRAGURL != "" {
		fanout = append(fanout, index.NewGraphIndexer(clients.NewGraphRAGClient(cfg.GraphRAGURL), retry.Policy{
			Interval:    2 * time.Second,
			MaxInterval: 10 * time.Second,
			Multiplier:  1.5,
			Timeout:     cfg.IndexPollTimeout,
		}))
	}
	return fanout, nil
}

// pipeline holds what both the worker and the parse command hand to the
// processor.
type pipeline struct {
	provider   ocr.Provider
	classifier *classify.Classifier
}

func buildPipeline(ctx context.Context, cfg *config.Config, cl *closers) (*pipeline, error) {
	provider, err := buildProvider(ctx, cfg, cl)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR provider: %w", err)
	}
	classifier, err := buildClassifier(ctx, cfg, cl)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	return &pipeline{provider: provider, classifier: classifier}, nil
}

func (p *pipeline) processorConfig(cfg *config.Config, store processor.ArtifactStore) *processor.ProcessorConfig {
	return &processor.ProcessorConfig{
		Provider:       p.provider,
		Chunker:        chunker.New(chunker.NewPDFSplitter(), &chunker.Config{MaxParallel: cfg.OCRMaxParallel}),
		Classifier:     p.classifier,
		Store:          store,
		TempDir:        cfg.TempDir,
		MaxFileSize:    cfg.MaxFileSize,
		ArtifactSuffix: cfg.ArtifactSuffix,
		DropIrrelevant: cfg.DropIrrelevant,
	}
}

// qdrantAddress turns a Qdrant URL into the host:port gRPC expects.
func qdrantAddress(u string) string {
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "https://")
	return strings.TrimSuffix(u, "/")
}

func newStorageManager(ctx context.Context, cfg *config.Config) (*storage.StorageManager, error) {
	return storage.NewStorageManager(ctx, &storage.StorageConfig{
		PostgresURL:      cfg.DatabaseURL,
		QdrantAddress:    qdrantAddress(cfg.QdrantURL),
		QdrantCollection: cfg.QdrantCollection,
		VectorDimensions: clients.VoyageDimensions,
	})
}
