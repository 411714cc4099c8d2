/**
 * Configuration for the docparse worker
 *
 * Loads configuration from environment variables (matching .env.nexus)
 * and an optional config file, environment taking precedence.
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds worker configuration
type Config struct {
	// Redis / queue configuration
	RedisURL     string
	QueueBackend string // "redis" (list consumer) or "asynq"
	QueueName    string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant vector database configuration
	QdrantURL        string
	QdrantCollection string

	// API Keys
	VoyageAPIKey string
	OpenAIAPIKey string
	GeminiAPIKey string

	// Service URLs
	GraphRAGURL       string
	FileProcessAPIURL string // FileProcess API for artifact storage
	LocalArtifactDir  string // filesystem artifact store for the parse command

	// OCR configuration
	OCRProvider         string // "lines", "documentai" or "tesseract"
	OCRAPIURL           string
	OCRAPIKey           string
	OCRPollInterval     time.Duration
	OCRTimeout          time.Duration
	OCRMaxPages         int // pages per OCR call, 0 means no chunking
	OCRMaxParallel      int
	TesseractLangs      []string
	DocumentAIProject   string
	DocumentAILocation  string
	DocumentAIProcessor string

	// Classifier configuration
	ClassifierProvider     string // "openai" or "gemini"
	ClassifierModel        string
	ClassifierTimeout      time.Duration
	ClassifierMaxAttempts  int
	ClassifierPagesPerCall int
	OpenAIBaseURL          string

	// Output
	ArtifactSuffix   string
	DropIrrelevant   bool
	IndexPollTimeout time.Duration

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds
	MaxRetries        int

	// Temporary directory for file processing
	TempDir string

	LogLevel string
	NodeEnv  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("REDIS_URL", "redis://nexus-redis:6379")
	v.SetDefault("QUEUE_BACKEND", "redis")
	v.SetDefault("QUEUE_NAME", "docparse:jobs")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("QDRANT_URL", "")
	v.SetDefault("QDRANT_COLLECTION", "docparse_lines")
	v.SetDefault("VOYAGE_API_KEY", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GRAPHRAG_URL", "")
	v.SetDefault("FILEPROCESS_API_URL", "http://nexus-fileprocess-api:8096")
	v.SetDefault("LOCAL_ARTIFACT_DIR", "./artifacts")
	v.SetDefault("OCR_PROVIDER", "lines")
	v.SetDefault("OCR_API_URL", "http://nexus-ocr:8080")
	v.SetDefault("OCR_API_KEY", "")
	v.SetDefault("OCR_POLL_INTERVAL", "2s")
	v.SetDefault("OCR_TIMEOUT", "5m")
	v.SetDefault("OCR_MAX_PAGES_PER_CALL", 0)
	v.SetDefault("OCR_MAX_PARALLEL_CHUNKS", 0)
	v.SetDefault("TESSERACT_LANGUAGES", "eng")
	v.SetDefault("DOCUMENTAI_PROJECT_ID", "")
	v.SetDefault("DOCUMENTAI_LOCATION", "us")
	v.SetDefault("DOCUMENTAI_PROCESSOR_ID", "")
	v.SetDefault("CLASSIFIER_PROVIDER", "openai")
	v.SetDefault("CLASSIFIER_MODEL", "")
	v.SetDefault("CLASSIFIER_TIMEOUT", "90s")
	v.SetDefault("CLASSIFIER_MAX_ATTEMPTS", 3)
	v.SetDefault("CLASSIFIER_PAGES_PER_CALL", 4)
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("ARTIFACT_SUFFIX", "_parsed")
	v.SetDefault("DROP_IRRELEVANT", false)
	v.SetDefault("INDEX_POLL_TIMEOUT", "2m")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("MAX_FILE_SIZE", int64(536870912)) // 512MB
	v.SetDefault("PROCESSING_TIMEOUT", 900000)      // 15 minutes
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("TEMP_DIR", "/tmp/docparse")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NODE_ENV", "development")
}

// LoadConfig loads configuration from environment variables and, when
// configFile is not empty, from that file.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		RedisURL:               v.GetString("REDIS_URL"),
		QueueBackend:           strings.ToLower(v.GetString("QUEUE_BACKEND")),
		QueueName:              v.GetString("QUEUE_NAME"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		QdrantURL:              v.GetString("QDRANT_URL"),
		QdrantCollection:       v.GetString("QDRANT_COLLECTION"),
		VoyageAPIKey:           v.GetString("VOYAGE_API_KEY"),
		OpenAIAPIKey:           v.GetString("OPENAI_API_KEY"),
		GeminiAPIKey:           v.GetString("GEMINI_API_KEY"),
		GraphRAGURL:            v.GetString("GRAPHRAG_URL"),
		FileProcessAPIURL:      v.GetString("FILEPROCESS_API_URL"),
		LocalArtifactDir:       v.GetString("LOCAL_ARTIFACT_DIR"),
		OCRProvider:            strings.ToLower(v.GetString("OCR_PROVIDER")),
		OCRAPIURL:              v.GetString("OCR_API_URL"),
		OCRAPIKey:              v.GetString("OCR_API_KEY"),
		OCRPollInterval:        v.GetDuration("OCR_POLL_INTERVAL"),
		OCRTimeout:             v.GetDuration("OCR_TIMEOUT"),
		OCRMaxPages:            v.GetInt("OCR_MAX_PAGES_PER_CALL"),
		OCRMaxParallel:         v.GetInt("OCR_MAX_PARALLEL_CHUNKS"),
		TesseractLangs:         splitList(v.GetString("TESSERACT_LANGUAGES")),
		DocumentAIProject:      v.GetString("DOCUMENTAI_PROJECT_ID"),
		DocumentAILocation:     v.GetString("DOCUMENTAI_LOCATION"),
		DocumentAIProcessor:    v.GetString("DOCUMENTAI_PROCESSOR_ID"),
		ClassifierProvider:     strings.ToLower(v.GetString("CLASSIFIER_PROVIDER")),
		ClassifierModel:        v.GetString("CLASSIFIER_MODEL"),
		ClassifierTimeout:      v.GetDuration("CLASSIFIER_TIMEOUT"),
		ClassifierMaxAttempts:  v.GetInt("CLASSIFIER_MAX_ATTEMPTS"),
		ClassifierPagesPerCall: v.GetInt("CLASSIFIER_PAGES_PER_CALL"),
		OpenAIBaseURL:          v.GetString("OPENAI_BASE_URL"),
		ArtifactSuffix:         v.GetString("ARTIFACT_SUFFIX"),
		DropIrrelevant:         v.GetBool("DROP_IRRELEVANT"),
		IndexPollTimeout:       v.GetDuration("INDEX_POLL_TIMEOUT"),
		WorkerConcurrency:      v.GetInt("WORKER_CONCURRENCY"),
		MaxFileSize:            v.GetInt64("MAX_FILE_SIZE"),
		ProcessingTimeout:      v.GetInt("PROCESSING_TIMEOUT"),
		MaxRetries:             v.GetInt("MAX_RETRIES"),
		TempDir:                v.GetString("TEMP_DIR"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		NodeEnv:                v.GetString("NODE_ENV"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.OCRProvider {
	case "lines":
		if c.OCRAPIURL == "" {
			return fmt.Errorf("OCR_API_URL is required for OCR_PROVIDER=lines")
		}
	case "documentai":
		if c.DocumentAIProject == "" || c.DocumentAIProcessor == "" {
			return fmt.Errorf("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required for OCR_PROVIDER=documentai")
		}
	case "tesseract":
	default:
		return fmt.Errorf("OCR_PROVIDER must be one of lines, documentai, tesseract, got %q", c.OCRProvider)
	}

	switch c.ClassifierProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for CLASSIFIER_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for CLASSIFIER_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("CLASSIFIER_PROVIDER must be openai or gemini, got %q", c.ClassifierProvider)
	}

	if c.QdrantURL != "" && c.VoyageAPIKey == "" {
		return fmt.Errorf("VOYAGE_API_KEY is required when QDRANT_URL is set")
	}

	if c.OCRMaxPages < 0 || c.OCRMaxPages > 500 {
		return fmt.Errorf("OCR_MAX_PAGES_PER_CALL must be between 0 and 500, got %d", c.OCRMaxPages)
	}

	if c.OCRTimeout <= 0 || c.OCRPollInterval <= 0 {
		return fmt.Errorf("OCR_TIMEOUT and OCR_POLL_INTERVAL must be positive")
	}

	if c.ClassifierMaxAttempts < 1 || c.ClassifierMaxAttempts > 10 {
		return fmt.Errorf("CLASSIFIER_MAX_ATTEMPTS must be between 1 and 10, got %d", c.ClassifierMaxAttempts)
	}

	if c.ClassifierPagesPerCall < 1 {
		return fmt.Errorf("CLASSIFIER_PAGES_PER_CALL must be at least 1, got %d", c.ClassifierPagesPerCall)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.ArtifactSuffix == "" {
		return fmt.Errorf("ARTIFACT_SUFFIX must not be empty")
	}

	return nil
}

// ValidateWorker adds the requirements of the queue worker on top of Validate.
func (c *Config) ValidateWorker() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.FileProcessAPIURL == "" {
		return fmt.Errorf("FILEPROCESS_API_URL is required")
	}

	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
