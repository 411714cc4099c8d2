package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docparse-worker/internal/clients"
	"github.com/adverant/nexus/docparse-worker/internal/config"
	"github.com/adverant/nexus/docparse-worker/internal/index"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/processor"
	"github.com/adverant/nexus/docparse-worker/internal/queue"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume parse jobs from the Redis queue",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

// worker is a started queue consumer.
type worker interface {
	stop(ctx context.Context) error
}

type listWorker struct{ c *queue.RedisConsumer }

func (w listWorker) stop(ctx context.Context) error { return w.c.Stop() }

type asynqWorker struct{ c *queue.Consumer }

func (w asynqWorker) stop(ctx context.Context) error { return w.c.Stop(ctx) }

func startConsumer(ctx context.Context, cfg *config.Config, proc processor.DocumentProcessorInterface) (worker, error) {
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return asynqWorker{c}, nil

	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			MaxRetries:        cfg.MaxRetries,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		if err := c.Start(); err != nil {
			return nil, err
		}
		return listWorker{c}, nil
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logging.NewLogger("Main")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("DocParse Worker starting...",
		"queue_backend", cfg.QueueBackend, "queue", cfg.QueueName,
		"ocr_provider", cfg.OCRProvider, "classifier", cfg.ClassifierProvider,
		"workers", cfg.WorkerConcurrency)

	var cl closers
	defer cl.close()

	log.Info("Connecting to storage (PostgreSQL + Qdrant)...")
	storageManager, err := newStorageManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage manager: %w", err)
	}
	cl.add(storageManager.Close)

	pipe, err := buildPipeline(ctx, cfg, &cl)
	if err != nil {
		return err
	}

	var vectors index.VectorStore
	if storageManager.HasVectorStore() {
		vectors = storageManager
	}
	indexers, err := buildIndexers(cfg, vectors)
	if err != nil {
		return fmt.Errorf("failed to initialize indexers: %w", err)
	}

	artifacts := clients.NewArtifactClient(cfg.FileProcessAPIURL)
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := artifacts.HealthCheck(healthCtx); err != nil {
		log.Warn("Artifact store health check failed, continuing", "url", cfg.FileProcessAPIURL, "error", err)
	}
	cancel()

	pcfg := pipe.processorConfig(cfg, artifacts)
	pcfg.Indexers = indexers
	pcfg.Tracker = storageManager
	proc, err := processor.NewDocumentProcessor(pcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize document processor: %w", err)
	}

	consumer, err := startConsumer(ctx, cfg, proc)
	if err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	log.Info("===========================================")
	log.Info("DocParse Worker is READY")
	log.Info("===========================================")
	log.Info("Waiting for jobs...", "indexers", len(indexers), "provider", pipe.provider.Name(), "classifier", pipe.classifier.Name())

	<-ctx.Done()
	log.Info("Received shutdown signal, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.ProcessingTimeout)*time.Millisecond)
	defer cancelShutdown()
	if err := consumer.stop(shutdownCtx); err != nil {
		log.Error("Error stopping queue consumer", "error", err)
	}

	if stats, err := storageManager.GetStats(shutdownCtx); err == nil {
		log.Info("Storage stats at shutdown", "stats", stats)
	}

	log.Info("Shutdown complete")
	return nil
}
