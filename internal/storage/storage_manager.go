/**
 * Storage Manager for the docparse worker
 *
 * Coordinates job tracking in PostgreSQL with line vectors in Qdrant.
 * Qdrant is optional: without an address the manager only tracks jobs.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/docparse-worker/internal/logging"
)

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient
	logger   *logging.Logger
}

// StorageConfig holds storage manager configuration
type StorageConfig struct {
	PostgresURL      string
	QdrantAddress    string // empty disables the vector store
	QdrantCollection string
	VectorDimensions int
}

// NewStorageManager connects to PostgreSQL (and Qdrant when configured)
// and ensures the job schema exists.
func NewStorageManager(ctx context.Context, cfg *StorageConfig) (*StorageManager, error) {
	logger := logging.NewLogger("Storage")

	postgres, err := NewPostgresClient(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		postgres.Close()
		return nil, err
	}

	sm := &StorageManager{postgres: postgres, logger: logger}

	if cfg.QdrantAddress != "" {
		qc, err := NewQdrantClient(cfg.QdrantAddress, cfg.QdrantCollection, cfg.VectorDimensions)
		if err != nil {
			postgres.Close() // Cleanup on failure
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		sm.qdrant = qc
	} else {
		logger.Warn("Qdrant address not set, vector indexing disabled")
	}

	return sm, nil
}

// HasVectorStore reports whether Qdrant is configured
func (sm *StorageManager) HasVectorStore() bool {
	return sm.qdrant != nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (*ParseJob, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// ReplaceLineVectors replaces the line vectors of an artifact in Qdrant
func (sm *StorageManager) ReplaceLineVectors(ctx context.Context, artifactPath string, points []*VectorPoint) error {
	if sm.qdrant == nil {
		return fmt.Errorf("vector store is not configured")
	}
	return sm.qdrant.ReplaceLineVectors(ctx, artifactPath, points)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()
	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}
	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}
	return nil
}
