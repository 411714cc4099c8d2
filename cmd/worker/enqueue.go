package main

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docparse-worker/internal/config"
	"github.com/adverant/nexus/docparse-worker/internal/queue"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Push a parse job onto the configured queue",
	Args:  cobra.NoArgs,
	RunE:  runEnqueue,
}

func init() {
	f := enqueueCmd.Flags()
	f.String("bucket-path", "", "storage path of the source document (required)")
	f.String("file-name", "", "original file name (default: last element of the bucket path)")
	f.String("user-id", "", "owner of the job")
	f.String("mime-type", "", "MIME type of the source")
	f.String("job-id", "", "job id (generated when empty)")
	_ = enqueueCmd.MarkFlagRequired("bucket-path")
}

func newProducer(cfg *config.Config) (queue.Producer, error) {
	switch cfg.QueueBackend {
	case "asynq":
		return queue.NewAsynqProducer(cfg.RedisURL, cfg.QueueName, cfg.MaxRetries)
	case "redis":
		return queue.NewRedisProducer(cfg.RedisURL, cfg.QueueName, cfg.MaxRetries)
	}
	return nil, fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", cfg.QueueBackend)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f := cmd.Flags()
	p := &queue.JobPayload{}
	p.BucketPath, _ = f.GetString("bucket-path")
	p.FileName, _ = f.GetString("file-name")
	p.UserID, _ = f.GetString("user-id")
	p.MimeType, _ = f.GetString("mime-type")
	p.JobID, _ = f.GetString("job-id")
	if p.FileName == "" {
		p.FileName = path.Base(p.BucketPath)
	}

	producer, err := newProducer(cfg)
	if err != nil {
		return err
	}
	defer producer.Close()

	id, err := producer.Enqueue(cmd.Context(), p)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

