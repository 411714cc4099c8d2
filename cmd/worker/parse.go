package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docparse-worker/internal/processor"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Process one local file and print the result as JSON",
	Long: `parse copies the file into a filesystem artifact store, runs the full
pipeline on it and writes <name>_parsed.json next to the copy.

The store root defaults to LOCAL_ARTIFACT_DIR.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().String("store", "", "artifact store root (default LOCAL_ARTIFACT_DIR)")
	parseCmd.Flags().String("mime-type", "", "MIME type of the file (detected when empty)")
	parseCmd.Flags().Bool("document", false, "print the parsed document instead of the job result")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root, _ := cmd.Flags().GetString("store")
	if root == "" {
		root = cfg.LocalArtifactDir
	}
	mimeType, _ := cmd.Flags().GetString("mime-type")
	printDocument, _ := cmd.Flags().GetBool("document")

	store, err := storage.NewLocalStore(root)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	name := filepath.Base(args[0])

	ctx := cmd.Context()
	if cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ProcessingTimeout)*time.Millisecond)
		defer cancel()
	}

	if err := store.Upload(ctx, name, data, mimeType); err != nil {
		return err
	}

	var cl closers
	defer cl.close()
	pipe, err := buildPipeline(ctx, cfg, &cl)
	if err != nil {
		return err
	}
	proc, err := processor.NewDocumentProcessor(pipe.processorConfig(cfg, store))
	if err != nil {
		return err
	}

	res, err := proc.ProcessDocument(ctx, &processor.ProcessRequest{
		JobID:      uuid.NewString(),
		FileName:   name,
		BucketPath: name,
		MimeType:   mimeType,
		FileSize:   int64(len(data)),
	})
	if err != nil {
		return err
	}

	var out interface{} = res
	if printDocument {
		out = res.Document
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
