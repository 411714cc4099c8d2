/**
 * DocParse Worker - Main Entry Point
 *
 * Turns scanned or digital documents into structured JSON artifacts:
 * - OCR through a line-oriented service, Document AI, or local Tesseract
 * - Page-capped providers are fed page windows in parallel
 * - An LLM classifier groups lines into questions, relevant and irrelevant text
 * - The parsed document is written next to its source and optionally indexed
 *   in Qdrant (VoyageAI embeddings) and GraphRAG
 *
 * Commands:
 *   run            consume jobs from Redis (list queue or asynq)
 *   parse <file>   process one local file against a filesystem store
 *   enqueue        push a job onto the configured queue
 */

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docparse-worker/internal/config"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "docparse-worker",
	Short: "OCR-to-structured-document worker",
	Long: `docparse-worker recognizes documents, classifies their lines with an LLM
and writes the reconciled page/line structure as a JSON artifact.

Without a subcommand it starts the queue worker.`,
	SilenceUsage: true,
	RunE:         runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or env); environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env.nexus", "dotenv file loaded before the configuration")

	rootCmd.AddCommand(runCmd, parseCmd, enqueueCmd)
}

// loadConfig loads the dotenv file, then the configuration.
func loadConfig() (*config.Config, error) {
	log := logging.NewLogger("Main")
	if err := godotenv.Load(envFile); err != nil {
		log.Debug("Env file not loaded, using system environment variables", "file", envFile)
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
