// Command ragctl is the operator CLI for the fact store: ingest PDFs, list and
// delete documents, and ask one-off questions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/factrag/backend/internal/app"
	"github.com/factrag/backend/internal/evaluation"
	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/config"
	"github.com/factrag/backend/pkg/logger"
)

type documentManager interface {
	IngestPDF(ctx context.Context, name string, r io.ReaderAt, size int64) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

type chatter interface {
	Chat(ctx context.Context, session *query.Session, message string) (*query.ChatResult, error)
}

type embeddingCache interface {
	FlushEmbeddings(ctx context.Context) (int, error)
}

// Services are wired in PersistentPreRunE, or injected directly by tests.
var (
	documentService documentManager
	chatService     chatter
	cacheService    embeddingCache
	evaluator       func(threshold float64) *evaluation.Evaluator

	application *app.App
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Operate the document fact store",
	Long:          `Ingest PDF documents into the fact store, manage stored documents, and ask grounded questions from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if documentService != nil || chatService != nil {
			return nil
		}
		return initServices(cmd.Context())
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if application == nil {
			return nil
		}
		err := application.Close()
		application = nil
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func initServices(ctx context.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logLevel, "console", "stderr"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	application = a
	documentService = a.Processor
	chatService = a.Engine
	if a.Cache != nil {
		cacheService = a.Cache
	}
	evaluator = func(threshold float64) *evaluation.Evaluator {
		return evaluation.NewEvaluator(a.Retriever, a.Engine, a.Embedder, threshold)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
