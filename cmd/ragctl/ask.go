package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/factrag/backend/internal/evaluation"
	"github.com/factrag/backend/internal/query"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question grounded on the stored facts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embedding cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove every cached embedding",
	Args:  cobra.NoArgs,
	RunE:  runCacheFlush,
}

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}

	question := strings.Join(args, " ")
	result, err := chatService.Chat(commandContext(cmd), query.NewSession(), question)
	if err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	cmd.Println(result.Reply)

	if result.Notice != "" {
		cmd.Printf("\n(%s)\n", result.Notice)
	}
	if len(result.References) > 0 {
		cmd.Println("\nReferences:")
		for i, ref := range result.References {
			cmd.Printf("  %d. %s\n", i+1, ref)
		}
	}
	return nil
}

func runCacheFlush(cmd *cobra.Command, _ []string) error {
	if cacheService == nil {
		return errors.New("embedding cache is not enabled")
	}

	n, err := cacheService.FlushEmbeddings(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}

	cmd.Printf("Removed %d cached embeddings\n", n)
	return nil
}

var evalCmd = &cobra.Command{
	Use:   "eval [dataset.json]",
	Short: "Score retrieval and answers against a labelled question set",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

// evalThreshold is the cosine similarity above which a retrieved fact counts
// as the expected one.
var evalThreshold float64

func init() {
	evalCmd.Flags().Float64Var(&evalThreshold, "threshold", evaluation.DefaultMatchThreshold, "Similarity needed for a retrieved fact to match")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	if evaluator == nil {
		return errors.New("evaluator not configured")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}

	dataset, err := evaluation.LoadDataset(data)
	if err != nil {
		return err
	}

	report, err := evaluator(evalThreshold).Run(commandContext(cmd), dataset)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	cmd.Print(evaluation.FormatReport(report))
	return nil
}
