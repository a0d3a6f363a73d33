package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf]",
	Short: "Extract facts from a PDF and store them",
	Long:  `Reads the PDF, extracts atomic facts from every segment, embeds them, and stores the document with its facts in one transaction.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage stored documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsList,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its facts",
	Long:  `Deletes the document and every fact extracted from it. Deleting an unknown id succeeds.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

// ingestName overrides the stored document name.
var ingestName string

func init() {
	ingestCmd.Flags().StringVarP(&ingestName, "name", "n", "", "Document name (defaults to the file name)")

	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	path := args[0]
	name := ingestName
	if name == "" {
		name = filepath.Base(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	doc, err := documentService.IngestPDF(commandContext(cmd), name, f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	cmd.Printf("Ingested %q as document %d with %d facts\n", doc.Name, doc.ID, doc.FactCount)
	return nil
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.ListDocuments(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents stored")
		return nil
	}

	for _, d := range docs {
		cmd.Printf("  %d\t%s\t%d facts\n", d.ID, d.Name, d.FactCount)
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", args[0])
	}

	if err := documentService.DeleteDocument(commandContext(cmd), id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document %d\n", id)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
