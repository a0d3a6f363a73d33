package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/internal/storage/models"
)

type fakeDocuments struct {
	ingested []string
	deleted  []int64
	docs     []models.Document
}

func (f *fakeDocuments) IngestPDF(_ context.Context, name string, _ io.ReaderAt, _ int64) (*models.Document, error) {
	f.ingested = append(f.ingested, name)
	return &models.Document{ID: 1, Name: name, FactCount: 4}, nil
}

func (f *fakeDocuments) ListDocuments(context.Context) ([]models.Document, error) {
	return f.docs, nil
}

func (f *fakeDocuments) DeleteDocument(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChat struct {
	result *query.ChatResult
	err    error
	asked  string
}

func (f *fakeChat) Chat(_ context.Context, _ *query.Session, message string) (*query.ChatResult, error) {
	f.asked = message
	return f.result, f.err
}

type fakeCache struct{ n int }

func (f *fakeCache) FlushEmbeddings(context.Context) (int, error) { return f.n, nil }

func setupTestServices(docs *fakeDocuments, chat *fakeChat, cache embeddingCache) func() {
	documentService = docs
	chatService = chat
	cacheService = cache
	return func() {
		documentService = nil
		chatService = nil
		cacheService = nil
		ingestName = ""
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "documents")
	assert.Contains(t, names, "ask")
	assert.Contains(t, names, "cache")
}

func TestIngestCmd(t *testing.T) {
	docs := &fakeDocuments{}
	defer setupTestServices(docs, &fakeChat{}, nil)()

	path := filepath.Join(t.TempDir(), "passport-guide.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	out, err := execute(t, "ingest", path)
	require.NoError(t, err)
	assert.Contains(t, out, `Ingested "passport-guide.pdf" as document 1 with 4 facts`)

	_, err = execute(t, "ingest", path, "--name", "guide")
	require.NoError(t, err)
	assert.Equal(t, []string{"passport-guide.pdf", "guide"}, docs.ingested)
}

func TestIngestCmd_MissingFile(t *testing.T) {
	defer setupTestServices(&fakeDocuments{}, &fakeChat{}, nil)()

	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestDocumentsListCmd(t *testing.T) {
	docs := &fakeDocuments{docs: []models.Document{{ID: 3, Name: "guide", FactCount: 12}}}
	defer setupTestServices(docs, &fakeChat{}, nil)()

	out, err := execute(t, "documents", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "guide")
	assert.Contains(t, out, "12 facts")
	assert.Contains(t, out, "Total: 1 documents")
}

func TestDocumentsDeleteCmd(t *testing.T) {
	docs := &fakeDocuments{}
	defer setupTestServices(docs, &fakeChat{}, nil)()

	out, err := execute(t, "documents", "delete", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted document 9")
	assert.Equal(t, []int64{9}, docs.deleted)

	_, err = execute(t, "documents", "delete", "nine")
	assert.Error(t, err)
}

func TestAskCmd(t *testing.T) {
	chat := &fakeChat{result: &query.ChatResult{Reply: "Ten years.", References: []string{"Passports last ten years."}}}
	defer setupTestServices(&fakeDocuments{}, chat, nil)()

	out, err := execute(t, "ask", "how", "long?")
	require.NoError(t, err)
	assert.Equal(t, "how long?", chat.asked)
	assert.Contains(t, out, "Ten years.")
	assert.Contains(t, out, "1. Passports last ten years.")
}

func TestAskCmd_NoResponse(t *testing.T) {
	defer setupTestServices(&fakeDocuments{}, &fakeChat{err: errs.ErrNoResponse}, nil)()

	_, err := execute(t, "ask", "question")
	assert.ErrorIs(t, err, errs.ErrNoResponse)
}

func TestCacheFlushCmd(t *testing.T) {
	defer setupTestServices(&fakeDocuments{}, &fakeChat{}, &fakeCache{n: 5})()

	out, err := execute(t, "cache", "flush")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 5 cached embeddings")
}

func TestCacheFlushCmd_Disabled(t *testing.T) {
	defer setupTestServices(&fakeDocuments{}, &fakeChat{}, nil)()

	_, err := execute(t, "cache", "flush")
	assert.Error(t, err)
}
