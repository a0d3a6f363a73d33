package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "text-embedding-004", cfg.LLM.EmbeddingModel)
	assert.Equal(t, 768, cfg.LLM.EmbeddingDim)
	assert.Equal(t, 4000, cfg.Ingestion.ChunkLength)
	assert.Equal(t, 5, cfg.Ingestion.FactAttempts)
	assert.Equal(t, 1, cfg.Embedding.Attempts)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Chat.HistoryTurns)
	assert.Equal(t, 5, cfg.Chat.Attempts)
	assert.Equal(t, 1000, cfg.Chat.BackoffMs)
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("POSTGRES_DB_NAME", "passport")
	t.Setenv("POSTGRES_DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.LLM.APIKey)
	assert.Equal(t, "passport", cfg.Postgres.DBName)
	assert.Equal(t, 6543, cfg.Postgres.Port)
}

func TestLoad_PrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("FACTRAG_LLM_APIKEY", "new-key")
	t.Setenv("FACTRAG_RETRIEVAL_TOPK", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "new-key", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: sqlite
sqlite:
  path: /tmp/facts.db
llm:
  apiKey: from-file
ingestion:
  chunkLength: 2000
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/facts.db", cfg.SQLite.Path)
	assert.Equal(t, "from-file", cfg.LLM.APIKey)
	assert.Equal(t, 2000, cfg.Ingestion.ChunkLength)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		cfg.LLM.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.LLM.APIKey = " " }, wantErr: "llm.apiKey is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "unknown storage.driver"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "claude" }, wantErr: "unknown llm.provider"},
		{name: "milvus backend disabled", mutate: func(c *Config) { c.Retrieval.Backend = "milvus" }, wantErr: "requires milvus.enabled"},
		{name: "zero chunk length", mutate: func(c *Config) { c.Ingestion.ChunkLength = 0 }, wantErr: "chunkLength"},
		{name: "zero attempts", mutate: func(c *Config) { c.Embedding.Attempts = 0 }, wantErr: "attempts"},
		{name: "zero fact backoff", mutate: func(c *Config) { c.Ingestion.BackoffMs = 0 }, wantErr: "backoffMs"},
		{name: "negative chat backoff", mutate: func(c *Config) { c.Chat.BackoffMs = -5 }, wantErr: "backoffMs"},
		{name: "zero embedding backoff", mutate: func(c *Config) { c.Embedding.BackoffMs = 0 }, wantErr: "backoffMs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "facts", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=facts sslmode=disable", p.DSN())
}
