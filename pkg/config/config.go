package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Ingestion IngestionConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host             string
	Port             int
	ReadTimeout      int
	WriteTimeout     int
	BodyLimit        int
	MaxMessageLength int
	AllowedOrigins   []string
	Development      bool
}

type StorageConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string
}

type PostgresConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	HNSWIndex bool
	MaxConns  int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled             bool
	Host                string
	Port                int
	Password            string
	DB                  int
	EmbeddingTTLMinutes int
}

type MilvusConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
}

type LLMConfig struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	EmbeddingModel  string
	EmbeddingDim    int
	CallTimeoutSec  int
	BreakerFailures int
	BreakerResetSec int
}

type EmbeddingConfig struct {
	Attempts  int
	BackoffMs int
}

type IngestionConfig struct {
	ChunkLength    int
	MaxConcurrency int
	FactAttempts   int
	BackoffMs      int
}

type RetrievalConfig struct {
	TopK int
	// Backend is "store" or "milvus".
	Backend string
}

type ChatConfig struct {
	HistoryTurns      int
	Attempts          int
	BackoffMs         int
	SessionIdleMinute int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return load(viper.New(), "")
}

// LoadFile reads an explicit config file instead of searching the default paths.
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/factrag")
	}

	v.SetEnvPrefix("FACTRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.apiKey":        {"FACTRAG_LLM_APIKEY", "GEMINI_API_KEY"},
		"postgres.dbName":   {"FACTRAG_POSTGRES_DBNAME", "POSTGRES_DB_NAME"},
		"postgres.host":     {"FACTRAG_POSTGRES_HOST", "POSTGRES_DB_HOST"},
		"postgres.port":     {"FACTRAG_POSTGRES_PORT", "POSTGRES_DB_PORT"},
		"postgres.user":     {"FACTRAG_POSTGRES_USER", "POSTGRES_DB_USER"},
		"postgres.password": {"FACTRAG_POSTGRES_PASSWORD", "POSTGRES_DB_PASSWORD"},
	}

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 52428800)
	v.SetDefault("server.maxMessageLength", 5000)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.development", false)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbName", "factrag")
	v.SetDefault("postgres.sslMode", "disable")
	v.SetDefault("postgres.hnswIndex", false)
	v.SetDefault("postgres.maxConns", 10)

	v.SetDefault("sqlite.path", "./data/factrag.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTLMinutes", 1440)

	v.SetDefault("milvus.enabled", false)
	v.SetDefault("milvus.endpoint", "localhost:19530")
	v.SetDefault("milvus.apiKey", "")
	v.SetDefault("milvus.collectionName", "fact_chunks")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.embeddingModel", "text-embedding-004")
	v.SetDefault("llm.embeddingDim", 768)
	v.SetDefault("llm.callTimeoutSec", 60)
	v.SetDefault("llm.breakerFailures", 10)
	v.SetDefault("llm.breakerResetSec", 30)

	v.SetDefault("embedding.attempts", 1)
	v.SetDefault("embedding.backoffMs", 1000)

	v.SetDefault("ingestion.chunkLength", 4000)
	v.SetDefault("ingestion.maxConcurrency", 8)
	v.SetDefault("ingestion.factAttempts", 5)
	v.SetDefault("ingestion.backoffMs", 1000)

	v.SetDefault("retrieval.topK", 5)
	v.SetDefault("retrieval.backend", "store")

	v.SetDefault("chat.historyTurns", 5)
	v.SetDefault("chat.attempts", 5)
	v.SetDefault("chat.backoffMs", 1000)
	v.SetDefault("chat.sessionIdleMinute", 60)

	v.SetDefault("rateLimit.requestsPerMinute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.LLM.APIKey) == "" {
		problems = append(problems, "llm.apiKey is required (set GEMINI_API_KEY or FACTRAG_LLM_APIKEY)")
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		problems = append(problems, fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider))
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.Retrieval.Backend {
	case "store":
	case "milvus":
		if !c.Milvus.Enabled {
			problems = append(problems, "retrieval.backend milvus requires milvus.enabled")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown retrieval.backend %q", c.Retrieval.Backend))
	}
	if c.LLM.EmbeddingDim <= 0 {
		problems = append(problems, "llm.embeddingDim must be positive")
	}
	if c.Ingestion.ChunkLength <= 0 {
		problems = append(problems, "ingestion.chunkLength must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval.topK must be positive")
	}
	if c.Ingestion.FactAttempts < 1 || c.Chat.Attempts < 1 || c.Embedding.Attempts < 1 {
		problems = append(problems, "retry attempts must be at least 1")
	}
	if c.Ingestion.BackoffMs <= 0 || c.Chat.BackoffMs <= 0 || c.Embedding.BackoffMs <= 0 {
		problems = append(problems, "retry backoffMs must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}
