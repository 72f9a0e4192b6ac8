package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Timeouts  TimeoutConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	EmbeddingTTL time.Duration
}

type StorageConfig struct {
	DocStoreDriver    string // memory | postgres | sqlite
	SQLitePath        string
	VectorIndexDriver string // memory | pgvector
}

// Shared reports whether documents and vectors live outside the process,
// where a separate worker can write them and the API can read them back.
func (s StorageConfig) Shared() bool {
	return s.DocStoreDriver != "memory" && s.VectorIndexDriver == "pgvector"
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

type LLMConfig struct {
	Provider         string // openai | anthropic | ollama
	Model            string
	FallbackProvider string
	BaseURL          string
	APIKey           string
	AnthropicKey     string
	OllamaURL        string
	VerifySSL        bool
	MaxTokens        int
}

type EmbeddingConfig struct {
	Provider    string
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
}

type ChunkingConfig struct {
	MaxChars     int
	OverlapChars int
}

type RetrievalConfig struct {
	DefaultK    int
	MaxK        int
	MinScore    float64
	BudgetChars int
}

type TimeoutConfig struct {
	Embedding      time.Duration
	Generation     time.Duration
	Search         time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func Load() (*Config, error) {
	var errs []string
	p := &parser{errs: &errs}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           p.int("SERVER_PORT", 8000),
			CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitRPS:   p.float("RATE_LIMIT_RPS", 20),
			RateLimitBurst: p.int("RATE_LIMIT_BURST", 40),
			RequestTimeout: p.duration("REQUEST_TIMEOUT", 60*time.Second),
			MaxUploadBytes: int64(p.int("MAX_UPLOAD_BYTES", 32<<20)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: p.int("DB_MAX_CONNS", 20),
			MinConns: p.int("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           p.int("REDIS_DB", 0),
			EmbeddingTTL: p.duration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		},
		Storage: StorageConfig{
			DocStoreDriver:    strings.ToLower(getEnv("DOCSTORE_DRIVER", "memory")),
			SQLitePath:        getEnv("SQLITE_PATH", "data/documents.db"),
			VectorIndexDriver: strings.ToLower(getEnv("VECTOR_INDEX_DRIVER", "memory")),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			TokenTTL:  p.duration("AUTH_TOKEN_TTL", 12*time.Hour),
			Issuer:    getEnv("AUTH_ISSUER", "neuralchat"),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:            getEnv("LLM_MODEL", "gpt-4o-mini"),
			FallbackProvider: strings.ToLower(getEnv("LLM_FALLBACK_PROVIDER", "")),
			BaseURL:          getEnv("API_ENDPOINT", ""),
			APIKey:           getEnv("API_KEY", os.Getenv("OPENAI_API_KEY")),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			VerifySSL:        p.bool("VERIFY_SSL", true),
			MaxTokens:        p.int("LLM_MAX_TOKENS", 1024),
		},
		Embedding: EmbeddingConfig{
			Provider:    strings.ToLower(getEnv("EMBEDDING_PROVIDER", "openai")),
			Model:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:   p.int("EMBEDDING_DIMENSION", 1536),
			BatchSize:   p.int("EMBEDDING_BATCH_SIZE", 64),
			Concurrency: p.int("EMBEDDING_CONCURRENCY", 4),
		},
		Chunking: ChunkingConfig{
			MaxChars:     p.int("CHUNK_MAX_CHARS", 1000),
			OverlapChars: p.int("CHUNK_OVERLAP_CHARS", 200),
		},
		Retrieval: RetrievalConfig{
			DefaultK:    p.int("RETRIEVAL_DEFAULT_K", 4),
			MaxK:        p.int("RETRIEVAL_MAX_K", 20),
			MinScore:    p.float("RETRIEVAL_MIN_SCORE", 0.2),
			BudgetChars: p.int("PROMPT_BUDGET_CHARS", 8000),
		},
		Timeouts: TimeoutConfig{
			Embedding:      p.duration("EMBEDDING_TIMEOUT", 10*time.Second),
			Generation:     p.duration("GENERATION_TIMEOUT", 45*time.Second),
			Search:         p.duration("SEARCH_TIMEOUT", 5*time.Second),
			RetryAttempts:  p.int("RETRY_ATTEMPTS", 2),
			RetryBaseDelay: p.duration("RETRY_BASE_DELAY", 250*time.Millisecond),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string

	if c.Chunking.MaxChars <= 0 {
		problems = append(problems, "CHUNK_MAX_CHARS must be positive")
	}
	if c.Chunking.OverlapChars < 0 || c.Chunking.OverlapChars >= c.Chunking.MaxChars {
		problems = append(problems, "CHUNK_OVERLAP_CHARS must be in [0, CHUNK_MAX_CHARS)")
	}
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, "EMBEDDING_DIMENSION must be positive")
	}
	if c.Retrieval.DefaultK <= 0 || c.Retrieval.MaxK < c.Retrieval.DefaultK {
		problems = append(problems, "RETRIEVAL_DEFAULT_K must be positive and not exceed RETRIEVAL_MAX_K")
	}
	if c.Retrieval.BudgetChars <= 0 {
		problems = append(problems, "PROMPT_BUDGET_CHARS must be positive")
	}

	switch c.Storage.DocStoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required for DOCSTORE_DRIVER=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown DOCSTORE_DRIVER %q", c.Storage.DocStoreDriver))
	}

	switch c.Storage.VectorIndexDriver {
	case "memory":
	case "pgvector":
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required for VECTOR_INDEX_DRIVER=pgvector")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown VECTOR_INDEX_DRIVER %q", c.Storage.VectorIndexDriver))
	}

	// Document records and vectors must outlive the process together,
	// otherwise a restart or a separate worker leaves ready documents no
	// query can find.
	docsPersist := c.Storage.DocStoreDriver != "memory"
	vectorsPersist := c.Storage.VectorIndexDriver != "memory"
	if docsPersist != vectorsPersist {
		problems = append(problems, fmt.Sprintf("DOCSTORE_DRIVER=%s cannot be paired with VECTOR_INDEX_DRIVER=%s; use memory for both or a persistent driver for both",
			c.Storage.DocStoreDriver, c.Storage.VectorIndexDriver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs *[]string
}

func (p *parser) fail(key string, err error) {
	*p.errs = append(*p.errs, fmt.Sprintf("%s: %v", key, err))
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}
