package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the reviewexec server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Review    ReviewConfig
	State     StateConfig
	Blob      BlobConfig
	Tracing   TracingConfig
	RateLimit int
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
	Google           GoogleConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type GoogleConfig struct {
	APIKey string
	Model  string
}

// ReviewConfig tunes the review execution pipeline.
type ReviewConfig struct {
	MaxParallelWorkers int
	SlotTimeout        time.Duration
	DispatchStagger    time.Duration
	QuestionCacheTTL   time.Duration
	NotifyBuffer       int
}

// StateConfig selects where execution snapshots are persisted.
type StateConfig struct {
	Backend    string
	SQLitePath string
}

// BlobConfig selects where exported documents are read from.
type BlobConfig struct {
	Backend       string
	LocalDir      string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	AccessBaseURL string
}

// TracingConfig selects where finished spans go. "log" writes them through
// slog; "none" keeps tracing in-process only.
type TracingConfig struct {
	Exporter    string
	ServiceName string
}

// DefaultMaxParallelWorkers is used when REVIEW_MAX_PARALLEL_WORKERS is unset or not positive.
const DefaultMaxParallelWorkers = 5

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
	"google":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("REVIEWEXEC_PORT", 8080),
			Env:  envString("REVIEWEXEC_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
			Google: GoogleConfig{
				APIKey: os.Getenv("GOOGLE_API_KEY"),
				Model:  envString("GOOGLE_MODEL", "gemini-1.5-pro"),
			},
		},
		Review: ReviewConfig{
			MaxParallelWorkers: envInt("REVIEW_MAX_PARALLEL_WORKERS", DefaultMaxParallelWorkers),
			SlotTimeout:        envDuration("REVIEW_SLOT_TIMEOUT", 300*time.Second),
			DispatchStagger:    envDuration("REVIEW_DISPATCH_STAGGER", 500*time.Millisecond),
			QuestionCacheTTL:   envDuration("REVIEW_QUESTION_CACHE_TTL", 24*time.Hour),
			NotifyBuffer:       envInt("REVIEW_NOTIFY_BUFFER", 256),
		},
		State: StateConfig{
			Backend:    envString("STATE_STORE", "postgres"),
			SQLitePath: envString("SQLITE_PATH", "reviewexec.db"),
		},
		Blob: BlobConfig{
			Backend:       envString("BLOB_BACKEND", "local"),
			LocalDir:      envString("BLOB_LOCAL_DIR", "data/blobs"),
			S3Bucket:      os.Getenv("S3_BUCKET"),
			S3Region:      os.Getenv("S3_REGION"),
			S3Prefix:      os.Getenv("S3_PREFIX"),
			AccessBaseURL: envString("BLOB_ACCESS_BASE_URL", "/api/v1/assets"),
		},
		Tracing: TracingConfig{
			Exporter:    envString("TRACING_EXPORTER", "log"),
			ServiceName: envString("TRACING_SERVICE_NAME", "reviewexec"),
		},
		RateLimit: envInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.Review.MaxParallelWorkers <= 0 {
		cfg.Review.MaxParallelWorkers = DefaultMaxParallelWorkers
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic, google; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "google" && c.AI.Google.APIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required when AI_PROVIDER is google")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if c.Review.SlotTimeout <= 0 {
		return fmt.Errorf("REVIEW_SLOT_TIMEOUT must be positive")
	}
	if c.Review.DispatchStagger < 0 {
		return fmt.Errorf("REVIEW_DISPATCH_STAGGER must not be negative")
	}

	switch c.State.Backend {
	case "postgres":
	case "sqlite":
		if c.State.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STATE_STORE is sqlite")
		}
	default:
		return fmt.Errorf("STATE_STORE must be one of postgres, sqlite; got %q", c.State.Backend)
	}

	switch c.Blob.Backend {
	case "local":
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("BLOB_LOCAL_DIR is required when BLOB_BACKEND is local")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is s3")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of local, s3; got %q", c.Blob.Backend)
	}
	if strings.TrimSpace(c.Blob.AccessBaseURL) == "" {
		return fmt.Errorf("BLOB_ACCESS_BASE_URL must not be empty")
	}

	if c.Tracing.Exporter != "log" && c.Tracing.Exporter != "none" {
		return fmt.Errorf("TRACING_EXPORTER must be one of log, none; got %q", c.Tracing.Exporter)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
