// Package config loads runtime settings from .env, an optional TOML file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	Port             int      `toml:"port"`
	CORSOrigins      []string `toml:"cors_origins"`
	MetricsNamespace string   `toml:"metrics_namespace"`

	AnthropicAPIKey string        `toml:"anthropic_api_key"`
	Model           string        `toml:"model"`
	MaxTokens       int           `toml:"max_tokens"`
	ModelTimeout    time.Duration `toml:"model_timeout"`

	TavilyAPIKey  string  `toml:"tavily_api_key"`
	TavilyBaseURL string  `toml:"tavily_base_url"`
	WebSearchRPS  float64 `toml:"web_search_rps"`

	// Relational store: postgres when DatabaseURL is set, else sqlite when
	// SQLitePath is set, else in-memory.
	DatabaseURL string `toml:"database_url"`
	SQLitePath  string `toml:"sqlite_path"`

	// VectorDBPath persists the vector index; empty keeps it in memory.
	VectorDBPath string `toml:"vector_db_path"`
	IndexName    string `toml:"index_name"`

	Embedder           string `toml:"embedder"`
	ONNXModelPath      string `toml:"onnx_model_path"`
	ONNXTokenizerPath  string `toml:"onnx_tokenizer_path"`
	ONNXLibraryPath    string `toml:"onnx_library_path"`
	EmbeddingCacheSize int    `toml:"embedding_cache_size"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:               8000,
		CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
		MetricsNamespace:   "assistant",
		Model:              "claude-3-5-sonnet-20241022",
		MaxTokens:          4096,
		ModelTimeout:       2 * time.Minute,
		TavilyBaseURL:      "https://api.tavily.com",
		WebSearchRPS:       5,
		IndexName:          "ai-assistant-index",
		Embedder:           "mock",
		EmbeddingCacheSize: 10000,
	}
}

// Load reads .env (if present), the TOML file named by ASSISTANT_CONFIG
// (if set) and then environment variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := stringsTrimSpace("ASSISTANT_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
		log.Printf("[CONFIG] Loaded %s", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	if cfg.Port, err = intFromEnv("PORT", cfg.Port); err != nil {
		return err
	}
	if v := stringsTrimSpace("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.MetricsNamespace = envOrDefault("METRICS_NAMESPACE", cfg.MetricsNamespace)

	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.Model = envOrDefault("ASSISTANT_MODEL", cfg.Model)
	if cfg.MaxTokens, err = intFromEnv("ASSISTANT_MAX_TOKENS", cfg.MaxTokens); err != nil {
		return err
	}
	if cfg.ModelTimeout, err = durationFromEnv("ASSISTANT_MODEL_TIMEOUT", cfg.ModelTimeout); err != nil {
		return err
	}

	cfg.TavilyAPIKey = envOrDefault("TAVILY_API_KEY", cfg.TavilyAPIKey)
	cfg.TavilyBaseURL = envOrDefault("TAVILY_BASE_URL", cfg.TavilyBaseURL)
	if cfg.WebSearchRPS, err = floatFromEnv("WEB_SEARCH_RPS", cfg.WebSearchRPS); err != nil {
		return err
	}

	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = envOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.VectorDBPath = envOrDefault("VECTOR_DB_PATH", cfg.VectorDBPath)
	cfg.IndexName = envOrDefault("INDEX_NAME", cfg.IndexName)

	cfg.Embedder = strings.ToLower(envOrDefault("EMBEDDER", cfg.Embedder))
	cfg.ONNXModelPath = envOrDefault("ONNX_MODEL_PATH", cfg.ONNXModelPath)
	cfg.ONNXTokenizerPath = envOrDefault("ONNX_TOKENIZER_PATH", cfg.ONNXTokenizerPath)
	cfg.ONNXLibraryPath = envOrDefault("ONNX_LIBRARY_PATH", cfg.ONNXLibraryPath)
	if cfg.EmbeddingCacheSize, err = intFromEnv("EMBEDDING_CACHE_SIZE", cfg.EmbeddingCacheSize); err != nil {
		return err
	}
	return nil
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max tokens %d", c.MaxTokens)
	}
	if c.IndexName == "" {
		return errors.New("INDEX_NAME must not be empty")
	}
	switch c.Embedder {
	case "mock":
	case "onnx":
		if c.ONNXModelPath == "" || c.ONNXTokenizerPath == "" {
			return errors.New("EMBEDDER=onnx requires ONNX_MODEL_PATH and ONNX_TOKENIZER_PATH")
		}
	default:
		return fmt.Errorf("unknown embedder %q (want mock or onnx)", c.Embedder)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// MemoryNamespace is the vector namespace for conversation memories.
func (c Config) MemoryNamespace() string {
	return c.IndexName + "-memory"
}

// StoreBackend names the relational backend selected by the settings.
func (c Config) StoreBackend() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return "memory"
	}
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
