package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"clarity/internal/helper"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Database     DatabaseConfig    `yaml:"database"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	RAG          RAGConfig         `yaml:"rag"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Sync         SyncConfig        `yaml:"sync"`
	Log          LogConfig         `yaml:"log"`
}

type DatabaseConfig struct {
	// Driver is "pgdriver" (bun native) or "postgres" (lib/pq).
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// LLMConfig configures either the embedding model or the inference model.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	ModelDir    string  `yaml:"model_dir"`
	BatchSize   int     `yaml:"batch_size"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	ChunkStrategy string `yaml:"chunk_strategy"`
	Tokenizer     string `yaml:"tokenizer"`
	TopK          int    `yaml:"top_k"`
	EncryptionKey string `yaml:"encryption_key"`
	// ChunkContext prefixes every chunk with a model-written situating sentence before embedding.
	ChunkContext bool `yaml:"chunk_context"`
}

type VectorStoreConfig struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	Compress bool   `yaml:"compress"`
}

type SyncConfig struct {
	BaseURL    string `yaml:"base_url"`
	ListenAddr string `yaml:"listen_addr"`
	DeviceID   string `yaml:"device_id"`
	Token      string `yaml:"token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
	DefaultTopK         = 4
)

// LoadConfig reads the yaml file at path, then applies .env and environment overrides.
// A missing file is not an error; defaults are used instead.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
// Chunk sizes are seeded here only, so an explicit 0 in the file or environment survives to Validate.
func Default() *Config {
	cfg := &Config{RAG: RAGConfig{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		switch cfg.EmbedLLM.Provider {
		case "hugot":
			cfg.EmbedLLM.Model = "sentence-transformers/all-MiniLM-L6-v2"
		case "openai":
			cfg.EmbedLLM.Model = "text-embedding-3-small"
		default:
			cfg.EmbedLLM.Model = "nomic-embed-text"
		}
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 32
	}
	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = "mock"
	}
	if cfg.InferenceLLM.BaseURL == "" && cfg.InferenceLLM.Provider == "ollama" {
		cfg.InferenceLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.InferenceLLM.Model == "" {
		cfg.InferenceLLM.Model = "gpt-oss:20b"
	}
	if cfg.InferenceLLM.Temperature == 0 {
		cfg.InferenceLLM.Temperature = 0.7
	}
	if cfg.InferenceLLM.MaxTokens == 0 {
		cfg.InferenceLLM.MaxTokens = 1024
	}
	if cfg.InferenceLLM.TimeoutSecs == 0 {
		cfg.InferenceLLM.TimeoutSecs = 120
	}
	if cfg.RAG.ChunkStrategy == "" {
		cfg.RAG.ChunkStrategy = "sentence"
	}
	if cfg.RAG.Tokenizer == "" {
		cfg.RAG.Tokenizer = "approx"
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = DefaultTopK
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = filepath.Join(baseDir(), "chroma")
	}
	if cfg.Sync.ListenAddr == "" {
		cfg.Sync.ListenAddr = ":8081"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnv maps the environment variables understood by the original deployment onto the config.
func applyEnv(cfg *Config) {
	if v, ok := envInt("CLARITY_CHUNK_SIZE"); ok {
		cfg.RAG.ChunkSize = v
	}
	if v, ok := envInt("CLARITY_CHUNK_OVERLAP"); ok {
		cfg.RAG.ChunkOverlap = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		if cfg.EmbedLLM.Provider == "" || cfg.EmbedLLM.Provider == "ollama" {
			cfg.EmbedLLM.BaseURL = v
		}
		if cfg.InferenceLLM.Provider == "ollama" {
			cfg.InferenceLLM.BaseURL = v
		}
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.InferenceLLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.InferenceLLM.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbedLLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.InferenceLLM.Key == "" {
			cfg.InferenceLLM.Key = v
		}
		if cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = strings.Replace(v, "postgresql://", "postgres://", 1)
	}
	if v := os.Getenv("SYNC_BASE_URL"); v != "" {
		cfg.Sync.BaseURL = v
	}
	if v, err := strconv.ParseBool(os.Getenv("CLARITY_CHUNK_CONTEXT")); err == nil {
		cfg.RAG.ChunkContext = v
	}
}

// Redacted returns a copy safe to log: credentials and the encryption key are masked.
func (c *Config) Redacted() Config {
	r := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "redacted"
	}
	r.Database.Password = mask(r.Database.Password)
	r.Database.DSN = redactDSN(r.Database.DSN)
	r.EmbedLLM.Key = mask(r.EmbedLLM.Key)
	r.InferenceLLM.Key = mask(r.InferenceLLM.Key)
	r.RAG.EncryptionKey = mask(r.RAG.EncryptionKey)
	r.Sync.Token = mask(r.Sync.Token)
	return r
}

// redactDSN masks the password of a URL-style DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "redacted")
	}
	return u.String()
}

// Validate reports configuration values the rest of the system cannot work with.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalidConfig, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.RAG.TopK)
	}
	switch c.EmbedLLM.Provider {
	case "ollama", "openai", "hugot", "mock":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.EmbedLLM.Provider)
	}
	switch c.VectorStore.Type {
	case "chromem", "pgvector":
	default:
		return fmt.Errorf("%w: unknown vector store %q", ErrInvalidConfig, c.VectorStore.Type)
	}
	switch c.RAG.ChunkStrategy {
	case "sentence", "recursive":
	default:
		return fmt.Errorf("%w: unknown chunk strategy %q", ErrInvalidConfig, c.RAG.ChunkStrategy)
	}
	switch c.Database.Driver {
	case "pgdriver", "postgres":
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	return nil
}

func baseDir() string {
	if v := os.Getenv("CLARITY_BASE_DIR"); v != "" {
		return helper.ExpandHome(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clarity"
	}
	return filepath.Join(home, ".clarity")
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
