// Package config provides YAML-based configuration for docqa.
// Configuration is loaded with a layered precedence: defaults, then the YAML
// file, then env vars. Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCQA_CONFIG environment variable
//  3. ~/.docqa/config.yaml
//  4. ./docqa.yaml
//
// If no file is found the system runs entirely from env vars. Unknown YAML keys
// and out-of-range values are rejected at load time.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Storage configures where uploads and the local index live.
	Storage StorageConfig `yaml:"storage"`

	// Ingestion configures the document splitter.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Retrieval configures how much context a question gets.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Model configures the chat model providers.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// StorageConfig holds filesystem and index backend settings.
type StorageConfig struct {
	// UploadDir is the directory raw uploads are written to.
	UploadDir string `yaml:"upload_dir"`
	// VectorStorePath is the directory holding the persisted local index.
	VectorStorePath string `yaml:"vector_store_path"`
	// IndexBackend selects the index: local or qdrant.
	IndexBackend string `yaml:"index_backend"`
	// CleanupInterval is a Go duration string; "0" disables periodic cleanup.
	CleanupInterval string `yaml:"cleanup_interval"`
}

// IngestionConfig holds splitter settings, measured in characters.
type IngestionConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds retrieval and prompt sizing settings.
type RetrievalConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int `yaml:"top_k"`
	// MaxContextTokens bounds the estimated prompt size.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// ModelConfig holds chat model settings for the three provider choices.
type ModelConfig struct {
	// Cloud holds the managed cloud provider settings.
	Cloud CloudConfig `yaml:"cloud"`

	// Ollama holds the local provider settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// Custom holds the caller-keyed OpenAI-compatible endpoint.
	Custom CustomConfig `yaml:"custom"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature"`
}

// CloudConfig holds the cloud provider settings.
type CloudConfig struct {
	// Provider selects the backend: groq, openai, azure, gemini, ark.
	Provider string `yaml:"provider"`
	// Model is the cloud model name.
	Model string `yaml:"model"`
	// APIKey is the server-side key. Prefer env var MODEL_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url"`
	// AzureDeployment is the Azure OpenAI deployment name.
	AzureDeployment string `yaml:"azure_deployment"`
	// AzureAPIVersion is the Azure OpenAI API version.
	AzureAPIVersion string `yaml:"azure_api_version"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the default Ollama model name.
	Model string `yaml:"model"`
}

// CustomConfig holds the custom endpoint settings.
type CustomConfig struct {
	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
	// Model is the model requested from the endpoint.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var DOCQA_API_KEY.
	APIKey string `yaml:"api_key"`
	// MaxUploadBytes caps multipart upload bodies.
	MaxUploadBytes int `yaml:"max_upload_bytes"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"UPLOAD_DIR", func(c *Config) string { return c.Storage.UploadDir }},
	{"VECTOR_STORE_PATH", func(c *Config) string { return c.Storage.VectorStorePath }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Storage.IndexBackend }},
	{"CLEANUP_INTERVAL", func(c *Config) string { return c.Storage.CleanupInterval }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingestion.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingestion.ChunkOverlap) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"CLOUD_PROVIDER", func(c *Config) string { return c.Model.Cloud.Provider }},
	{"MODEL_NAME", func(c *Config) string { return c.Model.Cloud.Model }},
	{"MODEL_API_KEY", func(c *Config) string { return c.Model.Cloud.APIKey }},
	{"MODEL_BASE_URL", func(c *Config) string { return c.Model.Cloud.BaseURL }},
	{"AZURE_DEPLOYMENT", func(c *Config) string { return c.Model.Cloud.AzureDeployment }},
	{"AZURE_API_VERSION", func(c *Config) string { return c.Model.Cloud.AzureAPIVersion }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"CUSTOM_BASE_URL", func(c *Config) string { return c.Model.Custom.BaseURL }},
	{"CUSTOM_MODEL", func(c *Config) string { return c.Model.Custom.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"DOCQA_HOST", func(c *Config) string { return c.Server.Host }},
	{"DOCQA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"DOCQA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"MAX_UPLOAD_BYTES", func(c *Config) string { return intStr(c.Server.MaxUploadBytes) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load finds the YAML config file, validates it, and exports its non-empty
// values as environment variables. Variables already set are never
// overwritten. It returns the path loaded, or "" when no file was found.
//
// An explicit path or DOCQA_CONFIG that does not exist is an error; the
// default locations are optional.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	cfg, err := parse(path)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("config: %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		v := m.value(cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// parse decodes path strictly: unknown keys are an error so a misspelt
// setting does not silently fall back to its default. An empty file is valid.
func parse(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the values that can be checked without touching the
// network. Zero values mean "use the default" and always pass.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Storage.IndexBackend) {
	case "", "local", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("storage.index_backend %q: want local or qdrant", c.Storage.IndexBackend))
	}
	if c.Storage.CleanupInterval != "" {
		if _, err := time.ParseDuration(c.Storage.CleanupInterval); err != nil {
			errs = append(errs, fmt.Errorf("storage.cleanup_interval: %w", err))
		}
	}
	if c.Ingestion.ChunkSize < 0 || c.Ingestion.ChunkOverlap < 0 {
		errs = append(errs, errors.New("ingestion: chunk_size and chunk_overlap must not be negative"))
	}
	if c.Ingestion.ChunkSize > 0 && c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		errs = append(errs, fmt.Errorf("ingestion.chunk_overlap %d must be smaller than chunk_size %d",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize))
	}
	if c.Retrieval.TopK < 0 {
		errs = append(errs, errors.New("retrieval.top_k must not be negative"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature %v: want 0 to 2", c.Model.Temperature))
	}
	for name, port := range map[string]int{"server.port": c.Server.Port, "qdrant.port": c.Qdrant.Port} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, port))
		}
	}
	return errors.Join(errs...)
}

// resolveConfigPath returns the config file to load, or "" when none of the
// optional locations exist.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return mustExist(explicit, "--config")
	}
	if envPath := os.Getenv("DOCQA_CONFIG"); envPath != "" {
		return mustExist(envPath, "DOCQA_CONFIG")
	}

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".docqa", "config.yaml"))
	}
	candidates = append(candidates, "docqa.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

func mustExist(path, source string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("config: %s file %s: %w", source, path, err)
	}
	return path, nil
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
