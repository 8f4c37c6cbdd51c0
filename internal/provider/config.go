package provider

import (
	"fmt"
	"os"
	"strconv"
)

// Default models and endpoints.
const (
	DefaultCloudModel      = "llama-3.3-70b-versatile"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultOllamaModel     = "mistral"
	DefaultCustomBaseURL   = "https://api.openai.com/v1"
	DefaultCustomModel     = "gpt-4o-mini"
	DefaultMaxTokens       = 1024
	DefaultAzureAPIVersion = "2024-06-01"

	groqBaseURL = "https://api.groq.com/openai/v1"
)

// Config holds the server-side settings for every provider variant.
type Config struct {
	// Cloud configures the managed provider behind the Cloud choice.
	Cloud CloudConfig
	// Ollama configures the Local choice.
	Ollama OllamaConfig
	// Custom configures the Custom choice's endpoint. The key always comes
	// from the caller.
	Custom CustomConfig
	// Tuning applies to every backend.
	Tuning Tuning
}

// CloudConfig describes the managed cloud backend.
type CloudConfig struct {
	// Backend selects the service (default groq).
	Backend Backend
	// Model is the model name, or the deployment name on Azure.
	Model string
	// APIKey is the server-side default key. Sourced from MODEL_API_KEY,
	// falling back to GROQ_API_KEY.
	APIKey string
	// BaseURL overrides the backend's endpoint. Required for azure.
	BaseURL string
	// AzureDeployment is the Azure OpenAI deployment (azure only).
	AzureDeployment string
	// AzureAPIVersion is the Azure OpenAI REST API version (azure only).
	AzureAPIVersion string
}

// OllamaConfig describes the local Ollama server.
type OllamaConfig struct {
	Host  string
	Model string
}

// CustomConfig describes the OpenAI-compatible endpoint for Custom choices.
type CustomConfig struct {
	BaseURL string
	Model   string
}

// Tuning holds generation parameters shared by all backends.
type Tuning struct {
	// MaxTokens caps the generated answer length.
	MaxTokens int
	// Temperature controls randomness. The default 0 keeps answers
	// deterministic.
	Temperature float32
}

// ConfigFromEnv reads provider configuration from the environment.
//
// Environment variables:
//
//	CLOUD_PROVIDER     = groq | openai | azure | gemini | ark (default: groq)
//	MODEL_NAME         (default: llama-3.3-70b-versatile)
//	MODEL_API_KEY      (fallback: GROQ_API_KEY)
//	MODEL_BASE_URL, AZURE_DEPLOYMENT, AZURE_API_VERSION (default: 2024-06-01)
//
//	OLLAMA_HOST        (default: http://localhost:11434)
//	OLLAMA_MODEL       (default: mistral)
//	CUSTOM_BASE_URL    (default: https://api.openai.com/v1)
//	CUSTOM_MODEL       (default: gpt-4o-mini)
//
//	MODEL_MAX_TOKENS   (default: 1024)
//	MODEL_TEMPERATURE  (default: 0)
func ConfigFromEnv() *Config {
	apiKey := os.Getenv("MODEL_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}
	return &Config{
		Cloud: CloudConfig{
			Backend:         Backend(getEnvOrDefault("CLOUD_PROVIDER", string(BackendGroq))),
			Model:           getEnvOrDefault("MODEL_NAME", DefaultCloudModel),
			APIKey:          apiKey,
			BaseURL:         os.Getenv("MODEL_BASE_URL"),
			AzureDeployment: os.Getenv("AZURE_DEPLOYMENT"),
			AzureAPIVersion: getEnvOrDefault("AZURE_API_VERSION", DefaultAzureAPIVersion),
		},
		Ollama: OllamaConfig{
			Host:  getEnvOrDefault("OLLAMA_HOST", DefaultOllamaHost),
			Model: getEnvOrDefault("OLLAMA_MODEL", DefaultOllamaModel),
		},
		Custom: CustomConfig{
			BaseURL: getEnvOrDefault("CUSTOM_BASE_URL", DefaultCustomBaseURL),
			Model:   getEnvOrDefault("CUSTOM_MODEL", DefaultCustomModel),
		},
		Tuning: Tuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", DefaultMaxTokens),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0),
		},
	}
}

// Validate checks the static configuration at startup. Missing cloud keys are
// not an error here: a caller may still supply one per request.
func (c *Config) Validate() error {
	switch c.Cloud.Backend {
	case BackendGroq, BackendOpenAI, BackendGemini, BackendArk:
		if c.Cloud.Model == "" {
			return fmt.Errorf("provider: MODEL_NAME is required for %s backend", c.Cloud.Backend)
		}
	case BackendAzure:
		if c.Cloud.BaseURL == "" {
			return fmt.Errorf("provider: MODEL_BASE_URL (Azure endpoint) is required for azure backend")
		}
		if c.Cloud.AzureDeployment == "" {
			return fmt.Errorf("provider: AZURE_DEPLOYMENT is required for azure backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: groq, openai, azure, gemini, ark)", c.Cloud.Backend)
	}
	if c.Ollama.Host == "" {
		return fmt.Errorf("provider: OLLAMA_HOST must not be empty")
	}
	if c.Custom.BaseURL == "" {
		return fmt.Errorf("provider: CUSTOM_BASE_URL must not be empty")
	}
	if c.Tuning.MaxTokens <= 0 {
		return fmt.Errorf("provider: MODEL_MAX_TOKENS must be positive, got %d", c.Tuning.MaxTokens)
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
