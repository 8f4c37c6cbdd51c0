// Package provider resolves the caller's LLM provider choice into a ready
// eino chat model. A choice is one of three closed variants (Cloud, Local,
// Custom), each carrying its own credential contract, so a missing key is
// reported as ErrMissingCredential before any network call is attempted.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredential is returned when the chosen provider needs an API
	// key that neither the request nor the server configuration supplies.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnknownProvider is returned for provider names outside the closed set.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Backend enumerates the cloud inference services a Cloud choice can use.
type Backend string

const (
	// BackendGroq selects Groq's OpenAI-compatible API.
	BackendGroq Backend = "groq"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcano Engine Ark.
	BackendArk Backend = "ark"
)

// Choice is the provider selection attached to a single query. The set of
// implementations is closed: Cloud, Local and Custom.
type Choice interface {
	// Name returns the provider name used in logs and metrics labels.
	Name() string
	isChoice()
}

// Cloud selects the server's managed cloud provider. APIKey, when set,
// overrides the server-configured key for this query only.
type Cloud struct {
	APIKey string
}

// Local selects a model served by the local Ollama instance. An empty Model
// uses the server's OLLAMA_MODEL.
type Local struct {
	Model string
}

// Custom selects an OpenAI-compatible endpoint configured on the server,
// authenticated with a key the caller must supply.
type Custom struct {
	APIKey string
	Model  string
}

func (Cloud) Name() string  { return "cloud" }
func (Local) Name() string  { return "local" }
func (Custom) Name() string { return "custom" }

func (Cloud) isChoice()  {}
func (Local) isChoice()  {}
func (Custom) isChoice() {}

// ParseChoice maps the wire-level provider name and its optional fields to a
// Choice. Names are case-insensitive: "groq", "cloud", "default" and "" select
// Cloud; "local" and "ollama" select Local; "custom" selects Custom. Any other
// name fails with ErrUnknownProvider.
func ParseChoice(name, apiKey, model string) (Choice, error) {
	apiKey = strings.TrimSpace(apiKey)
	model = strings.TrimSpace(model)

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "groq", "cloud", "default":
		return Cloud{APIKey: apiKey}, nil
	case "local", "ollama":
		return Local{Model: model}, nil
	case "custom":
		return Custom{APIKey: apiKey, Model: model}, nil
	default:
		return nil, fmt.Errorf("provider: %q: %w (valid: groq, local, custom)", name, ErrUnknownProvider)
	}
}
