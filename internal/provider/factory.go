package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
)

// Internal backends reached through Local and Custom choices.
const (
	backendOllama Backend = "ollama"
	backendCustom Backend = "custom"
)

// target is a choice resolved against the server configuration: everything
// needed to construct one chat model.
type target struct {
	backend         Backend
	model           string
	apiKey          string
	baseURL         string
	azureDeployment string
	azureAPIVersion string
	tuning          Tuning
}

// Resolver turns a Choice into a chat model. It is safe for concurrent use;
// a fresh model is constructed per call, since Cloud and Custom choices may
// carry per-request keys.
type Resolver struct {
	cfg Config
	// build constructs the model for a resolved target. Replaced in tests.
	build func(ctx context.Context, t *target) (model.BaseChatModel, error)
}

// NewResolver validates cfg and returns a Resolver over it.
func NewResolver(cfg *Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{cfg: *cfg, build: buildModel}, nil
}

// Config returns the resolver's configuration.
func (r *Resolver) Config() Config { return r.cfg }

// Resolve returns a chat model for choice. Credential requirements are
// checked before the model is constructed; a missing key fails with
// ErrMissingCredential and no network call is made.
func (r *Resolver) Resolve(ctx context.Context, choice Choice) (model.BaseChatModel, error) {
	t, err := r.resolve(choice)
	if err != nil {
		return nil, err
	}
	m, err := r.build(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("provider: build %s model: %w", t.backend, err)
	}
	return m, nil
}

// ModelName returns the model that Resolve would use for choice, or "" if the
// choice cannot be resolved.
func (r *Resolver) ModelName(choice Choice) string {
	t, err := r.resolve(choice)
	if err != nil {
		return ""
	}
	if t.backend == BackendAzure {
		return t.azureDeployment
	}
	return t.model
}

// resolve applies the choice's credential contract and fills in server
// defaults.
func (r *Resolver) resolve(choice Choice) (*target, error) {
	switch c := choice.(type) {
	case Cloud:
		key := c.APIKey
		if key == "" {
			key = r.cfg.Cloud.APIKey
		}
		if key == "" {
			return nil, fmt.Errorf("provider: %s requires an API key (set MODEL_API_KEY or pass api_key): %w",
				r.cfg.Cloud.Backend, ErrMissingCredential)
		}
		return &target{
			backend:         r.cfg.Cloud.Backend,
			model:           r.cfg.Cloud.Model,
			apiKey:          key,
			baseURL:         r.cfg.Cloud.BaseURL,
			azureDeployment: r.cfg.Cloud.AzureDeployment,
			azureAPIVersion: r.cfg.Cloud.AzureAPIVersion,
			tuning:          r.cfg.Tuning,
		}, nil

	case Local:
		m := c.Model
		if m == "" {
			m = r.cfg.Ollama.Model
		}
		return &target{
			backend: backendOllama,
			model:   m,
			baseURL: r.cfg.Ollama.Host,
			tuning:  r.cfg.Tuning,
		}, nil

	case Custom:
		if c.APIKey == "" {
			return nil, fmt.Errorf("provider: custom provider requires api_key: %w", ErrMissingCredential)
		}
		m := c.Model
		if m == "" {
			m = r.cfg.Custom.Model
		}
		return &target{
			backend: backendCustom,
			model:   m,
			apiKey:  c.APIKey,
			baseURL: r.cfg.Custom.BaseURL,
			tuning:  r.cfg.Tuning,
		}, nil

	case nil:
		return nil, fmt.Errorf("provider: no provider chosen: %w", ErrUnknownProvider)

	default:
		return nil, fmt.Errorf("provider: unsupported choice %T: %w", choice, ErrUnknownProvider)
	}
}

// buildModel dispatches to the backend constructor.
func buildModel(ctx context.Context, t *target) (model.BaseChatModel, error) {
	switch t.backend {
	case backendOllama:
		return newOllama(ctx, t)
	case BackendGroq:
		if t.baseURL == "" {
			t.baseURL = groqBaseURL
		}
		return newOpenAI(ctx, t)
	case BackendOpenAI, backendCustom:
		return newOpenAI(ctx, t)
	case BackendAzure:
		return newAzure(ctx, t)
	case BackendGemini:
		return newGemini(ctx, t)
	case BackendArk:
		return newArk(ctx, t)
	default:
		return nil, fmt.Errorf("unknown backend %q: %w", t.backend, ErrUnknownProvider)
	}
}
