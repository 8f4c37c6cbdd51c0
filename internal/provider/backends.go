package provider

import (
	"context"
	"fmt"
	"strings"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// newOllama constructs a chat model backed by the local Ollama instance.
func newOllama(ctx context.Context, t *target) (model.BaseChatModel, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: t.baseURL,
		Model:   t.model,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newOpenAI constructs a chat model for any OpenAI-compatible endpoint: Groq,
// OpenAI itself, or the custom endpoint. An empty baseURL means OpenAI.
func newOpenAI(ctx context.Context, t *target) (model.BaseChatModel, error) {
	cfg := &einoopenai.ChatModelConfig{
		Model:   t.model,
		APIKey:  t.apiKey,
		BaseURL: t.baseURL,
	}
	if !isReasoningModel(t.model) {
		maxTokens, temp := t.tuning.MaxTokens, t.tuning.Temperature
		cfg.MaxTokens = &maxTokens
		cfg.Temperature = &temp
	}
	m, err := einoopenai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newAzure constructs a chat model backed by Azure OpenAI Service.
func newAzure(ctx context.Context, t *target) (model.BaseChatModel, error) {
	cfg := &einoopenai.ChatModelConfig{
		Model:      t.azureDeployment,
		APIKey:     t.apiKey,
		BaseURL:    t.baseURL,
		ByAzure:    true,
		APIVersion: t.azureAPIVersion,
		// Keep the deployment name verbatim; the default mapper strips dots
		// and breaks names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if !isReasoningModel(t.azureDeployment) {
		maxTokens, temp := t.tuning.MaxTokens, t.tuning.Temperature
		cfg.MaxTokens = &maxTokens
		cfg.Temperature = &temp
	}
	m, err := einoopenai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newGemini constructs a chat model backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, t *target) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  t.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  t.model,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newArk constructs a chat model backed by Volcano Engine Ark. An empty
// baseURL uses the SDK's default region endpoint.
func newArk(ctx context.Context, t *target) (model.BaseChatModel, error) {
	maxTokens, temp := t.tuning.MaxTokens, t.tuning.Temperature
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       t.model,
		APIKey:      t.apiKey,
		BaseURL:     t.baseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// isReasoningModel reports whether name is an o-series or codex reasoning
// model, which rejects max_tokens and temperature.
func isReasoningModel(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
