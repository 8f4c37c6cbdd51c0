// Package answer implements question answering over the knowledge store:
// resolve the caller's chat model, retrieve the top-k chunks, build a bounded
// prompt, and make a single Generate call.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// instruction is the fixed system prompt preceding the retrieved context.
const instruction = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. " +
	"Use three sentences maximum and keep the answer concise."

// contextSeparator joins retrieved chunk texts in the system prompt.
const contextSeparator = "\n\n"

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question must not be empty")

// ModelResolver turns a provider choice into a chat model.
// *provider.Resolver satisfies it.
type ModelResolver interface {
	Resolve(ctx context.Context, choice provider.Choice) (model.BaseChatModel, error)
}

// Config holds the dependencies and tuning for a Service.
type Config struct {
	// Resolver builds the chat model for each query's provider choice.
	Resolver ModelResolver

	// Retriever fetches context chunks. Usually the *rag.KnowledgeStore.
	Retriever rag.Retriever

	// TopK is the number of chunks retrieved. Defaults to DefaultTopK.
	TopK int

	// MaxContextTokens bounds the estimated size of the prompt. Lowest-ranked
	// chunks are dropped first to fit. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Result is the answer to one question.
type Result struct {
	// Answer is the model's reply text.
	Answer string `json:"answer"`

	// Sources lists the source filename of every chunk sent to the model, in
	// rank order. Repeated filenames are kept.
	Sources []string `json:"sources"`
}

// Service answers questions. It is safe for concurrent use.
type Service struct {
	resolver  ModelResolver
	retriever rag.Retriever
	topK      int
	maxTokens int
}

// New constructs a Service from cfg.
func New(cfg *Config) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("answer: Resolver must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}

	return &Service{
		resolver:  cfg.Resolver,
		retriever: cfg.Retriever,
		topK:      topK,
		maxTokens: maxTokens,
	}, nil
}

// Answer resolves the chat model for choice, retrieves context for question
// and returns the model's answer with its sources.
//
// The model is resolved before retrieval so that a missing credential fails
// with provider.ErrMissingCredential before any network call. An empty store
// fails with rag.ErrEmptyStore. Generation failures wrap rag.ErrProvider.
func (s *Service) Answer(ctx context.Context, question string, choice provider.Choice) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	chat, err := s.resolver.Resolve(ctx, choice)
	if err != nil {
		return nil, err
	}

	chunks, err := s.retriever.Query(ctx, question, s.topK)
	if err != nil {
		return nil, err
	}

	messages, used := s.buildMessages(ctx, question, chunks)

	reply, err := chat.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w: %w", rag.ErrProvider, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("answer: generate: %w: empty reply", rag.ErrProvider)
	}

	sources := make([]string, 0, len(used))
	for _, c := range used {
		sources = append(sources, c.SourceName())
	}

	logging.FromContext(ctx).Info("answer: generated",
		slog.String("provider", nameOf(choice)),
		slog.Int("retrieved", len(chunks)),
		slog.Int("context_chunks", len(used)),
	)

	return &Result{Answer: reply.Content, Sources: sources}, nil
}

// buildMessages assembles the system prompt (instruction plus context) and
// the user question, keeping only as many top-ranked chunks as fit the token
// budget. It returns the messages and the chunks actually included.
func (s *Service) buildMessages(ctx context.Context, question string, chunks []rag.Chunk) ([]*schema.Message, []rag.Chunk) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	fixed := []*schema.Message{
		schema.SystemMessage(instruction + contextSeparator),
		schema.UserMessage(question),
	}
	n := budget.FitChunks(fixed, texts, contextSeparator, s.maxTokens)
	if dropped := len(chunks) - n; dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped retrieved chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", n),
			slog.Int("max_tokens", s.maxTokens),
		)
	}

	system := instruction + contextSeparator + strings.Join(texts[:n], contextSeparator)
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(question),
	}, chunks[:n]
}

func nameOf(c provider.Choice) string {
	if c == nil {
		return ""
	}
	return c.Name()
}
