package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It also
	// bounds upload indexing and LLM calls.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// UploadDir is the directory uploaded files are written to.
	UploadDir string
	// MaxUploadBytes caps the multipart request body (default: 32 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on /upload and
	// /query (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on every route except health,
	// readiness and metrics. If empty, authentication is disabled.
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Services are the domain services the handlers call.
type Services struct {
	// Loader turns a saved upload into chunks. *ingestion.Loader satisfies it.
	Loader documentLoader
	// Store is the knowledge store. *rag.KnowledgeStore satisfies it.
	Store knowledgeStore
	// Answerer answers questions. *answer.Service satisfies it.
	Answerer answerer
	// Cleanup performs the manual full reset. *cleanup.Service satisfies it.
	Cleanup resetter
}

// documentLoader is the ingestion contract used by POST /upload.
type documentLoader interface {
	Process(ctx context.Context, path string) ([]rag.Chunk, error)
}

// knowledgeStore is the subset of *rag.KnowledgeStore the handlers use.
type knowledgeStore interface {
	Insert(ctx context.Context, chunks []rag.Chunk) (int, error)
	DeleteBySource(ctx context.Context, filename string) error
	Len() int
}

// answerer is the question-answering contract used by POST /query.
type answerer interface {
	Answer(ctx context.Context, question string, choice provider.Choice) (*answer.Result, error)
}

// resetter is the manual reset contract used by POST /reset.
type resetter interface {
	ResetNow(ctx context.Context) error
}

// queryRequest is the JSON body for POST /query.
type queryRequest struct {
	// Question is the user's natural-language question.
	Question string `json:"question"`
	// Provider is "groq" (default), "local" or "custom".
	Provider string `json:"provider"`
	// APIKey is required for "custom" and optional for "groq".
	APIKey string `json:"api_key"`
	// OllamaModel selects the model for "local".
	OllamaModel string `json:"ollama_model"`
}

// messageResponse is the JSON body for simple acknowledgements.
type messageResponse struct {
	Message string `json:"message"`
}

// uploadResponse is the JSON body for POST /upload.
type uploadResponse struct {
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

// listFilesResponse is the JSON body for GET /list-files.
type listFilesResponse struct {
	Files []string `json:"files"`
}

// errorResponse is the JSON body for every error.
type errorResponse struct {
	Detail string `json:"detail"`
}
