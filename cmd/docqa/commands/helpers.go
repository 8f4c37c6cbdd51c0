package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/cleanup"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
)

// Index backends selectable with INDEX_BACKEND.
const (
	indexBackendLocal  = "local"
	indexBackendQdrant = "qdrant"
)

// stack is the set of long-lived components shared by every command.
type stack struct {
	// uploadDir holds the raw uploaded files.
	uploadDir string
	// indexDir holds the persisted local index.
	indexDir string
	// loader chunks files.
	loader *ingestion.Loader
	// embedder vectorises chunks and questions.
	embedder rag.Embedder
	// store is the knowledge store every command reads and writes.
	store *rag.KnowledgeStore
	// qdrant is non-nil when the Qdrant backend is selected.
	qdrant *rag.QdrantIndex
}

// buildStack wires the loader, embedder, index backend and knowledge store
// from the environment and restores any persisted index.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	s := &stack{
		uploadDir: getEnvOrDefault("UPLOAD_DIR", "./data"),
		indexDir:  getEnvOrDefault("VECTOR_STORE_PATH", "./vector_store"),
	}
	for _, dir := range []string{s.uploadDir, s.indexDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	s.loader = ingestion.NewLoader(&ingestion.Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", ingestion.DefaultChunkSize),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", ingestion.DefaultChunkOverlap),
	})

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	s.embedder = emb
	log.Info("embedder initialised", slog.String("backend", embedder.Backend()))

	var index rag.Index
	switch backend := strings.ToLower(getEnvOrDefault("INDEX_BACKEND", indexBackendLocal)); backend {
	case indexBackendLocal:
		index = rag.NewFlatIndex(store.NewSnapshotStore(s.indexDir))
		log.Info("local index selected", slog.String("path", s.indexDir))
	case indexBackendQdrant:
		q, err := rag.NewQdrantIndex(&rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "docqa"),
			VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, err
		}
		s.qdrant = q
		index = q
		log.Info("qdrant index selected", slog.String("host", getEnvOrDefault("QDRANT_HOST", "localhost")))
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (valid: local, qdrant)", backend)
	}

	ks, err := rag.NewKnowledgeStore(emb, index)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	if err := ks.Load(ctx); err != nil {
		_ = ks.Close()
		return nil, err
	}
	s.store = ks
	log.Info("knowledge store ready", slog.Int("chunks", ks.Len()))
	return s, nil
}

// Close releases the index backend.
func (s *stack) Close() error { return s.store.Close() }

// buildAnswerer constructs the provider resolver and the answer service.
func buildAnswerer(s *stack) (*answer.Service, *provider.Resolver, error) {
	resolver, err := provider.NewResolver(provider.ConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}
	svc, err := answer.New(&answer.Config{
		Resolver:         resolver,
		Retriever:        s.store,
		TopK:             getEnvInt("RETRIEVAL_TOP_K", answer.DefaultTopK),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, resolver, nil
}

// buildCleanup constructs the reset service over the stack's directories.
func buildCleanup(s *stack, log *slog.Logger) (*cleanup.Service, error) {
	interval, err := getEnvDuration("CLEANUP_INTERVAL", cleanup.DefaultInterval)
	if err != nil {
		return nil, err
	}
	return cleanup.New(&cleanup.Config{
		UploadDir: s.uploadDir,
		IndexDir:  s.indexDir,
		Store:     s.store,
		Interval:  interval,
		Logger:    log,
	})
}

// buildPingers returns the readiness probes for the configured dependencies.
// No probe calls a chat model, so readiness never spends tokens.
func buildPingers(s *stack) []server.Pinger {
	pingers := []server.Pinger{
		server.NewDirPinger("upload_dir", s.uploadDir),
	}
	if p, ok := s.embedder.(interface{ Ping(context.Context) error }); ok {
		pingers = append(pingers, server.NewEmbedderPinger(p))
	}
	if s.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(s.qdrant.Client()))
	}
	// The local chat provider is optional; probe it only when configured.
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		pingers = append(pingers, server.NewOllamaPinger(host))
	}
	return pingers
}

// getEnvOrDefault returns the named environment variable, or fallback when it
// is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if it is unset or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration parses the named environment variable as a Go duration.
// A bare "0" disables the feature it controls.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
