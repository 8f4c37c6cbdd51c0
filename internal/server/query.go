package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// maxQueryBodyBytes caps the JSON body of POST /query.
const maxQueryBodyBytes = 1 << 20

// handleQuery handles POST /query. Validation failures (empty question,
// unknown provider, nothing indexed, missing API key) are 400; everything
// else is 500.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	start := time.Now()

	providerLabel := "unknown"
	status := http.StatusOK
	defer func() {
		outcome := outcomeFor(status)
		s.metrics.queriesTotal.WithLabelValues(outcome, providerLabel).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		status = http.StatusBadRequest
		writeJSONError(ctx, w, fmt.Sprintf("invalid request body: %v", err), status)
		return
	}

	choice, err := provider.ParseChoice(req.Provider, req.APIKey, req.OllamaModel)
	if err != nil {
		status = http.StatusBadRequest
		writeJSONError(ctx, w, err.Error(), status)
		return
	}
	providerLabel = choice.Name()

	result, err := s.svc.Answerer.Answer(ctx, req.Question, choice)
	if err != nil {
		status = queryStatus(err)
		if status == http.StatusBadRequest {
			log.Warn("query rejected", slog.String("provider", providerLabel), slog.Any("error", err))
		} else {
			log.Error("query failed", slog.String("provider", providerLabel), slog.Any("error", err))
		}
		writeJSONError(ctx, w, err.Error(), status)
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}

// queryStatus maps an Answer error to its HTTP status code.
func queryStatus(err error) int {
	switch {
	case errors.Is(err, answer.ErrEmptyQuestion),
		errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, provider.ErrMissingCredential),
		errors.Is(err, rag.ErrEmptyStore):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
