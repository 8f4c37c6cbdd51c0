package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a bearer token for clients
// that cannot set Authorization, such as a plain HTML form proxy.
const apiKeyHeader = "X-API-Key"

var (
	errMissingToken = errors.New("authorization required")
	errInvalidToken = errors.New("invalid token")
)

// apiKeyAuth guards the document and query routes with the static key in
// DOCQA_API_KEY. A nil *apiKeyAuth disables authentication.
type apiKeyAuth struct {
	// digest is the SHA-256 of the configured key. Comparing digests keeps
	// the comparison constant-time regardless of the presented length.
	digest [sha256.Size]byte
}

// newAPIKeyAuth returns nil when key is empty.
func newAPIKeyAuth(key string) *apiKeyAuth {
	if key == "" {
		return nil
	}
	return &apiKeyAuth{digest: sha256.Sum256([]byte(key))}
}

// check validates the credentials presented by r.
func (a *apiKeyAuth) check(r *http.Request) error {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(apiKeyHeader))
	}
	if token == "" {
		return errMissingToken
	}
	got := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(got[:], a.digest[:]) != 1 {
		return errInvalidToken
	}
	return nil
}

// wrap returns next guarded by the key. Rejected requests get 401 with a
// Bearer challenge; the presented token is never logged.
func (a *apiKeyAuth) wrap(next http.Handler) http.Handler {
	if a == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := a.check(r)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("auth: request rejected",
			slog.String("path", r.URL.Path),
			slog.String("reason", err.Error()),
		)
		challenge := `Bearer realm="docqa"`
		if errors.Is(err, errInvalidToken) {
			challenge += ` error="invalid_token"`
		}
		w.Header().Set("WWW-Authenticate", challenge)
		writeJSONError(r.Context(), w, err.Error(), http.StatusUnauthorized)
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>", or
// returns "" when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
