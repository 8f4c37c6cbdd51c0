package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIKeyAuth_DisabledWhenKeyEmpty(t *testing.T) {
	t.Parallel()

	if a := newAPIKeyAuth(""); a != nil {
		t.Fatalf("newAPIKeyAuth(\"\") = %v, want nil", a)
	}

	var a *apiKeyAuth
	w := httptest.NewRecorder()
	a.wrap(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/list-files", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when auth disabled, got %d", w.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		header    string
		value     string
		wantCode  int
		challenge string
	}{
		{"no credentials", "", "", http.StatusUnauthorized, `Bearer realm="docqa"`},
		{"bearer ok", "Authorization", "Bearer secret", http.StatusOK, ""},
		{"lowercase scheme", "Authorization", "bearer secret", http.StatusOK, ""},
		{"bearer wrong", "Authorization", "Bearer wrong-token", http.StatusUnauthorized, `Bearer realm="docqa" error="invalid_token"`},
		{"prefix of key", "Authorization", "Bearer secre", http.StatusUnauthorized, `Bearer realm="docqa" error="invalid_token"`},
		{"basic scheme", "Authorization", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, `Bearer realm="docqa"`},
		{"api key header", apiKeyHeader, "secret", http.StatusOK, ""},
		{"api key header wrong", apiKeyHeader, "nope", http.StatusUnauthorized, `Bearer realm="docqa" error="invalid_token"`},
	}

	h := newAPIKeyAuth("secret").wrap(okHandler)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/list-files", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != tc.challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tc.challenge)
			}
			if tc.wantCode == http.StatusUnauthorized && strings.Contains(w.Body.String(), tc.value) && tc.value != "" {
				t.Errorf("response body echoes the presented credential: %s", w.Body.String())
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header=%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
