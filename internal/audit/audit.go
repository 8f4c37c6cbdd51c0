// Package audit writes structured audit records for docqa commands: which
// command ran, with which configuration, and which destructive actions it
// took. Secrets appear only as "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// secretSuffixes mark an environment variable as a credential.
var secretSuffixes = []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_TOKEN", "_PASSWORD"}

// group is one block of related settings in the audit record.
type group struct {
	name string
	keys []string
}

// auditGroups lists the settings recorded for every command, by concern.
var auditGroups = []group{
	{"storage", []string{"UPLOAD_DIR", "VECTOR_STORE_PATH", "INDEX_BACKEND", "CLEANUP_INTERVAL"}},
	{"ingestion", []string{"CHUNK_SIZE", "CHUNK_OVERLAP", "MAX_UPLOAD_BYTES"}},
	{"model", []string{
		"CLOUD_PROVIDER", "MODEL_NAME", "MODEL_BASE_URL", "MODEL_API_KEY", "GROQ_API_KEY",
		"OLLAMA_HOST", "OLLAMA_MODEL", "CUSTOM_BASE_URL", "CUSTOM_MODEL",
	}},
	{"embedding", []string{"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_ENDPOINT", "EMBEDDING_API_KEY"}},
	{"qdrant", []string{"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "QDRANT_API_KEY"}},
	{"server", []string{"DOCQA_HOST", "DOCQA_PORT", "DOCQA_API_KEY"}},
	{"observability", []string{"LOG_LEVEL", "LOG_FORMAT", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY"}},
}

// LogCommandStart records the command, the config file it loaded, and the
// sanitised settings grouped by concern.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, g := range auditGroups {
		fields := make([]any, 0, len(g.keys))
		for _, key := range g.keys {
			fields = append(fields, slog.String(key, SanitiseKey(key, os.Getenv(key))))
		}
		attrs = append(attrs, slog.Group(g.name, fields...))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// LogReset records a full wipe of the uploaded files and the index. trigger
// names what asked for it: "cli", "http" or "schedule".
func LogReset(ctx context.Context, log *slog.Logger, trigger, uploadDir, indexDir string) {
	log.LogAttrs(ctx, slog.LevelWarn, "audit: knowledge base reset",
		slog.String("trigger", trigger),
		slog.String("upload_dir", sanitiseConfigPath(uploadDir)),
		slog.String("index_dir", sanitiseConfigPath(indexDir)),
	)
}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// SanitiseKey returns the value to log for key: "set" or "unset" for
// secrets, the value with any URL userinfo removed otherwise.
func SanitiseKey(key, value string) string {
	if IsSecret(key) {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return stripUserinfo(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// stripUserinfo drops "user:pass@" from URL-shaped values.
func stripUserinfo(v string) string {
	if !strings.Contains(v, "://") {
		return v
	}
	u, err := url.Parse(v)
	if err != nil || u.User == nil {
		return v
	}
	u.User = nil
	return u.String()
}

// sanitiseConfigPath returns "none" for an empty path and abbreviates the
// home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
