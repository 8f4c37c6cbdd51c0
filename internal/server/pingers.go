package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// HTTPPinger probes an HTTP dependency with a GET request and treats any 2xx
// response as healthy. It needs no credentials and consumes no tokens.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the probe target.
	url string
	// client performs the probe request.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for url.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: &http.Client{Timeout: probeTimeout}}
}

// NewOllamaPinger probes the Ollama server at host via its model list.
func NewOllamaPinger(host string) *HTTPPinger {
	return NewHTTPPinger("ollama", strings.TrimRight(host, "/")+"/api/tags")
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET request.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// embedderPing is implemented by embedders that can check their backend.
type embedderPing interface {
	Ping(ctx context.Context) error
}

// EmbedderPinger adapts an embedder's own health check to the Pinger interface.
type EmbedderPinger struct {
	embedder embedderPing
}

// NewEmbedderPinger constructs an EmbedderPinger.
func NewEmbedderPinger(e embedderPing) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns "embedder".
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping delegates to the embedder.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if err := p.embedder.Ping(ctx); err != nil {
		return fmt.Errorf("embedder unreachable: %w", err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// DirPinger reports whether a data directory exists and accepts writes.
type DirPinger struct {
	name string
	dir  string
}

// NewDirPinger constructs a DirPinger for dir.
func NewDirPinger(name, dir string) *DirPinger {
	return &DirPinger{name: name, dir: dir}
}

// Name returns the dependency label used in readiness responses.
func (p *DirPinger) Name() string { return p.name }

// Ping creates and removes a probe file in the directory.
func (p *DirPinger) Ping(_ context.Context) error {
	f, err := os.CreateTemp(p.dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove probe file: %w", err)
	}
	return nil
}
