// Package cleanup periodically wipes all uploaded documents and the persisted
// index, returning the service to an empty state. The same reset is exposed
// for manual triggering.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultInterval is the time between scheduled resets.
const DefaultInterval = 10 * time.Minute

// Resetter clears the in-memory index under its own lock after running purge.
// *rag.KnowledgeStore satisfies it.
type Resetter interface {
	Reset(ctx context.Context, purge func() error) error
}

// Config holds the settings for a Service.
type Config struct {
	// UploadDir holds the raw uploaded files. Its contents are deleted on
	// every reset; the directory itself is recreated.
	UploadDir string

	// IndexDir is the persisted index directory. It is removed and
	// recreated empty on every reset.
	IndexDir string

	// Store is reset together with the directories.
	Store Resetter

	// Interval between scheduled resets. Zero or negative disables the
	// schedule; ResetNow still works.
	Interval time.Duration

	// Registerer receives the cleanup metrics. Defaults to
	// prometheus.DefaultRegisterer when nil.
	Registerer prometheus.Registerer

	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Service runs scheduled and manual resets.
type Service struct {
	uploadDir string
	indexDir  string
	store     Resetter
	interval  time.Duration
	log       *slog.Logger

	runsTotal   *prometheus.CounterVec
	lastSuccess prometheus.Gauge

	// now is replaced in tests.
	now func() time.Time
}

// New constructs a Service from cfg.
func New(cfg *Config) (*Service, error) {
	if cfg.UploadDir == "" || cfg.IndexDir == "" {
		return nil, fmt.Errorf("cleanup: UploadDir and IndexDir must be set")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cleanup: Store must not be nil")
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	factory := promauto.With(reg)

	return &Service{
		uploadDir: cfg.UploadDir,
		indexDir:  cfg.IndexDir,
		store:     cfg.Store,
		interval:  cfg.Interval,
		log:       log,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Total number of resets performed, partitioned by outcome.",
		}, []string{"outcome"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "cleanup",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful reset.",
		}),
		now: time.Now,
	}, nil
}

// Interval returns the configured schedule interval.
func (s *Service) Interval() time.Duration { return s.interval }

// Run performs a reset every interval until ctx is cancelled. Reset failures
// are logged and counted; the loop always continues to the next tick. Run
// returns immediately when the interval is not positive.
func (s *Service) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("cleanup: scheduled reset disabled")
		return
	}

	s.log.Info("cleanup: scheduler started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup: scheduler stopped")
			return
		case <-ticker.C:
			if err := s.ResetNow(WithTrigger(ctx, TriggerSchedule)); err != nil {
				s.log.Error("cleanup: scheduled reset failed", slog.Any("error", err))
			}
		}
	}
}

// Trigger names what asked for a reset. It is recorded in the audit log.
type Trigger string

// Known triggers.
const (
	TriggerSchedule Trigger = "schedule"
	TriggerHTTP     Trigger = "http"
	TriggerCLI      Trigger = "cli"
)

type triggerKey struct{}

// WithTrigger returns a copy of ctx carrying t for ResetNow to record.
func WithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, triggerKey{}, t)
}

func triggerFrom(ctx context.Context) Trigger {
	if t, ok := ctx.Value(triggerKey{}).(Trigger); ok {
		return t
	}
	return "manual"
}

// ResetNow deletes everything under the upload directory, removes the index
// directory, recreates both empty and forces the store to EMPTY. It is
// idempotent.
func (s *Service) ResetNow(ctx context.Context) error {
	start := s.now()
	err := s.store.Reset(ctx, s.purge)
	if err != nil {
		s.runsTotal.WithLabelValues("error").Inc()
		return err
	}

	s.runsTotal.WithLabelValues("ok").Inc()
	s.lastSuccess.Set(float64(s.now().Unix()))
	audit.LogReset(ctx, s.log, string(triggerFrom(ctx)), s.uploadDir, s.indexDir)
	s.log.Info("cleanup: reset complete", slog.Duration("duration", s.now().Sub(start)))
	return nil
}

// purge wipes both directories. Every step is attempted; failures are joined
// and marked rag.ErrStorage.
func (s *Service) purge() error {
	var errs []error

	entries, err := os.ReadDir(s.uploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("read %s: %w", s.uploadDir, err))
	}
	for _, e := range entries {
		p := filepath.Join(s.uploadDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}

	if err := os.RemoveAll(s.indexDir); err != nil {
		errs = append(errs, fmt.Errorf("remove %s: %w", s.indexDir, err))
	}

	for _, dir := range []string{s.uploadDir, s.indexDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", dir, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup: purge: %w: %w", rag.ErrStorage, errors.Join(errs...))
	}
	return nil
}
