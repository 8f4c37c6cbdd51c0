package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP API
// and the periodic cleanup loop.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP API.

The API accepts PDF and text uploads, answers questions about them, and
wipes every upload and the whole index every CLEANUP_INTERVAL (default 10m).

Examples:
  docqa serve
  docqa serve --host 0.0.0.0 --port 9000
  INDEX_BACKEND=qdrant CLEANUP_INTERVAL=0 docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = st.Close() }()

			answerer, resolver, err := buildAnswerer(st)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("cloud_backend", string(resolver.Config().Cloud.Backend)),
				slog.String("cloud_model", resolver.Config().Cloud.Model),
			)

			janitor, err := buildCleanup(st, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DOCQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DOCQA_PORT", port)
			}

			srv, err := server.New(server.Services{
				Loader:   st.loader,
				Store:    st.store,
				Answerer: answerer,
				Cleanup:  janitor,
			}, &server.Config{
				Host:           host,
				Port:           port,
				UploadDir:      st.uploadDir,
				MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 0)),
				Logger:         log,
				Pingers:        buildPingers(st),
				APIKey:         os.Getenv("DOCQA_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				janitor.Run(ctx)
			}()
			defer func() {
				stop()
				wg.Wait()
			}()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (env: DOCQA_PORT)")

	return cmd
}
