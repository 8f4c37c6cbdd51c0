package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which indexes local
// files through the same pipeline as POST /upload.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Index local PDF or text files into the knowledge base",
		Long: `Copy local files into UPLOAD_DIR and index them, exactly as an upload
through the API would. Files are processed in order; the first failure stops
the run and leaves earlier files indexed.

Examples:
  docqa ingest handbook.pdf
  docqa ingest notes/*.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			// Reject unsupported files before touching any state.
			for _, path := range args {
				if _, err := ingestion.DetectFormat(path); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = st.Close() }()

			total := 0
			for _, path := range args {
				dst := filepath.Join(st.uploadDir, filepath.Base(path))
				if err := copyFile(path, dst); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}

				chunks, err := st.loader.Process(ctx, dst)
				if err != nil {
					_ = os.Remove(dst)
					return fmt.Errorf("ingest: %w", err)
				}
				n, err := st.store.Insert(ctx, chunks)
				if err != nil {
					_ = os.Remove(dst)
					return fmt.Errorf("ingest: %w", err)
				}

				total += n
				log.Info("document indexed", slog.String("file", filepath.Base(path)), slog.Int("chunks", n))
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully indexed %s (%d chunks)\n", filepath.Base(path), n)
			}

			log.Info("ingestion complete", slog.Int("files", len(args)), slog.Int("chunks", total))
			return nil
		},
	}

	return cmd
}

// copyFile copies src to dst, replacing dst if it exists. Copying a file
// onto itself is a no-op.
func copyFile(src, dst string) error {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if srcAbs == dstAbs {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
