package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/cleanup"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewResetCmd constructs the `docqa reset` command, which performs the same
// full wipe as the periodic cleanup.
func NewResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every uploaded file and the whole index",
		Long: `Delete every file in UPLOAD_DIR and the whole index, exactly as the
periodic cleanup does. Requires --yes.

Do not run this while 'docqa serve' is using the same directories: the
server keeps its own in-memory copy of the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset: refusing to delete data without --yes")
			}

			ctx := cmd.Context()
			log := logging.New()

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			defer func() { _ = st.Close() }()

			janitor, err := buildCleanup(st, log)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			if err := janitor.ResetNow(cleanup.WithTrigger(ctx, cleanup.TriggerCLI)); err != nil {
				return fmt.Errorf("reset: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Knowledge base reset")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")

	return cmd
}
