package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question against the persisted knowledge base and prints the answer.
func NewAskCmd() *cobra.Command {
	var providerName string
	var apiKey string
	var model string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Long: `Answer a question from the documents already indexed under
VECTOR_STORE_PATH (or in Qdrant), using the same retrieval and prompt as
POST /query.

Examples:
  docqa ask "What is the refund policy?"
  docqa ask --provider local --model llama3 "Summarise the onboarding guide"
  docqa ask --provider custom --api-key sk-... "Who signed the contract?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			choice, err := provider.ParseChoice(providerName, apiKey, model)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = st.Close() }()

			answerer, _, err := buildAnswerer(st)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			result, err := answerer.Answer(ctx, strings.Join(args, " "), choice)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Answer)
			if len(result.Sources) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(result.Sources, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "groq", "LLM provider: groq, local or custom")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for groq (overrides MODEL_API_KEY) or custom")
	cmd.Flags().StringVar(&model, "model", "", "Model for local (default OLLAMA_MODEL) or custom (default CUSTOM_MODEL)")

	return cmd
}
