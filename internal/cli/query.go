package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
)

func QueryCmd() *cobra.Command {
	var showContext bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve, rank, and pack context for a question",
		Long: `Run the retrieval pipeline for a question and print the ranked
hits that fit the context budget.

Examples:
  quarry query "how does the billing retry work?"
  quarry query --context "how does the billing retry work?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			if eng.cfg.ResolvedBackend() != config.BackendManagedSearch {
				if err := requireOpenAI(eng.cfg); err != nil {
					return err
				}
			}

			result, err := eng.querier.Query(ctx, strings.Join(args, " "))
			if err != nil {
				return eng.reportError(ctx, err)
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			if outputJSON {
				out, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("%d hits (%d candidates considered)\n", len(result.Hits), result.Candidates)
			for i, h := range result.Hits {
				score := h.Similarity
				kind := "similarity"
				if h.Reranked {
					score = h.RerankScore
					kind = "rerank"
				}
				fmt.Printf("%2d. [%s p.%d] %s=%.4f\n", i+1, h.DocID, h.Page, kind, score)
				fmt.Printf("    %s\n", firstLine(h.Text))
			}
			if showContext {
				fmt.Println("\n--- context ---")
				fmt.Println(result.Context)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showContext, "context", false, "Print the packed context")
	return cmd
}

func firstLine(text string) string {
	const max = 120
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > max {
		text = text[:max] + "…"
	}
	return text
}
