package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector store backend state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			stats, err := eng.store.Stats(ctx)
			if err != nil {
				return eng.reportError(ctx, err)
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			if outputJSON {
				out, _ := json.MarshalIndent(stats, "", "  ")
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Backend:  %s\n", stats.Backend)
			fmt.Printf("Records:  %d\n", stats.Records)
			fmt.Printf("Accepts whole documents: %v\n", stats.AcceptsDocuments)
			for k, v := range stats.Extra {
				fmt.Printf("%s: %s\n", k, v)
			}
			return nil
		},
	}
}
