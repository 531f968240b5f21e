package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/vectorstore"
)

func DeleteCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [doc-ids...]",
		Short: "Remove documents from the vector store",
		Long: `Remove every indexed chunk belonging to the given document IDs.

Examples:
  quarry delete docs/intro.md docs/faq.md
  quarry delete --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !all && len(args) == 0 {
				return fmt.Errorf("provide document IDs or --all")
			}

			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			ids := args
			if all {
				ids = []string{vectorstore.DeleteAll}
			}
			if err := eng.ingestor.Delete(ctx, ids); err != nil {
				return eng.reportError(ctx, err)
			}
			if all {
				fmt.Println("Deleted all records")
			} else {
				fmt.Printf("Deleted records for %d documents\n", len(ids))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every record in the store")
	return cmd
}
