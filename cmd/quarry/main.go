package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Quarry - retrieval engine for citation-backed RAG",
		Long: `Quarry ingests documents into a vector store and assembles ranked,
citation-backed context for answer generation.

Environment variables use the QUARRY_ prefix; see .env.example.
  QUARRY_OPENAI_API_KEY        embedding / rerank / expansion model key
  QUARRY_VECTOR_STORE_BACKEND  managed_search | pgvector | qdrant | memory | plugin`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")

	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.QueryCmd())
	rootCmd.AddCommand(cli.DeleteCmd())
	rootCmd.AddCommand(cli.StatsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
