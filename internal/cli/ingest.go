package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/source"
)

func IngestCmd() *cobra.Command {
	var (
		dir      string
		s3Prefix string
		fromS3   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Chunk, embed, and index documents into the vector store",
		Long: `Ingest documents into the configured vector store.

Examples:
  # Ingest individual files
  quarry ingest notes.md paper.pdf

  # Ingest a directory tree
  quarry ingest --dir ./docs

  # Ingest from the configured S3 bucket
  quarry ingest --s3 --prefix reports/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			if eng.cfg.ResolvedBackend() != config.BackendManagedSearch && eng.cfg.ResolvedBackend() != config.BackendMemory {
				if err := requireOpenAI(eng.cfg); err != nil {
					return err
				}
			}

			docs, err := collectDocuments(cmd, eng, args, dir, fromS3, s3Prefix)
			if err != nil {
				return eng.reportError(ctx, err)
			}
			if len(docs) == 0 {
				return fmt.Errorf("no documents to ingest")
			}

			result, err := eng.ingestor.Ingest(ctx, docs)
			if err != nil {
				return eng.reportError(ctx, err)
			}
			if result.Delegated {
				fmt.Printf("Indexed %d documents (backend performed chunking and embedding)\n", result.Documents)
			} else {
				fmt.Printf("Ingested %d documents as %d chunks\n", result.Documents, result.Chunks)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Ingest every supported file under this directory")
	cmd.Flags().BoolVar(&fromS3, "s3", false, "Ingest from the configured S3 bucket")
	cmd.Flags().StringVar(&s3Prefix, "prefix", "", "Key prefix when ingesting from S3")

	return cmd
}

func collectDocuments(cmd *cobra.Command, eng *engine, args []string, dir string, fromS3 bool, s3Prefix string) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument

	for _, path := range args {
		var (
			doc domain.RawDocument
			err error
		)
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			doc, err = source.LoadPDF(path)
		} else {
			doc, err = source.LoadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		docs = append(docs, doc)
	}
	if dir != "" {
		dirDocs, err := source.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		docs = append(docs, dirDocs...)
	}
	if fromS3 {
		if !eng.cfg.HasS3() {
			return nil, fmt.Errorf("S3 ingestion requires QUARRY_S3_ENDPOINT, QUARRY_S3_ACCESS_KEY_ID, and QUARRY_S3_SECRET_ACCESS_KEY")
		}
		src, err := source.NewS3Source(cmd.Context(), eng.cfg.S3, eng.logger)
		if err != nil {
			return nil, err
		}
		s3Docs, err := src.Load(cmd.Context(), s3Prefix)
		if err != nil {
			return nil, err
		}
		docs = append(docs, s3Docs...)
	}
	return docs, nil
}
