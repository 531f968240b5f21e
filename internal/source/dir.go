// Package source loads raw documents from local directories, PDF files,
// and S3-compatible buckets, producing the cleaned inputs the ingestion
// pipeline consumes.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrylabs/quarry/internal/domain"
)

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".xml":  true,
}

// LoadDir walks root and loads every supported file (plain text,
// markdown, HTML/XML, PDF). The document ID is the slash-separated path
// relative to root, which keeps re-ingestion of the same tree idempotent.
func LoadDir(root string) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		id := filepath.ToSlash(rel)

		switch {
		case ext == ".pdf":
			doc, err := LoadPDF(path)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
			doc.ID = id
			docs = append(docs, doc)
		case textExtensions[ext]:
			doc, err := LoadFile(path)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
			doc.ID = id
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.RawDocument{}
	}
	return docs, nil
}

// LoadFile loads a single plain-text file as one document.
func LoadFile(path string) (domain.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RawDocument{}, err
	}
	return domain.RawDocument{
		ID:       filepath.ToSlash(path),
		Title:    docTitle(path),
		Path:     path,
		FullText: string(data),
	}, nil
}

func docTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
