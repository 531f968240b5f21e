package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is the unit of storage, retrieval, and citation. Created by a
// chunker and read-only afterward. Page, StartOffset, and EndOffset are
// populated only when the producing strategy tracks them; a zero Page
// and negative offsets mean "not tracked".
type Chunk struct {
	ID          string
	DocID       string
	Text        string
	Page        int
	StartOffset int
	EndOffset   int
	Metadata    map[string]string
}

// ChunkID derives a stable, content-addressed chunk identifier. The same
// document, position, and text always produce the same ID, which is what
// makes re-ingestion an idempotent overwrite.
func ChunkID(docID string, index int, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s", docID, index, text)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// StoredRecord is the vector store's persisted form of a chunk. The
// engine never mutates a stored record in place; re-ingestion upserts
// by ID.
type StoredRecord struct {
	ID       string
	DocID    string
	Title    string
	Text     string
	Page     int
	Vector   []float32
	Metadata map[string]string
}
