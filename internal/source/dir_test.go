package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir_CollectsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Notes\n\nsome markdown")
	writeFile(t, dir, "sub/plain.txt", "plain text body")
	writeFile(t, dir, "skip.bin", "binary blob")

	docs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]string{}
	for _, d := range docs {
		byID[d.ID] = d.FullText
	}
	assert.Contains(t, byID, "notes.md")
	assert.Contains(t, byID, "sub/plain.txt")
	assert.Equal(t, "plain text body", byID["sub/plain.txt"])
}

func TestLoadDir_EmptyDirectory(t *testing.T) {
	docs, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.md", "body text")

	doc, err := LoadFile(filepath.Join(dir, "guide.md"))
	require.NoError(t, err)
	assert.Equal(t, "guide", doc.Title)
	assert.Equal(t, "body text", doc.FullText)
	assert.NotEmpty(t, doc.ID)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestDocTitle(t *testing.T) {
	assert.Equal(t, "report", docTitle("a/b/report.pdf"))
	assert.Equal(t, "README", docTitle("README"))
}
