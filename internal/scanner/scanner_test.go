package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under root from a rel path → content map
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestScan_DefaultsAndOrdering(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/b.ts":                 "b",
		"src/a.ts":                 "a",
		"README.md":                "readme",
		".env":                     "SECRET=1",
		".git/config":              "[core]",
		"pkg/.git/HEAD":            "ref",
		"node_modules/x/index.js":  "x",
		"web/node_modules/y/y.js":  "y",
		".repoindex/index.db":      "db",
		"deep/nested/dir/file.txt": "deep",
	})

	paths, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		".env",
		"README.md",
		"deep/nested/dir/file.txt",
		"src/a.ts",
		"src/b.ts",
	}, paths)
}

func TestScan_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.ts":      "a",
		"src/a.test.ts": "test",
		"src/b.go":      "b",
		"docs/c.md":     "c",
	})

	paths, err := Scan(context.Background(), root, Options{
		Include: []string{"**/*.ts", "**/*.md"},
		Exclude: []string{"**/*.test.ts"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/c.md", "src/a.ts"}, paths)
}

func TestScan_OverlappingIncludesDeduplicate(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.ts": "a"})

	paths, err := Scan(context.Background(), root, Options{Include: []string{"**/*", "src/*.ts"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.ts"}, paths)
}

func TestScan_GlobIsNotSubstring(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"build/out.js":     "out",
		"rebuild/keep.js":  "keep",
		"src/builder/b.js": "b",
	})

	paths, err := Scan(context.Background(), root, Options{Exclude: []string{"build/**"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"rebuild/keep.js", "src/builder/b.js"}, paths)
}

func TestScan_Errors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"file.txt": "x"})

	_, err := Scan(context.Background(), filepath.Join(root, "missing"), Options{})
	assert.ErrorIs(t, err, ErrUnreadable)

	_, err = Scan(context.Background(), filepath.Join(root, "file.txt"), Options{})
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = Scan(context.Background(), root, Options{Include: []string{"[unclosed"}})
	assert.ErrorIs(t, err, ErrBadPattern)
}

func TestScan_ContextCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("a.ts", DefaultInclude, DefaultExclude))
	assert.True(t, Matches(".hidden/file", DefaultInclude, DefaultExclude))
	assert.False(t, Matches(".git/HEAD", DefaultInclude, DefaultExclude))
	assert.False(t, Matches("a/b/node_modules/c.js", DefaultInclude, DefaultExclude))
	assert.False(t, Matches("a.ts", []string{"*.go"}, nil))
}

func TestRead(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.ts": "export const a = 1\n"})

	f, err := Read(root, "src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "src/a.ts", f.RelPath)
	assert.Equal(t, "a.ts", f.Filename)
	assert.Equal(t, int64(19), f.Size)
	assert.Equal(t, sha256.Sum256([]byte("export const a = 1\n")), f.Hash)
	assert.False(t, f.Binary)
	assert.Equal(t, "export const a = 1\n", f.Content)
	assert.False(t, f.ModTime.IsZero())
}

func TestRead_Unreadable(t *testing.T) {
	_, err := Read(t.TempDir(), "missing.txt")
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestRead_ContentCappedHashFull(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("a", MaxContentBytes+100)
	writeTree(t, root, map[string]string{"big.txt": big})

	f, err := Read(root, "big.txt")
	require.NoError(t, err)
	assert.Len(t, f.Content, MaxContentBytes)
	assert.Equal(t, sha256.Sum256([]byte(big)), f.Hash)

	// A change past the cap still changes the hash
	changed := big[:len(big)-1] + "b"
	writeTree(t, root, map[string]string{"big.txt": changed})
	g, err := Read(root, "big.txt")
	require.NoError(t, err)
	assert.NotEqual(t, f.Hash, g.Hash)
	assert.Equal(t, f.Content, g.Content)
}

func TestRead_BinaryHasNoContent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"img.png": "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"})

	f, err := Read(root, "img.png")
	require.NoError(t, err)
	assert.True(t, f.Binary)
	assert.Empty(t, f.Content)
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name   string
		sample []byte
		want   bool
	}{
		{"empty", nil, false},
		{"plain text", []byte("hello world\n\tindented\r\n"), false},
		{"nul byte", []byte("text\x00more"), true},
		{"utf8 text", []byte("héllo wörld ✓"), false},
		{"form feed and vtab allowed", []byte("a\f\vb"), false},
		{"mostly control bytes", bytes.Repeat([]byte{0x01, 0x02, 'a'}, 10), true},
		{"0xff counts as suspicious", bytes.Repeat([]byte{0xff, 0xff, 'a'}, 10), true},
		{"below threshold", append(bytes.Repeat([]byte("abcdefghij"), 3), 0x01, 0x02), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBinary(tt.sample))
		})
	}
}

func TestRead_NulBeyondSampleIsText(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("x", BinarySampleBytes) + "\x00"
	writeTree(t, root, map[string]string{"late.txt": content})

	f, err := Read(root, "late.txt")
	require.NoError(t, err)
	assert.False(t, f.Binary)
}

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "abc", truncateContent([]byte("abc"), 10))
	assert.Equal(t, "ab", truncateContent([]byte("abc"), 2))

	// "é" is two bytes; cutting inside it drops the partial rune
	assert.Equal(t, "a", truncateContent([]byte("aé"), 2))
	assert.Equal(t, "aé", truncateContent([]byte("aéb"), 3))
}
