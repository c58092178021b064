package scanner

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// MaxContentBytes caps the text kept for embedding and full-text indexing
	MaxContentBytes = 64 * 1024

	// BinarySampleBytes is how much of a file binary detection inspects
	BinarySampleBytes = 1024

	// binaryControlRatio is the share of suspicious bytes above which a sample is binary
	binaryControlRatio = 0.30
)

var (
	// ErrUnreadable is returned when a file cannot be stat'd or read
	ErrUnreadable = errors.New("file unreadable")

	// ErrBadPattern is returned for an invalid include or exclude glob
	ErrBadPattern = errors.New("invalid glob pattern")

	// ErrNotDirectory is returned when the scan root is not a directory
	ErrNotDirectory = errors.New("root is not a directory")
)

// DefaultInclude matches every file
var DefaultInclude = []string{"**/*"}

// DefaultExclude skips VCS metadata, dependency trees and the index's own data
var DefaultExclude = []string{
	".git/**",
	"**/.git/**",
	"**/node_modules/**",
	"**/.repoindex/**",
}

// Options selects which files a scan yields
type Options struct {
	Include []string // Empty means DefaultInclude
	Exclude []string // Empty means DefaultExclude
}

// File is a candidate read from disk
type File struct {
	RelPath  string // Slash separated, relative to the root
	Filename string
	ModTime  time.Time
	Size     int64
	Hash     [32]byte // SHA-256 of the full raw bytes
	Binary   bool
	Content  string // At most MaxContentBytes, only for non-binary files
}

// Scan walks root and returns the sorted relative paths of regular files
// matching at least one include glob and no exclude glob. Hidden entries
// are included. Unreadable subdirectories are skipped.
func Scan(ctx context.Context, root string, opts Options) ([]string, error) {
	include, exclude, err := resolvePatterns(opts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	seen := make(map[string]struct{})
	var paths []string

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			return nil // skip unreadable entries, keep walking
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p != root && dirExcluded(rel, exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		// Regular files only; symlinks and devices are skipped
		if !d.Type().IsRegular() {
			return nil
		}

		if !Matches(rel, include, exclude) {
			return nil
		}
		if _, dup := seen[rel]; dup {
			return nil
		}
		seen[rel] = struct{}{}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Matches reports whether rel matches at least one include and no exclude pattern
func Matches(rel string, include, exclude []string) bool {
	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	for _, pattern := range include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// dirExcluded reports whether every path under dir is excluded by a "prefix/**" pattern
func dirExcluded(dir string, exclude []string) bool {
	for _, pattern := range exclude {
		prefix, ok := strings.CutSuffix(pattern, "/**")
		if !ok {
			continue
		}
		if match, _ := doublestar.Match(prefix, dir); match {
			return true
		}
	}
	return false
}

func resolvePatterns(opts Options) (include, exclude []string, err error) {
	include = opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	exclude = opts.Exclude
	if len(exclude) == 0 {
		exclude = DefaultExclude
	}

	for _, pattern := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
		}
	}
	return include, exclude, nil
}

// Read loads one file relative to root: hash over the full bytes, binary
// classification over the leading sample, and capped text content
func Read(root, rel string) (*File, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, rel, err)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, rel, err)
	}

	f := &File{
		RelPath:  rel,
		Filename: path.Base(rel),
		ModTime:  info.ModTime(),
		Size:     int64(len(data)),
		Hash:     sha256.Sum256(data),
	}

	sample := data
	if len(sample) > BinarySampleBytes {
		sample = sample[:BinarySampleBytes]
	}
	f.Binary = IsBinary(sample)
	if !f.Binary {
		f.Content = truncateContent(data, MaxContentBytes)
	}

	return f, nil
}

// IsBinary classifies a sample: any NUL byte means binary, otherwise it is
// binary when control bytes (other than tab, newline, vertical tab, form
// feed and carriage return) plus 0xFF bytes exceed 30% of the sample
func IsBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}

	suspicious := 0
	for _, b := range sample {
		switch {
		case b == 0:
			return true
		case b == '\t', b == '\n', b == '\v', b == '\f', b == '\r':
		case b < 0x20, b == 0xff:
			suspicious++
		}
	}
	return float64(suspicious)/float64(len(sample)) > binaryControlRatio
}

// truncateContent returns at most limit bytes of data as a string without
// splitting a trailing UTF-8 sequence
func truncateContent(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	cut := data[:limit]
	for i := len(cut) - 1; i >= 0 && i >= len(cut)-utf8.UTFMax; i-- {
		if utf8.RuneStart(cut[i]) {
			if !utf8.FullRune(cut[i:]) {
				cut = cut[:i]
			}
			break
		}
	}
	return string(cut)
}
