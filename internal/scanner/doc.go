// Package scanner discovers candidate files under a repository root and
// reads them for indexing.
//
// Scan applies doublestar globs to slash-separated relative paths: a file
// is a candidate when it matches at least one include pattern and no
// exclude pattern. Directories covered by an exclude of the form
// "prefix/**" are not descended into. Read hashes the full file, classifies
// binary content from the first 1024 bytes, and keeps at most 64 KiB of
// text.
package scanner
