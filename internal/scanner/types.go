// Package scanner lists candidate chat session files in a session directory.
// It streams results lazily so very large directories are never materialized
// in memory at once.
package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is the on-disk encoding of a session file.
type Format string

const (
	// FormatJSON is a single JSON session document.
	FormatJSON Format = "json"
	// FormatJSONL is a line log of session snapshots and request appends.
	FormatJSONL Format = "jsonl"
)

// RecordFile is one session file discovered on disk.
type RecordFile struct {
	ID      string    // File name stem, the session identity
	Path    string    // Absolute path
	ModTime time.Time // Last modification time
	Size    int64     // File size in bytes
	Format  Format    // json or jsonl
}

// Result is returned from the scanner channel.
type Result struct {
	File  *RecordFile
	Error error
}

// DefaultBatchSize is the number of directory entries read per ReadDir call.
const DefaultBatchSize = 256

// DetectFormat returns the session format for a file name, or "" if the
// file is not a session file. Extension matching is case-insensitive.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".jsonl":
		return FormatJSONL
	}
	return ""
}

// IDFromName returns the identity for a session file name.
func IDFromName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// isIgnored reports whether a name is skipped silently: hidden files and
// temp files left behind by the host's atomic writes.
func isIgnored(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".tmp")
}

// IsSessionFile reports whether a directory entry name would be picked up
// by a scan.
func IsSessionFile(name string) bool {
	return !isIgnored(name) && DetectFormat(name) != ""
}
