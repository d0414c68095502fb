// Package extract parses chat session files into the metadata the index needs.
package extract

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/scanner"
)

const (
	// DefaultTitleMaxLength is the longest title, in runes, written to the index.
	DefaultTitleMaxLength = 100
	// DefaultPlaceholderTitle is used when a session has no usable title.
	DefaultPlaceholderTitle = "Untitled Session"
	// DefaultLocation is the host's default chat location.
	DefaultLocation = "panel"
	// DefaultCacheSize bounds the number of cached metadata records.
	DefaultCacheSize = 4096

	ellipsis = "..."
)

// TimestampSource records where Metadata.Timestamp came from.
type TimestampSource string

const (
	// TimestampFromRecord means the session content supplied the timestamp.
	TimestampFromRecord TimestampSource = "record"
	// TimestampFromModTime means the file modification time was used.
	TimestampFromModTime TimestampSource = "modtime"
)

// Metadata is what the index needs to know about one session file.
type Metadata struct {
	ID              string
	Title           string
	Timestamp       int64 // Unix milliseconds
	TimestampSource TimestampSource
	Location        string
	IsEmpty         bool
	ModTime         time.Time
	Path            string
}

// Options configures an Extractor.
type Options struct {
	TitleMaxLength   int
	PlaceholderTitle string
	CacheSize        int
}

// Extractor turns RecordFiles into Metadata.
// It is safe for concurrent use.
type Extractor struct {
	titleMax    int
	placeholder string
	cache       *lru.Cache[string, Metadata]
}

// New creates an Extractor. Zero-valued options take their defaults.
func New(opts Options) (*Extractor, error) {
	if opts.TitleMaxLength <= len(ellipsis) {
		opts.TitleMaxLength = DefaultTitleMaxLength
	}
	if opts.PlaceholderTitle == "" {
		opts.PlaceholderTitle = DefaultPlaceholderTitle
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, Metadata](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &Extractor{
		titleMax:    opts.TitleMaxLength,
		placeholder: opts.PlaceholderTitle,
		cache:       cache,
	}, nil
}

// Extract parses one session file.
// Any failure is a ParseError; callers skip the file and continue.
func (e *Extractor) Extract(file scanner.RecordFile) (*Metadata, error) {
	key := cacheKey(file)
	if md, ok := e.cache.Get(key); ok {
		return &md, nil
	}

	sess, err := readSession(file)
	if err != nil {
		return nil, crerrors.ParseError(file.Path, err)
	}

	md := Metadata{
		ID:       file.ID,
		Title:    e.title(sess),
		Location: sess.location(),
		IsEmpty:  len(sess.requests) == 0,
		ModTime:  file.ModTime,
		Path:     file.Path,
	}
	if ts, ok := sess.timestamp(); ok {
		md.Timestamp = ts
		md.TimestampSource = TimestampFromRecord
	} else {
		md.Timestamp = file.ModTime.UnixMilli()
		md.TimestampSource = TimestampFromModTime
	}

	e.cache.Add(key, md)
	return &md, nil
}

// ExtractAll parses every file, collecting parse failures instead of stopping.
func (e *Extractor) ExtractAll(files []scanner.RecordFile) ([]Metadata, []error) {
	out := make([]Metadata, 0, len(files))
	var errs []error
	for _, f := range files {
		md, err := e.Extract(f)
		if err != nil {
			slog.Warn("skipping unreadable session file",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		out = append(out, *md)
	}
	return out, errs
}

// Purge drops all cached metadata.
func (e *Extractor) Purge() {
	e.cache.Purge()
}

// CacheLen returns the number of cached records.
func (e *Extractor) CacheLen() int {
	return e.cache.Len()
}

func (e *Extractor) title(sess *session) string {
	if t := strings.TrimSpace(sess.customTitle()); t != "" {
		return e.truncate(t)
	}
	if t := strings.TrimSpace(sess.firstText()); t != "" {
		return e.truncate(t)
	}
	return e.placeholder
}

func (e *Extractor) truncate(title string) string {
	if utf8.RuneCountInString(title) <= e.titleMax {
		return title
	}
	runes := []rune(title)
	return string(runes[:e.titleMax-len(ellipsis)]) + ellipsis
}

func cacheKey(f scanner.RecordFile) string {
	return fmt.Sprintf("%s|%d|%d", f.Path, f.Size, f.ModTime.UnixNano())
}
