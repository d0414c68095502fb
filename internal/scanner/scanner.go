package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
)

// Scanner discovers session files in a directory.
type Scanner struct {
	batchSize int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithBatchSize sets how many directory entries are read per batch.
func WithBatchSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a new Scanner instance.
func New(opts ...Option) *Scanner {
	s := &Scanner{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan lists dir and streams a RecordFile for every session file in it.
// The channel is closed when listing is complete or ctx is canceled.
// Every call re-lists the directory from the start.
//
// An unopenable directory fails immediately with a ScanError. A failure
// in the middle of the listing is delivered as a Result with Error set.
func (s *Scanner) Scan(ctx context.Context, dir string) (<-chan Result, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, crerrors.ScanError(dir, err)
	}

	f, err := os.Open(absDir)
	if err != nil {
		return nil, crerrors.ScanError(absDir, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, crerrors.ScanError(absDir, err)
	}
	if !info.IsDir() {
		_ = f.Close()
		return nil, crerrors.ScanError(absDir, errors.New("not a directory"))
	}

	results := make(chan Result, s.batchSize)
	go func() {
		defer close(results)
		defer func() { _ = f.Close() }()
		s.scan(ctx, absDir, f, results)
	}()
	return results, nil
}

func (s *Scanner) scan(ctx context.Context, dir string, f *os.File, results chan<- Result) {
	for {
		entries, err := f.ReadDir(s.batchSize)
		for _, entry := range entries {
			rf, ok := s.recordFile(dir, entry)
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case results <- Result{File: rf}:
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-ctx.Done():
			case results <- Result{Error: crerrors.ScanError(dir, err)}:
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Scanner) recordFile(dir string, entry os.DirEntry) (*RecordFile, bool) {
	name := entry.Name()
	if isIgnored(name) {
		return nil, false
	}
	format := DetectFormat(name)
	if format == "" {
		return nil, false
	}
	if !entry.Type().IsRegular() {
		return nil, false
	}

	info, err := entry.Info()
	if err != nil {
		// Removed between listing and stat; the host rewrites files often.
		slog.Debug("session file vanished during scan",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return nil, false
	}

	return &RecordFile{
		ID:      IDFromName(name),
		Path:    filepath.Join(dir, name),
		ModTime: info.ModTime(),
		Size:    info.Size(),
		Format:  format,
	}, true
}

// Collect drains a scan into a slice of files and a slice of errors.
func Collect(results <-chan Result) ([]RecordFile, []error) {
	var files []RecordFile
	var errs []error
	for r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		files = append(files, *r.File)
	}
	return files, errs
}
