package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/scanner"
)

var fixedModTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func recordFile(t *testing.T, name, content string) scanner.RecordFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, fixedModTime, fixedModTime))
	return scanner.RecordFile{
		ID:      scanner.IDFromName(name),
		Path:    path,
		ModTime: fixedModTime,
		Size:    int64(len(content)),
		Format:  scanner.DetectFormat(name),
	}
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(Options{})
	require.NoError(t, err)
	return e
}

func TestExtract_JSONSession(t *testing.T) {
	// Given: a session with two requests
	f := recordFile(t, "abc.json", `{
		"version": 3,
		"initialLocation": "editor",
		"requests": [
			{"message": {"parts": [{"kind": "text", "text": "  How do I sort a map?  "}]}, "timestamp": 1700000000000},
			{"message": {"parts": [{"text": "thanks"}]}, "timestamp": 1700000005000}
		]
	}`)

	// When: extracting
	md, err := newExtractor(t).Extract(f)

	// Then: title from first request, timestamp from last
	require.NoError(t, err)
	assert.Equal(t, "abc", md.ID)
	assert.Equal(t, "How do I sort a map?", md.Title)
	assert.Equal(t, int64(1700000005000), md.Timestamp)
	assert.Equal(t, TimestampFromRecord, md.TimestampSource)
	assert.Equal(t, "editor", md.Location)
	assert.False(t, md.IsEmpty)
	assert.Equal(t, f.Path, md.Path)
}

func TestExtract_Defaults(t *testing.T) {
	// Given: an empty session
	f := recordFile(t, "empty.json", `{"requests": []}`)

	md, err := newExtractor(t).Extract(f)

	// Then: placeholder title, default location, mod time timestamp
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaceholderTitle, md.Title)
	assert.Equal(t, DefaultLocation, md.Location)
	assert.True(t, md.IsEmpty)
	assert.Equal(t, fixedModTime.UnixMilli(), md.Timestamp)
	assert.Equal(t, TimestampFromModTime, md.TimestampSource)
}

func TestExtract_TimestampFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int64
	}{
		{"lastMessageDate", `{"lastMessageDate": 1700000000001, "creationDate": 5}`, 1700000000001},
		{"creationDate", `{"creationDate": 1600000000000}`, 1600000000000},
		{"request without timestamp", `{"requests":[{"message":{"text":"hi"}}], "creationDate": 42}`, 42},
		{"float timestamp", `{"requests":[{"timestamp": 1.7e12}]}`, 1700000000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := newExtractor(t).Extract(recordFile(t, "s.json", tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, md.Timestamp)
			assert.Equal(t, TimestampFromRecord, md.TimestampSource)
		})
	}
}

func TestExtract_TitleSelection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"custom title wins", `{"customTitle": "Renamed", "requests":[{"message":{"parts":[{"text":"first"}]}}]}`, "Renamed"},
		{"blank custom title ignored", `{"customTitle": "  ", "requests":[{"message":{"parts":[{"text":"first"}]}}]}`, "first"},
		{"message text fallback", `{"requests":[{"message":{"text":"plain text"}}]}`, "plain text"},
		{"parts without text skipped", `{"requests":[{"message":{"parts":[{"kind":"ref"},{"text":"second"}]}}]}`, "second"},
		{"whitespace only title", `{"requests":[{"message":{"parts":[{"text":"   "}]}}]}`, DefaultPlaceholderTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := newExtractor(t).Extract(recordFile(t, "s.json", tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, md.Title)
		})
	}
}

func TestExtract_TruncatesLongTitles(t *testing.T) {
	// Given: a 150 rune first message
	long := strings.Repeat("é", 150)
	f := recordFile(t, "s.json", `{"requests":[{"message":{"parts":[{"text":"`+long+`"}]}}]}`)

	md, err := newExtractor(t).Extract(f)

	// Then: first 97 runes plus ellipsis
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 97)+"...", md.Title)
	assert.Equal(t, 100, len([]rune(md.Title)))
}

func TestExtract_ExactlyMaxLengthIsKept(t *testing.T) {
	title := strings.Repeat("a", 100)
	f := recordFile(t, "s.json", `{"requests":[{"message":{"parts":[{"text":"`+title+`"}]}}]}`)

	md, err := newExtractor(t).Extract(f)

	require.NoError(t, err)
	assert.Equal(t, title, md.Title)
}

func TestExtract_CustomOptions(t *testing.T) {
	e, err := New(Options{TitleMaxLength: 10, PlaceholderTitle: "(none)"})
	require.NoError(t, err)

	md, err := e.Extract(recordFile(t, "a.json", `{"requests":[{"message":{"text":"0123456789abc"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "0123456...", md.Title)

	md, err = e.Extract(recordFile(t, "b.json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, "(none)", md.Title)
}

func TestExtract_JSONLSnapshotAndAppends(t *testing.T) {
	// Given: a log with a snapshot, a title change and two appends
	content := strings.Join([]string{
		`{"kind":0,"v":{"initialLocation":"panel","requests":[{"message":{"parts":[{"text":"start"}]},"timestamp":100}]}}`,
		`{"kind":1,"k":["customTitle"],"v":"Named later"}`,
		`{"kind":2,"k":["requests"],"v":[{"message":{"text":"more"},"timestamp":200}]}`,
		`{"kind":2,"k":["requests",0,"response"],"v":[{"value":"ignored"}]}`,
		``,
		`{"kind":2,"k":["requests"],"v":[{"message":{"text":"last"},"timestamp":300}]}`,
	}, "\n")
	f := recordFile(t, "log.jsonl", content)

	md, err := newExtractor(t).Extract(f)

	require.NoError(t, err)
	assert.Equal(t, "log", md.ID)
	assert.Equal(t, "Named later", md.Title)
	assert.Equal(t, int64(300), md.Timestamp)
	assert.False(t, md.IsEmpty)
}

func TestExtract_JSONLPlainFirstLine(t *testing.T) {
	content := `{"requests":[]}` + "\n" + `{"kind":2,"k":["requests"],"v":[{"message":{"text":"hi"},"timestamp":7}]}` + "\n"

	md, err := newExtractor(t).Extract(recordFile(t, "p.jsonl", content))

	require.NoError(t, err)
	assert.Equal(t, "hi", md.Title)
	assert.Equal(t, int64(7), md.Timestamp)
}

func TestExtract_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "bad.json", `{"requests": [`},
		{"array document", "arr.json", `[1,2,3]`},
		{"null document", "null.json", `null`},
		{"requests not array", "req.json", `{"requests": {"a": 1}}`},
		{"empty file", "empty.json", ``},
		{"empty log", "empty.jsonl", "\n\n"},
		{"bad log line", "bad.jsonl", `{"kind":0,"v":{}}` + "\n" + `{oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newExtractor(t).Extract(recordFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Equal(t, crerrors.ErrCodeParseFailed, crerrors.GetCode(err))
			assert.False(t, crerrors.IsFatal(err))
		})
	}
}

func TestExtract_MissingFileIsParseError(t *testing.T) {
	f := scanner.RecordFile{ID: "gone", Path: filepath.Join(t.TempDir(), "gone.json"), Format: scanner.FormatJSON}

	_, err := newExtractor(t).Extract(f)

	assert.Equal(t, crerrors.ErrCodeParseFailed, crerrors.GetCode(err))
}

func TestExtractAll_SkipsMalformedFile(t *testing.T) {
	// Given: 10 valid sessions and one malformed file
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".json")
		require.NoError(t, os.WriteFile(name, []byte(`{"requests":[]}`), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{not json`), 0o644))

	results, err := scanner.New().Scan(t.Context(), dir)
	require.NoError(t, err)
	files, scanErrs := scanner.Collect(results)
	require.Empty(t, scanErrs)

	// When: extracting all
	mds, errs := newExtractor(t).ExtractAll(files)

	// Then: 10 metadata records and one parse error
	assert.Len(t, mds, 10)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken.json")
}

func TestExtract_CacheKeyedBySizeAndModTime(t *testing.T) {
	// Given: an extracted file
	e := newExtractor(t)
	f := recordFile(t, "c.json", `{"customTitle":"AAAA"}`)
	first, err := e.Extract(f)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheLen())

	// When: the content changes but size and mtime do not
	require.NoError(t, os.WriteFile(f.Path, []byte(`{"customTitle":"BBBB"}`), 0o644))
	cached, err := e.Extract(f)
	require.NoError(t, err)

	// Then: the cached record is served
	assert.Equal(t, first.Title, cached.Title)

	// And: a new mtime forces a re-parse
	f.ModTime = f.ModTime.Add(time.Second)
	fresh, err := e.Extract(f)
	require.NoError(t, err)
	assert.Equal(t, "BBBB", fresh.Title)

	e.Purge()
	assert.Equal(t, 0, e.CacheLen())
}
