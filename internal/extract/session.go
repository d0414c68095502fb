package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Aman-CERP/chatrepair/internal/scanner"
)

// Mutation kinds in a .jsonl session log.
const (
	kindInitial = 0
	kindSet     = 1
	kindPush    = 2
)

// session is the subset of a host session document needed for metadata.
// Top-level fields are kept raw so unexpected types only matter when read.
type session struct {
	fields   map[string]json.RawMessage
	requests []json.RawMessage
}

type logLine struct {
	Kind *int            `json:"kind"`
	K    []any           `json:"k"`
	V    json.RawMessage `json:"v"`
}

type request struct {
	Message struct {
		Text  string `json:"text"`
		Parts []struct {
			Text *string `json:"text"`
		} `json:"parts"`
	} `json:"message"`
	Timestamp json.Number `json:"timestamp"`
}

func readSession(file scanner.RecordFile) (*session, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, err
	}
	if file.Format == scanner.FormatJSONL {
		return parseLog(data)
	}
	return parseDocument(data)
}

func parseDocument(data []byte) (*session, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("session document is not a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	s := &session{fields: fields}
	if raw, ok := fields["requests"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &s.requests); err != nil {
			return nil, fmt.Errorf("requests is not an array: %w", err)
		}
	}
	return s, nil
}

// parseLog replays a .jsonl session log: an initial document followed by
// set and push mutations. Mutations on paths other than top-level fields
// and the request list do not affect metadata and are skipped.
func parseLog(data []byte) (*session, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	var s *session
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			lineNo++
			if s == nil {
				first, parseErr := parseFirstLine(line)
				if parseErr != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, parseErr)
				}
				s = first
			} else if applyErr := s.apply(line); applyErr != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, applyErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	if s == nil {
		return nil, errors.New("empty session log")
	}
	return s, nil
}

func parseFirstLine(line []byte) (*session, error) {
	var entry logLine
	if err := json.Unmarshal(line, &entry); err == nil && entry.Kind != nil && *entry.Kind == kindInitial {
		return parseDocument(entry.V)
	}
	return parseDocument(line)
}

func (s *session) apply(line []byte) error {
	var entry logLine
	if err := json.Unmarshal(line, &entry); err != nil {
		return err
	}
	if entry.Kind == nil {
		return nil
	}
	switch *entry.Kind {
	case kindInitial:
		next, err := parseDocument(entry.V)
		if err != nil {
			return err
		}
		*s = *next
	case kindSet:
		name, ok := topLevelKey(entry.K)
		if !ok {
			return nil
		}
		if name == "requests" {
			var reqs []json.RawMessage
			if err := json.Unmarshal(entry.V, &reqs); err != nil {
				return fmt.Errorf("requests is not an array: %w", err)
			}
			s.requests = reqs
			return nil
		}
		s.fields[name] = entry.V
	case kindPush:
		if name, ok := topLevelKey(entry.K); !ok || name != "requests" {
			return nil
		}
		var reqs []json.RawMessage
		if err := json.Unmarshal(entry.V, &reqs); err != nil {
			return fmt.Errorf("pushed requests is not an array: %w", err)
		}
		s.requests = append(s.requests, reqs...)
	}
	return nil
}

// topLevelKey returns the field name when a mutation path addresses a
// top-level document field.
func topLevelKey(path []any) (string, bool) {
	if len(path) != 1 {
		return "", false
	}
	name, ok := path[0].(string)
	return name, ok
}

func (s *session) stringField(name string) string {
	raw, ok := s.fields[name]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

func (s *session) numberField(name string) (int64, bool) {
	raw, ok := s.fields[name]
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return toMillis(n)
}

func (s *session) customTitle() string {
	return s.stringField("customTitle")
}

func (s *session) location() string {
	if loc := s.stringField("initialLocation"); loc != "" {
		return loc
	}
	return DefaultLocation
}

// firstText returns the first text fragment of the first request.
func (s *session) firstText() string {
	if len(s.requests) == 0 {
		return ""
	}
	var req request
	if err := json.Unmarshal(s.requests[0], &req); err != nil {
		return ""
	}
	for _, p := range req.Message.Parts {
		if p.Text != nil {
			return *p.Text
		}
	}
	return req.Message.Text
}

// timestamp returns the most recent activity time recorded in the session.
func (s *session) timestamp() (int64, bool) {
	if n := len(s.requests); n > 0 {
		var req request
		if err := json.Unmarshal(s.requests[n-1], &req); err == nil {
			if ts, ok := toMillis(req.Timestamp); ok {
				return ts, true
			}
		}
	}
	if ts, ok := s.numberField("lastMessageDate"); ok {
		return ts, true
	}
	return s.numberField("creationDate")
}

func toMillis(n json.Number) (int64, bool) {
	if n == "" {
		return 0, false
	}
	if v, err := n.Int64(); err == nil {
		return v, v > 0
	}
	if f, err := n.Float64(); err == nil && f > 0 {
		return int64(f), true
	}
	return 0, false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
