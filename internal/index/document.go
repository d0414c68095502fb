// Package index reconciles the chat session index stored in a workspace's
// state database against the session files on disk.
//
// The package does no I/O. Callers supply the decoded prior index and the
// scanned session metadata, and receive the corrected entry list plus an
// encoder for the host's index format.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Key is the ItemTable key holding the chat session index.
const Key = "chat.ChatSessionStore.index"

// defaultVersion is written when the store has no index yet.
var defaultVersion = json.RawMessage(`1`)

// Entry is one row of the index.
type Entry struct {
	ID        string
	Payload   json.RawMessage // host-format JSON object
	Timestamp int64           // lastMessageDate, Unix ms; sort key
	Position  int             // order in the final list
}

// Title returns the payload's title, or "" if it has none.
func (e Entry) Title() string {
	var p struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(e.Payload, &p)
	return p.Title
}

// Document is a decoded index value.
type Document struct {
	Version json.RawMessage
	Entries []Entry
	// Extra holds unknown top-level fields, preserved on encode.
	Extra map[string]json.RawMessage
	// Raw is the stored value as read; nil when the store had no index row.
	Raw []byte
	// Corrupt is set when Raw could not be decoded and was treated as empty.
	Corrupt bool
}

// Decode parses a stored index value. A nil or empty value yields an
// empty document. A value that is not a valid index yields an empty
// document with Corrupt set; Decode never fails.
func Decode(raw []byte) *Document {
	doc := &Document{Version: defaultVersion, Raw: raw}
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc
	}
	if err := doc.decode(raw); err != nil {
		return &Document{Version: defaultVersion, Raw: raw, Corrupt: true}
	}
	return doc
}

func (d *Document) decode(raw []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return err
	}
	if top == nil {
		return fmt.Errorf("index is not an object")
	}
	if v, ok := top["version"]; ok {
		d.Version = v
	}
	if e, ok := top["entries"]; ok && !bytes.Equal(bytes.TrimSpace(e), []byte("null")) {
		entries, err := decodeEntries(e)
		if err != nil {
			return err
		}
		d.Entries = entries
	}
	for k, v := range top {
		if k == "version" || k == "entries" {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[k] = v
	}
	return nil
}

// decodeEntries reads the entries object in stored order. A repeated key
// replaces the earlier value, matching the host's JSON parser.
func decodeEntries(raw json.RawMessage) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("entries is not an object")
	}

	var entries []Entry
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected entries key %v", tok)
		}
		var payload json.RawMessage
		if err := dec.Decode(&payload); err != nil {
			return nil, err
		}
		e := Entry{ID: id, Payload: payload, Timestamp: payloadTimestamp(payload)}
		if i, dup := seen[id]; dup {
			e.Position = i
			entries[i] = e
			continue
		}
		seen[id] = len(entries)
		e.Position = len(entries)
		entries = append(entries, e)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return entries, nil
}

func payloadTimestamp(payload json.RawMessage) int64 {
	var p struct {
		LastMessageDate json.Number `json:"lastMessageDate"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.LastMessageDate == "" {
		return 0
	}
	if v, err := p.LastMessageDate.Int64(); err == nil {
		return v
	}
	if f, err := p.LastMessageDate.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// IDs returns the entry IDs in stored order.
func (d *Document) IDs() []string {
	ids := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Encode writes the document in the host's compact format:
// version, then entries in list order, then unknown fields by name.
func (d *Document) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	if len(d.Version) == 0 {
		buf.Write(defaultVersion)
	} else {
		writeCompact(&buf, d.Version)
	}
	buf.WriteString(`,"entries":{`)
	for i, e := range d.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalString(e.ID))
		buf.WriteByte(':')
		buf.Write(e.Payload)
	}
	buf.WriteByte('}')

	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		buf.Write(marshalString(k))
		buf.WriteByte(':')
		writeCompact(&buf, d.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeCompact(buf *bytes.Buffer, raw json.RawMessage) {
	if err := json.Compact(buf, raw); err != nil {
		buf.Write(raw)
	}
}

// marshalString encodes s as a JSON string without HTML escaping,
// the way the host's JSON.stringify does.
func marshalString(s string) []byte {
	return marshalNoEscape(s)
}

func marshalNoEscape(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return []byte("null")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
