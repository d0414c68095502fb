package index

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/Aman-CERP/chatrepair/internal/extract"
)

// payloadFields are the fields the host writes, in the host's order.
var payloadFields = []string{
	"sessionId",
	"title",
	"lastMessageDate",
	"isImported",
	"initialLocation",
	"isEmpty",
}

// BuildPayload renders the host payload for md. Fields of prior that the
// host wrote but this package does not compute are carried over; the
// isImported flag of prior is kept.
func BuildPayload(md extract.Metadata, prior json.RawMessage) json.RawMessage {
	var old map[string]json.RawMessage
	if len(prior) > 0 {
		_ = json.Unmarshal(prior, &old)
	}

	imported := json.RawMessage(`false`)
	if v, ok := old["isImported"]; ok && isBool(v) {
		imported = v
	}

	known := map[string]json.RawMessage{
		"sessionId":       marshalNoEscape(md.ID),
		"title":           marshalNoEscape(md.Title),
		"lastMessageDate": marshalNoEscape(md.Timestamp),
		"isImported":      imported,
		"initialLocation": marshalNoEscape(md.Location),
		"isEmpty":         marshalNoEscape(md.IsEmpty),
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range payloadFields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalString(name))
		buf.WriteByte(':')
		buf.Write(known[name])
	}

	extra := make([]string, 0, len(old))
	for k := range old {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		buf.WriteByte(',')
		buf.Write(marshalString(k))
		buf.WriteByte(':')
		writeCompact(&buf, old[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func isBool(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return bytes.Equal(t, []byte("true")) || bytes.Equal(t, []byte("false"))
}
