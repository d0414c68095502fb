package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_EmptyValue(t *testing.T) {
	doc := Decode(nil)

	assert.False(t, doc.Corrupt)
	assert.Empty(t, doc.Entries)
	assert.Equal(t, `{"version":1,"entries":{}}`, string(doc.Encode()))
}

func TestDecode_ReadsEntriesInStoredOrder(t *testing.T) {
	// Given: a host-written index
	raw := []byte(`{"version":1,"entries":{"b":{"sessionId":"b","title":"B","lastMessageDate":20},"a":{"sessionId":"a","title":"A","lastMessageDate":10}}}`)

	// When: decoding
	doc := Decode(raw)

	// Then: entries keep stored order and timestamps
	require.False(t, doc.Corrupt)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, []string{"b", "a"}, doc.IDs())
	assert.Equal(t, int64(20), doc.Entries[0].Timestamp)
	assert.Equal(t, 1, doc.Entries[1].Position)
	assert.Equal(t, "A", doc.Entries[1].Title())
}

func TestDecode_RoundTripIsByteIdentical(t *testing.T) {
	raw := []byte(`{"version":1,"entries":{"x":{"sessionId":"x","title":"<T> & co","lastMessageDate":5,"isImported":false,"initialLocation":"panel","isEmpty":false}}}`)

	assert.Equal(t, string(raw), string(Decode(raw).Encode()))
}

func TestDecode_PreservesUnknownTopLevelFields(t *testing.T) {
	raw := []byte(`{"version":2,"entries":{},"zeta":[1, 2],"alpha":{"k":true}}`)

	doc := Decode(raw)

	require.False(t, doc.Corrupt)
	assert.Equal(t, `{"version":2,"entries":{},"alpha":{"k":true},"zeta":[1,2]}`, string(doc.Encode()))
}

func TestDecode_DuplicateKeyLastWins(t *testing.T) {
	doc := Decode([]byte(`{"version":1,"entries":{"a":{"title":"old"},"b":{},"a":{"title":"new"}}}`))

	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "a", doc.Entries[0].ID)
	assert.Equal(t, "new", doc.Entries[0].Title())
}

func TestDecode_CorruptValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"version":`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"entries array", `{"version":1,"entries":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Decode([]byte(tt.raw))
			assert.True(t, doc.Corrupt)
			assert.Empty(t, doc.Entries)
			assert.Equal(t, tt.raw, string(doc.Raw))
		})
	}
}

func TestEncode_IsValidJSON(t *testing.T) {
	doc := &Document{Entries: []Entry{
		{ID: `quote"id`, Payload: json.RawMessage(`{"title":"x"}`)},
	}}

	var out map[string]any
	require.NoError(t, json.Unmarshal(doc.Encode(), &out))
	entries := out["entries"].(map[string]any)
	assert.Contains(t, entries, `quote"id`)
}
