package index

import (
	"bytes"
	"sort"

	"github.com/Aman-CERP/chatrepair/internal/extract"
)

// Options configures reconciliation.
type Options struct {
	// RemoveOrphans drops entries with no session file instead of keeping them.
	RemoveOrphans bool
	// Unreadable lists IDs of session files that exist but could not be
	// parsed. Their entries are kept unchanged and are never orphans.
	Unreadable []string
}

// Conflict records several session files sharing one identity.
type Conflict struct {
	ID        string
	Kept      string   // path of the file used
	Discarded []string // paths ignored, sorted
}

// Result is the outcome of reconciling an index with the files on disk.
// ID lists are sorted and pairwise disjoint, except Refreshed which is a
// subset of Kept.
type Result struct {
	ToAdd     []string // on disk, not indexed
	ToRemove  []string // indexed, not on disk (orphans)
	Kept      []string // on disk and indexed, including unreadable files
	Refreshed []string // kept entries whose payload changed
	Conflicts []Conflict
	// Entries is the corrected index in final order.
	Entries []Entry
	// RemoveOrphans echoes the option used; when false ToRemove entries
	// are retained in Entries.
	RemoveOrphans bool
	// Added holds the metadata behind ToAdd, in ToAdd order.
	Added []extract.Metadata
}

// Counts summarizes a Result.
type Counts struct {
	Added     int
	Orphans   int
	Removed   int
	Kept      int
	Refreshed int
	Conflicts int
	Total     int
}

// Counts returns the size of each result set.
func (r *Result) Counts() Counts {
	c := Counts{
		Added:     len(r.ToAdd),
		Orphans:   len(r.ToRemove),
		Kept:      len(r.Kept),
		Refreshed: len(r.Refreshed),
		Conflicts: len(r.Conflicts),
		Total:     len(r.Entries),
	}
	if r.RemoveOrphans {
		c.Removed = c.Orphans
	}
	return c
}

// HasChanges reports whether the entry set differs from the prior index.
func (r *Result) HasChanges() bool {
	return len(r.ToAdd) > 0 || len(r.Refreshed) > 0 || (r.RemoveOrphans && len(r.ToRemove) > 0)
}

// Document builds the index document to store, keeping prior's version
// and unknown top-level fields.
func (r *Result) Document(prior *Document) *Document {
	doc := &Document{Version: defaultVersion, Entries: r.Entries}
	if prior != nil && !prior.Corrupt {
		if len(prior.Version) > 0 {
			doc.Version = prior.Version
		}
		doc.Extra = prior.Extra
	}
	return doc
}

// NeedsWrite reports whether storing the result would change the stored
// bytes. A store with no index and no sessions is left alone.
func (r *Result) NeedsWrite(prior *Document) bool {
	if prior == nil || prior.Raw == nil {
		return len(r.Entries) > 0
	}
	return !bytes.Equal(r.Document(prior).Encode(), prior.Raw)
}

// Reconcile computes the corrected index from the prior entries and the
// metadata of the session files currently on disk.
func Reconcile(indexed []Entry, scanned []extract.Metadata, opts Options) *Result {
	unique, conflicts := dedupe(scanned)

	prior := make(map[string]Entry, len(indexed))
	for _, e := range indexed {
		prior[e.ID] = e
	}

	res := &Result{
		Conflicts:     conflicts,
		RemoveOrphans: opts.RemoveOrphans,
	}
	entries := make([]Entry, 0, len(unique)+len(indexed))

	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		md := unique[id]
		old, ok := prior[id]
		if !ok {
			res.ToAdd = append(res.ToAdd, id)
			res.Added = append(res.Added, md)
			entries = append(entries, Entry{
				ID:        id,
				Payload:   BuildPayload(md, nil),
				Timestamp: md.Timestamp,
			})
			continue
		}

		res.Kept = append(res.Kept, id)
		payload := BuildPayload(md, old.Payload)
		if !bytes.Equal(payload, old.Payload) {
			res.Refreshed = append(res.Refreshed, id)
		}
		entries = append(entries, Entry{ID: id, Payload: payload, Timestamp: md.Timestamp})
	}

	unreadable := make(map[string]struct{}, len(opts.Unreadable))
	for _, id := range opts.Unreadable {
		unreadable[id] = struct{}{}
	}

	for _, e := range indexed {
		if _, ok := unique[e.ID]; ok {
			continue
		}
		if _, ok := unreadable[e.ID]; ok {
			res.Kept = append(res.Kept, e.ID)
			entries = append(entries, Entry{ID: e.ID, Payload: e.Payload, Timestamp: e.Timestamp})
			continue
		}
		res.ToRemove = append(res.ToRemove, e.ID)
		if !opts.RemoveOrphans {
			entries = append(entries, Entry{ID: e.ID, Payload: e.Payload, Timestamp: e.Timestamp})
		}
	}
	sort.Strings(res.Kept)
	sort.Strings(res.ToRemove)

	Order(entries)
	res.Entries = entries
	return res
}

// Order sorts entries newest first, ties by ID, and assigns positions.
func Order(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].ID < entries[j].ID
	})
	for i := range entries {
		entries[i].Position = i
	}
}

// dedupe keeps one metadata record per ID: the newest file, ties broken
// by the lexically smaller path.
func dedupe(scanned []extract.Metadata) (map[string]extract.Metadata, []Conflict) {
	groups := make(map[string][]extract.Metadata, len(scanned))
	for _, md := range scanned {
		groups[md.ID] = append(groups[md.ID], md)
	}

	unique := make(map[string]extract.Metadata, len(groups))
	var conflicts []Conflict
	for id, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if !group[i].ModTime.Equal(group[j].ModTime) {
				return group[i].ModTime.After(group[j].ModTime)
			}
			return group[i].Path < group[j].Path
		})
		unique[id] = group[0]
		if len(group) == 1 {
			continue
		}
		c := Conflict{ID: id, Kept: group[0].Path}
		for _, md := range group[1:] {
			c.Discarded = append(c.Discarded, md.Path)
		}
		sort.Strings(c.Discarded)
		conflicts = append(conflicts, c)
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })
	return unique, conflicts
}
