package store

import (
	"fmt"
	"sort"
)

// FieldValue is one field/value pair within a stream entry. Streams
// preserve insertion order and do not require field names to be unique
// within an entry, so this is a slice element, not a map.
type FieldValue struct {
	Field string
	Value string
}

// StreamEntry is one appended record: an id plus its ordered fields.
type StreamEntry struct {
	ID     EntryID
	Fields []FieldValue
}

// Stream is an append-only, ID-ordered sequence of entries. XADD only
// ever inserts at the tail once ids are validated against the current
// top, so a sorted slice serves the role the source's BTreeMap plays
// without the overhead of a balanced tree.
type Stream struct {
	entries []StreamEntry
}

// NewStream creates a stream containing a single seed entry.
func NewStream(id EntryID, fields []FieldValue) *Stream {
	return &Stream{entries: []StreamEntry{{ID: id, Fields: fields}}}
}

// Top returns the most recently appended entry's id, and whether the
// stream has any entries at all.
func (s *Stream) Top() (EntryID, bool) {
	if len(s.entries) == 0 {
		return EntryID{}, false
	}
	return s.entries[len(s.entries)-1].ID, true
}

// Append inserts a new entry at the tail. It fails if id is not strictly
// greater than the stream's current top, mirroring XADD's monotonicity
// invariant.
func (s *Stream) Append(id EntryID, fields []FieldValue) error {
	if top, ok := s.Top(); ok && id.Compare(top) <= 0 {
		return fmt.Errorf("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	}
	s.entries = append(s.entries, StreamEntry{ID: id, Fields: fields})
	return nil
}

// Range returns entries with id in [start, end], inclusive both ends,
// in ascending order, capped at count entries if count > 0.
func (s *Stream) Range(start, end EntryID, count int) []StreamEntry {
	lo := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].ID.Compare(start) >= 0
	})
	var out []StreamEntry
	for i := lo; i < len(s.entries); i++ {
		if s.entries[i].ID.Compare(end) > 0 {
			break
		}
		out = append(out, s.entries[i])
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}

// After returns entries with id strictly greater than lowerBound, in
// ascending order, capped at count entries if count > 0. Used by XREAD,
// whose id argument is an exclusive lower bound.
func (s *Stream) After(lowerBound EntryID, count int) []StreamEntry {
	hi := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].ID.Compare(lowerBound) > 0
	})
	var out []StreamEntry
	for i := hi; i < len(s.entries); i++ {
		out = append(out, s.entries[i])
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}

// Len reports the number of entries in the stream.
func (s *Stream) Len() int { return len(s.entries) }
