// Package store implements the process-wide keyed value store: strings
// and streams, lazy expiry, atomic INCR, and the XADD watcher that
// unblocks waiting XREAD callers.
package store

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Kind distinguishes the two value record shapes a key can hold.
type Kind int

const (
	KindString Kind = iota
	KindStream
)

// ErrWrongType is returned when a command is applied to a key holding
// the other kind of value (e.g. INCR on a stream key).
var ErrWrongType = fmt.Errorf("WRONGTYPE Operation against a key holding the wrong kind of value")

// value is the internal record behind a key: a polymorphic variant over
// string bytes and a stream, plus an optional absolute expiration.
type value struct {
	kind    Kind
	str     []byte
	stream  *Stream
	expires time.Time // zero value means no expiration
}

func (v *value) expired(now time.Time) bool {
	return !v.expires.IsZero() && !now.Before(v.expires)
}

// Store is the single process-wide key/value map.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*value
	watcher *Watcher
}

// New creates an empty store.
func New() *Store {
	return &Store{
		data:    make(map[string]*value),
		watcher: NewWatcher(),
	}
}

// Watcher returns the stream-append broadcast channel, for XREAD BLOCK.
func (s *Store) Watcher() *Watcher { return s.watcher }

// Set overwrites key unconditionally with a string value. A zero
// expires means no expiration.
func (s *Store) Set(key string, val []byte, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &value{kind: KindString, str: val, expires: expires}
}

// Get returns key's string bytes, applying lazy expiry: an expired key
// is deleted and reported missing. Returns ErrWrongType against a
// stream key.
func (s *Store) Get(key string) ([]byte, bool, error) {
	now := time.Now()

	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if v.expired(now) {
		s.mu.Lock()
		if cur, ok := s.data[key]; ok && cur == v {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	if v.kind != KindString {
		return nil, false, ErrWrongType
	}
	return v.str, true, nil
}

// Del removes the given keys and reports how many existed.
func (s *Store) Del(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			n++
		}
	}
	return n
}

// Incr performs an atomic read-modify-write: a missing key becomes 1; an
// existing string key must parse as a signed 64-bit integer.
func (s *Store) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if ok && v.expired(time.Now()) {
		delete(s.data, key)
		ok = false
	}
	if !ok {
		s.data[key] = &value{kind: KindString, str: []byte("1")}
		return 1, nil
	}
	if v.kind != KindString {
		return 0, ErrWrongType
	}
	n, err := strconv.ParseInt(string(v.str), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ERR value is not an integer or out of range")
	}
	n++
	v.str = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// XAdd appends an entry to the stream at key, creating it lazily. idSpec
// is one of a fully-qualified "ms-seq" id, "<ms>-*" (auto sequence), or
// "*" (auto ms and sequence); the chosen id is returned formatted and
// structured. On success the append is published on the watcher.
func (s *Store) XAdd(key string, idSpec string, fields []FieldValue) (string, EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if ok && v.kind != KindStream {
		return "", EntryID{}, ErrWrongType
	}

	var top EntryID
	hasTop := false
	if ok {
		top, hasTop = v.stream.Top()
	}

	id, err := resolveXAddID(idSpec, top, hasTop)
	if err != nil {
		return "", EntryID{}, err
	}
	if id.MS == 0 && id.Seq == 0 {
		return "", EntryID{}, fmt.Errorf("ERR The ID specified in XADD must be greater than 0-0")
	}

	if !ok {
		s.data[key] = &value{kind: KindStream, stream: NewStream(id, fields)}
	} else {
		if err := v.stream.Append(id, fields); err != nil {
			return "", EntryID{}, err
		}
	}

	s.watcher.Publish(Append{Key: key, ID: id})
	return id.String(), id, nil
}

// resolveXAddID turns an XADD id spec into a concrete EntryID against
// the stream's current top.
func resolveXAddID(spec string, top EntryID, hasTop bool) (EntryID, error) {
	if spec == "*" {
		ms := uint64(time.Now().UnixMilli())
		seq := uint64(0)
		if hasTop && top.MS == ms {
			seq = top.Seq + 1
		}
		return EntryID{MS: ms, Seq: seq}, nil
	}
	if len(spec) > 2 && spec[len(spec)-2:] == "-*" {
		msPart := spec[:len(spec)-2]
		ms, err := strconv.ParseUint(msPart, 10, 64)
		if err != nil {
			return EntryID{}, fmt.Errorf("ERR Invalid stream ID specified as stream command argument")
		}
		seq := uint64(0)
		if hasTop && top.MS == ms {
			seq = top.Seq + 1
		} else if ms == 0 {
			// 0-0 is never a legal id, so the first sequence at ms 0 is 1.
			seq = 1
		}
		return EntryID{MS: ms, Seq: seq}, nil
	}
	id, err := ParseEntryID(spec)
	if err != nil {
		return EntryID{}, fmt.Errorf("ERR Invalid stream ID specified as stream command argument")
	}
	return id, nil
}

// XRange returns entries of the stream at key within [start, end],
// inclusive, capped at count if count > 0.
func (s *Store) XRange(key string, start, end EntryID, count int) ([]StreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	if v.kind != KindStream {
		return nil, ErrWrongType
	}
	return v.stream.Range(start, end, count), nil
}

// XReadOne returns entries of the stream at key strictly after
// lowerBound, capped at count if count > 0.
func (s *Store) XReadOne(key string, lowerBound EntryID, count int) ([]StreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	if v.kind != KindStream {
		return nil, ErrWrongType
	}
	return v.stream.After(lowerBound, count), nil
}

// StreamTop returns the current top id of the stream at key, if any.
func (s *Store) StreamTop(key string) (EntryID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok || v.kind != KindStream {
		return EntryID{}, false
	}
	return v.stream.Top()
}

// Keys returns every key matching pattern (glob syntax: '*', '?', '[...]').
func (s *Store) Keys(pattern string) []string {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k, v := range s.data {
		if v.expired(now) {
			continue
		}
		if matchGlob(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

// Type reports "string", "stream", or "none" for key.
func (s *Store) Type(key string) string {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok || v.expired(now) {
		return "none"
	}
	if v.kind == KindStream {
		return "stream"
	}
	return "string"
}

// SnapshotRecord is one record produced by a snapshot source: a key, its
// value, and an optional absolute expiration.
type SnapshotRecord struct {
	Key     string
	Value   []byte
	Expires time.Time
}

// ApplySnapshot bulk-loads records from a snapshot, silently dropping
// any already expired. Existing keys are not cleared first; callers
// apply a snapshot only at startup against an empty store.
func (s *Store) ApplySnapshot(records []SnapshotRecord) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if !r.Expires.IsZero() && !now.Before(r.Expires) {
			continue
		}
		s.data[r.Key] = &value{kind: KindString, str: r.Value, expires: r.Expires}
	}
}

// Sweep proactively deletes every key whose expiration has already
// passed, regardless of whether anything has tried to read it since.
// Read paths (Get, Keys, Type, ...) already apply lazy expiry on their
// own, so Sweep changes nothing about read-time semantics; it only
// bounds how long an expired key can sit unread in the map. It returns
// the number of keys removed.
func (s *Store) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.data {
		if v.expired(now) {
			delete(s.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of keys currently stored, including any not
// yet lazily or actively expired.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Dump renders the store's string keys as a snapshot record stream, for
// a FULLRESYNC transfer to a newly connecting replica. Streams are not
// part of the persisted/transferred snapshot contract (the parser's
// output contract in the spec this store follows is string key/value
// pairs plus an optional expiration); a replica that needs a stream's
// history receives it through ordinary propagated XADD commands issued
// after the snapshot phase instead.
func (s *Store) Dump() []SnapshotRecord {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]SnapshotRecord, 0, len(s.data))
	for k, v := range s.data {
		if v.kind != KindString || v.expired(now) {
			continue
		}
		records = append(records, SnapshotRecord{Key: k, Value: append([]byte(nil), v.str...), Expires: v.expires})
	}
	return records
}
