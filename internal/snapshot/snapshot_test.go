package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nishisan-dev/redistore/internal/store"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	records := []store.SnapshotRecord{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("hello world"), Expires: time.UnixMilli(1700000000000)},
		{Key: "empty", Value: []byte{}},
	}
	data := Encode(records)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i].Key != records[i].Key || string(got[i].Value) != string(records[i].Value) {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], records[i])
		}
		if !got[i].Expires.Equal(records[i].Expires) {
			t.Fatalf("record %d expires = %v, want %v", i, got[i].Expires, records[i].Expires)
		}
	}
}

func TestDecode_Empty(t *testing.T) {
	records, err := Decode(nil)
	if err != nil || records != nil {
		t.Fatalf("Decode(nil) = (%v, %v), want (nil, nil)", records, err)
	}
}

func TestDecode_BadMagic(t *testing.T) {
	if _, err := Decode([]byte("not-a-snapshot-at-all")); err == nil {
		t.Fatal("expected error decoding bad magic")
	}
}

func TestResolve_MissingLocalFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	records, err := Resolve(context.Background(), dir, "missing.rsd")
	if err != nil || records != nil {
		t.Fatalf("Resolve missing file = (%v, %v), want (nil, nil)", records, err)
	}
}

func TestResolve_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rsd")
	data := Encode([]store.SnapshotRecord{{Key: "k", Value: []byte("v")}})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	records, err := Resolve(context.Background(), dir, "dump.rsd")
	if err != nil || len(records) != 1 || records[0].Key != "k" {
		t.Fatalf("Resolve = (%+v, %v)", records, err)
	}
}

func TestResolve_NoDBFilename(t *testing.T) {
	records, err := Resolve(context.Background(), "", "")
	if err != nil || records != nil {
		t.Fatalf("Resolve with no dbfilename = (%v, %v)", records, err)
	}
}

func TestDump_ExcludesStreamsAndExpiredKeys(t *testing.T) {
	s := store.New()
	s.Set("live", []byte("1"), time.Time{})
	s.Set("dead", []byte("2"), time.Now().Add(-time.Second))
	s.XAdd("stream", "*", []store.FieldValue{{Field: "f", Value: "v"}})

	records := s.Dump()
	if len(records) != 1 || records[0].Key != "live" {
		t.Fatalf("Dump = %+v, want only [live]", records)
	}
}
