package expiry

import (
	"testing"
	"time"

	"github.com/nishisan-dev/redistore/internal/store"
)

func TestSweeper_RemovesExpiredKeys(t *testing.T) {
	s := store.New()
	s.Set("gone", []byte("v"), time.Now().Add(-time.Second))
	s.Set("stays", []byte("v"), time.Time{})

	sw, err := New("@every 1h", s, nil)
	if err != nil {
		t.Fatal(err)
	}
	sw.sweep()

	if s.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1 after sweep", s.Len())
	}
	if _, ok, _ := s.Get("stays"); !ok {
		t.Fatal("sweep removed a key without an expiration")
	}
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	s := store.New()
	s.Set("gone", []byte("v"), time.Now().Add(10*time.Millisecond))

	sw, err := New("@every 50ms", s, nil)
	if err != nil {
		t.Fatal(err)
	}
	sw.Start()
	defer sw.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Len() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("active expiry sweep never removed the expired key")
}
