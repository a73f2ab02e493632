package observability

import (
	"fmt"
	"testing"
)

func TestEventRing_BasicPushRecent(t *testing.T) {
	r := NewEventRing(5)

	r.PushEvent("info", "replica_connected", "127.0.0.1:7001", "replica joined")
	r.PushEvent("warn", "full_resync", "127.0.0.1:7001", "snapshot sent")

	events := r.Recent(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "replica_connected" {
		t.Errorf("expected first event 'replica_connected', got %q", events[0].Type)
	}
	if events[1].Type != "full_resync" {
		t.Errorf("expected second event 'full_resync', got %q", events[1].Type)
	}
}

func TestEventRing_Wrap(t *testing.T) {
	r := NewEventRing(3)

	for i := 0; i < 5; i++ {
		r.PushEvent("info", "wait", "", fmt.Sprintf("event-%d", i))
	}

	events := r.Recent(0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events after wrap, got %d", len(events))
	}
	if events[0].Message != "event-2" {
		t.Errorf("expected 'event-2', got %q", events[0].Message)
	}
	if events[2].Message != "event-4" {
		t.Errorf("expected 'event-4', got %q", events[2].Message)
	}
}

func TestEventRing_Limit(t *testing.T) {
	r := NewEventRing(10)
	for i := 0; i < 8; i++ {
		r.PushEvent("info", "wait", "", fmt.Sprintf("e%d", i))
	}

	events := r.Recent(3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events with limit, got %d", len(events))
	}
	if events[2].Message != "e7" {
		t.Errorf("expected last event 'e7', got %q", events[2].Message)
	}
}

func TestEventRing_Len(t *testing.T) {
	r := NewEventRing(5)
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
	for i := 0; i < 7; i++ {
		r.PushEvent("info", "wait", "", fmt.Sprintf("e%d", i))
	}
	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5 (capped)", r.Len())
	}
}
