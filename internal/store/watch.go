package store

import "sync"

// Append is a single notification published by XADD: the key that grew
// and the id of its newest entry.
type Append struct {
	Key string
	ID  EntryID
}

// Watcher broadcasts stream appends to blocked XREADs. Each subscriber
// gets its own channel with a buffer of one and races it against its own
// timer; a wake is only a hint, since each waiter re-scans the store on
// wake rather than trusting the payload (concurrent appends between
// publish and wake are otherwise invisible to a slow waiter).
type Watcher struct {
	mu   sync.Mutex
	subs map[chan Append]struct{}
}

// NewWatcher creates an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{subs: make(map[chan Append]struct{})}
}

// Subscribe registers a new waiter and returns its channel plus a
// cancellation func that must be called once the waiter is done,
// whether it woke via the channel, its own timer, or the caller's
// context being cancelled.
func (w *Watcher) Subscribe() (<-chan Append, func()) {
	ch := make(chan Append, 1)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	cancel := func() {
		w.mu.Lock()
		delete(w.subs, ch)
		w.mu.Unlock()
	}
	return ch, cancel
}

// Publish broadcasts an append to every current subscriber. Subscribers
// have a buffer of one; the send is dropped only when that subscriber
// already holds an unreceived notification, which still wakes it, and
// its re-scan then sees this entry too.
func (w *Watcher) Publish(a Append) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- a:
		default:
		}
	}
}
