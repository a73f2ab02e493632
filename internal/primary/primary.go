// Package primary implements the primary half of replication: tracking
// connected replicas, the monotonic propagation offset, broadcasting
// write-class commands, and the WAIT quorum primitive.
package primary

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/redistore/internal/connio"
	"github.com/nishisan-dev/redistore/internal/resp"
	"github.com/nishisan-dev/redistore/internal/server/observability"
)

const replIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const replIDLen = 40

// burstSeconds bounds the token bucket to one second's worth of traffic,
// matching the teacher's ThrottledWriter sizing convention.
const burstSeconds = 1

// Replica is the primary's view of one connected replica: its link,
// advertised listening port, and last acknowledged byte offset.
type Replica struct {
	Conn          *connio.Conn
	Addr          string
	ListeningPort int
	ackOffset     int64 // atomic
}

// AckOffset returns the replica's last known acknowledged offset.
func (r *Replica) AckOffset() int64 { return atomic.LoadInt64(&r.ackOffset) }

// Primary holds process-wide replication state for a node acting as
// primary.
type Primary struct {
	replID     string
	replOffset int64 // atomic

	mu       sync.RWMutex
	replicas map[*Replica]struct{}

	// orderMu serializes each write command's store commit with its
	// Propagate call. A connection's command.Context holds it across
	// both steps so two concurrent writers can't commit to the store
	// in one order but broadcast to replicas in another.
	orderMu sync.Mutex

	limiter *rate.Limiter // nil means unthrottled
	logger  *slog.Logger
	events  *observability.EventRing // nil means no admin surface wired up
}

// Lock acquires the write-ordering lock. A caller must hold it across a
// store commit and the matching Propagate call so writes replicate in
// the same order they were applied locally, then release it with
// Unlock.
func (p *Primary) Lock() { p.orderMu.Lock() }

// Unlock releases the write-ordering lock acquired by Lock.
func (p *Primary) Unlock() { p.orderMu.Unlock() }

// SetEvents wires the admin surface's rolling event log in. It is
// optional: a nil or never-called SetEvents just means replica
// connect/disconnect events aren't recorded anywhere but the log.
func (p *Primary) SetEvents(events *observability.EventRing) { p.events = events }

// New creates a Primary with a fresh replication id. bytesPerSec <= 0
// disables the propagation throttle.
func New(logger *slog.Logger, bytesPerSec int64) *Primary {
	p := &Primary{
		replID:   randomReplID(),
		replicas: make(map[*Replica]struct{}),
		logger:   logger,
	}
	if bytesPerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec*burstSeconds))
	}
	return p
}

func randomReplID() string {
	b := make([]byte, replIDLen)
	buf := make([]byte, replIDLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a fixed id rather than panicking a running server.
		return strings.Repeat("0", replIDLen)
	}
	for i, c := range buf {
		b[i] = replIDAlphabet[int(c)%len(replIDAlphabet)]
	}
	return string(b)
}

// ReplID returns the immutable 40-character replication id.
func (p *Primary) ReplID() string { return p.replID }

// Offset returns the current propagation byte offset.
func (p *Primary) Offset() int64 { return atomic.LoadInt64(&p.replOffset) }

// AddReplica registers conn as a replica link after the PSYNC handshake
// completes, and starts the goroutine that reads REPLCONF ACK frames
// back from it.
func (p *Primary) AddReplica(conn *connio.Conn, listeningPort int) *Replica {
	r := &Replica{Conn: conn, Addr: conn.RemoteAddr().String(), ListeningPort: listeningPort}
	p.mu.Lock()
	p.replicas[r] = struct{}{}
	p.mu.Unlock()

	if p.events != nil {
		p.events.PushEvent("info", "replica_connected", r.Addr, "full resync completed")
	}

	go p.ackLoop(r)
	return r
}

func (p *Primary) ackLoop(r *Replica) {
	for {
		v, err := r.Conn.ReadFrame()
		if err != nil || v == nil {
			p.dropReplica(r)
			return
		}
		offset, ok := parseReplConfAck(*v)
		if !ok {
			continue
		}
		atomic.StoreInt64(&r.ackOffset, offset)
	}
}

func parseReplConfAck(v resp.Value) (int64, bool) {
	if v.Kind != resp.Array || len(v.Items) != 3 {
		return 0, false
	}
	cmd, err := v.Items[0].ToString()
	if err != nil || !strings.EqualFold(cmd, "REPLCONF") {
		return 0, false
	}
	sub, err := v.Items[1].ToString()
	if err != nil || !strings.EqualFold(sub, "ACK") {
		return 0, false
	}
	n, err := v.Items[2].ToInt64()
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *Primary) dropReplica(r *Replica) {
	p.mu.Lock()
	delete(p.replicas, r)
	p.mu.Unlock()
	r.Conn.Close()
	if p.logger != nil {
		p.logger.Info("replica disconnected", "addr", r.Addr)
	}
	if p.events != nil {
		p.events.PushEvent("warn", "replica_disconnected", r.Addr, "link lost")
	}
}

// Replicas returns a snapshot of currently connected replicas.
func (p *Primary) Replicas() []*Replica {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Replica, 0, len(p.replicas))
	for r := range p.replicas {
		out = append(out, r)
	}
	return out
}

// Propagate serializes v once and writes it to every connected replica,
// dropping any whose write fails. The serialized
// length is added to repl_offset.
func (p *Primary) Propagate(v resp.Value) {
	p.broadcast(v, true)
}

func (p *Primary) broadcast(v resp.Value, throttled bool) {
	payload := v.Bytes()

	p.mu.RLock()
	targets := make([]*Replica, 0, len(p.replicas))
	for r := range p.replicas {
		targets = append(targets, r)
	}
	p.mu.RUnlock()

	for _, r := range targets {
		var err error
		if throttled && p.limiter != nil {
			err = p.writeThrottled(r, payload)
		} else {
			err = r.Conn.WriteRaw(payload)
		}
		if err != nil {
			p.dropReplica(r)
		}
	}

	if throttled {
		atomic.AddInt64(&p.replOffset, int64(len(payload)))
	}
}

func (p *Primary) writeThrottled(r *Replica, payload []byte) error {
	for len(payload) > 0 {
		chunk := len(payload)
		if burst := p.limiter.Burst(); chunk > burst {
			chunk = burst
		}
		if err := p.limiter.WaitN(context.Background(), chunk); err != nil {
			return err
		}
		if err := r.Conn.WriteRaw(payload[:chunk]); err != nil {
			return err
		}
		payload = payload[chunk:]
	}
	return nil
}

// Wait implements the WAIT command: it blocks until at least
// min(n, total replicas) replicas have acknowledged the primary's
// repl_offset at call time, or timeout elapses, and returns the count
// reached. Per spec, an offset of zero (nothing ever propagated) short
// circuits to the connected-replica count.
func (p *Primary) Wait(n int, timeout time.Duration) int {
	target := p.Offset()

	p.mu.Lock()
	defer p.mu.Unlock()

	total := len(p.replicas)
	if target == 0 {
		return total
	}

	want := n
	if want > total {
		want = total
	}

	p.propagateControlLocked()

	deadline := time.Now().Add(timeout)
	for {
		acked := 0
		for r := range p.replicas {
			if r.AckOffset() >= target {
				acked++
			}
		}
		if acked >= want || time.Now().After(deadline) {
			return acked
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// propagateControlLocked broadcasts GETACK while p.mu is already held by
// Wait; it must not reacquire the lock.
func (p *Primary) propagateControlLocked() {
	payload := resp.Cmd("REPLCONF", "GETACK", "*").Bytes()
	for r := range p.replicas {
		if err := r.Conn.WriteRaw(payload); err != nil {
			go p.dropReplica(r)
		}
	}
}

// InfoReplication renders the "# Replication" body for a primary node.
func (p *Primary) InfoReplication() string {
	var b strings.Builder
	b.WriteString("# Replication\r\n")
	b.WriteString("role:master\r\n")

	replicas := p.Replicas()
	fmt.Fprintf(&b, "connected_slaves:%d\r\n", len(replicas))
	for i, r := range replicas {
		host, port := splitHostPort(r.Addr)
		if r.ListeningPort != 0 {
			port = strconv.Itoa(r.ListeningPort)
		}
		fmt.Fprintf(&b, "slave%d:ip=%s,port=%s,offset=%d\r\n", i, host, port, r.AckOffset())
	}
	fmt.Fprintf(&b, "master_replid:%s\r\n", p.replID)
	fmt.Fprintf(&b, "master_repl_offset:%d\r\n", p.Offset())
	return b.String()
}

func splitHostPort(addr string) (host, port string) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+1:]
}
