package primary

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nishisan-dev/redistore/internal/connio"
	"github.com/nishisan-dev/redistore/internal/resp"
)

func newLinkedReplica(t *testing.T, p *Primary) (*Replica, *connio.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	r := p.AddReplica(connio.New(serverSide), 6380)
	return r, connio.New(clientSide)
}

func TestReplID_Is40Chars(t *testing.T) {
	p := New(nil, 0)
	if len(p.ReplID()) != 40 {
		t.Fatalf("ReplID length = %d, want 40", len(p.ReplID()))
	}
}

func TestPropagate_AdvancesOffsetAndReachesReplica(t *testing.T) {
	p := New(nil, 0)
	_, replicaSide := newLinkedReplica(t, p)

	// net.Pipe has no internal buffering, so the reader must be running
	// before Propagate's write can complete.
	type frameResult struct {
		v   *resp.Value
		err error
	}
	read := make(chan frameResult, 1)
	go func() {
		v, err := replicaSide.ReadFrame()
		read <- frameResult{v, err}
	}()

	cmd := resp.Cmd("SET", "k", "v")
	p.Propagate(cmd)

	if p.Offset() != int64(cmd.Len()) {
		t.Fatalf("Offset() = %d, want %d", p.Offset(), cmd.Len())
	}

	res := <-read
	got, err := res.v, res.err
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	s, _ := got.Items[0].ToString()
	if s != "SET" {
		t.Fatalf("got %q, want SET", s)
	}
}

func TestWait_ZeroOffsetReturnsReplicaCount(t *testing.T) {
	p := New(nil, 0)
	newLinkedReplica(t, p)
	newLinkedReplica(t, p)

	if got := p.Wait(2, 100*time.Millisecond); got != 2 {
		t.Fatalf("Wait() = %d, want 2", got)
	}
}

func TestWait_CountsAcks(t *testing.T) {
	p := New(nil, 0)
	_, replicaSide := newLinkedReplica(t, p)

	ackSent := make(chan int64, 1)
	go func() {
		// net.Pipe has no internal buffering, so a reader must already be
		// running before Propagate's write can complete.
		setFrame, _ := replicaSide.ReadFrame()
		target := int64(0)
		if setFrame != nil {
			target += int64(setFrame.Len())
		}
		_, _ = replicaSide.ReadFrame() // the GETACK control frame
		_ = replicaSide.WriteFrame(resp.Cmd("REPLCONF", "ACK", strconv.FormatInt(target, 10)))
		ackSent <- target
	}()

	p.Propagate(resp.Cmd("SET", "k", "v"))

	// The GETACK the goroutine answers is sent by Wait itself.
	got := p.Wait(1, time.Second)
	<-ackSent
	if got != 1 {
		t.Fatalf("Wait() = %d, want 1", got)
	}
}

func TestWait_TimesOutWithPartialCount(t *testing.T) {
	p := New(nil, 0)
	_, replicaSide := newLinkedReplica(t, p)

	// Drain every frame written to this replica but never send an ACK,
	// so net.Pipe's unbuffered writes don't block Propagate/GETACK.
	go func() {
		for {
			if _, err := replicaSide.ReadFrame(); err != nil {
				return
			}
		}
	}()

	p.Propagate(resp.Cmd("SET", "k", "v"))
	got := p.Wait(1, 50*time.Millisecond)
	if got != 0 {
		t.Fatalf("Wait() = %d, want 0 (no ack ever sent)", got)
	}
}

func TestInfoReplication_PrimaryBody(t *testing.T) {
	p := New(nil, 0)
	info := p.InfoReplication()
	if !strings.Contains(info, "role:master") || !strings.Contains(info, "master_replid:"+p.ReplID()) {
		t.Fatalf("InfoReplication = %q", info)
	}
}
