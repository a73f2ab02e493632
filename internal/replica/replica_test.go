package replica

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/nishisan-dev/redistore/internal/connio"
	"github.com/nishisan-dev/redistore/internal/resp"
	"github.com/nishisan-dev/redistore/internal/snapshot"
	"github.com/nishisan-dev/redistore/internal/store"
)

func TestHandshake_FullSequence(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)

	fakePrimary := make(chan error, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			fakePrimary <- err
			return
		}
		conn := connio.New(nc)
		defer conn.Close()

		steps := []string{"PONG", "OK", "OK"}
		for _, reply := range steps {
			if _, err := conn.ReadFrame(); err != nil {
				fakePrimary <- err
				return
			}
			if err := conn.WriteFrame(resp.Simple(reply)); err != nil {
				fakePrimary <- err
				return
			}
		}

		if _, err := conn.ReadFrame(); err != nil { // PSYNC ? -1
			fakePrimary <- err
			return
		}
		if err := conn.WriteFrame(resp.Simple("FULLRESYNC abc123 0")); err != nil {
			fakePrimary <- err
			return
		}
		blob := snapshot.Encode([]store.SnapshotRecord{{Key: "k", Value: []byte("v")}})
		payload := append(resp.RawBulkHeader(len(blob)), blob...)
		if err := conn.WriteRaw(payload); err != nil {
			fakePrimary <- err
			return
		}
		fakePrimary <- nil
	}()

	s := store.New()
	client := New("127.0.0.1", addr.Port, s, nil)
	if err := client.Handshake(context.Background(), 6380); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := <-fakePrimary; err != nil {
		t.Fatalf("fake primary: %v", err)
	}

	if client.Offset() != 0 {
		t.Fatalf("Offset() = %d, want 0", client.Offset())
	}
	v, ok, err := s.Get("k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("snapshot not applied: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestHandshake_RejectsBadFullResyncReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		conn := connio.New(nc)
		defer conn.Close()
		conn.ReadFrame() // PING
		conn.WriteFrame(resp.Simple("PONG"))
		for i := 0; i < 2; i++ {
			conn.ReadFrame() // REPLCONF listening-port, REPLCONF capa
			conn.WriteFrame(resp.Simple("OK"))
		}
		conn.ReadFrame() // PSYNC
		conn.WriteFrame(resp.Err("ERR not a real primary"))
	}()

	client := New("127.0.0.1", addr.Port, store.New(), nil)
	if err := client.Handshake(context.Background(), 6380); err == nil {
		t.Fatal("Handshake succeeded against a bogus FULLRESYNC reply, want error")
	}
}

func TestRun_AppliesWritesAndAnswersGetAck(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	s := store.New()
	c := New("primary-host", 0, s, nil)
	c.conn = connio.New(clientSide)

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background()) }()

	primary := connio.New(serverSide)
	setFrame := resp.Cmd("SET", "k", "v")
	if err := primary.WriteFrame(setFrame); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok, _ := s.Get("k"); ok && string(v) == "v" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	v, ok, _ := s.Get("k")
	if !ok || string(v) != "v" {
		t.Fatal("propagated SET was never applied")
	}
	if got := c.Offset(); got != int64(setFrame.Len()) {
		t.Fatalf("Offset() = %d, want %d", got, setFrame.Len())
	}

	if err := primary.WriteFrame(resp.Cmd("REPLCONF", "GETACK", "*")); err != nil {
		t.Fatal(err)
	}
	ack, err := primary.ReadFrame()
	if err != nil {
		t.Fatalf("reading ACK: %v", err)
	}
	gotOffset, _ := ack.Items[2].ToString()
	if want := strconv.FormatInt(int64(setFrame.Len()), 10); gotOffset != want {
		t.Fatalf("ACK offset = %q, want %q (GETACK's own bytes must not be counted)", gotOffset, want)
	}

	serverSide.Close()
	<-runDone
}
