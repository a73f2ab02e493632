// Package replica implements the replica half of replication: the
// once-at-startup PSYNC handshake against a primary, and the apply loop
// that folds propagated write-class commands into the local store
// thereafter.
package replica

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nishisan-dev/redistore/internal/command"
	"github.com/nishisan-dev/redistore/internal/connio"
	"github.com/nishisan-dev/redistore/internal/resp"
	"github.com/nishisan-dev/redistore/internal/snapshot"
	"github.com/nishisan-dev/redistore/internal/store"
)

// Client is one replica's connection to its primary.
type Client struct {
	host, port string
	store      *store.Store
	logger     *slog.Logger

	conn   *connio.Conn
	offset int64 // atomic, bytes consumed from the primary link since the snapshot
}

// New creates a replica client targeting host:port.
func New(host string, port int, s *store.Store, logger *slog.Logger) *Client {
	return &Client{host: host, port: strconv.Itoa(port), store: s, logger: logger}
}

// Offset returns the replica's current byte counter.
func (c *Client) Offset() int64 { return atomic.LoadInt64(&c.offset) }

// Handshake dials the primary and performs the PSYNC handshake exactly
// once: PING, REPLCONF listening-port, REPLCONF capa psync2, PSYNC ? -1,
// then applies the returned snapshot and resets the byte counter to 0.
// Any failure here is fatal to the replica, per the handshake's
// once-at-startup contract.
func (c *Client) Handshake(ctx context.Context, listeningPort int) error {
	dialer := net.Dialer{}
	nc, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.host, c.port))
	if err != nil {
		return fmt.Errorf("replica: dialing primary %s:%s: %w", c.host, c.port, err)
	}
	conn := connio.New(nc)

	if err := conn.WriteFrame(resp.Cmd("PING")); err != nil {
		return fmt.Errorf("replica: sending PING: %w", err)
	}
	if err := expectSimple(conn, "PONG"); err != nil {
		return err
	}

	if err := conn.WriteFrame(resp.Cmd("REPLCONF", "listening-port", strconv.Itoa(listeningPort))); err != nil {
		return fmt.Errorf("replica: sending REPLCONF listening-port: %w", err)
	}
	if err := expectSimple(conn, "OK"); err != nil {
		return err
	}

	if err := conn.WriteFrame(resp.Cmd("REPLCONF", "capa", "psync2")); err != nil {
		return fmt.Errorf("replica: sending REPLCONF capa: %w", err)
	}
	if err := expectSimple(conn, "OK"); err != nil {
		return err
	}

	if err := conn.WriteFrame(resp.Cmd("PSYNC", "?", "-1")); err != nil {
		return fmt.Errorf("replica: sending PSYNC: %w", err)
	}
	reply, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("replica: reading PSYNC reply: %w", err)
	}
	if reply == nil || reply.Kind != resp.SimpleString || !strings.HasPrefix(reply.Str, "FULLRESYNC ") {
		return fmt.Errorf("replica: unexpected PSYNC reply %+v", reply)
	}

	blob, err := conn.ReadSnapshotBlob()
	if err != nil {
		return fmt.Errorf("replica: reading snapshot blob: %w", err)
	}
	records, err := snapshot.Decode(blob)
	if err != nil {
		return fmt.Errorf("replica: decoding snapshot: %w", err)
	}
	c.store.ApplySnapshot(records)

	atomic.StoreInt64(&c.offset, 0)
	c.conn = conn
	return nil
}

func expectSimple(conn *connio.Conn, want string) error {
	v, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("replica: reading reply, want +%s: %w", want, err)
	}
	if v == nil || v.Kind != resp.SimpleString || !strings.EqualFold(v.Str, want) {
		return fmt.Errorf("replica: expected +%s, got %+v", want, v)
	}
	return nil
}

// Run reads frames off the primary link until it drops, applying
// write-class commands to the local store and answering REPLCONF GETACK
// on the same connection. It returns only when the link is lost, which
// per spec is fatal to the replica process; the caller decides how to
// surface that (log and exit).
//
// A REPLCONF GETACK frame is answered without adding its own length to
// the byte counter first, matching the primary's increments_offset=false
// for that control frame: the ACK reported must equal the primary's
// repl_offset as of the moment it serialized the GETACK, not the offset
// including the GETACK frame itself.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := c.conn.ReadFrame()
		if err != nil {
			return fmt.Errorf("replica: link to primary lost: %w", err)
		}
		if frame == nil {
			return fmt.Errorf("replica: primary closed the link")
		}

		if isGetAck(*frame) {
			ack := resp.Cmd("REPLCONF", "ACK", strconv.FormatInt(atomic.LoadInt64(&c.offset), 10))
			if err := c.conn.WriteFrame(ack); err != nil {
				return fmt.Errorf("replica: writing GETACK reply: %w", err)
			}
			continue
		}

		atomic.AddInt64(&c.offset, int64(frame.Len()))
		if err := command.ApplyWrite(c.store, *frame); err != nil && c.logger != nil {
			c.logger.Warn("replica: dropping unapplicable propagated frame", "error", err)
		}
	}
}

func isGetAck(frame resp.Value) bool {
	if frame.Kind != resp.Array || len(frame.Items) < 2 {
		return false
	}
	name, _ := frame.Items[0].ToString()
	sub, _ := frame.Items[1].ToString()
	return strings.EqualFold(name, "REPLCONF") && strings.EqualFold(sub, "GETACK")
}
