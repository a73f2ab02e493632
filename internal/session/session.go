// Package session drives one client connection: read a frame, dispatch
// it against a command.Context, write the reply, repeat — until the
// peer disconnects or a command (PSYNC) hands the connection off to a
// different owner.
package session

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/nishisan-dev/redistore/internal/command"
	"github.com/nishisan-dev/redistore/internal/config"
	"github.com/nishisan-dev/redistore/internal/connio"
	"github.com/nishisan-dev/redistore/internal/primary"
	"github.com/nishisan-dev/redistore/internal/store"
)

// Deps are the shared, process-wide handles a session needs; a fresh
// command.Context is built per connection from these.
type Deps struct {
	Store   *store.Store
	Cfg     *config.Config
	Primary *primary.Primary // nil unless this node is acting as primary

	// ReplicaOffset, when non-nil, reports this node's own replica byte
	// counter, for INFO/REPLCONF GETACK when this node is itself a
	// replica.
	ReplicaOffset func() int64

	Logger      *slog.Logger
	ActiveConns *atomic.Int32 // shared counter of open sessions; nil is fine
}

// Handle drives nc until it closes or is handed off. It never returns an
// error: connection-level failures are logged (unless they are an
// ordinary peer disconnect) and simply end the session.
func Handle(ctx context.Context, nc net.Conn, deps Deps) {
	if deps.ActiveConns != nil {
		deps.ActiveConns.Add(1)
		defer deps.ActiveConns.Add(-1)
	}

	conn := connio.New(nc)
	handedOff := false
	defer func() {
		if !handedOff {
			conn.Close()
		}
	}()

	logger := deps.Logger
	if logger != nil {
		logger = logger.With("remote", conn.RemoteAddr().String())
	}

	cmdCtx := command.NewContext(deps.Store, deps.Cfg, deps.Primary, conn)
	cmdCtx.ReplicaOffset = deps.ReplicaOffset

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			if !connio.IsPeerGone(err) && logger != nil {
				logger.Warn("reading client frame", "error", err)
			}
			return
		}
		if frame == nil {
			return
		}

		reply := cmdCtx.Dispatch(*frame)

		if cmdCtx.HandoffRequested() {
			// PSYNC already wrote the FULLRESYNC line and snapshot blob
			// (or failed trying) directly on conn. On success the
			// connection is now owned by the primary's replica registry
			// (AddReplica's ackLoop reads it, broadcast writes it), so
			// this loop must not close it on the way out.
			handedOff = true
			return
		}

		if command.IsNoReply(reply) {
			continue
		}
		if err := conn.WriteFrame(reply); err != nil {
			if !connio.IsPeerGone(err) && logger != nil {
				logger.Warn("writing reply", "error", err)
			}
			return
		}
	}
}
