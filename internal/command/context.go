// Package command implements the RESP command set: parsing a client's
// argument array into an executable value, and the per-connection
// context (store handle, role wiring, transaction queue) commands run
// against.
package command

import (
	"fmt"
	"strings"

	"github.com/nishisan-dev/redistore/internal/config"
	"github.com/nishisan-dev/redistore/internal/connio"
	"github.com/nishisan-dev/redistore/internal/primary"
	"github.com/nishisan-dev/redistore/internal/resp"
	"github.com/nishisan-dev/redistore/internal/store"
)

// Command is one parsed, executable client command.
type Command interface {
	Name() string
	// Write reports whether a successful execution must be propagated
	// to connected replicas.
	Write() bool
	Execute(ctx *Context) resp.Value
}

// Context is the state one client connection carries across its
// lifetime: the shared store, configuration, optional primary role
// handle, the connection itself (for PSYNC's direct writes), and the
// MULTI/EXEC transaction queue.
type Context struct {
	Store   *store.Store
	Cfg     *config.Config
	Primary *primary.Primary // non-nil only when this node is acting as primary
	Conn    *connio.Conn

	// ListeningPort is learned from REPLCONF listening-port and consumed
	// by a later PSYNC on the same connection.
	ListeningPort int

	// ReplicaOffset, when non-nil, reports this node's replica byte
	// counter; set only when this node is itself a replica, for INFO
	// and REPLCONF GETACK.
	ReplicaOffset func() int64

	inMulti bool
	queue   []queuedCmd
	handoff bool
}

type queuedCmd struct {
	frame    resp.Value
	cmd      Command
	parseErr error
}

// NewContext builds a fresh per-connection context.
func NewContext(s *store.Store, cfg *config.Config, p *primary.Primary, conn *connio.Conn) *Context {
	return &Context{Store: s, Cfg: cfg, Primary: p, Conn: conn}
}

// HandoffRequested reports whether this connection has been handed off
// to the primary role (PSYNC succeeded) and the session loop that owns
// it must stop reading/writing through the normal reply path.
func (c *Context) HandoffRequested() bool { return c.handoff }

// noReply is the zero Value. A command that has already written
// directly to the connection (PSYNC's FULLRESYNC line and snapshot
// blob) returns it so Dispatch's caller knows not to write anything
// further.
func noReply() resp.Value { return resp.Value{} }

// IsNoReply reports whether v is the noReply sentinel.
func IsNoReply(v resp.Value) bool { return v.Kind == 0 }

// Dispatch parses and runs one client frame, queuing it instead if a
// transaction is open and the command isn't MULTI/EXEC/DISCARD.
func (c *Context) Dispatch(frame resp.Value) resp.Value {
	args, err := frameArgs(frame)
	if err != nil {
		return resp.Err("ERR %s", err)
	}
	if len(args) == 0 {
		return resp.Err("ERR empty command")
	}
	name := strings.ToUpper(args[0])

	switch name {
	case "MULTI":
		if len(args) != 1 {
			return resp.Err("ERR %s", arityErr("multi"))
		}
		return c.beginMulti()
	case "EXEC":
		if len(args) != 1 {
			return resp.Err("ERR %s", arityErr("exec"))
		}
		return c.exec()
	case "DISCARD":
		if len(args) != 1 {
			return resp.Err("ERR %s", arityErr("discard"))
		}
		return c.discard()
	}

	cmd, perr := Parse(args)
	if c.inMulti {
		c.queue = append(c.queue, queuedCmd{frame: frame, cmd: cmd, parseErr: perr})
		return resp.Simple("QUEUED")
	}
	if perr != nil {
		return resp.Err("ERR %s", perr)
	}
	return c.run(cmd, frame)
}

// run executes cmd and, for a successful write-class command on a
// primary node, propagates frame to connected replicas. The store
// commit and the propagate call happen while holding the primary's
// write-ordering lock, so a second writer's commit can never land
// between this one's commit and its propagate — replicas always see
// writes in the same order the primary applied them.
func (c *Context) run(cmd Command, frame resp.Value) resp.Value {
	write := cmd.Write() && c.Primary != nil
	if write {
		c.Primary.Lock()
		defer c.Primary.Unlock()
	}
	result := cmd.Execute(c)
	if write && result.Kind != resp.Error {
		c.Primary.Propagate(frame)
	}
	return result
}

func (c *Context) beginMulti() resp.Value {
	if c.inMulti {
		return resp.Err("ERR MULTI calls can not be nested")
	}
	c.inMulti = true
	c.queue = nil
	return resp.Simple("OK")
}

func (c *Context) discard() resp.Value {
	if !c.inMulti {
		return resp.Err("ERR DISCARD without MULTI")
	}
	c.inMulti = false
	c.queue = nil
	return resp.Simple("OK")
}

func (c *Context) exec() resp.Value {
	if !c.inMulti {
		return resp.Err("ERR EXEC without MULTI")
	}
	queue := c.queue
	c.inMulti = false
	c.queue = nil

	results := make([]resp.Value, len(queue))
	for i, q := range queue {
		if q.parseErr != nil {
			results[i] = resp.Err("ERR %s", q.parseErr)
			continue
		}
		results[i] = c.run(q.cmd, q.frame)
	}
	return resp.Arr(results...)
}

// ApplyWrite parses and executes a single write-class frame directly
// against s, discarding the reply. A replica's apply loop uses this to
// fold a propagated SET/DEL/INCR/XADD into its local store without
// going through a full per-connection Context.
func ApplyWrite(s *store.Store, frame resp.Value) error {
	args, err := frameArgs(frame)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("command: empty frame")
	}
	cmd, err := Parse(args)
	if err != nil {
		return err
	}
	ctx := &Context{Store: s}
	result := cmd.Execute(ctx)
	if result.Kind == resp.Error {
		return fmt.Errorf("%s", result.Str)
	}
	return nil
}

// infoReplicationBody renders the "# Replication" section INFO returns,
// using the primary handle when present or this node's own replica
// wiring otherwise.
func (c *Context) infoReplicationBody() string {
	if c.Primary != nil {
		return c.Primary.InfoReplication()
	}
	var b strings.Builder
	b.WriteString("# Replication\r\n")
	b.WriteString("role:slave\r\n")
	if c.Cfg != nil && c.Cfg.ReplicaOf != nil {
		fmt.Fprintf(&b, "master_host:%s\r\n", c.Cfg.ReplicaOf.Host)
		fmt.Fprintf(&b, "master_port:%d\r\n", c.Cfg.ReplicaOf.Port)
	}
	if c.ReplicaOffset != nil {
		fmt.Fprintf(&b, "slave_repl_offset:%d\r\n", c.ReplicaOffset())
	}
	return b.String()
}

func frameArgs(frame resp.Value) ([]string, error) {
	if frame.Kind != resp.Array {
		return nil, fmt.Errorf("expected array command frame")
	}
	args := make([]string, len(frame.Items))
	for i, item := range frame.Items {
		s, err := item.ToString()
		if err != nil {
			return nil, fmt.Errorf("expected bulk string argument")
		}
		args[i] = s
	}
	return args, nil
}

func arityErr(cmdName string) error {
	return fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(cmdName))
}
