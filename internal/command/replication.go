package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redistore/internal/resp"
	"github.com/nishisan-dev/redistore/internal/snapshot"
)

type replConfCmd struct {
	sub  string
	args []string
}

func parseReplConf(args []string) (Command, error) {
	if len(args) < 2 {
		return nil, arityErr("replconf")
	}
	return &replConfCmd{sub: strings.ToUpper(args[1]), args: args[2:]}, nil
}

func (c *replConfCmd) Name() string { return "REPLCONF" }
func (c *replConfCmd) Write() bool  { return false }
func (c *replConfCmd) Execute(ctx *Context) resp.Value {
	switch c.sub {
	case "LISTENING-PORT":
		if len(c.args) != 1 {
			return resp.Err("ERR %s", errSyntax)
		}
		port, err := strconv.Atoi(c.args[0])
		if err != nil {
			return resp.Err("ERR %s", errNotInt)
		}
		ctx.ListeningPort = port
		return resp.Simple("OK")
	case "CAPA":
		return resp.Simple("OK")
	case "GETACK":
		// A GETACK normally arrives on the dedicated replica link, which
		// internal/replica answers directly rather than through this
		// Dispatch path. This branch only covers a GETACK that somehow
		// arrives on an ordinary client session.
		if ctx.ReplicaOffset != nil {
			return resp.Arr(resp.BulkString("REPLCONF"), resp.BulkString("ACK"), resp.BulkString(strconv.FormatInt(ctx.ReplicaOffset(), 10)))
		}
		return resp.Simple("OK")
	default:
		return resp.Simple("OK")
	}
}

type psyncCmd struct{}

func parsePSync(args []string) (Command, error) {
	if len(args) != 3 {
		return nil, arityErr("psync")
	}
	return &psyncCmd{}, nil
}

func (c *psyncCmd) Name() string { return "PSYNC" }
func (c *psyncCmd) Write() bool  { return false }
func (c *psyncCmd) Execute(ctx *Context) resp.Value {
	if ctx.Primary == nil {
		return resp.Err("ERR PSYNC is only valid against a primary")
	}
	if ctx.Conn == nil {
		return resp.Err("ERR PSYNC requires a live connection")
	}

	line := resp.Simple(fmt.Sprintf("FULLRESYNC %s %d", ctx.Primary.ReplID(), ctx.Primary.Offset()))
	if err := ctx.Conn.WriteFrame(line); err != nil {
		ctx.handoff = true
		return noReply()
	}

	blob := snapshot.Dump(ctx.Store)
	payload := append(resp.RawBulkHeader(len(blob)), blob...)
	if err := ctx.Conn.WriteRaw(payload); err != nil {
		ctx.handoff = true
		return noReply()
	}

	ctx.Primary.AddReplica(ctx.Conn, ctx.ListeningPort)
	ctx.handoff = true
	return noReply()
}

type waitCmd struct {
	n         int
	timeoutMs int64
}

func parseWait(args []string) (Command, error) {
	if len(args) != 3 {
		return nil, arityErr("wait")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, errNotInt
	}
	ms, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return nil, errNotInt
	}
	return &waitCmd{n: n, timeoutMs: ms}, nil
}

func (c *waitCmd) Name() string { return "WAIT" }
func (c *waitCmd) Write() bool  { return false }
func (c *waitCmd) Execute(ctx *Context) resp.Value {
	if ctx.Primary == nil {
		return resp.Int64(0)
	}
	got := ctx.Primary.Wait(c.n, time.Duration(c.timeoutMs)*time.Millisecond)
	return resp.Int64(int64(got))
}
