package command

import (
	"strconv"
	"strings"

	"github.com/nishisan-dev/redistore/internal/resp"
)

type pingCmd struct {
	msg    string
	hasMsg bool
}

func parsePing(args []string) (Command, error) {
	switch len(args) {
	case 1:
		return &pingCmd{}, nil
	case 2:
		return &pingCmd{msg: args[1], hasMsg: true}, nil
	default:
		return nil, arityErr("ping")
	}
}

func (c *pingCmd) Name() string { return "PING" }
func (c *pingCmd) Write() bool  { return false }
func (c *pingCmd) Execute(_ *Context) resp.Value {
	if c.hasMsg {
		return resp.BulkString(c.msg)
	}
	return resp.Simple("PONG")
}

type echoCmd struct{ msg string }

func parseEcho(args []string) (Command, error) {
	if len(args) != 2 {
		return nil, arityErr("echo")
	}
	return &echoCmd{msg: args[1]}, nil
}

func (c *echoCmd) Name() string                 { return "ECHO" }
func (c *echoCmd) Write() bool                  { return false }
func (c *echoCmd) Execute(_ *Context) resp.Value { return resp.BulkString(c.msg) }

type getCmd struct{ key string }

func parseGet(args []string) (Command, error) {
	if len(args) != 2 {
		return nil, arityErr("get")
	}
	return &getCmd{key: args[1]}, nil
}

func (c *getCmd) Name() string { return "GET" }
func (c *getCmd) Write() bool  { return false }
func (c *getCmd) Execute(ctx *Context) resp.Value {
	v, ok, err := ctx.Store.Get(c.key)
	if err != nil {
		return resp.Err("%s", err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkBytes(v)
}

type keysCmd struct{ pattern string }

func parseKeys(args []string) (Command, error) {
	if len(args) != 2 {
		return nil, arityErr("keys")
	}
	return &keysCmd{pattern: args[1]}, nil
}

func (c *keysCmd) Name() string { return "KEYS" }
func (c *keysCmd) Write() bool  { return false }
func (c *keysCmd) Execute(ctx *Context) resp.Value {
	keys := ctx.Store.Keys(c.pattern)
	items := make([]resp.Value, len(keys))
	for i, k := range keys {
		items[i] = resp.BulkString(k)
	}
	return resp.Arr(items...)
}

type typeCmd struct{ key string }

func parseType(args []string) (Command, error) {
	if len(args) != 2 {
		return nil, arityErr("type")
	}
	return &typeCmd{key: args[1]}, nil
}

func (c *typeCmd) Name() string                   { return "TYPE" }
func (c *typeCmd) Write() bool                    { return false }
func (c *typeCmd) Execute(ctx *Context) resp.Value { return resp.Simple(ctx.Store.Type(c.key)) }

type configGetCmd struct{ param string }

func parseConfig(args []string) (Command, error) {
	if len(args) != 3 || !strings.EqualFold(args[1], "GET") {
		return nil, arityErr("config|get")
	}
	return &configGetCmd{param: args[2]}, nil
}

func (c *configGetCmd) Name() string { return "CONFIG" }
func (c *configGetCmd) Write() bool  { return false }
func (c *configGetCmd) Execute(ctx *Context) resp.Value {
	val, ok := ctx.Cfg.ConfigGet(c.param)
	if !ok {
		return resp.Arr()
	}
	return resp.Arr(resp.BulkString(c.param), resp.BulkString(val))
}

type infoCmd struct{ section string }

func parseInfo(args []string) (Command, error) {
	if len(args) > 2 {
		return nil, arityErr("info")
	}
	section := ""
	if len(args) == 2 {
		section = args[1]
	}
	return &infoCmd{section: section}, nil
}

func (c *infoCmd) Name() string { return "INFO" }
func (c *infoCmd) Write() bool  { return false }
func (c *infoCmd) Execute(ctx *Context) resp.Value {
	return resp.BulkString(ctx.infoReplicationBody())
}

type delCmd struct{ keys []string }

func parseDel(args []string) (Command, error) {
	if len(args) < 2 {
		return nil, arityErr("del")
	}
	return &delCmd{keys: args[1:]}, nil
}

func (c *delCmd) Name() string { return "DEL" }
func (c *delCmd) Write() bool  { return true }
func (c *delCmd) Execute(ctx *Context) resp.Value {
	return resp.Int64(int64(ctx.Store.Del(c.keys...)))
}

type incrCmd struct{ key string }

func parseIncr(args []string) (Command, error) {
	if len(args) != 2 {
		return nil, arityErr("incr")
	}
	return &incrCmd{key: args[1]}, nil
}

func (c *incrCmd) Name() string { return "INCR" }
func (c *incrCmd) Write() bool  { return true }
func (c *incrCmd) Execute(ctx *Context) resp.Value {
	n, err := ctx.Store.Incr(c.key)
	if err != nil {
		return resp.Err("%s", err)
	}
	return resp.Int64(n)
}

type setCmd struct {
	key, val string
	expires  timeOrZero
}

func parseSet(args []string) (Command, error) {
	if len(args) < 3 {
		return nil, arityErr("set")
	}
	cmd := &setCmd{key: args[1], val: args[2]}
	rest := args[3:]
	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(rest[i]) {
		case "PX":
			if i+1 >= len(rest) {
				return nil, errSyntax
			}
			ms, err := strconv.ParseInt(rest[i+1], 10, 64)
			if err != nil {
				return nil, errNotInt
			}
			cmd.expires = newExpiryMillis(ms)
			i++
		case "EX":
			if i+1 >= len(rest) {
				return nil, errSyntax
			}
			s, err := strconv.ParseInt(rest[i+1], 10, 64)
			if err != nil {
				return nil, errNotInt
			}
			cmd.expires = newExpirySeconds(s)
			i++
		default:
			return nil, errSyntax
		}
	}
	return cmd, nil
}

func (c *setCmd) Name() string { return "SET" }
func (c *setCmd) Write() bool  { return true }
func (c *setCmd) Execute(ctx *Context) resp.Value {
	ctx.Store.Set(c.key, []byte(c.val), c.expires.t)
	return resp.Simple("OK")
}
