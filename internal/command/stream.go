package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redistore/internal/resp"
	"github.com/nishisan-dev/redistore/internal/store"
)

type xaddCmd struct {
	key, idSpec string
	fields      []store.FieldValue
}

func parseXAdd(args []string) (Command, error) {
	if len(args) < 5 || (len(args)-3)%2 != 0 {
		return nil, arityErr("xadd")
	}
	rest := args[3:]
	fields := make([]store.FieldValue, 0, len(rest)/2)
	for i := 0; i+1 < len(rest); i += 2 {
		fields = append(fields, store.FieldValue{Field: rest[i], Value: rest[i+1]})
	}
	return &xaddCmd{key: args[1], idSpec: args[2], fields: fields}, nil
}

func (c *xaddCmd) Name() string { return "XADD" }
func (c *xaddCmd) Write() bool  { return true }
func (c *xaddCmd) Execute(ctx *Context) resp.Value {
	id, _, err := ctx.Store.XAdd(c.key, c.idSpec, c.fields)
	if err != nil {
		return resp.Err("%s", err)
	}
	return resp.BulkString(id)
}

type xrangeCmd struct {
	key        string
	start, end store.EntryID
	count      int
}

func parseXRange(args []string) (Command, error) {
	if len(args) != 4 && len(args) != 6 {
		return nil, arityErr("xrange")
	}
	start, err := store.ParseRangeStart(args[2])
	if err != nil {
		return nil, err
	}
	end, err := store.ParseRangeEnd(args[3])
	if err != nil {
		return nil, err
	}
	count := 0
	if len(args) == 6 {
		if !strings.EqualFold(args[4], "COUNT") {
			return nil, errSyntax
		}
		n, err := strconv.Atoi(args[5])
		if err != nil {
			return nil, errNotInt
		}
		count = n
	}
	return &xrangeCmd{key: args[1], start: start, end: end, count: count}, nil
}

func (c *xrangeCmd) Name() string { return "XRANGE" }
func (c *xrangeCmd) Write() bool  { return false }
func (c *xrangeCmd) Execute(ctx *Context) resp.Value {
	entries, err := ctx.Store.XRange(c.key, c.start, c.end, c.count)
	if err != nil {
		return resp.Err("%s", err)
	}
	return encodeStreamEntries(entries)
}

func encodeStreamEntries(entries []store.StreamEntry) resp.Value {
	items := make([]resp.Value, len(entries))
	for i, e := range entries {
		fieldItems := make([]resp.Value, 0, len(e.Fields)*2)
		for _, fv := range e.Fields {
			fieldItems = append(fieldItems, resp.BulkString(fv.Field), resp.BulkString(fv.Value))
		}
		items[i] = resp.Arr(resp.BulkString(e.ID.String()), resp.Arr(fieldItems...))
	}
	return resp.Arr(items...)
}

type xreadCmd struct {
	keys         []string
	ids          []string
	count        int
	block        bool
	blockForever bool
	timeout      time.Duration
}

func parseXRead(args []string) (Command, error) {
	cmd := &xreadCmd{}
	i := 1
	for i < len(args) {
		switch strings.ToUpper(args[i]) {
		case "BLOCK":
			if i+1 >= len(args) {
				return nil, errSyntax
			}
			ms, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return nil, errNotInt
			}
			cmd.block = true
			if ms <= 0 {
				cmd.blockForever = true
			} else {
				cmd.timeout = time.Duration(ms) * time.Millisecond
			}
			i += 2
		case "COUNT":
			if i+1 >= len(args) {
				return nil, errSyntax
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, errNotInt
			}
			cmd.count = n
			i += 2
		case "STREAMS":
			rest := args[i+1:]
			if len(rest) == 0 || len(rest)%2 != 0 {
				return nil, errUnbalancedStreams
			}
			half := len(rest) / 2
			cmd.keys = rest[:half]
			cmd.ids = rest[half:]
			i = len(args)
		default:
			return nil, errSyntax
		}
	}
	if len(cmd.keys) == 0 {
		return nil, errSyntax
	}
	return cmd, nil
}

func (c *xreadCmd) Name() string { return "XREAD" }
func (c *xreadCmd) Write() bool  { return false }
func (c *xreadCmd) Execute(ctx *Context) resp.Value {
	lowerBounds := make([]store.EntryID, len(c.keys))
	for i, idSpec := range c.ids {
		if idSpec == "$" {
			top, ok := ctx.Store.StreamTop(c.keys[i])
			if !ok {
				top = store.MinEntryID
			}
			lowerBounds[i] = top
			continue
		}
		id, err := store.ParseEntryID(idSpec)
		if err != nil {
			return resp.Err("ERR Invalid stream ID specified as stream command argument")
		}
		lowerBounds[i] = id
	}

	if !c.block {
		if res, ok := tryXRead(ctx.Store, c.keys, lowerBounds, c.count); ok {
			return res
		}
		return resp.NullArray()
	}

	// Subscribe before the first scan so an append landing between the
	// scan and the subscribe is never missed.
	ch, cancel := ctx.Store.Watcher().Subscribe()
	defer cancel()

	if res, ok := tryXRead(ctx.Store, c.keys, lowerBounds, c.count); ok {
		return res
	}

	var timeoutCh <-chan time.Time
	if !c.blockForever {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	for {
		select {
		case <-ch:
			if res, ok := tryXRead(ctx.Store, c.keys, lowerBounds, c.count); ok {
				return res
			}
		case <-timeoutCh:
			return resp.NullArray()
		}
	}
}

func tryXRead(s *store.Store, keys []string, lowerBounds []store.EntryID, count int) (resp.Value, bool) {
	var perStream []resp.Value
	for i, k := range keys {
		entries, err := s.XReadOne(k, lowerBounds[i], count)
		if err != nil || len(entries) == 0 {
			continue
		}
		perStream = append(perStream, resp.Arr(resp.BulkString(k), encodeStreamEntries(entries)))
	}
	if len(perStream) == 0 {
		return resp.Value{}, false
	}
	return resp.Arr(perStream...), true
}
