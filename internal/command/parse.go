package command

import (
	"fmt"
	"strings"
)

// Parse maps a command's argument list (args[0] is the command name) to
// an executable Command. It reports arity and syntax errors, including
// malformed XRANGE ids; other semantic errors (WRONGTYPE, bad XADD and
// XREAD ids) surface from Execute instead, since they can depend on the
// store's state at call time.
func Parse(args []string) (Command, error) {
	switch strings.ToUpper(args[0]) {
	case "PING":
		return parsePing(args)
	case "ECHO":
		return parseEcho(args)
	case "GET":
		return parseGet(args)
	case "KEYS":
		return parseKeys(args)
	case "TYPE":
		return parseType(args)
	case "SET":
		return parseSet(args)
	case "DEL":
		return parseDel(args)
	case "INCR":
		return parseIncr(args)
	case "XADD":
		return parseXAdd(args)
	case "XRANGE":
		return parseXRange(args)
	case "XREAD":
		return parseXRead(args)
	case "CONFIG":
		return parseConfig(args)
	case "INFO":
		return parseInfo(args)
	case "REPLCONF":
		return parseReplConf(args)
	case "PSYNC":
		return parsePSync(args)
	case "WAIT":
		return parseWait(args)
	default:
		return nil, fmt.Errorf("unknown command '%s'", args[0])
	}
}
