package resp

import "strconv"

// Parse decodes one frame from the front of buf and returns it along with
// the number of bytes consumed. Callers must have already run Check
// successfully over buf; Parse does not re-validate completeness.
func Parse(buf []byte) (Value, int, error) {
	return parseAt(buf, 0)
}

func parseAt(buf []byte, pos int) (Value, int, error) {
	if pos >= len(buf) {
		return Value{}, pos, ErrIncomplete
	}
	switch buf[pos] {
	case '+':
		line, next := readLine(buf, pos+1)
		return Value{Kind: SimpleString, Str: line}, next, nil
	case '-':
		line, next := readLine(buf, pos+1)
		return Value{Kind: Error, Str: line}, next, nil
	case ':':
		line, next := readLine(buf, pos+1)
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return Value{}, pos, ErrMalformed
		}
		return Value{Kind: Integer, Int: n}, next, nil
	case '$':
		return parseBulk(buf, pos+1)
	case '*':
		return parseArray(buf, pos+1)
	default:
		return Value{}, pos, ErrMalformed
	}
}

func readLine(buf []byte, pos int) (string, int) {
	end, _ := findCRLF(buf, pos)
	return string(buf[pos:end]), end + 2
}

func parseBulk(buf []byte, pos int) (Value, int, error) {
	header, next := readLine(buf, pos)
	n, err := strconv.Atoi(header)
	if err != nil {
		return Value{}, pos, ErrMalformed
	}
	if n < 0 {
		return Value{Kind: Bulk, BulkNull: true}, next, nil
	}
	body := buf[next : next+n]
	return Value{Kind: Bulk, Bulk: append([]byte(nil), body...)}, next + n + 2, nil
}

func parseArray(buf []byte, pos int) (Value, int, error) {
	header, next := readLine(buf, pos)
	n, err := strconv.Atoi(header)
	if err != nil {
		return Value{}, pos, ErrMalformed
	}
	if n < 0 {
		return Value{Kind: Array, ArrayNull: true}, next, nil
	}
	items := make([]Value, n)
	for i := 0; i < n; i++ {
		var v Value
		v, next, err = parseAt(buf, next)
		if err != nil {
			return Value{}, pos, err
		}
		items[i] = v
	}
	return Value{Kind: Array, Items: items}, next, nil
}
