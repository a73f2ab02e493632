package resp

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, v Value) {
	t.Helper()
	buf := v.Bytes()
	if len(buf) != v.Len() {
		t.Fatalf("Len() = %d, Bytes() produced %d bytes", v.Len(), len(buf))
	}
	consumed, err := Check(buf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("Check consumed %d, want %d", consumed, len(buf))
	}
	got, n, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Parse consumed %d, want %d", n, len(buf))
	}
	if !valuesEqual(got, v) {
		t.Fatalf("Parse(Bytes(v)) = %+v, want %+v", got, v)
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case SimpleString, Error:
		return a.Str == b.Str
	case Integer:
		return a.Int == b.Int
	case Bulk:
		if a.BulkNull != b.BulkNull {
			return false
		}
		return bytes.Equal(a.Bulk, b.Bulk)
	case Array:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !valuesEqual(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func TestRoundTrip(t *testing.T) {
	cases := []Value{
		Simple("OK"),
		Simple("PONG"),
		Err("ERR unknown command"),
		Int64(42),
		Int64(-7),
		BulkString("hello"),
		BulkBytes([]byte{}),
		NullBulk(),
		Arr(),
		Cmd("SET", "k", "v"),
		Arr(Cmd("PING"), Cmd("SET", "a", "1"), NullBulk()),
	}
	for _, v := range cases {
		roundTrip(t, v)
	}
}

func TestCheck_Incomplete(t *testing.T) {
	full := Cmd("SET", "key", "value").Bytes()
	for i := 0; i < len(full); i++ {
		if _, err := Check(full[:i]); err != ErrIncomplete {
			t.Fatalf("prefix of length %d: Check = %v, want ErrIncomplete", i, err)
		}
	}
	if _, err := Check(full); err != nil {
		t.Fatalf("full frame: Check = %v, want nil", err)
	}
}

func TestCheck_Malformed(t *testing.T) {
	cases := [][]byte{
		[]byte("@foo\r\n"),
		[]byte("$abc\r\n"),
		[]byte("$3\r\nabXX"),
		[]byte("*2\r\n$1\r\na\r\n$bad\r\n"),
	}
	for _, buf := range cases {
		if _, err := Check(buf); err != ErrMalformed {
			t.Fatalf("Check(%q) = %v, want ErrMalformed", buf, err)
		}
	}
}

func TestCheck_ConcatenatedFrames(t *testing.T) {
	f1 := Cmd("PING").Bytes()
	f2 := Cmd("SET", "a", "1").Bytes()
	f3 := Int64(7).Bytes()
	buf := append(append(append([]byte{}, f1...), f2...), f3...)

	var got []Value
	pos := 0
	for pos < len(buf) {
		n, err := Check(buf[pos:])
		if err != nil {
			t.Fatalf("Check at pos %d: %v", pos, err)
		}
		v, consumed, err := Parse(buf[pos : pos+n])
		if err != nil {
			t.Fatalf("Parse at pos %d: %v", pos, err)
		}
		if consumed != n {
			t.Fatalf("Parse consumed %d, Check said %d", consumed, n)
		}
		got = append(got, v)
		pos += n
	}
	if pos != len(buf) {
		t.Fatalf("leftover bytes: consumed %d of %d", pos, len(buf))
	}
	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}
}

func TestToInt64(t *testing.T) {
	v := BulkString("123")
	n, err := v.ToInt64()
	if err != nil || n != 123 {
		t.Fatalf("ToInt64() = (%d, %v), want (123, nil)", n, err)
	}
	if _, err := BulkString("abc").ToInt64(); err == nil {
		t.Fatal("expected error parsing non-numeric bulk string")
	}
}

func TestRawBulkHeader(t *testing.T) {
	h := RawBulkHeader(5)
	if string(h) != "$5\r\n" {
		t.Fatalf("RawBulkHeader(5) = %q, want %q", h, "$5\r\n")
	}
}
