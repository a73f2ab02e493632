package command

import (
	"fmt"
	"time"
)

var (
	errSyntax            = fmt.Errorf("syntax error")
	errNotInt            = fmt.Errorf("value is not an integer or out of range")
	errUnbalancedStreams = fmt.Errorf("Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
)

// timeOrZero wraps an absolute expiration; the zero value means "no
// expiration", matching store.Set's convention.
type timeOrZero struct{ t time.Time }

func newExpiryMillis(ms int64) timeOrZero {
	return timeOrZero{t: time.Now().Add(time.Duration(ms) * time.Millisecond)}
}

func newExpirySeconds(s int64) timeOrZero {
	return timeOrZero{t: time.Now().Add(time.Duration(s) * time.Second)}
}
