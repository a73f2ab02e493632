package resp

import "errors"

// ErrIncomplete means the buffer does not yet hold a full frame; the
// caller should read more bytes from the socket and retry.
var ErrIncomplete = errors.New("resp: incomplete frame")

// ErrMalformed means the buffer can never form a valid frame no matter
// how many more bytes arrive; the connection should be closed.
var ErrMalformed = errors.New("resp: malformed frame")
