package eventstream

import "errors"

// ErrNilEvent indicates a nil completion event payload was provided to a publisher.
var ErrNilEvent = errors.New("nil completion event")
