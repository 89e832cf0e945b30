// Package eventstream defines the completion events azrelay emits and the
// publishers that deliver them.
package eventstream

import "context"

// Publisher publishes completion events to an event stream backend.
type Publisher interface {
	PublishCompletion(ctx context.Context, event *CompletionEvent) error
	Close() error
}
