package core

import "context"

// Completer is one provider-bound Completion Proxy as seen by the HTTP layer.
type Completer interface {
	// Name returns the provider name used in logs and metrics
	Name() string

	// StreamingEnabled reports whether the route honors the stream flag
	StreamingEnabled() bool

	// Complete executes a buffered completion and returns the message text
	Complete(ctx context.Context, req *ChatRequest) (string, error)

	// OpenStream starts a streamed completion (caller must close)
	OpenStream(ctx context.Context, req *ChatRequest) (DeltaStream, error)
}

// DeltaStream yields generated text in upstream order.
type DeltaStream interface {
	// Next returns the next non-empty delta, or io.EOF once the upstream ends.
	Next() (string, error)

	// Close releases the upstream stream handle. Safe to call more than once.
	Close() error
}
