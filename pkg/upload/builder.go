package upload

import (
	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/pkg/sdkctx"
)

// RequestContext identifies one upload attempt to the request builder, so
// features can stamp idempotency hints into their payloads.
type RequestContext struct {
	// BatchID names the batch being shipped; stable across retries.
	BatchID string

	// RequestID is unique per attempt.
	RequestID uuid.UUID

	// Attempt counts submissions of this batch within the current
	// process, starting at 1.
	Attempt int
}

// RequestBuilder turns a batch of events plus the current context into an
// intake request. Remote features provide one at registration. A build
// error condemns the batch.
type RequestBuilder interface {
	Build(events [][]byte, ctx sdkctx.Context, rc RequestContext) (Request, error)
}

// RequestBuilderFunc adapts a function to the RequestBuilder interface.
type RequestBuilderFunc func(events [][]byte, ctx sdkctx.Context, rc RequestContext) (Request, error)

// Build calls f.
func (f RequestBuilderFunc) Build(events [][]byte, ctx sdkctx.Context, rc RequestContext) (Request, error) {
	return f(events, ctx, rc)
}
