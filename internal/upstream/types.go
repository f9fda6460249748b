package upstream

import (
	"context"
	"io"

	"streamgate/internal/session"
)

// Client is the upstream chat-completion capability the relay runs against.
//
// Stream issues a streaming completion for one candidate model and hands back
// the raw SSE response body; the caller owns draining and closing it.
// Complete is the non-streaming variant used as the last-resort fallback and
// returns the assistant content directly. Models fetches the provider's model
// catalog as opaque JSON.
type Client interface {
	Stream(ctx context.Context, model string, messages []session.Message) (io.ReadCloser, error)
	Complete(ctx context.Context, model string, messages []session.Message) (string, error)
	Models(ctx context.Context) ([]byte, error)
}
