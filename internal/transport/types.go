// Package transport defines the channel-agnostic delivery seam between the
// notification dispatcher and concrete messaging adapters.
package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter delivers one rendered message to one target. Implementations must
// be safe for concurrent use by the dispatcher's worker pool.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	Stop(ctx context.Context) error
}
