// Package notify delivers progress and error messages to a chat channel.
package notify

import "context"

// Notifier receives progress and error messages. Delivery is fire-and-forget:
// implementations never block the caller on the network and never report
// delivery failures.
type Notifier interface {
	// PostMessage posts a progress message. Ephemeral messages are transient
	// progress updates that a sink may choose to drop.
	PostMessage(ctx context.Context, text string, ephemeral bool)
	// PostError posts an error message
	PostError(ctx context.Context, text string)
}

// Nop discards every message
type Nop struct{}

func (Nop) PostMessage(context.Context, string, bool) {}

func (Nop) PostError(context.Context, string) {}

var _ Notifier = Nop{}

// Multi fans messages out to several notifiers
type Multi []Notifier

func (m Multi) PostMessage(ctx context.Context, text string, ephemeral bool) {
	for _, n := range m {
		n.PostMessage(ctx, text, ephemeral)
	}
}

func (m Multi) PostError(ctx context.Context, text string) {
	for _, n := range m {
		n.PostError(ctx, text)
	}
}
