// Package transport abstracts the operator-facing chat channel: inbound
// messages, outbound text, and the one-shot selection prompt used at startup.
package transport

import "context"

// MaxMessageLen is the single-message size limit. Outbound text longer than
// this is split on a fixed character boundary, order preserved.
const MaxMessageLen = 4096

// Message is one inbound text message from a sender identity.
type Message struct {
	Sender string
	Text   string
}

// Transport is the chat channel contract.
type Transport interface {
	// Inbound delivers operator messages in arrival order. The channel is
	// closed when the transport shuts down.
	Inbound() <-chan Message

	// Send delivers text to the operator, splitting oversize messages.
	Send(ctx context.Context, text string) error

	// Choose presents options and returns the index of the one picked.
	Choose(ctx context.Context, prompt string, options []string) (int, error)

	Close() error
}

// Split breaks text into chunks of at most limit characters. Splitting is
// rune-safe so a multi-byte character never straddles a boundary.
func Split(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
