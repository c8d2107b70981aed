// Package runtime defines the contract the orchestrator needs from the
// AI-agent runtime, plus a production implementation over agentkit's LLM
// providers. The rest of the codebase only sees the interfaces here.
package runtime

import (
	"context"
	"time"
)

// Model is one entry of the runtime's model catalog.
type Model struct {
	ID          string
	DisplayName string
	Multiplier  float64
}

// ToolDef describes one tool offered to a session.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolExecutor dispatches a tool call made by a session. Implementations
// must validate the argument bag at this boundary; nothing past it sees an
// untyped payload.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// SessionSpec configures a new conversational session. The identifier
// doubles as the runtime's own session key so a recreated session with the
// same id reconnects to any runtime-side state keyed the same way.
type SessionSpec struct {
	ID           string
	Model        string
	SystemPrompt string
	Workspace    string
	Tools        []ToolDef
	Exec         ToolExecutor
}

// EventKind distinguishes session events.
type EventKind int

const (
	// EventReply carries assistant output text.
	EventReply EventKind = iota
	// EventError carries a runtime error.
	EventError
	// EventIdle signals that the session has no pending work.
	EventIdle
)

// Event is delivered to session subscribers.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Session is one live conversational context.
type Session interface {
	// SendAndAwait sends a prompt and waits for the reply. The boolean is
	// false when the timeout expired before a reply arrived; that outcome
	// is distinct from a substantive empty reply and from an error.
	SendAndAwait(ctx context.Context, prompt string, timeout time.Duration) (string, bool, error)

	// Subscribe registers an event handler. Handlers are invoked in order
	// of registration and must not block.
	Subscribe(fn func(Event))

	// Destroy releases the session. Safe to call more than once.
	Destroy() error
}

// Client is the runtime entry point.
type Client interface {
	// ListModels returns the model catalog. Called once at process start.
	ListModels(ctx context.Context) ([]Model, error)

	// CreateSession constructs a live session bound to a model and system
	// prompt. Tool calls made by the session are dispatched to spec.Exec.
	CreateSession(ctx context.Context, spec SessionSpec) (Session, error)

	// Stop destroys every remaining session and releases the client.
	// All failures are collected; Stop never aborts partway.
	Stop() []error
}
