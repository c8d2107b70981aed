package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

// ClientConfig configures the agentkit-backed runtime client.
type ClientConfig struct {
	Models    []Model // catalog exposed through ListModels
	Creds     *credentials.Credentials
	MaxTokens int
	BaseURL   string
}

// agentkitClient implements Client over agentkit LLM providers. Each session
// gets its own provider bound to the session's model.
type agentkitClient struct {
	cfg    ClientConfig
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*agentkitSession
	stopped  bool
}

// NewClient creates a runtime client.
func NewClient(cfg ClientConfig) Client {
	return &agentkitClient{
		cfg:      cfg,
		logger:   logging.New().WithComponent("runtime"),
		sessions: make(map[string]*agentkitSession),
	}
}

// ListModels returns the configured model catalog.
func (c *agentkitClient) ListModels(ctx context.Context) ([]Model, error) {
	out := make([]Model, len(c.cfg.Models))
	copy(out, c.cfg.Models)
	return out, nil
}

// CreateSession builds a provider for the session's model and registers the
// live session under its identifier.
func (c *agentkitClient) CreateSession(ctx context.Context, spec SessionSpec) (Session, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, errors.New("runtime client is stopped")
	}
	c.mu.Unlock()

	providerName := llm.InferProviderFromModel(spec.Model)
	if providerName == "" {
		return nil, fmt.Errorf("cannot infer provider for model %q", spec.Model)
	}

	var apiKey string
	if c.cfg.Creds != nil {
		apiKey = c.cfg.Creds.GetAPIKey(providerName)
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:  providerName,
		Model:     spec.Model,
		APIKey:    apiKey,
		MaxTokens: c.cfg.MaxTokens,
		BaseURL:   c.cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider for session %s: %w", spec.ID, err)
	}

	sess := newAgentkitSession(provider, spec, c.logger)
	sess.onDestroy = func() { c.forget(spec.ID) }

	c.mu.Lock()
	c.sessions[spec.ID] = sess
	c.mu.Unlock()

	c.logger.Info("session created", map[string]interface{}{
		"session": spec.ID,
		"model":   spec.Model,
	})
	return sess, nil
}

// forget drops a destroyed session from the registry.
func (c *agentkitClient) forget(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// Stop destroys all remaining sessions. Errors are collected, not fatal.
func (c *agentkitClient) Stop() []error {
	c.mu.Lock()
	c.stopped = true
	remaining := make([]*agentkitSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		remaining = append(remaining, s)
	}
	c.sessions = make(map[string]*agentkitSession)
	c.mu.Unlock()

	var errs []error
	for _, s := range remaining {
		if err := s.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// agentkitSession drives one conversation over a chat provider. The message
// history lives here; each SendAndAwait runs the provider's tool loop until
// the model produces plain text.
type agentkitSession struct {
	id        string
	provider  llm.Provider
	spec      SessionSpec
	toolDefs  []llm.ToolDef
	logger    *logging.Logger
	onDestroy func()

	mu        sync.Mutex
	messages  []llm.Message
	subs      []func(Event)
	pending   int
	destroyed bool
}

func newAgentkitSession(provider llm.Provider, spec SessionSpec, logger *logging.Logger) *agentkitSession {
	toolDefs := make([]llm.ToolDef, 0, len(spec.Tools))
	for _, t := range spec.Tools {
		toolDefs = append(toolDefs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return &agentkitSession{
		id:       spec.ID,
		provider: provider,
		spec:     spec,
		toolDefs: toolDefs,
		logger:   logger,
		messages: []llm.Message{{Role: "system", Content: spec.SystemPrompt}},
	}
}

// Subscribe registers an event handler.
func (s *agentkitSession) Subscribe(fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// emit delivers an event to all subscribers.
func (s *agentkitSession) emit(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// SendAndAwait sends a prompt and runs the chat loop until the model
// returns text without tool calls, the timeout expires, or an error occurs.
func (s *agentkitSession) SendAndAwait(ctx context.Context, prompt string, timeout time.Duration) (string, bool, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return "", false, fmt.Errorf("session %s is destroyed", s.id)
	}
	s.pending++
	s.messages = append(s.messages, llm.Message{Role: "user", Content: prompt})
	messages := make([]llm.Message, len(s.messages))
	copy(messages, s.messages)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending--
		idle := s.pending == 0 && !s.destroyed
		s.mu.Unlock()
		if idle {
			s.emit(Event{Kind: EventIdle})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		resp, err := s.provider.Chat(ctx, llm.ChatRequest{
			Messages: messages,
			Tools:    s.toolDefs,
		})
		if err != nil {
			// Our own deadline resolves to "no reply", distinct from a
			// substantive empty reply and from a runtime fault.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.logger.Warn("session send timed out", map[string]interface{}{
					"session": s.id,
					"timeout": timeout.String(),
				})
				return "", false, nil
			}
			s.emit(Event{Kind: EventError, Err: err})
			return "", false, fmt.Errorf("session %s: %w", s.id, err)
		}

		if len(resp.ToolCalls) == 0 {
			messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
			s.mu.Lock()
			s.messages = messages
			s.mu.Unlock()
			s.emit(Event{Kind: EventReply, Text: resp.Content})
			return resp.Content, true, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    s.executeTool(ctx, tc),
			})
		}
	}
}

// executeTool dispatches one tool call, reporting failures back to the
// model as tool output so it can adapt.
func (s *agentkitSession) executeTool(ctx context.Context, tc llm.ToolCallResponse) string {
	if s.spec.Exec == nil {
		return fmt.Sprintf("Error: tool %s is not available", tc.Name)
	}
	s.logger.Debug("tool call", map[string]interface{}{
		"session": s.id,
		"tool":    tc.Name,
		"args":    argsToJSON(tc.Args),
	})
	result, err := s.spec.Exec.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		s.logger.Warn("tool call failed", map[string]interface{}{
			"session": s.id,
			"tool":    tc.Name,
			"error":   err.Error(),
		})
		return "Error: " + err.Error()
	}
	return result
}

// Destroy releases the session. Safe to call repeatedly.
func (s *agentkitSession) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.messages = nil
	s.subs = nil
	s.mu.Unlock()

	if s.onDestroy != nil {
		s.onDestroy()
	}
	return nil
}

// history returns the current message transcript. Test hook.
func (s *agentkitSession) history() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// argsToJSON renders a tool argument bag for logging.
func argsToJSON(args map[string]interface{}) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}
