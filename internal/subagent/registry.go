package subagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/aide/internal/runtime"
)

// Handle pairs a persisted config with its live runtime session.
type Handle struct {
	Config  SessionConfig
	Session runtime.Session
}

// Observer receives session events tagged with the delegated session id.
// The registry attaches it to every session it constructs, including
// rehydrated ones.
type Observer func(id string, ev runtime.Event)

// Registry reconciles the in-memory cache of live delegated sessions
// against the durable Store. Each identifier is in one of three states:
// absent (no record), configured (record only), active (record + handle).
type Registry struct {
	store    *Store
	client   runtime.Client
	observer Observer
	logger   *logging.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates a registry. observer may be nil.
func NewRegistry(store *Store, client runtime.Client, observer Observer) *Registry {
	return &Registry{
		store:    store,
		client:   client,
		observer: observer,
		logger:   logging.New().WithComponent("agent-registry"),
		handles:  make(map[string]*Handle),
	}
}

// newID generates a time-ordered identifier so store enumeration order
// matches creation order.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return id.String(), nil
}

// Create builds a new delegated session: fresh identifier, live runtime
// session, persisted config. If session construction fails nothing is
// persisted.
func (r *Registry) Create(ctx context.Context, description, model, systemPrompt string) (*Handle, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	cfg := SessionConfig{
		ID:           id,
		Description:  description,
		Model:        model,
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now().UTC(),
	}

	sess, err := r.construct(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing delegated session: %w", err)
	}

	if err := r.store.Save(cfg); err != nil {
		sess.Destroy()
		return nil, err
	}

	handle := &Handle{Config: cfg, Session: sess}
	r.mu.Lock()
	r.handles[id] = handle
	r.mu.Unlock()

	r.logger.Info("delegated session created", map[string]interface{}{
		"id":    id,
		"model": model,
	})
	return handle, nil
}

// GetOrCreate resolves an identifier to an active handle. A cache hit
// returns immediately; a configured identifier is rehydrated into a new
// runtime session; an absent identifier returns nil.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Handle, error) {
	r.mu.Lock()
	if handle, ok := r.handles[id]; ok {
		r.mu.Unlock()
		return handle, nil
	}
	r.mu.Unlock()

	cfg, err := r.store.Load(id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	sess, err := r.construct(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("rehydrating delegated session %s: %w", id, err)
	}

	handle := &Handle{Config: *cfg, Session: sess}
	r.mu.Lock()
	r.handles[id] = handle
	r.mu.Unlock()

	r.logger.Info("delegated session rehydrated", map[string]interface{}{
		"id":    id,
		"model": cfg.Model,
	})
	return handle, nil
}

// construct builds the runtime session and wires the observer.
func (r *Registry) construct(ctx context.Context, cfg SessionConfig) (runtime.Session, error) {
	sess, err := r.client.CreateSession(ctx, runtime.SessionSpec{
		ID:           cfg.ID,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}
	if r.observer != nil {
		id := cfg.ID
		sess.Subscribe(func(ev runtime.Event) {
			r.observer(id, ev)
		})
	}
	return sess, nil
}

// Destroy releases the live session and evicts the cache entry. The
// on-disk config survives so the identifier stays resolvable through
// GetOrCreate. No-op for identifiers without a live handle.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	handle, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := handle.Session.Destroy(); err != nil {
		return fmt.Errorf("destroying delegated session %s: %w", id, err)
	}
	return nil
}

// FindSimilar returns every config whose description contains at least one
// whitespace-separated query token, case-insensitive, in store order. A
// cheap recall filter, not ranked relevance.
func (r *Registry) FindSimilar(query string) ([]SessionConfig, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	configs, err := r.store.LoadAll()
	if err != nil {
		return nil, err
	}

	var matches []SessionConfig
	for _, cfg := range configs {
		desc := strings.ToLower(cfg.Description)
		for _, tok := range tokens {
			if strings.Contains(desc, tok) {
				matches = append(matches, cfg)
				break
			}
		}
	}
	return matches, nil
}

// ListActive returns the identifiers with live handles.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// ResetAll destroys every live session and clears the store. Called once
// at startup so delegated sessions never resume from a previous run.
// Destroy failures are logged, not fatal.
func (r *Registry) ResetAll() error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		if err := h.Session.Destroy(); err != nil {
			r.logger.Warn("failed to destroy delegated session during reset", map[string]interface{}{
				"id":    h.Config.ID,
				"error": err.Error(),
			})
		}
	}
	return r.store.ClearAll()
}
