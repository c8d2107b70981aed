// Package primary manages the single main conversational session: one-shot
// model selection, deferred construction on first use, and teardown.
package primary

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/aide/internal/runtime"
)

// State tags the controller's lifecycle position.
type State int

const (
	StateUninitialized State = iota // no model chosen
	StateSelected                   // model chosen, construction not started
	StateConstructing               // construction in flight
	StateReady                      // live session available
	StateDestroyed                  // terminal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSelected:
		return "selected"
	case StateConstructing:
		return "constructing"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNoModel is returned by Acquire before a model has been selected.
	ErrNoModel = errors.New("no model selected for the primary session")
	// ErrDestroyed is returned once the controller is torn down.
	ErrDestroyed = errors.New("primary session is destroyed")
)

// ConstructFunc builds the live primary session for the chosen model.
type ConstructFunc func(ctx context.Context, model string) (runtime.Session, error)

// Controller serializes construction of the primary session. Two concurrent
// Acquire calls observing no session must result in exactly one construction;
// the loser waits for the winner's outcome.
type Controller struct {
	construct ConstructFunc
	logger    *logging.Logger

	mu       sync.Mutex
	state    State
	model    string
	session  runtime.Session
	inflight chan struct{}
}

// NewController creates a controller in the uninitialized state.
func NewController(construct ConstructFunc) *Controller {
	return &Controller{
		construct: construct,
		logger:    logging.New().WithComponent("primary"),
	}
}

// SelectModel records the model choice. It takes effect exactly once per
// controller; later calls are ignored and return false.
func (c *Controller) SelectModel(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		c.logger.Debug("ignoring model re-selection", map[string]interface{}{
			"state":    c.state.String(),
			"selected": c.model,
			"ignored":  model,
		})
		return false
	}
	c.model = model
	c.state = StateSelected
	c.logger.Info("primary model selected", map[string]interface{}{"model": model})
	return true
}

// Model returns the selected model id, or "" before selection.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquire returns the live session, constructing it on first use. If a
// construction is already in flight the call waits for its outcome. On
// construction failure the controller reverts to the pre-construction state
// so the next Acquire retries.
func (c *Controller) Acquire(ctx context.Context) (runtime.Session, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case StateDestroyed:
			c.mu.Unlock()
			return nil, ErrDestroyed

		case StateUninitialized:
			c.mu.Unlock()
			return nil, ErrNoModel

		case StateReady:
			sess := c.session
			c.mu.Unlock()
			return sess, nil

		case StateConstructing:
			wait := c.inflight
			c.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case StateSelected:
			c.state = StateConstructing
			c.inflight = make(chan struct{})
			done := c.inflight
			model := c.model
			c.mu.Unlock()

			sess, err := c.construct(ctx, model)

			c.mu.Lock()
			close(done)
			if err != nil {
				if c.state == StateConstructing {
					c.state = StateSelected
				}
				c.mu.Unlock()
				return nil, fmt.Errorf("constructing primary session: %w", err)
			}
			if c.state == StateDestroyed {
				c.mu.Unlock()
				sess.Destroy()
				return nil, ErrDestroyed
			}
			c.session = sess
			c.state = StateReady
			c.mu.Unlock()
			c.logger.Info("primary session ready", map[string]interface{}{"model": model})
			return sess, nil
		}
	}
}

// Ready reports whether a live session exists without constructing one.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

// Destroy releases the live session if one exists and moves the controller
// to its terminal state. Safe to call from any state, repeatedly.
func (c *Controller) Destroy() error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return nil
	}
	sess := c.session
	c.session = nil
	c.state = StateDestroyed
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.Destroy(); err != nil {
		return fmt.Errorf("destroying primary session: %w", err)
	}
	return nil
}
