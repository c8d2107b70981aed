// Package orchestrator is the process root: it binds the chat transport to
// the AI runtime, dispatches operator messages in order, accounts usage,
// detects self-modification, and drives graceful shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/aide/internal/billing"
	"github.com/vinayprograms/aide/internal/notes"
	"github.com/vinayprograms/aide/internal/persona"
	"github.com/vinayprograms/aide/internal/primary"
	"github.com/vinayprograms/aide/internal/runtime"
	"github.com/vinayprograms/aide/internal/subagent"
	"github.com/vinayprograms/aide/internal/transport"
	"github.com/vinayprograms/aide/internal/watch"
)

// Process exit codes. ExitRestart is the sentinel an external supervisor
// watches for to relaunch the process.
const (
	ExitClean   = 0
	ExitFault   = 1
	ExitRestart = 86
)

// Options carries the orchestrator's collaborators. Everything is injected;
// the orchestrator owns only the dispatch loop and the primary controller.
type Options struct {
	Transport      transport.Transport
	Runtime        runtime.Client
	Ledger         *billing.Ledger
	Registry       *subagent.Registry
	Notes          *notes.Store
	Watcher        *watch.Watcher
	Telemetry      telemetry.Exporter
	Tools          *Tools
	Directives     []persona.Directive
	AssistantID    string
	SystemPrompt   string
	Workspace      string
	RequestTimeout time.Duration
	ChooseTimeout  time.Duration
	IdleTimeout    time.Duration
	ShutdownGrace  time.Duration
}

// Orchestrator wires the components together and runs the main loop.
type Orchestrator struct {
	opts       Options
	controller *primary.Controller
	logger     *logging.Logger

	mu        sync.Mutex
	idleTimer *time.Timer
	restartCh chan string // reason
	restarted bool
}

// New builds an orchestrator. The primary controller is created here so its
// construction path can attach the tool surface and event wiring.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:      opts,
		logger:    logging.New().WithComponent("orchestrator"),
		restartCh: make(chan string, 1),
	}
	o.controller = primary.NewController(o.constructPrimary)
	return o
}

// constructPrimary builds the live primary session with the composed system
// prompt and the full tool surface.
func (o *Orchestrator) constructPrimary(ctx context.Context, model string) (runtime.Session, error) {
	prompt := persona.Compose(o.opts.SystemPrompt, o.opts.Directives)
	sess, err := o.opts.Runtime.CreateSession(ctx, runtime.SessionSpec{
		ID:           o.opts.AssistantID + "-primary",
		Model:        model,
		SystemPrompt: prompt,
		Workspace:    o.opts.Workspace,
		Tools:        o.opts.Tools.Defs(),
		Exec:         o.opts.Tools,
	})
	if err != nil {
		return nil, err
	}
	sess.Subscribe(o.onPrimaryEvent)
	return sess, nil
}

// onPrimaryEvent reacts to runtime events from the primary session. Idle
// arms a quiet-period timer; a new message disarms it, and on expiry the
// conversation closes and its usage summary goes to the operator.
func (o *Orchestrator) onPrimaryEvent(ev runtime.Event) {
	switch ev.Kind {
	case runtime.EventIdle:
		o.armIdleTimer()
	case runtime.EventError:
		o.logger.Error("primary session error", map[string]interface{}{
			"error": ev.Err.Error(),
		})
	}
}

func (o *Orchestrator) armIdleTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.idleTimer != nil {
		o.idleTimer.Stop()
	}
	o.idleTimer = time.AfterFunc(o.opts.IdleTimeout, o.closeConversation)
}

func (o *Orchestrator) disarmIdleTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.idleTimer != nil {
		o.idleTimer.Stop()
		o.idleTimer = nil
	}
}

// closeConversation ends the open conversation and reports its usage.
func (o *Orchestrator) closeConversation() {
	conv := o.opts.Ledger.EndConversation()
	if conv == nil {
		return
	}
	o.opts.Telemetry.LogEvent("conversation_closed", map[string]interface{}{
		"requests": conv.Requests,
		"units":    conv.Units,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.opts.Transport.Send(ctx, o.opts.Ledger.Summary(conv)); err != nil {
		o.logger.Warn("failed to send usage summary", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// selectModel runs the one-shot model selection at startup. If the choice
// affordance fails, the first catalog model is used so startup still
// completes.
func (o *Orchestrator) selectModel(ctx context.Context) error {
	models, err := o.opts.Runtime.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	if len(models) == 0 {
		return fmt.Errorf("runtime offers no models")
	}

	options := make([]string, len(models))
	for i, m := range models {
		options[i] = fmt.Sprintf("%s (x%g)", m.DisplayName, m.Multiplier)
	}

	chooseCtx, cancel := context.WithTimeout(ctx, o.opts.ChooseTimeout)
	idx, err := o.opts.Transport.Choose(chooseCtx, "Pick a model for this run:", options)
	cancel()
	if err != nil {
		o.logger.Warn("model selection failed, using first model", map[string]interface{}{
			"error":    err.Error(),
			"fallback": models[0].ID,
		})
		idx = 0
	}

	o.controller.SelectModel(models[idx].ID)
	return nil
}

// Run executes the orchestrator until shutdown. The returned code is the
// process exit status: ExitClean, ExitFault, or the ExitRestart sentinel.
func (o *Orchestrator) Run(ctx context.Context) int {
	if err := o.selectModel(ctx); err != nil {
		o.logger.Error("startup failed", map[string]interface{}{"error": err.Error()})
		return ExitFault
	}

	// Stale delegated sessions never survive into a new process image.
	if err := o.opts.Registry.ResetAll(); err != nil {
		o.logger.Error("failed to reset delegated sessions", map[string]interface{}{
			"error": err.Error(),
		})
		return ExitFault
	}

	o.opts.Telemetry.LogEvent("orchestrator_started", map[string]interface{}{
		"model": o.controller.Model(),
	})

	// A single worker preserves message order; the buffered queue keeps
	// intake responsive while a request is in flight.
	queue := make(chan transport.Message, 64)
	workerDone := make(chan struct{})
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go func() {
		defer close(workerDone)
		for m := range queue {
			o.dispatch(workerCtx, m)
		}
	}()

	code := ExitClean
intake:
	for {
		select {
		case <-ctx.Done():
			// A restart requested just before cancellation still wins.
			o.mu.Lock()
			if o.restarted {
				code = ExitRestart
			}
			o.mu.Unlock()
			break intake
		case reason := <-o.restartCh:
			o.logger.Info("restart requested", map[string]interface{}{"reason": reason})
			code = ExitRestart
			break intake
		case m, ok := <-o.opts.Transport.Inbound():
			if !ok {
				break intake
			}
			select {
			case queue <- m:
			default:
				o.logger.Warn("dispatch queue full, dropping message", nil)
				o.send(ctx, "Busy with earlier messages; that one was dropped. Please resend it in a moment.")
			}
		}
	}

	close(queue)
	select {
	case <-workerDone:
	case <-time.After(o.opts.ShutdownGrace):
		cancelWorker()
		<-workerDone
	}
	cancelWorker()

	o.shutdown()
	return code
}

// requestRestart asks the main loop to exit with the sentinel code. Only
// the first request wins.
func (o *Orchestrator) requestRestart(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.restarted {
		return
	}
	o.restarted = true
	o.restartCh <- reason
}

// dispatch processes one operator message.
func (o *Orchestrator) dispatch(ctx context.Context, m transport.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	o.disarmIdleTimer()

	if strings.HasPrefix(text, "/") {
		o.handleCommand(ctx, text)
		return
	}

	before := o.opts.Watcher.Take()
	ctx, span := o.startDispatchSpan(ctx, o.controller.Model())

	sess, err := o.controller.Acquire(ctx)
	if err != nil {
		endDispatchSpan(span, "construction_failed", err)
		o.send(ctx, fmt.Sprintf("Could not start the session: %v. Send another message to retry.", err))
		return
	}

	o.opts.Ledger.SetExcerpt(text)
	o.opts.Ledger.RecordRequest(o.controller.Model())

	reply, ok, err := sess.SendAndAwait(ctx, text, o.opts.RequestTimeout)
	switch {
	case err != nil:
		endDispatchSpan(span, "error", err)
		o.send(ctx, fmt.Sprintf("Request failed: %v", err))
	case !ok:
		endDispatchSpan(span, "timeout", nil)
		o.send(ctx, fmt.Sprintf("No reply within %s. Send again to retry.", o.opts.RequestTimeout))
	default:
		endDispatchSpan(span, "ok", nil)
		o.send(ctx, reply)
	}

	if changed := watch.Diff(before, o.opts.Watcher.Take()); len(changed) > 0 {
		o.send(ctx, fmt.Sprintf("Source changed (%s). Restarting.", strings.Join(changed, ", ")))
		o.requestRestart("source files changed: " + strings.Join(changed, ", "))
	}
}

// handleCommand services operator slash commands locally, without touching
// the runtime.
func (o *Orchestrator) handleCommand(ctx context.Context, text string) {
	cmd := strings.Fields(text)[0]
	switch cmd {
	case "/usage":
		o.send(ctx, o.opts.Ledger.Report())
	case "/agents":
		active := o.opts.Registry.ListActive()
		if len(active) == 0 {
			o.send(ctx, "No active delegated agents.")
			return
		}
		o.send(ctx, strings.Join(active, "\n"))
	case "/reset":
		if err := o.opts.Registry.ResetAll(); err != nil {
			o.send(ctx, fmt.Sprintf("Reset failed: %v", err))
			return
		}
		o.send(ctx, "All delegated agents reset.")
	case "/restart":
		o.send(ctx, "Restarting.")
		o.requestRestart("operator command")
	default:
		o.send(ctx, "Commands: /usage /agents /reset /restart")
	}
}

func (o *Orchestrator) send(ctx context.Context, text string) {
	if err := o.opts.Transport.Send(ctx, text); err != nil {
		o.logger.Warn("failed to send to operator", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// shutdown runs the teardown sequence. Every step is attempted; failures
// are logged and never abort the remaining steps.
func (o *Orchestrator) shutdown() {
	o.disarmIdleTimer()
	o.closeConversation()

	for _, id := range o.opts.Registry.ListActive() {
		if err := o.opts.Registry.Destroy(id); err != nil {
			o.logger.Warn("failed to destroy delegated session", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
	}

	done := make(chan error, 1)
	go func() { done <- o.controller.Destroy() }()
	select {
	case err := <-done:
		if err != nil {
			o.logger.Warn("failed to destroy primary session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	case <-time.After(o.opts.ShutdownGrace):
		o.logger.Warn("primary session teardown timed out", nil)
	}

	for _, err := range o.opts.Runtime.Stop() {
		o.logger.Warn("runtime stop error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	o.opts.Telemetry.LogEvent("orchestrator_stopped", nil)
	o.logger.Info("shutdown complete", nil)
}
