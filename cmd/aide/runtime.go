// Runtime wiring: builds every component the orchestrator needs from the
// loaded configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/aide/internal/billing"
	"github.com/vinayprograms/aide/internal/config"
	"github.com/vinayprograms/aide/internal/notes"
	"github.com/vinayprograms/aide/internal/orchestrator"
	"github.com/vinayprograms/aide/internal/persona"
	airuntime "github.com/vinayprograms/aide/internal/runtime"
	"github.com/vinayprograms/aide/internal/subagent"
	"github.com/vinayprograms/aide/internal/transport"
	"github.com/vinayprograms/aide/internal/watch"
)

// runtime holds the wired components for one serve run.
type runtime struct {
	cfg   *config.Config
	creds *credentials.Credentials

	// Components
	telem      telemetry.Exporter
	catalog    *billing.Catalog
	ledger     *billing.Ledger
	store      *subagent.Store
	registry   *subagent.Registry
	noteStore  *notes.Store
	directives []persona.Directive
	watcher    *watch.Watcher
	trans      transport.Transport
	client     airuntime.Client
	orch       *orchestrator.Orchestrator

	logger *logging.Logger

	// Cleanup
	closers []func()
}

// newRuntime creates a runtime from loaded configuration.
func newRuntime(cfg *config.Config, creds *credentials.Credentials) *runtime {
	return &runtime{
		cfg:    cfg,
		creds:  creds,
		logger: logging.New().WithComponent("aide"),
	}
}

// setup initializes all components. Returns error on failure.
func (rt *runtime) setup() error {
	if err := os.MkdirAll(rt.cfg.StorageDir(), 0755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	if err := rt.setupBilling(); err != nil {
		return err
	}
	if err := rt.setupStores(); err != nil {
		return err
	}
	if err := rt.setupTransport(); err != nil {
		return err
	}
	rt.setupRuntimeClient()
	rt.setupRegistry()
	rt.setupOrchestrator()
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// setupBilling builds the model catalog, audit log and ledger.
func (rt *runtime) setupBilling() error {
	rt.catalog = billing.NewCatalog(catalogModels(rt.cfg))

	audit, err := billing.NewAuditLog(rt.cfg.UsageLogPath())
	if err != nil {
		return fmt.Errorf("opening usage audit log: %w", err)
	}
	rt.ledger = billing.NewLedger(rt.catalog, audit)
	return nil
}

// setupStores opens the delegated-config store, notes, and directives.
func (rt *runtime) setupStores() error {
	var err error
	rt.store, err = subagent.NewStore(rt.cfg.AgentsDir())
	if err != nil {
		return err
	}

	rt.noteStore, err = notes.NewStore(rt.cfg.NotesDir())
	if err != nil {
		return err
	}
	rt.addCloser(func() { rt.noteStore.Close() })

	rt.directives, err = persona.LoadDir(config.ExpandPath(rt.cfg.Assistant.DirectivesPath))
	if err != nil {
		rt.logger.Warn("failed to load directives", map[string]interface{}{
			"error": err.Error(),
		})
		rt.directives = nil
	}

	rt.watcher = watch.NewWatcher(rt.cfg.Watch.Paths)
	return nil
}

// setupTransport builds the configured chat channel.
func (rt *runtime) setupTransport() error {
	switch rt.cfg.Transport.Kind {
	case "", "console":
		rt.trans = transport.NewConsole(rt.cfg.Transport.Operator)
	case "nats":
		t, err := transport.NewNATS(transport.NATSConfig{
			URL:           rt.cfg.Transport.URL,
			SubjectPrefix: rt.cfg.Transport.SubjectPrefix,
			Operator:      rt.cfg.Transport.Operator,
			ChooseTimeout: time.Duration(rt.cfg.Timeouts.Choose) * time.Second,
		})
		if err != nil {
			return err
		}
		rt.trans = t
	default:
		return fmt.Errorf("unknown transport kind: %s", rt.cfg.Transport.Kind)
	}
	rt.addCloser(func() {
		if err := rt.trans.Close(); err != nil {
			rt.logger.Warn("transport close error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})
	return nil
}

// setupRuntimeClient creates the AI runtime client over the model catalog.
func (rt *runtime) setupRuntimeClient() {
	models := make([]airuntime.Model, len(rt.cfg.Models))
	for i, m := range rt.cfg.Models {
		models[i] = airuntime.Model{ID: m.ID, DisplayName: m.Name, Multiplier: m.Multiplier}
	}
	rt.client = airuntime.NewClient(airuntime.ClientConfig{
		Models:    models,
		Creds:     rt.creds,
		MaxTokens: rt.cfg.LLM.MaxTokens,
		BaseURL:   rt.cfg.LLM.BaseURL,
	})
}

// setupRegistry wires the delegated session registry. Error events from
// delegated sessions are surfaced to the operator.
func (rt *runtime) setupRegistry() {
	observer := func(id string, ev airuntime.Event) {
		if ev.Kind != airuntime.EventError {
			return
		}
		rt.logger.Error("delegated session error", map[string]interface{}{
			"id":    id,
			"error": ev.Err.Error(),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = rt.trans.Send(ctx, fmt.Sprintf("Delegated agent %s reported an error: %v", id, ev.Err))
	}
	rt.registry = subagent.NewRegistry(rt.store, rt.client, observer)
}

// setupOrchestrator assembles the process root.
func (rt *runtime) setupOrchestrator() {
	tools := orchestrator.NewTools(
		rt.registry,
		rt.noteStore,
		rt.ledger,
		time.Duration(rt.cfg.Timeouts.Request)*time.Second,
		rt.telem,
	)
	rt.orch = orchestrator.New(orchestrator.Options{
		Transport:      rt.trans,
		Runtime:        rt.client,
		Ledger:         rt.ledger,
		Registry:       rt.registry,
		Notes:          rt.noteStore,
		Watcher:        rt.watcher,
		Telemetry:      rt.telem,
		Tools:          tools,
		Directives:     rt.directives,
		AssistantID:    rt.cfg.Assistant.ID,
		SystemPrompt:   rt.cfg.Assistant.SystemPrompt,
		Workspace:      rt.cfg.Assistant.Workspace,
		RequestTimeout: time.Duration(rt.cfg.Timeouts.Request) * time.Second,
		ChooseTimeout:  time.Duration(rt.cfg.Timeouts.Choose) * time.Second,
		IdleTimeout:    time.Duration(rt.cfg.Timeouts.Idle) * time.Second,
		ShutdownGrace:  time.Duration(rt.cfg.Timeouts.ShutdownGrace) * time.Second,
	})
}

// catalogModels converts config entries to catalog entries.
func catalogModels(cfg *config.Config) []billing.ModelInfo {
	models := make([]billing.ModelInfo, len(cfg.Models))
	for i, m := range cfg.Models {
		models[i] = billing.ModelInfo{ID: m.ID, DisplayName: m.Name, Multiplier: m.Multiplier}
	}
	return models
}

// cleanup runs registered closers in reverse order.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}
