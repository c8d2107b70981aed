package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/aide/internal/billing"
	"github.com/vinayprograms/aide/internal/notes"
	"github.com/vinayprograms/aide/internal/runtime"
	"github.com/vinayprograms/aide/internal/subagent"
)

// Typed tool payloads. Arguments arrive from the model as loose maps; each
// request is decoded into one of these structs and validated before any
// component is touched.

type delegateCreateRequest struct {
	Description  string `json:"description"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

type delegateSendRequest struct {
	ID   string `json:"id"`
	Task string `json:"task"`
}

type delegateFindRequest struct {
	Query string `json:"query"`
}

type delegateDestroyRequest struct {
	ID string `json:"id"`
}

type noteSaveRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type noteSearchRequest struct {
	Query string `json:"query"`
}

// decodeArgs round-trips the argument map through JSON into a typed request.
func decodeArgs(args map[string]interface{}, dst interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding tool arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

// Tools exposes delegation, notes, and usage reporting to the primary
// session. It is the only path from model output into the registry.
type Tools struct {
	registry       *subagent.Registry
	notes          *notes.Store
	ledger         *billing.Ledger
	requestTimeout time.Duration
	telem          telemetry.Exporter
	logger         *logging.Logger
}

// NewTools wires the tool surface.
func NewTools(registry *subagent.Registry, noteStore *notes.Store, ledger *billing.Ledger, requestTimeout time.Duration, telem telemetry.Exporter) *Tools {
	return &Tools{
		registry:       registry,
		notes:          noteStore,
		ledger:         ledger,
		requestTimeout: requestTimeout,
		telem:          telem,
		logger:         logging.New().WithComponent("tools"),
	}
}

// Defs returns the tool definitions offered to the primary session.
func (t *Tools) Defs() []runtime.ToolDef {
	obj := func(props map[string]interface{}, required ...string) map[string]interface{} {
		schema := map[string]interface{}{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}

	return []runtime.ToolDef{
		{
			Name:        "delegate_create",
			Description: "Create a new delegated agent session for a sub-task. Returns its id.",
			Parameters: obj(map[string]interface{}{
				"description":   str("What this agent is for; used to find it again later"),
				"model":         str("Model id for the delegated session"),
				"system_prompt": str("System prompt for the delegated session"),
			}, "description", "model"),
		},
		{
			Name:        "delegate_send",
			Description: "Send a task to an existing delegated agent and wait for its reply.",
			Parameters: obj(map[string]interface{}{
				"id":   str("Delegated agent id"),
				"task": str("The task to perform"),
			}, "id", "task"),
		},
		{
			Name:        "delegate_find",
			Description: "Find existing delegated agents whose description matches the query.",
			Parameters: obj(map[string]interface{}{
				"query": str("Free-text description of the agent you are looking for"),
			}, "query"),
		},
		{
			Name:        "delegate_destroy",
			Description: "Release a delegated agent's live session. It stays recreatable by id.",
			Parameters: obj(map[string]interface{}{
				"id": str("Delegated agent id"),
			}, "id"),
		},
		{
			Name:        "delegate_list",
			Description: "List the ids of currently active delegated agents.",
			Parameters:  obj(map[string]interface{}{}),
		},
		{
			Name:        "note_save",
			Description: "Save a durable note for later recall.",
			Parameters: obj(map[string]interface{}{
				"name":    str("Short note title"),
				"content": str("Note body"),
			}, "name", "content"),
		},
		{
			Name:        "note_search",
			Description: "Search saved notes by name or content.",
			Parameters: obj(map[string]interface{}{
				"query": str("Search text"),
			}, "query"),
		},
		{
			Name:        "usage_report",
			Description: "Report billing usage for the current conversation and lifetime totals.",
			Parameters:  obj(map[string]interface{}{}),
		},
	}
}

// Execute dispatches one tool call.
func (t *Tools) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t.telem.LogEvent("tool_call", map[string]interface{}{"tool": name})
	ctx, span := startToolSpan(ctx, name)
	out, err := t.execute(ctx, name, args)
	endToolSpan(span, err)
	return out, err
}

func (t *Tools) execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	switch name {
	case "delegate_create":
		return t.delegateCreate(ctx, args)
	case "delegate_send":
		return t.delegateSend(ctx, args)
	case "delegate_find":
		return t.delegateFind(args)
	case "delegate_destroy":
		return t.delegateDestroy(args)
	case "delegate_list":
		return t.delegateList()
	case "note_save":
		return t.noteSave(args)
	case "note_search":
		return t.noteSearch(args)
	case "usage_report":
		return t.usageReport()
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

func (t *Tools) delegateCreate(ctx context.Context, args map[string]interface{}) (string, error) {
	var req delegateCreateRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	if req.Description == "" || req.Model == "" {
		return "", fmt.Errorf("delegate_create requires description and model")
	}

	handle, err := t.registry.Create(ctx, req.Description, req.Model, req.SystemPrompt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created delegated agent %s (model %s).", handle.Config.ID, handle.Config.Model), nil
}

func (t *Tools) delegateSend(ctx context.Context, args map[string]interface{}) (string, error) {
	var req delegateSendRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	if req.ID == "" || req.Task == "" {
		return "", fmt.Errorf("delegate_send requires id and task")
	}

	handle, err := t.registry.GetOrCreate(ctx, req.ID)
	if err != nil {
		return "", err
	}
	if handle == nil {
		return "", fmt.Errorf("no delegated agent with id %s; use delegate_create or delegate_find", req.ID)
	}

	t.ledger.RecordDelegated(handle.Config.ID, handle.Config.Model)
	reply, ok, err := handle.Session.SendAndAwait(ctx, req.Task, t.requestTimeout)
	if err != nil {
		return "", fmt.Errorf("delegated agent %s failed: %w", req.ID, err)
	}
	if !ok {
		return fmt.Sprintf("Delegated agent %s produced no reply within %s.", req.ID, t.requestTimeout), nil
	}
	return reply, nil
}

func (t *Tools) delegateFind(args map[string]interface{}) (string, error) {
	var req delegateFindRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}

	matches, err := t.registry.FindSimilar(req.Query)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No matching delegated agents.", nil
	}
	var b strings.Builder
	for _, cfg := range matches {
		fmt.Fprintf(&b, "%s (model %s): %s\n", cfg.ID, cfg.Model, cfg.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Tools) delegateDestroy(args map[string]interface{}) (string, error) {
	var req delegateDestroyRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	if req.ID == "" {
		return "", fmt.Errorf("delegate_destroy requires id")
	}
	if err := t.registry.Destroy(req.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Delegated agent %s released.", req.ID), nil
}

func (t *Tools) delegateList() (string, error) {
	ids := t.registry.ListActive()
	if len(ids) == 0 {
		return "No active delegated agents.", nil
	}
	return strings.Join(ids, "\n"), nil
}

func (t *Tools) noteSave(args map[string]interface{}) (string, error) {
	var req noteSaveRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	if req.Name == "" || req.Content == "" {
		return "", fmt.Errorf("note_save requires name and content")
	}
	slug, err := t.notes.Save(req.Name, req.Content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved note %s.", slug), nil
}

func (t *Tools) noteSearch(args map[string]interface{}) (string, error) {
	var req noteSearchRequest
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	matches := t.notes.Search(req.Query)
	if len(matches) == 0 {
		return "No matching notes.", nil
	}
	var b strings.Builder
	for _, n := range matches {
		fmt.Fprintf(&b, "## %s\n%s\n\n", n.Name, n.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Tools) usageReport() (string, error) {
	return t.ledger.Report(), nil
}
