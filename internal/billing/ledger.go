package billing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

// DelegatedUsage attributes units consumed by one delegated session within
// a conversation. It is additive to the primary tally, never folded into it.
type DelegatedUsage struct {
	AgentID  string  `json:"agent_id"`
	Model    string  `json:"model"`
	Requests int     `json:"requests"`
	Units    float64 `json:"units"`
}

// ConversationUsage accumulates consumption for one conversation. A
// conversation opens implicitly on the first recorded request and closes
// when the runtime reports the session has gone idle.
type ConversationUsage struct {
	StartTime time.Time                  `json:"start_time"`
	EndTime   time.Time                  `json:"end_time,omitempty"`
	Model     string                     `json:"model"`
	Requests  int                        `json:"requests"`
	Units     float64                    `json:"units"`
	Delegated map[string]*DelegatedUsage `json:"delegated,omitempty"`
}

// clone returns a deep copy for reporting.
func (c *ConversationUsage) clone() *ConversationUsage {
	out := *c
	if c.Delegated != nil {
		out.Delegated = make(map[string]*DelegatedUsage, len(c.Delegated))
		for k, v := range c.Delegated {
			cp := *v
			out.Delegated[k] = &cp
		}
	}
	return &out
}

// SessionUsage holds lifetime totals for one primary-session lifetime.
type SessionUsage struct {
	TotalUnits    float64             `json:"total_units"`
	TotalRequests int                 `json:"total_requests"`
	History       []ConversationUsage `json:"history"`
}

// Ledger owns all usage state. It is the sole writer of ConversationUsage
// and SessionUsage and is read-only with respect to the catalog.
type Ledger struct {
	mu       sync.Mutex
	catalog  *Catalog
	open     *ConversationUsage
	lifetime SessionUsage
	audit    *AuditLog
	logger   *logging.Logger
}

// NewLedger creates a ledger over the given catalog. The audit log may be
// nil, in which case recorded requests are not persisted.
func NewLedger(catalog *Catalog, audit *AuditLog) *Ledger {
	return &Ledger{
		catalog: catalog,
		audit:   audit,
		logger:  logging.New().WithComponent("billing"),
	}
}

// RecordRequest charges one primary request against the active model,
// opening a new conversation if none is open. Every recorded request also
// appends one audit-log entry.
func (l *Ledger) RecordRequest(model string) {
	mult := l.catalog.Resolve(model)

	l.mu.Lock()
	defer l.mu.Unlock()

	conv := l.ensureOpen(model)
	conv.Requests++
	conv.Units += mult
	l.lifetime.TotalRequests++
	l.lifetime.TotalUnits += mult
	l.appendAudit(conv, model, mult)

	l.logger.Debug("request recorded", map[string]interface{}{
		"model":      model,
		"multiplier": mult,
		"requests":   conv.Requests,
		"units":      conv.Units,
	})
}

// RecordDelegated charges one request to a delegated session. The units are
// attributed to the delegated identifier as a sub-entry of the open
// conversation and added to lifetime totals, never to the primary tally.
func (l *Ledger) RecordDelegated(agentID, model string) {
	mult := l.catalog.Resolve(model)

	l.mu.Lock()
	defer l.mu.Unlock()

	conv := l.ensureOpen(model)
	if conv.Delegated == nil {
		conv.Delegated = make(map[string]*DelegatedUsage)
	}
	du := conv.Delegated[agentID]
	if du == nil {
		du = &DelegatedUsage{AgentID: agentID, Model: model}
		conv.Delegated[agentID] = du
	}
	du.Requests++
	du.Units += mult
	l.lifetime.TotalRequests++
	l.lifetime.TotalUnits += mult
}

// SetExcerpt tags the next audit entry with the triggering message excerpt.
func (l *Ledger) SetExcerpt(text string) {
	if l.audit != nil {
		l.audit.SetExcerpt(text)
	}
}

// appendAudit logs one audit line for a just-recorded request, snapshotting
// the open conversation's running totals. Caller must hold l.mu.
func (l *Ledger) appendAudit(conv *ConversationUsage, model string, mult float64) {
	if l.audit == nil {
		return
	}
	entry := AuditEntry{
		Timestamp:  time.Now(),
		Model:      model,
		Multiplier: mult,
		Requests:   conv.Requests,
		Units:      conv.Units,
		Duration:   time.Since(conv.StartTime).Round(time.Millisecond).String(),
	}
	if len(conv.Delegated) > 0 {
		entry.Delegated = make(map[string]*DelegatedUsage, len(conv.Delegated))
		for k, v := range conv.Delegated {
			cp := *v
			entry.Delegated[k] = &cp
		}
	}
	if err := l.audit.Append(entry); err != nil {
		l.logger.Warn("failed to append usage audit entry", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// ensureOpen returns the open conversation, creating one if needed.
// Caller must hold l.mu.
func (l *Ledger) ensureOpen(model string) *ConversationUsage {
	if l.open == nil {
		l.open = &ConversationUsage{
			StartTime: time.Now(),
			Model:     model,
		}
	}
	return l.open
}

// EndConversation closes the open conversation, appends it to history and
// returns a copy for reporting. Returns nil when nothing is open, so
// repeated calls are harmless.
func (l *Ledger) EndConversation() *ConversationUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open == nil {
		return nil
	}
	l.open.EndTime = time.Now()
	closed := l.open
	l.lifetime.History = append(l.lifetime.History, *closed)
	l.open = nil
	return closed.clone()
}

// Lifetime returns a copy of the session-lifetime totals.
func (l *Ledger) Lifetime() SessionUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.lifetime
	out.History = make([]ConversationUsage, len(l.lifetime.History))
	copy(out.History, l.lifetime.History)
	return out
}

// Report renders the open conversation, if any, plus lifetime totals. Used
// for on-demand usage queries while a conversation is still running.
func (l *Ledger) Report() string {
	l.mu.Lock()
	var open *ConversationUsage
	if l.open != nil {
		open = l.open.clone()
	}
	lifetime := l.lifetime
	l.mu.Unlock()

	var b strings.Builder
	if open != nil {
		mult := l.catalog.Resolve(open.Model)
		fmt.Fprintf(&b, "Current conversation: %s (x%g): %d request(s), %.1f unit(s)",
			open.Model, mult, open.Requests, open.Units)
		if len(open.Delegated) > 0 {
			ids := make([]string, 0, len(open.Delegated))
			for id := range open.Delegated {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				du := open.Delegated[id]
				fmt.Fprintf(&b, "\n  agent %s: %s, %d request(s), %.1f unit(s)",
					du.AgentID, du.Model, du.Requests, du.Units)
			}
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No open conversation.\n")
	}
	fmt.Fprintf(&b, "Lifetime: %d request(s), %.1f unit(s) across %d conversation(s)",
		lifetime.TotalRequests, lifetime.TotalUnits, len(lifetime.History))
	return b.String()
}

// Summary renders a closed conversation as a human-readable usage report.
// It is a pure function of the conversation and the ledger's catalog and
// lifetime totals.
func (l *Ledger) Summary(conv *ConversationUsage) string {
	if conv == nil {
		return ""
	}
	mult := l.catalog.Resolve(conv.Model)
	elapsed := conv.EndTime.Sub(conv.StartTime).Round(time.Second)

	var b strings.Builder
	fmt.Fprintf(&b, "Usage: %s (x%g): %d request(s), %.1f unit(s), %s",
		conv.Model, mult, conv.Requests, conv.Units, elapsed)

	if len(conv.Delegated) > 0 {
		ids := make([]string, 0, len(conv.Delegated))
		for id := range conv.Delegated {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			du := conv.Delegated[id]
			fmt.Fprintf(&b, "\n  agent %s: %s, %d request(s), %.1f unit(s)",
				du.AgentID, du.Model, du.Requests, du.Units)
		}
	}

	lifetime := l.Lifetime()
	convTotal := conv.Units
	for _, du := range conv.Delegated {
		convTotal += du.Units
	}
	if lifetime.TotalUnits > convTotal {
		fmt.Fprintf(&b, "\nLifetime: %d request(s), %.1f unit(s)",
			lifetime.TotalRequests, lifetime.TotalUnits)
	}
	return b.String()
}
