package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

// senderHeader carries the sender identity on inbound messages.
const senderHeader = "Sender"

// NATSConfig configures the broker-backed transport.
type NATSConfig struct {
	URL           string // broker URL, e.g. nats://localhost:4222
	SubjectPrefix string // e.g. "aide.chat" -> aide.chat.inbound / aide.chat.outbound
	Operator      string // only this sender identity is accepted; "" accepts any
	ChooseTimeout time.Duration
}

// NATS bridges the orchestrator to a chat frontend over a NATS broker. The
// frontend publishes operator text to <prefix>.inbound and subscribes to
// <prefix>.outbound for replies.
type NATS struct {
	cfg     NATSConfig
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *logging.Logger
	inbound chan Message

	mu     sync.Mutex
	// chooser, when set, steals the next inbound message as a selection reply.
	chooser chan Message
	closed  bool
}

// NewNATS connects to the broker and starts the inbound subscription.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.ChooseTimeout == 0 {
		cfg.ChooseTimeout = 2 * time.Minute
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("aide"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}

	t := &NATS{
		cfg:     cfg,
		conn:    conn,
		logger:  logging.New().WithComponent("transport"),
		inbound: make(chan Message, 64),
	}

	sub, err := conn.Subscribe(cfg.SubjectPrefix+".inbound", t.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to inbound subject: %w", err)
	}
	t.sub = sub
	return t, nil
}

// handle filters inbound messages to the configured operator and routes
// them either to a pending Choose call or to the inbound channel.
func (t *NATS) handle(msg *nats.Msg) {
	sender := msg.Header.Get(senderHeader)
	if t.cfg.Operator != "" && sender != t.cfg.Operator {
		t.logger.Warn("dropping message from unknown sender", map[string]interface{}{
			"sender": sender,
		})
		return
	}

	text := strings.TrimSpace(string(msg.Data))
	if text == "" {
		return
	}
	t.route(Message{Sender: sender, Text: text})
}

// route delivers a message while holding the mutex so Close cannot close
// the inbound channel between the closed check and the send. Both sends
// are non-blocking, so the lock is never held across a wait.
func (t *NATS) route(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if t.chooser != nil {
		select {
		case t.chooser <- m:
			return
		default:
		}
	}
	select {
	case t.inbound <- m:
	default:
		t.logger.Warn("inbound queue full, dropping message", nil)
	}
}

// Inbound delivers accepted operator messages in arrival order.
func (t *NATS) Inbound() <-chan Message {
	return t.inbound
}

// Send publishes text to the outbound subject, split at the message limit.
func (t *NATS) Send(ctx context.Context, text string) error {
	for _, chunk := range Split(text, MaxMessageLen) {
		if err := t.conn.Publish(t.cfg.SubjectPrefix+".outbound", []byte(chunk)); err != nil {
			return fmt.Errorf("publishing outbound message: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Choose sends a numbered option list and waits for the operator to reply
// with a number or the option text itself.
func (t *NATS) Choose(ctx context.Context, prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("no options to choose from")
	}

	var b strings.Builder
	b.WriteString(prompt + "\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	b.WriteString("Reply with a number.")

	replies := make(chan Message, 1)
	t.mu.Lock()
	t.chooser = replies
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.chooser = nil
		t.mu.Unlock()
	}()

	if err := t.Send(ctx, b.String()); err != nil {
		return 0, err
	}

	timer := time.NewTimer(t.cfg.ChooseTimeout)
	defer timer.Stop()
	for {
		select {
		case m := <-replies:
			if idx, ok := parseChoice(m.Text, options); ok {
				return idx, nil
			}
			if err := t.Send(ctx, fmt.Sprintf("Please reply with a number between 1 and %d.", len(options))); err != nil {
				return 0, err
			}
		case <-timer.C:
			return 0, fmt.Errorf("selection timed out after %s", t.cfg.ChooseTimeout)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// parseChoice accepts a 1-based number or a case-insensitive option match.
func parseChoice(text string, options []string) (int, bool) {
	text = strings.TrimSpace(text)
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return 0, false
	}
	for i, opt := range options {
		if strings.EqualFold(text, opt) {
			return i, true
		}
	}
	return 0, false
}

// stopRouting marks the transport closed and closes the inbound channel.
// Returns false if routing was already stopped.
func (t *NATS) stopRouting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.closed = true
	close(t.inbound)
	return true
}

// Close drains the subscription and closes the connection.
func (t *NATS) Close() error {
	if !t.stopRouting() {
		return nil
	}

	if err := t.sub.Unsubscribe(); err != nil {
		t.logger.Warn("unsubscribe failed", map[string]interface{}{"error": err.Error()})
	}
	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}
