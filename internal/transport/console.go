package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	pickSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")).
				Bold(true)

	pickNormalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	pickHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// consoleWidth bounds outbound wrapping on the terminal.
const consoleWidth = 100

// Console is a terminal transport: stdin lines in, styled stdout out. Used
// when no chat broker is configured.
type Console struct {
	in       io.Reader
	out      io.Writer
	sender   string
	inbound  chan Message
	closeMu  sync.Mutex
	closed   bool
	stopScan chan struct{}
}

// NewConsole builds a console transport reading stdin and writing stdout.
func NewConsole(sender string) *Console {
	c := &Console{
		in:       os.Stdin,
		out:      os.Stdout,
		sender:   sender,
		inbound:  make(chan Message, 16),
		stopScan: make(chan struct{}),
	}
	go c.scan()
	return c
}

func (c *Console) scan() {
	defer close(c.inbound)
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.inbound <- Message{Sender: c.sender, Text: line}:
		case <-c.stopScan:
			return
		}
	}
}

// Inbound delivers stdin lines as operator messages.
func (c *Console) Inbound() <-chan Message {
	return c.inbound
}

// Send writes text to the terminal, word-wrapped, split at the message
// boundary like any other transport.
func (c *Console) Send(ctx context.Context, text string) error {
	for _, chunk := range Split(text, MaxMessageLen) {
		wrapped := wordwrap.String(chunk, consoleWidth)
		if _, err := fmt.Fprintln(c.out, replyStyle.Render(wrapped)); err != nil {
			return fmt.Errorf("writing to console: %w", err)
		}
	}
	return nil
}

// Choose runs an interactive picker over the terminal.
func (c *Console) Choose(ctx context.Context, prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("no options to choose from")
	}
	model := pickerModel{prompt: prompt, options: options}
	prog := tea.NewProgram(model, tea.WithContext(ctx))
	final, err := prog.Run()
	if err != nil {
		return 0, fmt.Errorf("running picker: %w", err)
	}
	picked, ok := final.(pickerModel)
	if !ok || picked.aborted {
		return 0, fmt.Errorf("selection aborted")
	}
	return picked.cursor, nil
}

// Close stops the stdin reader.
func (c *Console) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stopScan)
	}
	return nil
}

// pickerModel is a minimal single-select list.
type pickerModel struct {
	prompt  string
	options []string
	cursor  int
	done    bool
	aborted bool
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptStyle.Render(m.prompt) + "\n\n")
	for i, opt := range m.options {
		if i == m.cursor {
			b.WriteString(pickSelectedStyle.Render("> "+opt) + "\n")
		} else {
			b.WriteString(pickNormalStyle.Render("  "+opt) + "\n")
		}
	}
	b.WriteString("\n" + pickHintStyle.Render("↑/↓ to move, enter to select, q to quit"))
	return b.String()
}
