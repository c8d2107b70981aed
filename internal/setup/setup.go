// Package setup provides the interactive setup wizard for the assistant.
package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/aide/internal/config"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))
)

// Step represents a setup wizard step.
type Step int

const (
	StepTransport Step = iota
	StepNATSURL
	StepOperator
	StepStorage
	StepDone
)

var transportOptions = []string{"console", "nats"}

// Model is the wizard's bubbletea model.
type Model struct {
	step   Step
	cursor int
	input  textinput.Model
	cfg    *config.Config

	aborted bool
	err     error
}

// New creates the wizard model seeded with defaults.
func New() Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 60
	return Model{cfg: config.New(), input: ti}
}

func (m Model) Init() tea.Cmd { return nil }

// Update drives the wizard state machine.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	}

	switch m.step {
	case StepTransport:
		return m.updateChoice(key)
	case StepNATSURL, StepOperator, StepStorage:
		return m.updateInput(key)
	}
	return m, nil
}

func (m Model) updateChoice(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(transportOptions)-1 {
			m.cursor++
		}
	case "enter":
		m.cfg.Transport.Kind = transportOptions[m.cursor]
		if m.cfg.Transport.Kind == "nats" {
			return m.enterInput(StepNATSURL, m.cfg.Transport.URL), textinput.Blink
		}
		return m.enterInput(StepOperator, ""), textinput.Blink
	}
	return m, nil
}

func (m Model) enterInput(step Step, value string) Model {
	m.step = step
	m.input.SetValue(value)
	m.input.Focus()
	return m
}

func (m Model) updateInput(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.String() == "enter" {
		value := strings.TrimSpace(m.input.Value())
		switch m.step {
		case StepNATSURL:
			if value != "" {
				m.cfg.Transport.URL = value
			}
			return m.enterInput(StepOperator, ""), textinput.Blink
		case StepOperator:
			m.cfg.Transport.Operator = value
			return m.enterInput(StepStorage, m.cfg.Storage.Path), textinput.Blink
		case StepStorage:
			if value != "" {
				m.cfg.Storage.Path = value
			}
			m.step = StepDone
			m.err = Write(m.cfg, "aide.toml")
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// View renders the current step.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("aide setup") + "\n")

	switch m.step {
	case StepTransport:
		b.WriteString(normalStyle.Render("How will you talk to the assistant?") + "\n\n")
		for i, opt := range transportOptions {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> "+opt) + "\n")
			} else {
				b.WriteString(normalStyle.Render("  "+opt) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to move, enter to select"))
	case StepNATSURL:
		b.WriteString(normalStyle.Render("NATS broker URL:") + "\n\n")
		b.WriteString(m.input.View())
	case StepOperator:
		b.WriteString(normalStyle.Render("Operator identity (empty accepts any sender):") + "\n\n")
		b.WriteString(m.input.View())
	case StepStorage:
		b.WriteString(normalStyle.Render("Storage directory:") + "\n\n")
		b.WriteString(m.input.View())
	case StepDone:
		if m.err != nil {
			b.WriteString(fmt.Sprintf("Failed to write aide.toml: %v\n", m.err))
		} else {
			b.WriteString(successStyle.Render("Wrote aide.toml") + "\n")
		}
	}
	return b.String()
}

// Write serializes the config to a TOML file.
func Write(cfg *config.Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// Run executes the wizard and reports whether a config was written.
func Run() error {
	prog := tea.NewProgram(New())
	final, err := prog.Run()
	if err != nil {
		return fmt.Errorf("running setup wizard: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return fmt.Errorf("unexpected wizard state")
	}
	if m.aborted {
		return fmt.Errorf("setup aborted")
	}
	return m.err
}
