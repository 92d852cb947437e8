package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	detailStyle = lipgloss.NewStyle().PaddingLeft(2)
)

type resultMsg struct {
	details []string
	err     error
}

type tickMsg time.Time

type model struct {
	title   string
	timeout time.Duration
	action  func(context.Context) ([]string, error)

	started time.Time
	elapsed time.Duration
	details []string
	err     error
	done    bool
}

func newModel(title string, timeout time.Duration, action func(context.Context) ([]string, error)) model {
	return model{title: title, timeout: timeout, action: action, started: time.Now()}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.runAction(), tick())
}

func (m model) runAction() tea.Cmd {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	return func() tea.Msg {
		defer cancel()
		details, err := m.action(ctx)
		return resultMsg{details: details, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err = context.Canceled
			m.done = true
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.started)
		return m, tick()
	case resultMsg:
		m.details = msg.details
		m.err = msg.err
		m.elapsed = time.Since(m.started)
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	elapsed := mutedStyle.Render(fmt.Sprintf("(%s)", m.elapsed.Round(100*time.Millisecond)))
	switch {
	case !m.done:
		fmt.Fprintf(&b, "running... %s\n", elapsed)
		return b.String()
	case m.err != nil:
		fmt.Fprintf(&b, "%s %s: %v\n", failStyle.Render("FAILED"), elapsed, m.err)
	default:
		fmt.Fprintf(&b, "%s %s\n", okStyle.Render("OK"), elapsed)
	}
	for _, d := range m.details {
		b.WriteString(detailStyle.Render("- " + d))
		b.WriteString("\n")
	}
	return b.String()
}

// Run executes action under an interactive progress view and returns its result.
func Run(title string, timeout time.Duration, action func(context.Context) ([]string, error)) ([]string, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	final, err := tea.NewProgram(newModel(title, timeout, action)).Run()
	if err != nil {
		return nil, err
	}
	res := final.(model)
	return res.details, res.err
}
