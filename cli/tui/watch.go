package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/hopper/types"
)

// RefreshFunc fetches the latest status rows for the watched operation.
type RefreshFunc func() (*types.IngestOperation, error)

// tickMsg fires when the poll interval elapses.
type tickMsg time.Time

// refreshedMsg carries the result of one refresh.
type refreshedMsg struct {
	op  *types.IngestOperation
	err error
}

// WatchModel is a Bubble Tea model that polls an ingestion operation and
// renders its status rows until every row is terminal.
type WatchModel struct {
	refresh   RefreshFunc
	interval  time.Duration
	op        *types.IngestOperation
	err       error
	refreshed time.Time
	width     int
	height    int
	quitting  bool
}

// NewWatchModel creates a watch model. The operation passed in renders
// immediately; refresh runs after every interval tick.
func NewWatchModel(op *types.IngestOperation, refresh RefreshFunc, interval time.Duration) WatchModel {
	return WatchModel{
		refresh:  refresh,
		interval: interval,
		op:       op,
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	if m.refresh == nil || (m.op != nil && m.op.Done()) {
		return nil
	}
	return m.tick()
}

func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m WatchModel) doRefresh() tea.Cmd {
	if m.refresh == nil {
		return nil
	}
	refresh := m.refresh
	return func() tea.Msg {
		op, err := refresh()
		return refreshedMsg{op: op, err: err}
	}
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, watchKeys.Refresh):
			return m, m.doRefresh()
		}

	case tickMsg:
		return m, m.doRefresh()

	case refreshedMsg:
		m.err = msg.err
		if msg.op != nil {
			m.op = msg.op
		}
		m.refreshed = time.Now()
		// Stop polling once every row is terminal.
		if m.op != nil && m.op.Done() {
			return m, nil
		}
		return m, m.tick()
	}

	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}
	if m.op == nil {
		return HelpStyle.Render("Waiting for the first refresh...")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Ingestion Status"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Operation:", m.op.ID.String()},
		{"Method:", string(m.op.Method)},
		{"Destination:", m.op.Database + "." + m.op.Table},
		{"Started:", m.op.StartTime.Format("2006-01-02 15:04:05")},
	}
	if m.op.FellBackToQueued {
		rows = append(rows, []string{"Fallback:", "streaming fell back to queued"})
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]), ValueStyle.Render(row[1])))
	}
	b.WriteString("\n")

	c := m.op.Counts()
	boxes := []string{
		renderStatBox("In Progress", c.InProgress, warningColor),
		renderStatBox("Succeeded", c.Succeeded, successColor),
		renderStatBox("Failed", c.Failed, errorColor),
		renderStatBox("Canceled", c.Canceled, mutedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	b.WriteString(m.renderSources())

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("refresh failed: %v", m.err)))
		b.WriteString("\n")
	}

	var status string
	switch {
	case m.op.Done():
		status = "All sources settled."
	case m.refreshed.IsZero():
		status = fmt.Sprintf("Polling every %s.", m.interval)
	default:
		status = fmt.Sprintf("Last refreshed %s, polling every %s.",
			m.refreshed.Format("15:04:05"), m.interval)
	}
	b.WriteString(HelpStyle.Render(status + " Press q or Ctrl+C to quit, r to refresh."))

	return b.String()
}

func (m WatchModel) renderSources() string {
	if len(m.op.Statuses) == 0 {
		return ValueStyle.Render("No status rows recorded for this operation.") + "\n"
	}

	var b strings.Builder
	b.WriteString(SectionStyle.Render("Sources"))
	b.WriteString("\n")
	for _, row := range m.op.Statuses {
		state := string(row.Status)
		b.WriteString(fmt.Sprintf("%s  %s",
			ValueStyle.Render(row.IngestionSourceID),
			StateStyle(state).Render(fmt.Sprintf("%-18s", state))))
		if row.ErrorCode != "" {
			b.WriteString("  " + ErrorStyle.Render(row.ErrorCode))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var watchKeys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}

// RunWatch runs the watch view until the user quits.
func RunWatch(op *types.IngestOperation, refresh RefreshFunc, interval time.Duration) error {
	model := NewWatchModel(op, refresh, interval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderWatchStatic renders one frame without running the program (for
// non-TTY fallback).
func RenderWatchStatic(op *types.IngestOperation) string {
	model := NewWatchModel(op, nil, 0)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
