// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tinnitus/internal/transport"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0584A"))
)

var quitKeys = key.NewBinding(key.WithKeys("q", "ctrl+c"))

// EventMsg delivers one processing event to the model.
type EventMsg transport.Event

// DoneMsg reports that the batch has finished.
type DoneMsg struct{}

type fileRow struct {
	source string
	taskID string
	status transport.Status // Empty while queued.
	output string
	depth  float64
	err    string
}

// ProgressModel is the Bubble Tea model listing the files of a batch and
// their state.
type ProgressModel struct {
	rows     []fileRow
	viewport viewport.Model
	ready    bool
	done     bool
	aborted  bool
}

// NewProgressModel creates a model with one queued row per source.
func NewProgressModel(sources []string) ProgressModel {
	rows := make([]fileRow, len(sources))
	for i, s := range sources {
		rows[i] = fileRow{source: s}
	}
	return ProgressModel{rows: rows}
}

// Init initializes the Bubble Tea model
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Aborted reports whether the user quit before the batch finished.
func (m ProgressModel) Aborted() bool {
	return m.aborted
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(msg.Height-4, 1))
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(msg.Height-4, 1)
		}
		m.viewport.SetContent(m.renderRows())

	case EventMsg:
		m.apply(transport.Event(msg))
		if m.ready {
			m.viewport.SetContent(m.renderRows())
		}

	case DoneMsg:
		m.done = true
		if m.ready {
			m.viewport.SetContent(m.renderRows())
		}
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			m.aborted = !m.done
			return m, tea.Quit
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// apply records ev on its row. The first event of a task claims the first
// unclaimed row with the same source.
func (m *ProgressModel) apply(ev transport.Event) {
	idx := -1
	for i, r := range m.rows {
		if r.taskID == ev.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, r := range m.rows {
			if r.taskID == "" && r.source == ev.SourcePath {
				idx = i
				m.rows[i].taskID = ev.TaskID
				break
			}
		}
	}
	if idx < 0 {
		m.rows = append(m.rows, fileRow{source: ev.SourcePath, taskID: ev.TaskID})
		idx = len(m.rows) - 1
	}

	row := &m.rows[idx]
	row.status = ev.Status
	row.output = ev.OutputPath
	row.depth = ev.NotchDepthDB
	row.err = ev.Error
}

// counts returns the number of finished and failed rows.
func (m ProgressModel) counts() (finished, failed int) {
	for _, r := range m.rows {
		switch r.status {
		case transport.StatusCompleted:
			finished++
		case transport.StatusFailed:
			finished++
			failed++
		}
	}
	return finished, failed
}

// View renders the UI
func (m ProgressModel) View() string {
	body := m.renderRows()
	if m.ready {
		body = m.viewport.View()
	}

	finished, failed := m.counts()
	title := titleStyle.Render(fmt.Sprintf("Processing %d/%d", finished, len(m.rows)))
	help := infoStyle.Render("q: Quit")
	if m.done {
		help = infoStyle.Render(fmt.Sprintf("Done, %d failed", failed))
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n", title, body, help)
}

func (m ProgressModel) renderRows() string {
	if len(m.rows) == 0 {
		return "No files."
	}

	var sb strings.Builder
	for _, r := range m.rows {
		switch r.status {
		case transport.StatusStarted:
			sb.WriteString(highlightStyle.Render("▶ " + r.source))
		case transport.StatusCompleted:
			line := fmt.Sprintf("✓ %s → %s", r.source, r.output)
			if r.depth != 0 {
				line += fmt.Sprintf(" (notch %.1f dB)", r.depth)
			}
			sb.WriteString(line)
		case transport.StatusFailed:
			sb.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", r.source, r.err)))
		default:
			sb.WriteString("  " + r.source)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Publisher forwards processing events to a running program.
type Publisher struct {
	program *tea.Program
}

func (p *Publisher) Publish(ev transport.Event) error {
	p.program.Send(EventMsg(ev))
	return nil
}

// Close is a no-op; the program ends with DoneMsg.
func (p *Publisher) Close() error {
	return nil
}

var _ transport.Publisher = (*Publisher)(nil)

// RunProgress shows the progress view while run processes sources. run gets
// a publisher feeding the view. Quitting the view early calls cancel; RunProgress
// always waits for run to return.
func RunProgress(sources []string, cancel context.CancelFunc, run func(transport.Publisher)) error {
	p := tea.NewProgram(NewProgressModel(sources))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		run(&Publisher{program: p})
		p.Send(DoneMsg{})
	}()

	final, err := p.Run()
	if m, ok := final.(ProgressModel); (ok && m.Aborted()) || err != nil {
		cancel()
	}
	<-finished
	return err
}
