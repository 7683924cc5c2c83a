// Package status implements "gazpacho status", a live bubbletea dashboard
// over HistoryStore's read paths: recent task runs, their completion
// state, and a fuzzy filter box for narrowing by task name. Grounded on
// the teacher pack's only bubbletea dashboard (joaofoltran-pg-migrator's
// internal/tui), adapted from a single-collector progress view to a
// polling table of task runs.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/muesli/reflow/wordwrap"
	"github.com/sahilm/fuzzy"

	"github.com/andoriyu/gazpacho/internal/history"
)

// History is the subset of *history.Store the dashboard polls.
type History interface {
	RecentTaskRuns(ctx context.Context, limit int) ([]history.TaskRunSummary, error)
}

const pollInterval = 2 * time.Second

type runsMsg struct {
	runs []history.TaskRunSummary
	err  error
}

// Model is the bubbletea model backing the status dashboard.
type Model struct {
	store  History
	filter textinput.Model

	runs   []history.TaskRunSummary
	lasErr error

	width  int
	height int
	ready  bool
}

func NewModel(store History) Model {
	ti := textinput.New()
	ti.Placeholder = "filter by task name"
	ti.Prompt = "/ "
	return Model{store: store, filter: ti}
}

func (m Model) Init() (tea.Model, tea.Cmd) {
	return m, pollRuns(m.store)
}

func pollRuns(store History) tea.Cmd {
	return func() tea.Msg {
		runs, err := store.RecentTaskRuns(context.Background(), 50)
		return runsMsg{runs: runs, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.filter.Focused() {
				return m, tea.Quit
			}
		case "esc":
			m.filter.SetValue("")
			m.filter.Blur()
			return m, nil
		case "/":
			if !m.filter.Focused() {
				m.filter.Focus()
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case runsMsg:
		m.runs = msg.runs
		m.lasErr = msg.err
		return m, tick()

	case tickMsg:
		return m, pollRuns(m.store)
	}

	if m.filter.Focused() {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "loading task history...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Width(m.width).Render(" gazpacho status"))
	b.WriteString("\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	if m.lasErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("history read failed: %v", m.lasErr)))
		b.WriteString("\n")
	}

	for _, run := range m.filteredRuns() {
		b.WriteString(renderRun(run, m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("/ filter  esc clear  q quit"))
	return wordwrap.String(b.String(), max(m.width, 20))
}

func (m Model) filteredRuns() []history.TaskRunSummary {
	query := strings.TrimSpace(m.filter.Value())
	if query == "" {
		return m.runs
	}

	names := make([]string, len(m.runs))
	for i, r := range m.runs {
		names[i] = r.Task
	}
	matches := fuzzy.Find(query, names)

	out := make([]history.TaskRunSummary, len(matches))
	for i, match := range matches {
		out[i] = m.runs[match.Index]
	}
	return out
}

func renderRun(run history.TaskRunSummary, width int) string {
	style := stateStyles[run.State]
	age := time.Since(run.StartedAt).Truncate(time.Second)
	line := fmt.Sprintf("%-20s %-22s started %s ago", run.Task, run.State, age)
	return style.Width(width).Render(line)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the dashboard in fullscreen mode.
func Run(store History) error {
	p := tea.NewProgram(NewModel(store), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}
