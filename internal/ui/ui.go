package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	ResultsView
)

const refreshInterval = time.Second

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	coord       *tasks.Coordinator
	updates     <-chan tasks.Update
	unsubscribe func()
	view        ViewState
	state       tasks.State
	selected    int
	width       int
	height      int
	results     list.Model
	progress    progress.Model
	spinner     spinner.Model
	help        help.Model
	keys        keyMap
	err         error
	closed      bool
}

// NewModel creates a dashboard subscribed to coord.
func NewModel(ctx context.Context, coord *tasks.Coordinator) *Model {
	updates, unsubscribe := coord.Subscribe(128)

	results := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	results.Title = "Completed"

	m := &Model{
		ctx:         ctx,
		coord:       coord,
		updates:     updates,
		unsubscribe: unsubscribe,
		view:        DashboardView,
		results:     results,
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:        help.New(),
		keys:        newKeyMap(),
	}
	m.refresh()
	return m
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, coord *tasks.Coordinator) error {
	m := NewModel(ctx, coord)
	defer m.unsubscribe()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// Init starts the spinner, the update subscription and the periodic refresh.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate(), tickRefresh())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.results.SetSize(msg.Width-4, msg.Height-6)
		m.progress.Width = max(10, min(40, msg.Width-50))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgCoordinatorUpdate:
		m.refresh()
		return m, m.waitForUpdate()
	case MsgSubscriptionClosed:
		m.closed = true
		return m, nil
	case MsgRefreshTick:
		m.refresh()
		return m, tickRefresh()
	case MsgAPIChecked, MsgControlDone:
		m.err = msg.errData()
		m.refresh()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.unsubscribe()
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.tab):
		if m.view == DashboardView {
			m.view = ResultsView
		} else {
			m.view = DashboardView
		}
		return m, nil
	}

	if m.view == ResultsView {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.down):
		if m.selected < len(m.state.ActiveBatches)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.pause):
		if id := m.selectedBatch(); id != "" {
			return m, m.batchControl(func(t *tasks.BatchTracker) error {
				_, err := t.Toggle(id)
				return err
			})
		}
	case key.Matches(msg, m.keys.refresh):
		if id := m.selectedBatch(); id != "" {
			return m, m.batchControl(func(t *tasks.BatchTracker) error { return t.Refresh(id) })
		}
	case key.Matches(msg, m.keys.check):
		return m, m.checkAPI()
	}
	return m, nil
}

// refresh replaces the local snapshot and clamps the batch cursor.
func (m *Model) refresh() {
	m.state = m.coord.Snapshot()
	if m.selected >= len(m.state.ActiveBatches) {
		m.selected = max(0, len(m.state.ActiveBatches)-1)
	}
	m.results.SetItems(resultItems(m.state))
}

func (m *Model) selectedBatch() string {
	if m.selected < len(m.state.ActiveBatches) {
		return m.state.ActiveBatches[m.selected].BatchID
	}
	return ""
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return subscriptionClosedMsg()
		}
		return coordinatorUpdateMsg(u)
	}
}

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshTickMsg() })
}

func (m *Model) checkAPI() tea.Cmd {
	return func() tea.Msg {
		return apiCheckedMsg(m.coord.CheckAPI(m.ctx))
	}
}

func (m *Model) batchControl(fn func(*tasks.BatchTracker) error) tea.Cmd {
	return func() tea.Msg {
		return controlDoneMsg(fn(m.coord.Batches()))
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case ResultsView:
		body = m.results.View()
	default:
		body = m.renderDashboard()
	}

	var footer string
	if m.err != nil {
		footer = styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}
	if m.closed {
		footer += styles.warn.Render("Coordinator stopped") + "\n"
	}
	return fmt.Sprintf("%s\n\n%s%s", body, footer, m.help.View(m.keys))
}

func (m *Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Audio2Sub"))
	b.WriteString("\n")
	b.WriteString(m.renderAPI())
	b.WriteString("\n\n")

	b.WriteString(styles.heading.Render(fmt.Sprintf("Active tasks (%d)", len(m.state.ActiveTasks))))
	b.WriteString("\n")
	for _, t := range m.state.ActiveTasks {
		b.WriteString(m.renderTask(t))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.heading.Render(fmt.Sprintf("Active batches (%d)", len(m.state.ActiveBatches))))
	b.WriteString("\n")
	paused := make(map[string]tasks.BatchControl, len(m.state.BatchControls))
	for _, c := range m.state.BatchControls {
		paused[c.BatchID] = c
	}
	for i, batch := range m.state.ActiveBatches {
		b.WriteString(m.renderBatch(batch, paused[batch.BatchID], i == m.selected))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.help.Render(fmt.Sprintf("%d transcriptions and %d batch summaries completed (tab to browse)",
		len(m.state.CompletedResults), len(m.state.CompletedBatches))))
	b.WriteString("\n")

	if len(m.state.Unreported) > 0 {
		b.WriteString(styles.warn.Render("Summary unavailable for: " + strings.Join(m.state.Unreported, ", ")))
		b.WriteString("\n")
	}

	if len(m.state.Notifications) > 0 {
		b.WriteString("\n")
		for _, n := range m.state.Notifications {
			b.WriteString(styles.severity(n.Severity).Render("• " + n.Message))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m *Model) renderAPI() string {
	if !m.state.APIHealthy {
		return styles.err.Render("● API unavailable") + styles.help.Render("  press c to check")
	}

	status := "● API healthy"
	if h := m.state.Health; h != nil && h.Version != "" {
		status += " v" + h.Version
	}
	if md := m.state.Models; md != nil && md.DefaultModel != "" {
		status += fmt.Sprintf(" (default model %s)", md.DefaultModel)
	}
	return styles.ok.Render(status)
}

func (m *Model) renderTask(t models.Task) string {
	line := fmt.Sprintf("%s %s  %s", m.spinner.View(), t.Filename, t.Status)
	if t.ProgressMessage != "" {
		line += "  " + t.ProgressMessage
	}
	if t.Error != "" {
		line += "  " + styles.warn.Render(t.Error)
	}
	return line
}

func (m *Model) renderBatch(b models.Batch, control tasks.BatchControl, selected bool) string {
	cursor := "  "
	if selected {
		cursor = styles.selected.Render(">") + " "
	}

	done := b.CompletedFiles + b.FailedFiles
	line := fmt.Sprintf("%s%s %s %d/%d", cursor, b.BatchID, m.progress.ViewAs(b.ProgressPercentage/100), done, b.TotalFiles)
	if b.FailedFiles > 0 {
		line += styles.err.Render(fmt.Sprintf(" (%d failed)", b.FailedFiles))
	}
	if b.ConcurrentLimit > 0 {
		line += styles.help.Render(fmt.Sprintf(" limit %d", b.ConcurrentLimit))
	}
	if control.Paused {
		line += styles.warn.Render(" paused")
	}
	if control.LastError != "" {
		line += "\n    " + styles.warn.Render(control.LastError)
	}
	return line
}
