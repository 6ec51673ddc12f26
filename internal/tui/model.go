// Package tui provides the live terminal monitor for a running daemon.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/okulovsky/tgweb-automation/internal/api"
	"github.com/okulovsky/tgweb-automation/internal/orchestrator"
)

const pollInterval = 2 * time.Second

// Model is the Bubble Tea model for the monitor.
type Model struct {
	client *Client

	status   *api.StatusResponse
	selected int
	err      error

	width  int
	height int

	keys    keyMap
	styles  Styles
	spin    spinner.Model
	loading bool
}

// New creates a monitor model polling the daemon at base.
func New(base string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return Model{
		client:  NewClient(base),
		keys:    defaultKeyMap(),
		styles:  DefaultStyles(),
		spin:    sp,
		loading: true,
	}
}

type statusMsg struct{ status *api.StatusResponse }
type errMsg struct{ err error }
type tickMsg struct{}
type cancelledMsg struct{ err error }

func (m Model) fetchStatus() tea.Msg {
	st, err := m.client.Status()
	if err != nil {
		return errMsg{err: err}
	}
	return statusMsg{status: st}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, m.spin.Tick, m.fetchStatus, tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStatus, tick())

	case statusMsg:
		m.status = msg.status
		sort.Slice(m.status.Jobs, func(i, j int) bool {
			return m.status.Jobs[i].CreatedAt.After(m.status.Jobs[j].CreatedAt)
		})
		m.err = nil
		m.loading = false
		if n := len(m.status.Jobs); m.selected >= n && n > 0 {
			m.selected = n - 1
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		m.loading = false
		return m, nil

	case cancelledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		return m, m.fetchStatus

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}

	case key.Matches(msg, m.keys.Down):
		if m.status != nil && m.selected < len(m.status.Jobs)-1 {
			m.selected++
		}

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchStatus

	case key.Matches(msg, m.keys.Cancel):
		if job, ok := m.selectedJob(); ok {
			id := job.JobID
			return m, func() tea.Msg {
				return cancelledMsg{err: m.client.Cancel(id)}
			}
		}
	}
	return m, nil
}

func (m Model) selectedJob() (orchestrator.Snapshot, bool) {
	if m.status == nil || m.selected >= len(m.status.Jobs) {
		return orchestrator.Snapshot{}, false
	}
	return m.status.Jobs[m.selected], true
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("tgwebd monitor"))
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(m.styles.Muted.Render(m.spin.View() + " connecting..."))
		b.WriteString("\n")
		return b.String()
	}
	if m.err != nil {
		b.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.status == nil {
		return b.String()
	}

	sum := m.status.Summary
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf(
		"jobs %d  slots %d/%d  sessions %d  up %s",
		sum.Jobs, sum.SlotsInUse, sum.SlotsTotal, m.status.Sessions, m.status.Uptime)))
	b.WriteString("\n\n")

	jobs := m.status.Jobs
	if len(jobs) == 0 {
		b.WriteString(m.styles.Muted.Render("  no jobs"))
		b.WriteString("\n")
	}
	for i, job := range jobs {
		line := fmt.Sprintf("%-36s  %-15s  %-15s  %s",
			job.JobID,
			orchestrator.RedactPhone(job.Phone),
			m.renderStatus(job),
			m.renderDetail(job))

		style := m.styles.Item
		if i == m.selected {
			style = m.styles.SelectedItem
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.StatusBar.Render(
		"↑/↓ select   c cancel   r refresh   q quit"))
	b.WriteString("\n")

	return b.String()
}

// renderStatus keys off the wire-level status string; the typed state does
// not travel over JSON.
func (m Model) renderStatus(job orchestrator.Snapshot) string {
	switch job.Status {
	case "waiting_for_otp", "waiting_for_2fa":
		return m.styles.Waiting.Render(job.Status)
	case "completed":
		return m.styles.Completed.Render(job.Status)
	case "failed", "expired":
		return m.styles.Failed.Render(job.Status)
	default:
		return m.styles.Muted.Render(job.Status)
	}
}

func (m Model) renderDetail(job orchestrator.Snapshot) string {
	if job.Err != nil {
		return m.styles.Failed.Render(job.Err.Message)
	}
	if job.Deadline != nil {
		left := time.Until(*job.Deadline).Round(time.Second)
		if left > 0 {
			return m.styles.Muted.Render(fmt.Sprintf("expires in %s", left))
		}
	}
	return ""
}

// Run starts the monitor against a daemon base URL and blocks until exit.
func Run(base string) error {
	p := tea.NewProgram(New(base))
	_, err := p.Run()
	return err
}
