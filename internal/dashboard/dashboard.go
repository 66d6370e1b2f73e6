// Package dashboard renders a live terminal view of an agent's pipeline by
// polling its admin status endpoint.
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"sensorsync/internal/admin"
)

// DefaultInterval is the poll cadence against the admin endpoint.
const DefaultInterval = 2 * time.Second

const maxLogLines = 500

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

type statusMsg struct{ status admin.Status }
type fetchErrMsg struct{ err error }
type tickMsg time.Time

// Model is the bubbletea model behind the status view.
type Model struct {
	url      string
	client   *http.Client
	interval time.Duration

	spinner    spinner.Model
	table      table.Model
	vp         viewport.Model
	logs       []string
	status     admin.Status
	haveStatus bool
	fetchErr   error
	lastError  string
	wrap       bool
	width      int
	height     int
}

// New builds a model polling the given admin base URL, e.g.
// "http://edge-01:8080".
func New(url string, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	cols := []table.Column{
		{Title: "Metric", Width: 24},
		{Title: "Value", Width: 32},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(9))
	return Model{
		url:      strings.TrimRight(url, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: interval,
		spinner:  sp,
		table:    t,
		vp:       viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Msg {
	resp, err := m.client.Get(m.url + "/status")
	if err != nil {
		return fetchErrMsg{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fetchErrMsg{err: fmt.Errorf("status endpoint returned %s", resp.Status)}
	}
	var status admin.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fetchErrMsg{err: err}
	}
	return statusMsg{status: status}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		h := msg.Height - m.table.Height() - 8
		if h < 1 {
			h = 1
		}
		m.vp.Height = h
		m.refreshLogs()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		case "w":
			m.wrap = !m.wrap
			m.refreshLogs()
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())
	case statusMsg:
		m.status = msg.status
		m.haveStatus = true
		m.fetchErr = nil
		m.table.SetRows(m.statusRows())
		if e := msg.status.Sync.LastError; e != "" && e != m.lastError {
			m.lastError = e
			m.appendLog(fmt.Sprintf("%s sync error: %s",
				dimStyle.Render(time.Now().Format(time.RFC3339)), e))
		}
	case fetchErrMsg:
		m.fetchErr = msg.err
		m.appendLog(fmt.Sprintf("%s fetch failed: %s",
			dimStyle.Render(time.Now().Format(time.RFC3339)), msg.err))
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshLogs()
}

func (m *Model) refreshLogs() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		wrapped := make([]string, len(lines))
		for i, l := range lines {
			wrapped[i] = wordwrap.String(l, m.vp.Width)
		}
		lines = wrapped
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func (m Model) statusRows() []table.Row {
	s := m.status
	breakerState := s.Breaker.State
	switch breakerState {
	case "closed":
		breakerState = okStyle.Render(breakerState)
	case "half_open":
		breakerState = warnStyle.Render(breakerState)
	default:
		breakerState = badStyle.Render(breakerState)
	}
	disk := fmt.Sprintf("%.1f%%", s.Disk.UtilizationPercent)
	if s.Disk.Error != "" {
		disk = badStyle.Render(s.Disk.Error)
	}
	lastSuccess := "never"
	if !s.Sync.LastSuccess.IsZero() {
		lastSuccess = s.Sync.LastSuccess.Format(time.RFC3339)
	}
	backlogAge := "empty"
	if s.Backlog.Oldest != nil {
		backlogAge = fmt.Sprintf("%s .. %s",
			s.Backlog.Oldest.Format("01-02 15:04"), s.Backlog.Newest.Format("01-02 15:04"))
	}
	return []table.Row{
		{"Device", s.DeviceID},
		{"Readings stored", fmt.Sprintf("%d", s.Backlog.Total)},
		{"Unsynced backlog", fmt.Sprintf("%d", s.Backlog.Unsynced)},
		{"Backlog span", backlogAge},
		{"Breaker", breakerState},
		{"Consecutive failures", fmt.Sprintf("%d", s.Pressure.Failures)},
		{"Poll interval", s.Pressure.PollInterval},
		{"Disk utilization", disk},
		{"Last sync success", lastSuccess},
	}
}

func (m Model) View() string {
	header := titleStyle.Render("sensorsync") + dimStyle.Render("  "+m.url)
	state := m.spinner.View() + " polling"
	if m.fetchErr != nil {
		state = offlineStyle.Render("UNREACHABLE") + dimStyle.Render(" retrying")
	} else if m.haveStatus {
		state = okStyle.Render("connected")
	}
	divider := dimStyle.Render(strings.Repeat("─", max(m.width, 20)))
	sections := []string{
		header + "  " + state,
		divider,
		m.table.View(),
		divider,
		"Events:",
		m.vp.View(),
		divider,
		dimStyle.Render("q quit · r refresh · w wrap"),
	}
	return strings.Join(sections, "\n")
}

// Run starts the TUI and blocks until the user quits.
func Run(url string, interval time.Duration) error {
	p := tea.NewProgram(New(url, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
