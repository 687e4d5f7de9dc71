package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
	"github.com/ngmaloney/disaster-terminal/internal/poller"
)

// Deps are the data sources behind the dashboard
type Deps struct {
	Fetch     poller.FetchFunc
	FetchHigh poller.FetchFunc // used by the high priority variant

	Interval             time.Duration // default poller.DefaultInterval
	HighPriorityInterval time.Duration // default poller.HighPriorityInterval
	StartHighPriority    bool

	Probe    ProbeFunc
	Bucket   string
	Recorder poller.CycleRecorder
	Logger   logging.Logger
}

// Model represents the application's state
type Model struct {
	width  int
	height int

	ctrl   *controller
	probe  ProbeFunc
	bucket string

	// Data
	sync         models.SyncState
	conn         *models.ConnectionStatus
	probing      bool
	highPriority bool

	spinner spinner.Model
	now     func() time.Time
}

// NewModel creates a new application model. Polling begins in Init.
func NewModel(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	ctrl := newController(deps.Fetch, deps.FetchHigh, deps.Interval, deps.HighPriorityInterval, deps.Recorder, deps.Logger)
	ctrl.setHighPriority(deps.StartHighPriority)

	return Model{
		ctrl:         ctrl,
		probe:        deps.Probe,
		bucket:       deps.Bucket,
		sync:         models.SyncState{IsLoading: true, Records: []models.Alert{}},
		highPriority: deps.StartHighPriority,
		spinner:      s,
		now:          time.Now,
	}
}

// Init starts the poller
func (m Model) Init() tea.Cmd {
	m.ctrl.start()
	return tea.Batch(m.spinner.Tick, waitForState(m.ctrl.updates))
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case syncStateMsg:
		next := models.SyncState(msg)
		// a restarted poller begins empty; keep showing what we had
		if !next.HasData() && m.sync.HasData() {
			next.Records = m.sync.Records
			next.LastUpdated = m.sync.LastUpdated
		}
		m.sync = next
		return m, waitForState(m.ctrl.updates)

	case probeResultMsg:
		status := models.ConnectionStatus(msg)
		m.conn = &status
		m.probing = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.ctrl.stop()
		return m, tea.Quit

	case "r":
		m.ctrl.refetch()
		return m, nil

	case "h":
		m.highPriority = !m.highPriority
		m.ctrl.setHighPriority(m.highPriority)
		return m, nil

	case "t":
		if m.probe == nil || m.probing {
			return m, nil
		}
		m.probing = true
		return m, runProbe(m.probe)
	}
	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string

	title := titleStyle.Render("Disaster Terminal")
	if m.bucket != "" {
		title += mutedStyle.Render("  s3://" + m.bucket)
	}
	sections = append(sections, title, m.viewStatusLine())

	sections = append(sections,
		sectionHeaderStyle.Render(m.alertsHeader()),
		m.renderAlerts(),
	)

	if m.probing || m.conn != nil {
		sections = append(sections, m.renderConnection())
	}

	help := helpStyle.Render("R: Refresh • H: High priority • T: Test connection • Q: Quit")
	sections = append(sections, help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// viewStatusLine shows loading, freshness and the last error
func (m Model) viewStatusLine() string {
	var parts []string

	mode := fmt.Sprintf("every %s", m.ctrl.currentInterval())
	if m.highPriority {
		mode = "high severity only, " + mode
	}
	parts = append(parts, mutedStyle.Render("Polling "+mode))

	if m.sync.IsLoading {
		parts = append(parts, m.spinner.View()+" Fetching")
	}
	if m.sync.HasData() {
		parts = append(parts, mutedStyle.Render("Updated "+humanize.RelTime(m.sync.LastUpdated, m.now(), "ago", "from now")))
	}
	line := strings.Join(parts, mutedStyle.Render(" • "))

	if m.sync.Error != "" {
		line += "\n" + errorStyle.Render("✗ "+m.sync.Error)
	}
	return line
}

func (m Model) alertsHeader() string {
	if !m.sync.HasData() {
		return "ALERTS"
	}
	high := len(models.FilterSeverity(m.sync.Records, models.SeverityHigh))
	return fmt.Sprintf("ALERTS (%d, %d high)", len(m.sync.Records), high)
}

// renderAlerts separates "nothing has loaded" from "loaded but empty"
func (m Model) renderAlerts() string {
	if !m.sync.HasData() {
		if m.sync.Error != "" {
			return errorStyle.Render("Data unavailable") + "\n" +
				mutedStyle.Render("Press T to test the connection")
		}
		return mutedStyle.Render("Loading alerts...")
	}
	if len(m.sync.Records) == 0 {
		return successStyle.Render("✓ No alerts yet")
	}

	limit := len(m.sync.Records)
	if m.height > 0 {
		// each alert takes two lines; leave room for the chrome
		if rows := (m.height - 12) / 2; rows > 0 && rows < limit {
			limit = rows
		}
	}

	var lines []string
	for _, a := range m.sync.Records[:limit] {
		lines = append(lines, m.renderAlert(a)...)
	}
	if limit < len(m.sync.Records) {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("… %d more", len(m.sync.Records)-limit)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderAlert(a models.Alert) []string {
	badge := getSeverityStyle(a.Severity).Render(fmt.Sprintf("%-6s", strings.ToUpper(string(a.Severity))))

	when := humanize.RelTime(a.CreatedAt, m.now(), "ago", "from now")
	if a.TimestampEstimated {
		when = "~" + when
	}

	header := fmt.Sprintf("%s %s  %s  %s",
		badge,
		valueStyle.Render(string(a.DisasterType)),
		a.Location.String(),
		mutedStyle.Render(when))

	text := strings.Join(strings.Fields(a.Text), " ")
	if maxLen := m.width - 10; maxLen > 20 && len([]rune(text)) > maxLen {
		text = string([]rune(text)[:maxLen-1]) + "…"
	}
	return []string{header, "       " + mutedStyle.Render(text)}
}

func (m Model) renderConnection() string {
	if m.probing {
		return sectionBoxStyle.Render(m.spinner.View() + " Testing connection...")
	}

	c := m.conn
	var lines []string
	summary := c.Summary()
	if c.Connected {
		lines = append(lines, successStyle.Render("✓ "+summary))
		lines = append(lines, fmt.Sprintf("%s %s (%s)", labelStyle.Render("Bucket:"), c.Bucket, c.Region))
		lines = append(lines, fmt.Sprintf("%s %d sampled", labelStyle.Render("Objects:"), c.ObjectCount))
	} else {
		lines = append(lines, errorStyle.Render("✗ "+summary))
		if c.Error != "" {
			lines = append(lines, c.Error)
		}
	}
	return sectionBoxStyle.Render(strings.Join(lines, "\n"))
}
