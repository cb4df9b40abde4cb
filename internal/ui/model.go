package ui

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/projection"
)

// AppState represents the current state of the application
type AppState int

const (
	StateRunning AppState = iota // First run in flight, nothing to show yet
	StateDisplay                 // Showing the latest forecast
	StateError                   // Error state
)

// ActivePane represents which dataset is shown
type ActivePane int

const (
	PaneWeather ActivePane = iota
	PaneMarine
)

func (p ActivePane) kind() models.DatasetKind {
	if p == PaneMarine {
		return models.DatasetMarine
	}
	return models.DatasetWeather
}

// Config wires a Model to the projection engine
type Config struct {
	Runner          Runner
	State           *projection.State
	Updates         <-chan tea.Msg
	RefreshInterval time.Duration // zero disables automatic refresh
	RunTimeout      time.Duration
}

// Model represents the application's state
type Model struct {
	state      AppState
	activePane ActivePane
	width      int
	height     int
	err        error

	runner     Runner
	vessel     *projection.State
	updates    <-chan tea.Msg
	refresh    time.Duration
	runTimeout time.Duration
	refreshGen int

	// Run state
	running  bool
	spinner  spinner.Model
	snapshot projection.Snapshot

	// Data
	weatherHourly []models.MergedForecastRecord
	marineHourly  []models.MergedForecastRecord
	weatherDaily  []models.DailyRecord
	marineDaily   []models.DailyRecord
	table         table.Model
}

// NewModel creates a new application model
func NewModel(cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}

	m := Model{
		state:      StateRunning,
		activePane: PaneWeather,
		runner:     cfg.Runner,
		vessel:     cfg.State,
		updates:    cfg.Updates,
		refresh:    cfg.RefreshInterval,
		runTimeout: cfg.RunTimeout,
		running:    true,
		spinner:    s,
	}
	m.table = newForecastTable(m.activePane.kind(), nil, m.tableHeight())
	return m
}

// Init starts the first run and begins listening for forecasts
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		runForecast(m.runner, m.vessel, m.runTimeout),
		waitForUpdate(m.updates),
	)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(m.tableHeight())
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = StateError
		return m, nil

	case hourlyMsg:
		if msg.kind == models.DatasetMarine {
			m.marineHourly = msg.records
		} else {
			m.weatherHourly = msg.records
		}
		if msg.kind == m.activePane.kind() {
			m.table.SetRows(forecastRows(msg.kind, msg.records))
		}
		return m, waitForUpdate(m.updates)

	case dailyMsg:
		if msg.kind == models.DatasetMarine {
			m.marineDaily = msg.days
		} else {
			m.weatherDaily = msg.days
		}
		return m, waitForUpdate(m.updates)

	case runFinishedMsg:
		m.running = false
		m.snapshot = msg.snapshot
		if m.state == StateRunning {
			m.state = StateDisplay
		}
		m.refreshGen++
		return m, scheduleRefresh(m.refresh, m.refreshGen)

	case refreshMsg:
		if msg.gen != m.refreshGen || m.running {
			return m, nil
		}
		return m.startRun()

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys
	if msg.String() == "ctrl+c" || msg.String() == "q" {
		return m, tea.Quit
	}

	if m.state == StateError {
		// Any key dismisses the error
		m.state = StateDisplay
		m.err = nil
		return m, nil
	}

	switch msg.String() {
	case "r":
		if m.running {
			return m, nil
		}
		return m.startRun()

	case "tab":
		if m.activePane == PaneWeather {
			m.activePane = PaneMarine
		} else {
			m.activePane = PaneWeather
		}
		m.table = newForecastTable(m.activePane.kind(), m.hourly(), m.tableHeight())
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) startRun() (tea.Model, tea.Cmd) {
	m.running = true
	m.refreshGen++
	return m, tea.Batch(m.spinner.Tick, runForecast(m.runner, m.vessel, m.runTimeout))
}

func (m Model) hourly() []models.MergedForecastRecord {
	if m.activePane == PaneMarine {
		return m.marineHourly
	}
	return m.weatherHourly
}

func (m Model) daily() []models.DailyRecord {
	if m.activePane == PaneMarine {
		return m.marineDaily
	}
	return m.weatherDaily
}

func (m Model) tableHeight() int {
	h := m.height - 20
	if h < 5 {
		h = 5
	}
	return h
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case StateRunning:
		return m.viewRunning()
	case StateError:
		return m.viewError()
	}
	return m.viewDisplay()
}

// viewRunning renders the screen shown until the first run returns
func (m Model) viewRunning() string {
	title := titleStyle.Render("⚓ Vessel Forecast")

	status := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render(fmt.Sprintf("Projecting forecast (%s)...", m.vessel.Phase()))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		"",
		title,
		"",
		m.renderVessel(),
		"",
		fmt.Sprintf("%s %s", m.spinner.View(), status),
	)
}

// viewError renders the error view
func (m Model) viewError() string {
	title := errorStyle.Render("✗ Error")

	errorMsg := "An unknown error occurred"
	if m.err != nil {
		errorMsg = m.err.Error()
	}

	help := helpStyle.Render("Press any key to continue • Q: Quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, "", errorMsg, "", help)
}

// viewDisplay renders the forecast for the active dataset
func (m Model) viewDisplay() string {
	var sections []string

	sections = append(sections, titleStyle.Render("⚓ Vessel Forecast"), m.renderVessel())
	sections = append(sections, m.renderStatus(), "")
	sections = append(sections, m.renderTabs())
	sections = append(sections, m.renderMode())
	sections = append(sections, sectionBoxStyle.Render(m.table.View()))

	sections = append(sections,
		sectionHeaderStyle.Render("DAILY"),
		renderDaily(m.activePane.kind(), m.daily()),
	)

	help := helpStyle.Render("Tab: Switch dataset • ↑/↓: Scroll • R: Refresh • Q: Quit")
	sections = append(sections, help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderVessel summarises the motion state
func (m Model) renderVessel() string {
	motion := m.vessel.Snapshot().Motion

	position := "no fix"
	if p := motion.CurrentPosition; p != nil {
		position = formatPosition(p.Latitude, p.Longitude)
	}
	heading := "-"
	if motion.Heading != nil {
		heading = fmt.Sprintf("%03.0f°", math.Mod(*motion.Heading*180/math.Pi+360, 360))
	}
	speed := "-"
	if motion.SpeedOverGround != nil {
		speed = formatKnots(*motion.SpeedOverGround)
	}

	return fmt.Sprintf("%s %s  %s %s  %s %s",
		labelStyle.Render("Position"), valueStyle.Render(position),
		labelStyle.Render("Heading"), valueStyle.Render(heading),
		labelStyle.Render("SOG"), valueStyle.Render(speed))
}

func (m Model) renderStatus() string {
	if m.running {
		return fmt.Sprintf("%s %s", m.spinner.View(), mutedStyle.Render(m.vessel.Phase().String()))
	}
	status := m.snapshot.Status
	if !m.snapshot.LastUpdate.IsZero() {
		status += " • updated " + m.snapshot.LastUpdate.UTC().Format("15:04 UTC")
	}
	return mutedStyle.Render(status)
}

func (m Model) renderTabs() string {
	weather, marine := tabStyle, tabStyle
	if m.activePane == PaneMarine {
		marine = activeTabStyle
	} else {
		weather = activeTabStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, weather.Render("Weather"), " ", marine.Render("Marine"))
}

// renderMode tells a projected track apart from a stationary forecast
func (m Model) renderMode() string {
	records := m.hourly()
	if len(records) == 0 {
		return mutedStyle.Render("No hourly forecast")
	}
	if records[0].VesselMoving {
		return movingStyle.Render(fmt.Sprintf("Projected along track, %d hours", len(records)))
	}
	return stationaryStyle.Render(fmt.Sprintf("Stationary at current position, %d hours", len(records)))
}
