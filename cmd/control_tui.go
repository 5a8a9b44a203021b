// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	refreshInterval = 250 * time.Millisecond
	focusStep       = 100
	maxLogEntries   = 100
)

// inputField is the value the text input is editing.
type inputField int

const (
	inputNone inputField = iota
	inputBrightness
	inputOpenAngle
	inputClosedAngle
	inputFocusTarget
)

func (f inputField) label() string {
	switch f {
	case inputBrightness:
		return "Brightness"
	case inputOpenAngle:
		return "Open angle"
	case inputClosedAngle:
		return "Closed angle"
	case inputFocusTarget:
		return "Focus target"
	default:
		return ""
	}
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctx      context.Context
	dev      *flatcap.Device
	connInfo string

	state flatcap.State
	stats flatcap.StatisticsSnapshot

	input    textinput.Model
	editing  inputField
	spinner  spinner.Model
	pending  int
	eventLog []logEntry

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type stateMsg struct {
	state flatcap.State
	stats flatcap.StatisticsSnapshot
}

type controlBatchMsg struct {
	events []flatcap.Event
}

type commandResultMsg struct {
	action string
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctx context.Context, dev *flatcap.Device, connInfo string) controlModel {
	ti := textinput.New()
	ti.CharLimit = 6
	ti.Width = 10

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return controlModel{
		ctx:      ctx,
		dev:      dev,
		connInfo: connInfo,
		state:    dev.Snapshot(),
		input:    ti,
		spinner:  sp,
		eventLog: make([]logEntry, 0),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.spinner.Tick)
}

// refreshCmd snapshots the device off the UI goroutine; Snapshot waits for
// any exchange in flight.
func (m controlModel) refreshCmd() tea.Cmd {
	dev := m.dev
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return stateMsg{state: dev.Snapshot(), stats: dev.Statistics().Snapshot()}
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case stateMsg:
		m.state = msg.state
		m.stats = msg.stats
		return m, m.refreshCmd()

	case controlBatchMsg:
		for _, e := range msg.events {
			m.addLogEntry(e.String(), e.State == flatcap.OpAlert && (e.Kind == flatcap.EventPark || e.Kind == flatcap.EventFocusMove))
		}

	case commandResultMsg:
		m.pending--
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.addLogEntry(msg.action, false)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing != inputNone {
		switch msg.String() {
		case "esc":
			m.stopEditing()
			return m, nil
		case "enter":
			return m.submitInput()
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	hasFocuser := m.state.Focuser != nil

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "p":
		return m.run("park", func(ctx context.Context) error {
			_, err := m.dev.Park(ctx)
			return err
		})

	case "u":
		return m.run("unpark", func(ctx context.Context) error {
			_, err := m.dev.Unpark(ctx)
			return err
		})

	case "l":
		on := !m.state.LightOn
		return m.run("light "+onOff(on), func(ctx context.Context) error {
			return m.dev.EnableLight(ctx, on)
		})

	case "b":
		m.startEditing(inputBrightness, m.state.Brightness)
	case "o":
		m.startEditing(inputOpenAngle, m.state.OpenAngle)
	case "c":
		m.startEditing(inputClosedAngle, m.state.ClosedAngle)

	case "f":
		if hasFocuser {
			m.startEditing(inputFocusTarget, int(m.state.Focuser.Position))
		}

	case "+", "=":
		if hasFocuser {
			return m.run(fmt.Sprintf("focus out %d", focusStep), func(ctx context.Context) error {
				_, err := m.dev.MoveFocuserRelative(ctx, flatcap.FocusOutward, focusStep)
				return err
			})
		}

	case "-":
		if hasFocuser {
			return m.run(fmt.Sprintf("focus in %d", focusStep), func(ctx context.Context) error {
				_, err := m.dev.MoveFocuserRelative(ctx, flatcap.FocusInward, focusStep)
				return err
			})
		}

	case "a":
		if hasFocuser {
			return m.run("focus abort", m.dev.AbortFocuser)
		}

	case "t":
		if hasFocuser {
			on := !m.state.Focuser.Compensation
			return m.run("compensation "+onOff(on), func(ctx context.Context) error {
				return m.dev.SetTemperatureCompensation(ctx, on)
			})
		}

	case "r":
		m.dev.Statistics().Reset()
		m.addLogEntry("Statistics reset", false)
	}

	return m, nil
}

func (m *controlModel) startEditing(field inputField, current int) {
	m.editing = field
	m.input.Placeholder = ""
	if current >= 0 {
		m.input.Placeholder = strconv.Itoa(current)
	}
	m.input.SetValue("")
	m.input.Focus()
}

func (m *controlModel) stopEditing() {
	m.editing = inputNone
	m.input.Blur()
}

func (m controlModel) submitInput() (tea.Model, tea.Cmd) {
	field := m.editing
	text := m.input.Value()
	if text == "" {
		text = m.input.Placeholder
	}
	m.stopEditing()

	value, err := strconv.Atoi(text)
	if err != nil || value < 0 {
		m.addLogEntry(fmt.Sprintf("Invalid %s value: %q", strings.ToLower(field.label()), text), true)
		return m, nil
	}

	action := fmt.Sprintf("%s %d", strings.ToLower(field.label()), value)
	switch field {
	case inputBrightness:
		return m.run(action, func(ctx context.Context) error { return m.dev.SetBrightness(ctx, value) })
	case inputOpenAngle:
		return m.run(action, func(ctx context.Context) error { return m.dev.SetOpenAngle(ctx, value) })
	case inputClosedAngle:
		return m.run(action, func(ctx context.Context) error { return m.dev.SetClosedAngle(ctx, value) })
	case inputFocusTarget:
		return m.run(action, func(ctx context.Context) error {
			_, err := m.dev.MoveFocuser(ctx, uint32(value))
			return err
		})
	}
	return m, nil
}

// run executes a device operation off the UI goroutine.
func (m controlModel) run(action string, op func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.pending++
	ctx := m.ctx
	return m, func() tea.Msg {
		return commandResultMsg{action: action, err: op(ctx)}
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("FLATCAP CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s %02d fw %s", m.connInfo, m.state.Dialect, m.state.ProductID, m.state.Firmware)))
	if m.pending > 0 {
		s.WriteString(" " + m.spinner.View())
	}
	s.WriteString("\n\n")

	panels := []string{m.renderCover(), m.renderLight()}
	if m.state.Focuser != nil {
		panels = append(panels, m.renderFocuser())
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...))
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")
	s.WriteString(m.renderEventLog())
	s.WriteString("\n")

	if m.editing != inputNone {
		s.WriteString(fmt.Sprintf(" %s %s  %s\n", labelStyle.Render(m.editing.label()+":"), m.input.View(), headerStyle.Render("Enter=set Esc=cancel")))
	} else {
		s.WriteString(headerStyle.Render(m.helpText()))
		s.WriteString("\n")
	}

	return s.String()
}

func (m controlModel) helpText() string {
	help := " p=park u=unpark l=light b=brightness o=open angle c=closed angle"
	if m.state.Focuser != nil {
		help += " f=focus +/-=step a=abort t=compensation"
	}
	return help + " r=reset stats q=quit"
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-13s", label)), value)
}

func (m controlModel) opState(s flatcap.OpState) string {
	switch s {
	case flatcap.OpBusy:
		return warningStyle.Render(s.String())
	case flatcap.OpAlert:
		return errorStyle.Render(s.String())
	default:
		return valueStyle.Render(s.String())
	}
}

func (m controlModel) renderCover() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("COVER"))
	s.WriteString("\n")

	st := m.state
	if st.StatusValid {
		s.WriteString(row("Cover:", valueStyle.Render(st.Status.Cover.String())))
		s.WriteString(row("Motor:", valueStyle.Render(st.Status.Motor.String())))
	} else {
		s.WriteString(row("Status:", warningStyle.Render("unknown")))
	}
	s.WriteString(row("Park:", m.opState(st.Park)+" "+headerStyle.Render(st.Direction.String())))
	s.WriteString(row("Switch:", valueStyle.Render(st.Switch.String())))
	s.WriteString(row("Open angle:", valueStyle.Render(known(st.OpenAngle))))
	s.WriteString(row("Closed angle:", valueStyle.Render(known(st.ClosedAngle))))

	return boxStyle.Width(32).Render(s.String())
}

func (m controlModel) renderLight() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("LIGHT"))
	s.WriteString("\n")

	st := m.state
	if st.StatusValid {
		s.WriteString(row("Panel:", valueStyle.Render(st.Status.Light.String())))
	}
	s.WriteString(row("Switch:", valueStyle.Render(onOff(st.LightOn))))
	s.WriteString(row("Brightness:", valueStyle.Render(known(st.Brightness))))
	if st.Switch == flatcap.SwitchUnparked {
		s.WriteString(warningStyle.Render("Locked while open"))
		s.WriteString("\n")
	}

	return boxStyle.Width(28).Render(s.String())
}

func (m controlModel) renderFocuser() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("FOCUSER"))
	s.WriteString("\n")

	f := m.state.Focuser
	s.WriteString(row("Move:", m.opState(f.Move)))
	s.WriteString(row("Position:", valueStyle.Render(fmt.Sprintf("%d", f.Position))))
	s.WriteString(row("Target:", valueStyle.Render(fmt.Sprintf("%d", f.Target))))
	s.WriteString(row("Temperature:", valueStyle.Render(fmt.Sprintf("%.1f C", f.Temperature))))
	s.WriteString(row("Compensation:", valueStyle.Render(fmt.Sprintf("%s (%+.1f)", onOff(f.Compensation), f.Coefficient))))
	s.WriteString(row("Firmware:", valueStyle.Render(f.Firmware)))

	return boxStyle.Width(32).Render(s.String())
}

func (m controlModel) renderStatisticsBar() string {
	st := m.stats
	failed := valueStyle.Render(fmt.Sprintf("%d", st.FailedExchanges))
	if st.FailedExchanges > 0 {
		failed = errorStyle.Render(fmt.Sprintf("%d", st.FailedExchanges))
	}
	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Exchanges:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalExchanges)),
		labelStyle.Render("Failed:"), failed,
		labelStyle.Render("Retries:"), valueStyle.Render(fmt.Sprintf("%d", st.Retries)),
		labelStyle.Render("Parse errors:"), valueStyle.Render(fmt.Sprintf("%d", st.ParseErrors)),
		labelStyle.Render("Latency:"), valueStyle.Render(st.AvgLatency.Round(time.Microsecond).String()),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := m.height - 22
	if logHeight < 4 {
		logHeight = 4
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[startIdx:] {
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.width - 4).Render(strings.TrimRight(s.String(), "\n"))
}
