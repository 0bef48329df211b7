// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	target        string
	pollRate      float64
	showAll       bool
	stats         *vesc.Statistics
	send          func(payload []byte) error
	eventLog      []eventLogEntry
	maxLogEntries int
	connected     bool
	replied       bool
	startTime     time.Time
	snapshot      vesc.Snapshot
	fields        vesc.Fields
	spinner       spinner.Model
	input         textinput.Model
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type pollMsg pollResult
type connMsg connectionEvent
type commandSentMsg struct {
	description string
	err         error
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// parseQuickCommand turns a line typed in the monitor into a set command
// payload. Accepted: current <A>, brake <A>, rpm <erpm>, duty <cycle>, stop.
func parseQuickCommand(line string) ([]byte, string, error) {
	words := strings.Fields(strings.ToLower(line))
	if len(words) == 0 {
		return nil, "", fmt.Errorf("empty command")
	}

	if words[0] == "stop" {
		if len(words) != 1 {
			return nil, "", fmt.Errorf("stop takes no value")
		}
		return vesc.NewSetCurrent(0), "SET_CURRENT 0A", nil
	}

	if len(words) != 2 {
		return nil, "", fmt.Errorf("usage: current|brake|rpm|duty <value>, or stop")
	}
	value, err := strconv.ParseFloat(words[1], 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid value %q", words[1])
	}

	switch words[0] {
	case "current":
		return vesc.NewSetCurrent(value), fmt.Sprintf("SET_CURRENT %.3fA", value), nil
	case "brake":
		return vesc.NewSetBrakeCurrent(value), fmt.Sprintf("SET_CURRENT_BRAKE %.3fA", value), nil
	case "rpm":
		return vesc.NewSetRPM(value), fmt.Sprintf("SET_RPM %.0f", value), nil
	case "duty":
		if value < -1 || value > 1 {
			return nil, "", fmt.Errorf("duty cycle %v out of range -1.0..1.0", value)
		}
		return vesc.NewSetDuty(value), fmt.Sprintf("SET_DUTY %.3f", value), nil
	default:
		return nil, "", fmt.Errorf("unknown command %q", words[0])
	}
}

func initialModel(target string, pollRate float64, showAll bool, stats *vesc.Statistics, send func([]byte) error) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	ti := textinput.New()
	ti.Prompt = ": "
	ti.Placeholder = "current 5 | brake 3 | rpm 3000 | duty 0.1 | stop"
	ti.CharLimit = 32
	ti.Width = 48

	return model{
		target:        target,
		pollRate:      pollRate,
		showAll:       showAll,
		stats:         stats,
		send:          send,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		startTime:     time.Now(),
		spinner:       sp,
		input:         ti,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func sendCmd(send func([]byte) error, payload []byte, description string) tea.Cmd {
	return func() tea.Msg {
		return commandSentMsg{description: description, err: send(payload)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		if m.replied {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connMsg:
		if msg.connected {
			m.connected = true
			m.target = msg.info
			m.addLogEntry("Connected: "+msg.info, false)
		} else {
			m.connected = false
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		}

	case commandSentMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.description, msg.err), true)
		} else {
			m.addLogEntry("Sent "+msg.description, false)
		}

	case pollMsg:
		m.applyPoll(pollResult(msg))
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.input.Blur()
			m.input.SetValue("")
			return m, nil
		case "enter":
			line := m.input.Value()
			m.input.SetValue("")
			m.input.Blur()
			payload, description, err := parseQuickCommand(line)
			if err != nil {
				m.addLogEntry(err.Error(), true)
				return m, nil
			}
			if m.send == nil {
				m.addLogEntry("Not connected", true)
				return m, nil
			}
			return m, sendCmd(m.send, payload, description)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case ":", "/":
		cmd := m.input.Focus()
		return m, cmd
	case "r":
		m.stats.Reset()
		m.addLogEntry("Statistics reset", false)
	}
	return m, nil
}

func (m *model) applyPoll(res pollResult) {
	if res.err != nil {
		m.addLogEntry(fmt.Sprintf("%s: %v", res.request, res.err), true)
		return
	}

	if !m.replied {
		m.replied = true
		m.addLogEntry("First reply received", false)
	}
	m.snapshot = res.snapshot
	m.fields |= res.fields

	for _, a := range res.anomalies {
		m.addLogEntry(fmt.Sprintf("%s: %s", a.Type, a.Message), true)
	}
	if len(res.anomalies) == 0 && m.showAll {
		m.addLogEntry(fmt.Sprintf("%s (%s)", res.request, res.fields), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	label := func(s string) string { return statsLabelStyle.Render(s) }
	value := func(format string, a ...interface{}) string { return statsValueStyle.Render(fmt.Sprintf(format, a...)) }

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("VESCSTAT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %.1f req/s | Up %s | ':' command, 'r' reset stats, 'q' quit",
		m.target, m.pollRate, formatUptime(time.Since(m.startTime)))))
	s.WriteString("\n\n")

	// Link status
	switch {
	case !m.connected:
		s.WriteString(errorStyle.Render("✗ Not connected, retrying..."))
	case !m.replied:
		s.WriteString(m.spinner.View() + warningStyle.Render(" Waiting for first reply..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Receiving"))
	}
	s.WriteString("\n\n")

	// Statistics
	c := m.stats.Snapshot()
	var successPercent float64
	failed := c.Exchanges - c.Successful
	if c.Exchanges > 0 {
		successPercent = float64(c.Successful) * 100.0 / float64(c.Exchanges)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		label("Exchanges:"), value("%d", c.Exchanges),
		label("OK:"), value("%d (%.1f%%)", c.Successful, successPercent),
		label("Failed:"), errorStyle.Render(fmt.Sprintf("%d", failed)),
	))

	if failed > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			label("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", c.Timeouts)),
			label("CRC:"), errorStyle.Render(fmt.Sprintf("%d", c.ChecksumErrors)),
			label("Unknown:"), errorStyle.Render(fmt.Sprintf("%d", c.UnsupportedCommands)),
			label("Short:"), errorStyle.Render(fmt.Sprintf("%d", c.ShortPayloads)),
		))
	}

	if c.InvalidStartBytes > 0 || c.UnsupportedFrames > 0 || c.MalformedFrames > 0 || c.Overflows > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			label("Stray bytes:"), warningStyle.Render(fmt.Sprintf("%d", c.InvalidStartBytes)),
			headerStyle.Render("long frames"), c.UnsupportedFrames,
			headerStyle.Render("malformed"), c.MalformedFrames,
			headerStyle.Render("overflows"), c.Overflows,
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		label("Exchange Rate:"), value("%.1f /s", c.ExchangeRate),
		label("Error Rate:"), func() string {
			if c.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f /s", c.ErrorRate))
			}
			return value("%.1f /s", c.ErrorRate)
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Telemetry section (only shown once something decoded)
	if m.fields != vesc.FieldNone {
		s.WriteString(label("Latest Telemetry:"))
		s.WriteString("\n")

		t := strings.Builder{}
		mt := m.snapshot.Motor
		if m.fields.Has(vesc.FieldFirmware) {
			t.WriteString(fmt.Sprintf("%s %s\n", label("Firmware:"), value("%d.%d", mt.Firmware.Major, mt.Firmware.Minor)))
		}
		if m.fields.Has(vesc.FieldValues) {
			t.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
				label("RPM:"), value("%d", mt.RPM),
				label("Motor:"), value("%.2fA", mt.AvgMotorCurrent),
				label("Input:"), value("%.2fA @ %.1fV", mt.AvgInputCurrent, mt.InputVoltage),
			))
			t.WriteString(fmt.Sprintf("%s %s   %s %s\n",
				label("Temp:"), value("%.1f°C", mt.TempMotor),
				label("Energy:"), value("%.3f Wh used, %.3f Wh charged", mt.WattHours, mt.WattHoursCharged),
			))
			fault := value("%s", vesc.FormatFault(mt.Fault))
			if mt.Fault != 0 {
				fault = errorStyle.Render(vesc.FormatFault(mt.Fault))
			}
			t.WriteString(fmt.Sprintf("%s %s\n", label("Fault:"), fault))
		}
		if m.fields.Has(vesc.FieldThrottle) {
			t.WriteString(fmt.Sprintf("%s %s\n", label("Throttle:"), value("%.3f", mt.Throttle)))
		}
		b := m.snapshot.Battery
		if m.fields.Has(vesc.FieldStateOfCharge) {
			t.WriteString(fmt.Sprintf("%s %s\n", label("State of Charge:"), value("%d%%", b.StateOfCharge)))
		}
		if m.fields.Has(vesc.FieldCells) {
			cells := b.ValidCells()
			for i, v := range cells {
				t.WriteString(fmt.Sprintf("%s %s", label(fmt.Sprintf("Cell %2d:", i+1)), value("%.3fV", v)))
				if i%4 == 3 || i == len(cells)-1 {
					t.WriteString("\n")
				} else {
					t.WriteString("   ")
				}
			}
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(t.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(label("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	if m.input.Focused() {
		s.WriteString("\n")
		s.WriteString(m.input.View())
	}

	return s.String()
}
