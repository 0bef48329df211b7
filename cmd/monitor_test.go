// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// ============================================================
// Quick Commands
// ============================================================

func TestParseQuickCommand(t *testing.T) {
	tests := []struct {
		line     string
		expected []byte
	}{
		{"current 5", vesc.NewSetCurrent(5)},
		{"BRAKE 2.5", vesc.NewSetBrakeCurrent(2.5)},
		{"rpm -3000", vesc.NewSetRPM(-3000)},
		{"  duty 0.25 ", vesc.NewSetDuty(0.25)},
		{"stop", vesc.NewSetCurrent(0)},
	}
	for _, tt := range tests {
		payload, description, err := parseQuickCommand(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.expected, payload, tt.line)
		assert.NotEmpty(t, description, tt.line)
	}

	for _, bad := range []string{"", "current", "current five", "duty 1.5", "spin 3", "stop now"} {
		_, _, err := parseQuickCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{2*time.Hour + time.Minute + 5*time.Second, "2 hours, 1 minute, and 5 seconds"},
		{26 * time.Hour, "1 day and 2 hours"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatUptime(tt.d))
	}
}

// ============================================================
// TUI Model
// ============================================================

func TestModel_AppliesPolls(t *testing.T) {
	m := initialModel("serial /dev/ttyACM0", 10, false, vesc.NewStatistics(), nil)

	var s vesc.Snapshot
	s.Motor.RPM = 2500
	s.Motor.Fault = 2
	next, _ := m.Update(pollMsg{
		time:     time.Now(),
		request:  "values",
		fields:   vesc.FieldValues,
		snapshot: s,
		anomalies: []vesc.ValidationError{
			{Type: vesc.AnomalyFault, Message: "fault UNDER_VOLTAGE"},
		},
	})
	m = next.(model)

	assert.True(t, m.replied)
	assert.Equal(t, int32(2500), m.snapshot.Motor.RPM)
	assert.True(t, m.fields.Has(vesc.FieldValues))
	require.Len(t, m.eventLog, 2)
	assert.Equal(t, "First reply received", m.eventLog[0].message)
	assert.True(t, m.eventLog[1].isError)

	// Failed polls are logged but keep the last snapshot
	next, _ = m.Update(pollMsg{request: "values", err: vesc.ErrTimeout})
	m = next.(model)
	assert.Equal(t, int32(2500), m.snapshot.Motor.RPM)
	assert.Len(t, m.eventLog, 3)

	view := m.View()
	assert.Contains(t, view, "VESCSTAT - MONITOR")
	assert.Contains(t, view, "2500")
}

func TestModel_LogIsBounded(t *testing.T) {
	m := initialModel("x", 10, true, vesc.NewStatistics(), nil)
	for i := 0; i < 150; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.eventLog, m.maxLogEntries)
}

func TestModel_QuickCommandInput(t *testing.T) {
	var sent []byte
	m := initialModel("x", 10, false, vesc.NewStatistics(), func(p []byte) error {
		sent = p
		return nil
	})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	m = next.(model)
	require.True(t, m.input.Focused())

	// q is text while the input has focus
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(model)
	assert.False(t, m.quitting)

	m.input.SetValue("rpm 1200")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.False(t, m.input.Focused())

	msg := cmd()
	sentMsg, ok := msg.(commandSentMsg)
	require.True(t, ok)
	require.NoError(t, sentMsg.err)
	assert.Equal(t, vesc.NewSetRPM(1200), sent)

	next, _ = m.Update(sentMsg)
	m = next.(model)
	assert.Equal(t, "Sent SET_RPM 1200", m.eventLog[len(m.eventLog)-1].message)
}

func TestModel_Quit(t *testing.T) {
	m := initialModel("x", 10, false, vesc.NewStatistics(), nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, next.(model).quitting)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

// ============================================================
// Poller
// ============================================================

func TestBuildPollCycle(t *testing.T) {
	names := func(reqs []pollRequest) []string {
		var out []string
		for _, r := range reqs {
			out = append(out, r.name)
		}
		return out
	}

	assert.Equal(t, []string{"values"}, names(buildPollCycle(-1, false, true)))
	assert.Equal(t, []string{"values", "ppm"}, names(buildPollCycle(-1, true, false)))

	full := buildPollCycle(4, true, true)
	assert.Equal(t, []string{"values", "ppm", "bms values", "bms cells"}, names(full))
	assert.Equal(t, []byte{vesc.CommForwardCAN, 4, vesc.CommGetDecodedPPM}, full[1].payload)
	assert.Equal(t, vesc.DialectBatteryManagement, full[3].dialect)
}

func TestPoller_Run(t *testing.T) {
	client, _, stats := newTestClient(firmwareReply)
	p := newPoller(client, buildPollCycle(-1, false, false), 1000, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var results []pollResult
	err := p.run(ctx, func(res pollResult) {
		results = append(results, res)
		if len(results) == 5 {
			cancel()
		}
	})

	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, res := range results {
		require.NoError(t, res.err)
		assert.Equal(t, vesc.FieldFirmware, res.fields)
		assert.Equal(t, uint8(6), res.snapshot.Motor.Firmware.Major)
	}
	assert.Equal(t, uint64(5), stats.Snapshot().Successful)
}

func TestPoller_ReportsFailures(t *testing.T) {
	client, _, stats := newTestClient(nil)
	p := newPoller(client, buildPollCycle(-1, false, false), 1000, nil)

	res := p.poll(p.requests[0])
	assert.ErrorIs(t, res.err, vesc.ErrTimeout)
	assert.Equal(t, uint64(1), stats.Snapshot().Timeouts)
}

func TestPollWithReconnect_RetriesOpen(t *testing.T) {
	withConfig(t, -1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []connectionEvent
	attempts := 0
	open := func() (*session, error) {
		attempts++
		if attempts >= 2 {
			cancel()
		}
		return nil, errors.New("no such port")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		pollWithReconnect(ctx, open, buildPollCycle(-1, false, false), 10, nil,
			func(pollResult) {},
			func(ev connectionEvent) {
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pollWithReconnect did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.False(t, events[0].connected)
	assert.Error(t, events[0].err)
}
