package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/board"
	"github.com/BertoldVdb/PDAltMode/config"
	"github.com/BertoldVdb/PDAltMode/hostcmd"
	"github.com/BertoldVdb/PDAltMode/hwmux"
)

func TestParsePartner(t *testing.T) {
	port, profile, err := parsePartner("1=tbt-active")
	require.NoError(t, err)
	assert.Equal(t, 1, port)
	assert.Equal(t, "tbt-active", profile)

	_, _, err = parsePartner("dp")
	assert.Error(t, err)
	_, _, err = parsePartner("x=dp")
	assert.Error(t, err)
}

func TestListenPort(t *testing.T) {
	port, err := listenPort("127.0.0.1:9510")
	require.NoError(t, err)
	assert.Equal(t, 9510, port)

	_, err = listenPort("localhost")
	assert.Error(t, err)
}

func simulate(t *testing.T, profile string) (altmode.PortStatus, *hwmux.Sim) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := hwmux.NewSim()

	s, err := newStack(config.DefaultConfig(), board.Default(), hwmux.NewPorts(nil, sim), 0, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	wait := s.run(ctx)
	t.Cleanup(func() {
		cancel()
		wait()
	})

	require.NoError(t, s.attach(0, profile))
	st, err := settle(ctx, s.tasks[0].Snapshot)
	require.NoError(t, err)
	return st, sim
}

func TestSimulateDisplayPort(t *testing.T) {
	st, sim := simulate(t, "dp")

	assert.True(t, st.DFPActive)
	require.NotNil(t, st.DP)
	assert.True(t, st.DP.On)
	assert.Equal(t, "C", st.DP.Pin)

	mode, _, sbu := sim.State()
	assert.Equal(t, altmode.MuxDP, mode)
	assert.True(t, sbu)

	out := formatPort(st)
	assert.Contains(t, out, "displayport: pin C")
	assert.Contains(t, out, "SOP")
}

func TestSimulateThunderbolt(t *testing.T) {
	st, sim := simulate(t, "tbt")

	assert.True(t, st.DFPActive)
	require.NotNil(t, st.TBT)
	assert.Equal(t, altmode.TBTActive, st.TBT.State)

	mode, _, _ := sim.State()
	assert.Equal(t, altmode.MuxTBTCompat, mode)
	assert.Contains(t, formatPort(st), "thunderbolt: active")
}

func TestAttachUnknown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := newStack(config.DefaultConfig(), board.Default(), hwmux.NewPorts(nil, hwmux.NewSim()), 0, logger)
	require.NoError(t, err)

	assert.Error(t, s.attach(0, "nope"))
	assert.Error(t, s.attach(3, "dp"))
}

func TestFormatPorts(t *testing.T) {
	out := formatPorts([]hostcmd.PortSummary{
		{Port: 0, Connected: true, Session: "abc", DFPActive: true},
		{Port: 1},
	})

	assert.Contains(t, out, "PORT")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "-")
}

func TestFormatDisconnectedPort(t *testing.T) {
	assert.Contains(t, formatPort(altmode.PortStatus{Port: 2}), "not connected")
}
