package hwmux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want target
	}{
		{"sim", target{kind: "sim"}},
		{"gpio:SBU_EN,DP_SEL,USB_SEL,FLIP,HPD", target{kind: "gpio", pins: []string{"SBU_EN", "DP_SEL", "USB_SEL", "FLIP", "HPD"}}},
		{"gpio:SBU_EN,,,,HPD", target{kind: "gpio", pins: []string{"SBU_EN", "", "", "", "HPD"}}},
		{"gpio", target{kind: "gpio", pins: []string{"", "", "", "", ""}}},
		{"i2c", target{kind: "i2c", bus: "/dev/i2c-1", addr: 0x30, pins: []string{""}}},
		{"i2c:/dev/i2c-3:0x54:GPIO22", target{kind: "i2c", bus: "/dev/i2c-3", addr: 0x54, pins: []string{"GPIO22"}}},
		{"usb", target{kind: "usb", sbuGP: 2, hpdGP: 3}},
		{"usb:0001234::1", target{kind: "usb", serial: "0001234", sbuGP: 2, hpdGP: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := parsePath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, path := range []string{"spi:0", "i2c:/dev/i2c-1:0x80", "i2c:/dev/i2c-1:zz", "usb::4", "usb::1:9"} {
		_, err := parsePath(path)
		assert.Error(t, err, path)
	}
}

func TestOpenSim(t *testing.T) {
	b, err := Open("sim", nil)
	require.NoError(t, err)
	assert.IsType(t, &Sim{}, b)
}

func TestPortsRouting(t *testing.T) {
	a, b := NewSim(), NewSim()
	var lines []string
	ports := NewPorts(func(format string, params ...interface{}) {
		lines = append(lines, format)
	}, a, b)

	require.NoError(t, ports.Set(1, altmode.MuxDP, altmode.PolarityCC2))
	mode, flip, _ := b.State()
	assert.Equal(t, altmode.MuxDP, mode)
	assert.True(t, flip)
	assert.Empty(t, a.Events())
	assert.NotEmpty(t, lines)

	require.NoError(t, ports.SetSBU(1, true))
	require.NoError(t, ports.SetSafeExit(1))
	mode, flip, sbu := b.State()
	assert.Equal(t, altmode.MuxSafe, mode)
	assert.True(t, flip)
	assert.False(t, sbu)

	require.NoError(t, ports.RestoreDataRole(1, altmode.RoleDFP))
	mode, _, _ = b.State()
	assert.Equal(t, altmode.MuxUSB, mode)

	require.NoError(t, ports.RestoreDataRole(1, altmode.RoleDisconnected))
	mode, _, _ = b.State()
	assert.Equal(t, altmode.MuxNone, mode)

	require.NoError(t, ports.SetLevel(0, true))
	assert.True(t, ports.Level(0))
	assert.False(t, ports.Level(1))

	ports.HPDUpdate(0, true, true)
	assert.Contains(t, a.Events(), "hpd-update level=true irq=true")

	var rangeErr altmode.ErrPortRange
	assert.ErrorAs(t, ports.SetSafe(2), &rangeErr)
	assert.False(t, ports.Level(-1))
}

func TestPortsMuxFailure(t *testing.T) {
	s := NewSim()
	s.Fail = errors.New("nack")
	ports := NewPorts(nil, s)

	assert.Error(t, ports.Set(0, altmode.MuxDP, altmode.PolarityCC1))
}

func TestGPIOMux(t *testing.T) {
	m := &GPIOMux{
		SBU:      &gpiotest.Pin{N: "SBU"},
		DP:       &gpiotest.Pin{N: "DP"},
		USB:      &gpiotest.Pin{N: "USB"},
		Polarity: &gpiotest.Pin{N: "FLIP"},
		HPDPin:   &gpiotest.Pin{N: "HPD"},
	}

	tests := []struct {
		mode    altmode.MuxMode
		usb, dp gpio.Level
	}{
		{altmode.MuxUSB, gpio.High, gpio.Low},
		{altmode.MuxDP, gpio.Low, gpio.High},
		{altmode.MuxDock, gpio.High, gpio.High},
		{altmode.MuxTBTCompat, gpio.High, gpio.Low},
		{altmode.MuxSafe, gpio.Low, gpio.Low},
		{altmode.MuxNone, gpio.Low, gpio.Low},
	}

	for _, tt := range tests {
		require.NoError(t, m.SetMode(tt.mode, true))
		assert.Equal(t, tt.usb, m.USB.Read(), tt.mode.String())
		assert.Equal(t, tt.dp, m.DP.Read(), tt.mode.String())
		assert.Equal(t, gpio.High, m.Polarity.Read())
	}

	require.NoError(t, m.SetSBU(true))
	assert.Equal(t, gpio.High, m.SBU.Read())

	require.NoError(t, m.SetHPD(true))
	assert.True(t, m.HPD())
	assert.Equal(t, gpio.High, m.HPDPin.Read())
}

func TestGPIOMuxUnconnected(t *testing.T) {
	m := &GPIOMux{}
	require.NoError(t, m.SetMode(altmode.MuxDock, false))
	require.NoError(t, m.SetSBU(true))
	require.NoError(t, m.SetHPD(true))
	assert.True(t, m.HPD())
}

func TestI2CMux(t *testing.T) {
	bus := &i2ctest.Record{}
	hpd := &gpiotest.Pin{N: "HPD"}
	m := NewI2CMux(bus, 0x30, hpd, nil)

	require.NoError(t, m.SetMode(altmode.MuxDP, false))
	require.NoError(t, m.SetMode(altmode.MuxDock, true))
	require.NoError(t, m.SetMode(altmode.MuxSafe, true))
	require.NoError(t, m.HPDUpdate(true, true))
	require.NoError(t, m.SetHPD(true))

	assert.Equal(t, []i2ctest.IO{
		{Addr: 0x30, W: []byte{regMode, modeDP}},
		{Addr: 0x30, W: []byte{regMode, modeDock | modeFlip}},
		{Addr: 0x30, W: []byte{regMode, modeSafe}},
		{Addr: 0x30, W: []byte{regHPD, hpdLevel | hpdIRQ}},
	}, bus.Ops)
	assert.Equal(t, gpio.High, hpd.Read())
	assert.True(t, m.HPD())
	assert.NoError(t, m.Close())
}

func TestI2CMuxReadMode(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x30, W: []byte{regMode}, R: []byte{modeTBT | modeFlip}},
		},
	}
	m := NewI2CMux(bus, 0x30, nil, bus.Close)

	v, err := m.Mode()
	require.NoError(t, err)
	assert.Equal(t, modeTBT|modeFlip, v)
	assert.NoError(t, m.Close())
}

type fakeHID struct {
	writes [][]byte
	pins   [mcpPins]byte
	fail   bool
	closed bool
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.writes = append(f.writes, append([]byte{}, b...))
	if b[0] == mcpCmdGPIOSet {
		for pin := 0; pin < mcpPins; pin++ {
			if b[2+4*pin] == mcpAlter {
				f.pins[pin] = b[3+4*pin]
			}
		}
	}
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	last := f.writes[len(f.writes)-1]
	b[0] = last[0]
	if f.fail {
		b[1] = 1
	}
	if last[0] == mcpCmdGPIOGet {
		for pin := 0; pin < mcpPins; pin++ {
			b[2+2*pin] = f.pins[pin]
		}
	}
	return mcpMsgSize, nil
}

func (f *fakeHID) Close() error {
	f.closed = true
	return nil
}

func TestMCP2221(t *testing.T) {
	dev := &fakeHID{}
	m, err := newMCP2221(dev, 2, 3, nil)
	require.NoError(t, err)
	assert.Len(t, dev.writes, 2)

	require.NoError(t, m.SetHPD(true))
	msg := dev.writes[len(dev.writes)-1]
	assert.Equal(t, byte(mcpCmdGPIOSet), msg[0])
	assert.Equal(t, []byte{mcpAlter, 1, mcpAlter, mcpDirOutput}, msg[14:18])
	assert.True(t, m.HPD())

	require.NoError(t, m.SetSBU(true))
	assert.Equal(t, byte(1), dev.pins[2])

	require.NoError(t, m.SetMode(altmode.MuxDP, false))

	dev.pins[3] = mcpNotGPIO
	assert.True(t, m.HPD(), "falls back to the last level written")

	dev.fail = true
	assert.Error(t, m.SetSBU(false))

	require.NoError(t, m.Close())
	assert.True(t, dev.closed)
}

func TestMCP2221InvalidPin(t *testing.T) {
	dev := &fakeHID{}
	_, err := newMCP2221(dev, 4, 3, nil)
	assert.Error(t, err)
	assert.True(t, dev.closed)
}
