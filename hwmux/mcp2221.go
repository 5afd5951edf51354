package hwmux

import (
	"errors"
	"fmt"

	"github.com/karalabe/hid"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

// USB identifiers of the MCP2221A bridge.
const (
	MCP2221VID = 0x04D8
	MCP2221PID = 0x00DD
)

const (
	mcpMsgSize = 64
	mcpPins    = 4

	mcpCmdGPIOSet = 0x50
	mcpCmdGPIOGet = 0x51

	mcpAlter     = 0xFF
	mcpDirOutput = 0x00
	mcpNotGPIO   = 0xEE
)

type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221 drives HPD and the SBU switch from the GP pins of an MCP2221A
// USB bridge. The bridge has no lane mux; modes are only logged.
type MCP2221 struct {
	dev     hidDevice
	sbuPin  byte
	hpdPin  byte
	logFunc LogFunc

	hpd  bool
	mode altmode.MuxMode
}

// OpenMCP2221 opens the bridge with the given serial, or the first one when
// serial is empty.
func OpenMCP2221(serial string, sbuPin, hpdPin byte, logFunc LogFunc) (*MCP2221, error) {
	if !hid.Supported() {
		return nil, errors.New("hid is not supported on this platform")
	}

	for _, info := range hid.Enumerate(MCP2221VID, MCP2221PID) {
		if serial != "" && info.Serial != serial {
			continue
		}

		dev, err := info.Open()
		if err != nil {
			return nil, err
		}
		return newMCP2221(dev, sbuPin, hpdPin, logFunc)
	}

	return nil, errors.New("no device found")
}

func newMCP2221(dev hidDevice, sbuPin, hpdPin byte, logFunc LogFunc) (*MCP2221, error) {
	if sbuPin >= mcpPins || hpdPin >= mcpPins {
		dev.Close()
		return nil, fmt.Errorf("invalid GP pin, the bridge has %d", mcpPins)
	}

	m := &MCP2221{
		dev:     dev,
		sbuPin:  sbuPin,
		hpdPin:  hpdPin,
		logFunc: logFunc,
	}

	if err := m.setPin(hpdPin, false); err != nil {
		dev.Close()
		return nil, err
	}
	if err := m.setPin(sbuPin, false); err != nil {
		dev.Close()
		return nil, err
	}
	return m, nil
}

func (m *MCP2221) log(format string, params ...interface{}) {
	if m.logFunc != nil {
		m.logFunc(format, params...)
	}
}

func (m *MCP2221) send(cmd byte, msg []byte) ([]byte, error) {
	msg[0] = cmd
	if _, err := m.dev.Write(msg); err != nil {
		return nil, fmt.Errorf("write cmd %02x: %w", cmd, err)
	}

	rsp := make([]byte, mcpMsgSize)
	n, err := m.dev.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("read cmd %02x: %w", cmd, err)
	}
	if n < mcpMsgSize {
		return nil, fmt.Errorf("read cmd %02x: short read (%d of %d bytes)", cmd, n, mcpMsgSize)
	}
	if rsp[0] != cmd || rsp[1] != 0 {
		return nil, fmt.Errorf("cmd %02x failed", cmd)
	}
	return rsp, nil
}

func (m *MCP2221) setPin(pin byte, high bool) error {
	msg := make([]byte, mcpMsgSize)

	i := 2 + 4*int(pin)
	msg[i] = mcpAlter
	if high {
		msg[i+1] = 1
	}
	msg[i+2] = mcpAlter
	msg[i+3] = mcpDirOutput

	_, err := m.send(mcpCmdGPIOSet, msg)
	return err
}

func (m *MCP2221) getPin(pin byte) (bool, error) {
	rsp, err := m.send(mcpCmdGPIOGet, make([]byte, mcpMsgSize))
	if err != nil {
		return false, err
	}

	v := rsp[2+2*int(pin)]
	if v == mcpNotGPIO {
		return false, fmt.Errorf("GP%d is not in GPIO mode", pin)
	}
	return v != 0, nil
}

func (m *MCP2221) SetMode(mode altmode.MuxMode, flip bool) error {
	m.mode = mode
	m.log("mcp2221: lane mode %s flip=%v", mode, flip)
	return nil
}

func (m *MCP2221) SetSBU(enable bool) error {
	return m.setPin(m.sbuPin, enable)
}

func (m *MCP2221) SetHPD(high bool) error {
	if err := m.setPin(m.hpdPin, high); err != nil {
		return err
	}
	m.hpd = high
	return nil
}

// HPD reads the pin back and falls back to the last level written.
func (m *MCP2221) HPD() bool {
	v, err := m.getPin(m.hpdPin)
	if err != nil {
		m.log("mcp2221: hpd read failed: %v", err)
		return m.hpd
	}
	return v
}

func (m *MCP2221) HPDUpdate(level bool, irq bool) error {
	return nil
}

func (m *MCP2221) Close() error {
	return m.dev.Close()
}
