package hwmux

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

// Register map of the I2C mux.
const (
	regMode = 0x00
	regHPD  = 0x01
)

const (
	modeSafe byte = iota
	modeUSB
	modeDP
	modeDock
	modeTBT
)

const (
	modeFlip = 1 << 7

	hpdLevel = 1 << 0
	hpdIRQ   = 1 << 1
)

// I2CMux is a register mapped mux or retimer. HPD is driven through an
// optional GPIO line.
type I2CMux struct {
	dev    conn.Conn
	closer func() error
	HPDPin gpio.PinIO

	hpd bool
}

// NewI2CMux uses addr on bus. closer is called by Close and may be nil.
func NewI2CMux(bus i2c.Bus, addr uint16, hpd gpio.PinIO, closer func() error) *I2CMux {
	return &I2CMux{
		dev:    &i2c.Dev{Bus: bus, Addr: addr},
		closer: closer,
		HPDPin: hpd,
	}
}

func modeByte(mode altmode.MuxMode, flip bool) byte {
	var v byte

	switch mode {
	case altmode.MuxUSB:
		v = modeUSB
	case altmode.MuxDP:
		v = modeDP
	case altmode.MuxDock:
		v = modeDock
	case altmode.MuxTBTCompat:
		v = modeTBT
	default:
		v = modeSafe
	}

	if flip && v != modeSafe {
		v |= modeFlip
	}
	return v
}

func (m *I2CMux) write(reg byte, value byte) error {
	if err := m.dev.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("i2c write %02x: %w", reg, err)
	}
	return nil
}

// Mode reads back the mode register.
func (m *I2CMux) Mode() (byte, error) {
	rx := make([]byte, 1)
	if err := m.dev.Tx([]byte{regMode}, rx); err != nil {
		return 0, fmt.Errorf("i2c read %02x: %w", regMode, err)
	}
	return rx[0], nil
}

func (m *I2CMux) SetMode(mode altmode.MuxMode, flip bool) error {
	return m.write(regMode, modeByte(mode, flip))
}

// SetSBU is a no-op, the mux switches SBU together with DP.
func (m *I2CMux) SetSBU(enable bool) error {
	return nil
}

func (m *I2CMux) SetHPD(high bool) error {
	if err := out(m.HPDPin, high); err != nil {
		return err
	}
	m.hpd = high
	return nil
}

func (m *I2CMux) HPD() bool {
	return m.hpd
}

func (m *I2CMux) HPDUpdate(level bool, irq bool) error {
	var v byte
	if level {
		v |= hpdLevel
	}
	if irq {
		v |= hpdIRQ
	}
	return m.write(regHPD, v)
}

func (m *I2CMux) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
