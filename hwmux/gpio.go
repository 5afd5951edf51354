package hwmux

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

// GPIOMux is a discrete mux steered by GPIO lines. Any line may be nil.
type GPIOMux struct {
	SBU      gpio.PinIO
	DP       gpio.PinIO
	USB      gpio.PinIO
	Polarity gpio.PinIO
	HPDPin   gpio.PinIO

	hpd bool
}

func pinByName(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return pin, nil
}

// NewGPIOMux looks up the lines by name. Empty names are left unconnected.
// Every output starts low.
func NewGPIOMux(sbu, dp, usb, polarity, hpd string) (*GPIOMux, error) {
	m := &GPIOMux{}

	for _, p := range []struct {
		name string
		pin  *gpio.PinIO
	}{
		{sbu, &m.SBU},
		{dp, &m.DP},
		{usb, &m.USB},
		{polarity, &m.Polarity},
		{hpd, &m.HPDPin},
	} {
		pin, err := pinByName(p.name)
		if err != nil {
			return nil, err
		}
		if pin != nil {
			if err := pin.Out(gpio.Low); err != nil {
				return nil, fmt.Errorf("could not drive %s: %v", p.name, err)
			}
		}
		*p.pin = pin
	}

	return m, nil
}

func level(high bool) gpio.Level {
	if high {
		return gpio.High
	}
	return gpio.Low
}

func out(pin gpio.PinIO, high bool) error {
	if pin == nil {
		return nil
	}
	return pin.Out(level(high))
}

func (m *GPIOMux) SetMode(mode altmode.MuxMode, flip bool) error {
	usb := false
	dp := false

	switch mode {
	case altmode.MuxUSB, altmode.MuxTBTCompat:
		usb = true
	case altmode.MuxDP:
		dp = true
	case altmode.MuxDock:
		usb = true
		dp = true
	}

	// Break before make.
	if err := out(m.USB, false); err != nil {
		return err
	}
	if err := out(m.DP, false); err != nil {
		return err
	}
	if err := out(m.Polarity, flip); err != nil {
		return err
	}
	if err := out(m.USB, usb); err != nil {
		return err
	}
	return out(m.DP, dp)
}

func (m *GPIOMux) SetSBU(enable bool) error {
	return out(m.SBU, enable)
}

func (m *GPIOMux) SetHPD(high bool) error {
	if err := out(m.HPDPin, high); err != nil {
		return err
	}
	m.hpd = high
	return nil
}

func (m *GPIOMux) HPD() bool {
	return m.hpd
}

func (m *GPIOMux) HPDUpdate(level bool, irq bool) error {
	return nil
}

func (m *GPIOMux) Close() error {
	return nil
}
