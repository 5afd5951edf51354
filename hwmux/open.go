package hwmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type target struct {
	kind   string
	bus    string
	addr   uint16
	serial string
	pins   []string
	sbuGP  byte
	hpdGP  byte
}

func getPart(parts []string, index int, def string) string {
	if index >= len(parts) || parts[index] == "" {
		return def
	}
	return parts[index]
}

func parseGP(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	if v >= mcpPins {
		return 0, fmt.Errorf("GP%d out of range", v)
	}
	return byte(v), nil
}

func parsePath(path string) (target, error) {
	parts := strings.Split(path, ":")
	t := target{kind: parts[0]}

	switch t.kind {
	case "sim":

	case "gpio":
		t.pins = make([]string, 5)
		copy(t.pins, strings.Split(getPart(parts, 1, ""), ","))

	case "i2c":
		t.bus = getPart(parts, 1, "/dev/i2c-1")
		addr, err := strconv.ParseUint(getPart(parts, 2, "0x30"), 0, 7)
		if err != nil {
			return t, err
		}
		t.addr = uint16(addr)
		t.pins = []string{getPart(parts, 3, "")}

	case "usb":
		t.serial = getPart(parts, 1, "")
		var err error
		if t.sbuGP, err = parseGP(getPart(parts, 2, "2")); err != nil {
			return t, err
		}
		if t.hpdGP, err = parseGP(getPart(parts, 3, "3")); err != nil {
			return t, err
		}

	default:
		return t, errors.New("mux type not supported, use 'gpio', 'i2c', 'usb' or 'sim'")
	}

	return t, nil
}

// Open creates the backend described by path:
//
//	sim
//	gpio:<sbu>,<dp>,<usb>,<polarity>,<hpd>
//	i2c:<bus>:<addr>:<hpd gpio>
//	usb:<serial>:<sbu GP>:<hpd GP>
func Open(path string, logFunc LogFunc) (Backend, error) {
	t, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	if t.kind == "sim" {
		return NewSim(), nil
	}

	if t.kind == "usb" {
		m, err := OpenMCP2221(t.serial, t.sbuGP, t.hpdGP, logFunc)
		if err != nil {
			return nil, fmt.Errorf("failed to open bridge: %v", err)
		}
		return m, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %v", err)
	}

	if t.kind == "gpio" {
		return NewGPIOMux(t.pins[0], t.pins[1], t.pins[2], t.pins[3], t.pins[4])
	}

	hpd, err := pinByName(t.pins[0])
	if err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(t.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open bus: %v", err)
	}

	return NewI2CMux(bus, t.addr, hpd, bus.Close), nil
}

// OpenPorts opens one backend per path.
func OpenPorts(paths []string, logFunc LogFunc) (*Ports, error) {
	var backends []Backend

	for i, path := range paths {
		b, err := Open(path, logFunc)
		if err != nil {
			for _, o := range backends {
				o.Close()
			}
			return nil, fmt.Errorf("port %d: %w", i, err)
		}
		backends = append(backends, b)
	}

	return NewPorts(logFunc, backends...), nil
}
