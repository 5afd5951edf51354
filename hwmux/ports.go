package hwmux

import (
	"github.com/BertoldVdb/PDAltMode/altmode"
)

// Ports implements altmode.Mux and altmode.HPD on top of one Backend per
// port.
type Ports struct {
	backends []Backend
	flip     []bool
	logFunc  LogFunc
}

func NewPorts(logFunc LogFunc, backends ...Backend) *Ports {
	return &Ports{
		backends: backends,
		flip:     make([]bool, len(backends)),
		logFunc:  logFunc,
	}
}

func (p *Ports) log(format string, params ...interface{}) {
	if p.logFunc != nil {
		p.logFunc(format, params...)
	}
}

func (p *Ports) backend(port int) (Backend, error) {
	if port < 0 || port >= len(p.backends) {
		return nil, altmode.ErrPortRange{Port: port}
	}
	return p.backends[port], nil
}

func (p *Ports) Len() int {
	return len(p.backends)
}

func (p *Ports) set(port int, mode altmode.MuxMode, flip bool) error {
	b, err := p.backend(port)
	if err != nil {
		return err
	}

	p.log("C%d: mux %s flip=%v", port, mode, flip)
	if err := b.SetMode(mode, flip); err != nil {
		return err
	}
	p.flip[port] = flip
	return nil
}

func (p *Ports) SetSafe(port int) error {
	return p.set(port, altmode.MuxSafe, p.flipOf(port))
}

func (p *Ports) flipOf(port int) bool {
	if port < 0 || port >= len(p.flip) {
		return false
	}
	return p.flip[port]
}

// SetSafeExit enters safe state and opens the SBU switch.
func (p *Ports) SetSafeExit(port int) error {
	if err := p.set(port, altmode.MuxSafe, p.flipOf(port)); err != nil {
		return err
	}
	return p.SetSBU(port, false)
}

func (p *Ports) Set(port int, mode altmode.MuxMode, polarity altmode.Polarity) error {
	return p.set(port, mode, polarity == altmode.PolarityCC2)
}

func (p *Ports) SetSBU(port int, enable bool) error {
	b, err := p.backend(port)
	if err != nil {
		return err
	}

	p.log("C%d: sbu=%v", port, enable)
	return b.SetSBU(enable)
}

// RestoreDataRole keeps the last polarity seen on the port.
func (p *Ports) RestoreDataRole(port int, role altmode.DataRole) error {
	mode := altmode.MuxUSB
	if role == altmode.RoleDisconnected {
		mode = altmode.MuxNone
	}

	if err := p.SetSBU(port, false); err != nil {
		return err
	}
	return p.set(port, mode, p.flipOf(port))
}

func (p *Ports) HPDUpdate(port int, level altmode.HPDLevel, irq altmode.HPDIRQ) {
	b, err := p.backend(port)
	if err != nil {
		return
	}

	if err := b.HPDUpdate(bool(level), bool(irq)); err != nil {
		p.log("C%d: hpd update failed: %v", port, err)
	}
}

func (p *Ports) SetLevel(port int, high bool) error {
	b, err := p.backend(port)
	if err != nil {
		return err
	}
	return b.SetHPD(high)
}

func (p *Ports) Level(port int) bool {
	b, err := p.backend(port)
	if err != nil {
		return false
	}
	return b.HPD()
}

func (p *Ports) Close() error {
	var first error
	for _, b := range p.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
