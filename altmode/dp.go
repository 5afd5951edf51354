package altmode

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

const (
	// hpdUpstreamDebounce is the minimum spacing between HPD changes sent
	// to the display controller.
	hpdUpstreamDebounce = 2 * time.Millisecond
	// hpdIRQPulse is the width of the low pulse signalling an HPD IRQ.
	hpdIRQPulse = 500 * time.Microsecond
)

type dpSession struct {
	on         bool
	hpdPending bool

	status   pdvdm.DPStatusVDO
	caps     pdvdm.DPModeVDO
	pin      uint8
	mode     MuxMode
	deadline time.Time
}

// DPFlags is a copy of the DisplayPort session for introspection.
type DPFlags struct {
	On         bool              `json:"on"`
	HPDPending bool              `json:"hpdPending"`
	Status     pdvdm.DPStatusVDO `json:"status"`
	Pin        string            `json:"pin,omitempty"`
	Mode       string            `json:"mode,omitempty"`
}

type dpHandler struct {
	e   *Engine
	log *slog.Logger

	sessions []dpSession
}

func newDPHandler(e *Engine, logger *slog.Logger) *dpHandler {
	return &dpHandler{
		e:        e,
		log:      logger.With("component", "dp"),
		sessions: make([]dpSession, len(e.ports)),
	}
}

func (d *dpHandler) reset(port int) {
	d.sessions[port] = dpSession{}
}

func (d *dpHandler) SVID() uint16 {
	return pdvdm.SVIDDisplayPort
}

func (d *dpHandler) Enter(port int, modeCaps uint32) error {
	switch d.e.chipset.State() {
	case ChipsetOn, ChipsetSuspend:
	default:
		return ErrChipsetOff
	}

	caps := pdvdm.DPModeVDO(modeCaps)
	if !caps.SinkCapable() {
		return ErrNotSink
	}

	d.sessions[port] = dpSession{caps: caps}

	if err := d.e.mux.SetSafe(port); err != nil {
		return fmt.Errorf("%w: %v", ErrMuxFailed, err)
	}
	return nil
}

func (d *dpHandler) opos(port int) int {
	return d.e.Opos(port, pdvdm.SOP, pdvdm.SVIDDisplayPort)
}

func (d *dpHandler) Status(port int, payload []uint32) int {
	s := &d.sessions[port]

	status := pdvdm.DPStatus{
		Enabled:   s.on,
		Connected: pdvdm.DPConnDFPD,
	}
	payload[0] = uint32(pdvdm.MakeHeader(pdvdm.SVIDDisplayPort, pdvdm.CmdDPStatus).WithOpos(d.opos(port)))
	payload[1] = uint32(status.VDO())
	return 2
}

// selectPin picks the pin assignment to configure, or zero when none fits.
func (d *dpHandler) selectPin(port int) (uint8, bool) {
	s := &d.sessions[port]

	mfPreferred := s.status.MFPreferred() && d.e.MFAllow(port)
	pins := s.caps.PinCaps()

	if !mfPreferred {
		pins &^= pdvdm.PinMultiFunction
	}
	pins &^= pdvdm.PinBR2

	// C and D work on a C to C cable, E and F need a converter.
	if pins&(pdvdm.PinC|pdvdm.PinD) != 0 {
		pins &^= pdvdm.PinE | pdvdm.PinF
	}

	return pins & -pins, mfPreferred
}

func (d *dpHandler) Config(port int, payload []uint32) int {
	s := &d.sessions[port]

	pin, mfPreferred := d.selectPin(port)
	if pin == 0 {
		d.log.Warn("No usable pin assignment", "port", port, "caps", fmt.Sprintf("%08x", uint32(s.caps)))
		return 0
	}

	s.pin = pin
	s.mode = MuxDP
	if pin&pdvdm.PinMultiFunction != 0 && mfPreferred {
		s.mode = MuxDock
	}

	d.log.Info("Configure", "port", port, "pin", pdvdm.PinName(pin), "mode", s.mode)

	payload[0] = uint32(pdvdm.MakeHeader(pdvdm.SVIDDisplayPort, pdvdm.CmdDPConfig).WithOpos(d.opos(port)))
	payload[1] = uint32(pdvdm.MakeDPConfigVDO(pin, pdvdm.DPSignalDP13, pdvdm.DPConfigUFPD))
	return 2
}

func (d *dpHandler) PostConfig(port int) {
	s := &d.sessions[port]

	if err := d.e.mux.SetSBU(port, true); err != nil {
		d.log.Error("SBU connect failed", "port", port, "error", err)
	}
	if err := d.e.mux.Set(port, s.mode, d.e.polarity(port)); err != nil {
		d.log.Error("Mux set failed", "port", port, "error", err)
	}

	s.on = true
	if !s.hpdPending {
		return
	}

	if err := d.e.hpd.SetLevel(port, true); err != nil {
		d.log.Error("HPD set failed", "port", port, "error", err)
	}
	s.deadline = d.e.clock.Now().Add(hpdUpstreamDebounce)
	d.e.mux.HPDUpdate(port, true, false)
	s.hpdPending = false
}

func (d *dpHandler) Attention(port int, payload []uint32) int {
	if len(payload) < 2 {
		return 0
	}

	s := &d.sessions[port]
	status := pdvdm.DPStatusVDO(payload[1])
	lvl, irq := status.HPDLevel(), status.IRQ()
	s.status = status

	if d.e.chipset.State() == ChipsetSuspend && (lvl || irq) {
		d.e.ap.NotifyDPEntry(port)
	}

	// Status received before configuration completed.
	if !s.on {
		if lvl {
			s.hpdPending = true
		}
		return 1
	}

	if irq && !lvl {
		d.log.Warn("HPD IRQ with level low", "port", port)
		return 0
	}

	if irq && d.e.hpd.Level(port) {
		if wait := s.deadline.Sub(d.e.clock.Now()); wait > 0 {
			d.e.clock.Sleep(wait)
		}
		if err := d.e.hpd.SetLevel(port, false); err != nil {
			d.log.Error("HPD set failed", "port", port, "error", err)
		}
		d.e.clock.Sleep(hpdIRQPulse)
		if err := d.e.hpd.SetLevel(port, true); err != nil {
			d.log.Error("HPD set failed", "port", port, "error", err)
		}
	} else if err := d.e.hpd.SetLevel(port, lvl); err != nil {
		d.log.Error("HPD set failed", "port", port, "error", err)
	}

	s.deadline = d.e.clock.Now().Add(hpdUpstreamDebounce)
	d.e.mux.HPDUpdate(port, HPDLevel(lvl), HPDIRQ(irq))
	return 1
}

func (d *dpHandler) Exit(port int) {
	s := &d.sessions[port]
	if s.on {
		if err := d.e.mux.SetSafe(port); err != nil {
			d.log.Error("Mux safe failed", "port", port, "error", err)
		}
	}

	d.sessions[port] = dpSession{}

	if err := d.e.hpd.SetLevel(port, false); err != nil {
		d.log.Error("HPD set failed", "port", port, "error", err)
	}
	d.e.mux.HPDUpdate(port, false, false)
}

func (d *dpHandler) flags(port int) DPFlags {
	s := &d.sessions[port]
	f := DPFlags{
		On:         s.on,
		HPDPending: s.hpdPending,
		Status:     s.status,
	}
	if s.pin != 0 {
		f.Pin = pdvdm.PinName(s.pin)
		f.Mode = s.mode.String()
	}
	return f
}

// DPStatus returns the last DisplayPort Status or Attention VDO of port.
func (e *Engine) DPStatus(port int) pdvdm.DPStatusVDO {
	if _, err := e.port(port); err != nil || e.dp == nil {
		return 0
	}
	return e.dp.sessions[port].status
}

func (e *Engine) DPFlags(port int) DPFlags {
	if _, err := e.port(port); err != nil || e.dp == nil {
		return DPFlags{}
	}
	return e.dp.flags(port)
}
