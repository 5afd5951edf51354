package altmode

import (
	"errors"
	"fmt"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// EntryResult is the outcome of one RunModeEntry step.
type EntryResult uint8

const (
	// EntryIdle: nothing can be entered yet.
	EntryIdle EntryResult = iota
	// EntryPending: waiting for the mux, call MuxReady.
	EntryPending
	// EntrySent: an Enter Mode request was sent.
	EntrySent
	// EntryDone: mode entry finished or was given up.
	EntryDone
)

func (r EntryResult) String() string {
	switch r {
	case EntryIdle:
		return "idle"
	case EntryPending:
		return "pending"
	case EntrySent:
		return "sent"
	case EntryDone:
		return "done"
	}
	return fmt.Sprintf("EntryResult(%d)", uint8(r))
}

var ErrNotConnected = errors.New("port not connected")

func (e *Engine) send(port int, r Response) error {
	if r.Count == 0 {
		return nil
	}
	return e.pe.SendVDM(port, r.Scope, r.Header(), r.Payload[1:r.Count])
}

// StartDiscovery sends Discover Identity to the port partner.
func (e *Engine) StartDiscovery(port int) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}
	if !p.connected {
		return ErrNotConnected
	}
	return e.send(port, e.request(p, pdvdm.SOP, pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent))
}

// RunModeEntry enters the preferred mode once discovery is complete.
// Thunderbolt is tried first, DisplayPort only when Thunderbolt is not
// supported.
func (e *Engine) RunModeEntry(port int) (EntryResult, error) {
	p, err := e.port(port)
	if err != nil {
		return EntryIdle, err
	}

	out, res, err := e.modeEntry(port, p)
	if err != nil {
		return res, err
	}
	if err := e.send(port, out); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) modeEntry(port int, p *portState) (Response, EntryResult, error) {
	if p.entryDone || (e.tbt != nil && e.tbt.entryIsDone(port)) {
		return Response{}, EntryDone, nil
	}
	if p.muxWait {
		return Response{}, EntryPending, nil
	}
	if e.tbt != nil && e.tbt.sessions[port].inFlight {
		return Response{}, EntrySent, nil
	}
	if !p.connected || e.chipset.State() == ChipsetOff {
		return Response{}, EntryIdle, nil
	}

	sop := &p.records[scopeSOP]
	if !sop.ModesDiscovered() {
		return Response{}, EntryIdle, nil
	}

	if e.tbt != nil && len(sop.ModeCaps(pdvdm.SVIDIntel)) > 0 {
		res, out := e.tbt.SetupNextVDM(port)
		switch res {
		case SetupSuccess:
			return out, EntrySent, nil
		case SetupMuxWait:
			p.muxWait = true
			return Response{}, EntryPending, nil
		case SetupError:
			return Response{}, EntryIdle, errors.New("thunderbolt setup failed")
		}
		e.portLog(port).Debug("Thunderbolt not supported, trying other modes")
	}

	svid := uint16(0)
	if len(sop.ModeCaps(pdvdm.SVIDDisplayPort)) > 0 {
		svid = pdvdm.SVIDDisplayPort
	}

	p.entryDone = true
	hdr, err := e.EnterMode(port, pdvdm.SOP, svid, 0)
	if err != nil {
		var na ErrNotAllocated
		if errors.As(err, &na) {
			e.portLog(port).Info("No supported mode")
			return Response{}, EntryDone, nil
		}
		return Response{}, EntryDone, err
	}
	return makeResponse(pdvdm.SOP, hdr), EntrySent, nil
}

// MuxReady continues a sequence that was waiting for the mux to settle.
func (e *Engine) MuxReady(port int) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}
	if !p.muxWait {
		return nil
	}
	p.muxWait = false

	if e.tbt == nil {
		return nil
	}
	return e.send(port, e.tbtContinue(port, p))
}

// MuxWaiting reports whether the port waits for MuxReady.
func (e *Engine) MuxWaiting(port int) bool {
	p, err := e.port(port)
	return err == nil && p.muxWait
}

// RunModeExit leaves the entered modes of port, telling the partner.
func (e *Engine) RunModeExit(port int) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}

	if e.tbt != nil && e.tbt.IsActive(port) {
		e.portLog(port).Info("Thunderbolt teardown")
		e.tbt.RequestExit(port)
		return e.send(port, e.tbtContinue(port, p))
	}

	t := &p.modes[scopeSOP]
	for i := 0; i < t.count; i++ {
		s := &t.slots[i]
		if s.Opos == 0 || s.SVID == pdvdm.SVIDIntel {
			continue
		}

		opos := s.Opos
		sendExit, err := e.ExitMode(port, pdvdm.SOP, s.SVID, opos)
		if err != nil {
			return err
		}
		if sendExit {
			hdr := pdvdm.MakeHeader(s.SVID, pdvdm.CmdExitMode).WithOpos(opos).WithVersion(e.svdmVersion(p, pdvdm.SOP))
			if err := e.send(port, makeResponse(pdvdm.SOP, hdr)); err != nil {
				return err
			}
		}
	}
	return nil
}
