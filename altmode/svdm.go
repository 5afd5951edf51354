package altmode

import (
	"fmt"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// Response is the VDM to transmit after an inbound VDM was handled. A zero
// Count means nothing is sent.
type Response struct {
	Count   int
	Payload [pdvdm.MaxObjects]uint32
	Scope   pdvdm.Scope
}

func (r Response) Header() pdvdm.Header {
	return pdvdm.Header(r.Payload[0])
}

// Objects returns the objects to transmit, header first.
func (r Response) Objects() []uint32 {
	return r.Payload[:r.Count]
}

func (r Response) String() string {
	if r.Count == 0 {
		return "none"
	}
	return fmt.Sprintf("%s %s +%d", r.Scope, r.Header(), r.Count-1)
}

func makeResponse(scope pdvdm.Scope, hdr pdvdm.Header, vdos ...uint32) Response {
	r := Response{Count: 1 + len(vdos), Scope: scope}
	r.Payload[0] = uint32(hdr)
	copy(r.Payload[1:], vdos)
	return r
}

func svidString(svid uint16) string {
	return fmt.Sprintf("%04x", svid)
}

func (e *Engine) request(p *portState, scope pdvdm.Scope, svid uint16, cmd pdvdm.Command) Response {
	hdr := pdvdm.MakeHeader(svid, cmd).WithVersion(e.svdmVersion(p, scope))
	return makeResponse(scope, hdr)
}

// HandleVDM processes one inbound VDM received on scope. payload holds the
// header followed by its data objects. The returned Response, if any, must
// be transmitted before the next VDM of the port is handled.
func (e *Engine) HandleVDM(port int, scope pdvdm.Scope, payload []uint32) (Response, error) {
	p, err := e.port(port)
	if err != nil {
		return Response{}, err
	}
	if scope >= pdvdm.NumScopes {
		return Response{}, ErrProtocol{Port: port, Scope: scope, Reason: "unknown scope"}
	}
	if len(payload) == 0 || len(payload) > pdvdm.MaxObjects {
		return Response{}, ErrProtocol{Port: port, Scope: scope, Reason: fmt.Sprintf("bad object count %d", len(payload))}
	}

	hdr := pdvdm.Header(payload[0])
	if !hdr.Structured() {
		return Response{}, ErrProtocol{Port: port, Scope: scope, Reason: "unstructured VDM"}
	}

	log := e.portLog(port)
	log.Debug("VDM", "scope", scope, "hdr", hdr, "count", len(payload))

	switch hdr.Type() {
	case pdvdm.TypeInit:
		return e.handleInit(port, p, scope, hdr, payload), nil
	case pdvdm.TypeACK:
		if hdr.Version() < p.version[scope] {
			p.version[scope] = hdr.Version()
		}
		return e.handleACK(port, p, scope, hdr, payload)
	case pdvdm.TypeBusy:
		return e.handleBusy(port, p, scope, hdr), nil
	default:
		return e.handleNAK(port, p, scope, hdr), nil
	}
}

func (e *Engine) handleInit(port int, p *portState, scope pdvdm.Scope, hdr pdvdm.Header, payload []uint32) Response {
	var out Response
	out.Scope = scope

	rsize := 0
	switch cmd := hdr.Command(); {
	case cmd == pdvdm.CmdAttention:
		// Attention is never answered.
		e.consumeAttention(port, scope, payload)
		return Response{}
	case cmd >= pdvdm.CmdDPStatus:
		s := e.Lookup(port, scope, hdr.SVID())
		if s == nil || s.Opos == 0 {
			break
		}
		if cmd == pdvdm.CmdDPStatus {
			rsize = s.handler.Status(port, out.Payload[:])
		} else {
			rsize = s.handler.Config(port, out.Payload[:])
		}
	}

	switch {
	case rsize > 0:
		out.Count = rsize
		out.Payload[0] = uint32(pdvdm.Header(out.Payload[0]).WithType(pdvdm.TypeACK).WithVersion(e.svdmVersion(p, scope)))
	case rsize == 0:
		out = makeResponse(scope, hdr.WithType(pdvdm.TypeNAK).WithVersion(e.svdmVersion(p, scope)))
	default:
		out = makeResponse(scope, hdr.WithType(pdvdm.TypeBusy).WithVersion(e.svdmVersion(p, scope)))
	}
	return out
}

func (e *Engine) handleACK(port int, p *portState, scope pdvdm.Scope, hdr pdvdm.Header, payload []uint32) (Response, error) {
	log := e.portLog(port)

	if hdr.SVID() == pdvdm.SVIDIntel && e.tbt != nil &&
		(hdr.Command() == pdvdm.CmdEnterMode || hdr.Command() == pdvdm.CmdExitMode) {
		if e.tbt.HandleACK(port, scope, hdr) {
			return e.tbtContinue(port, p), nil
		}
		return Response{}, nil
	}

	switch hdr.Command() {
	case pdvdm.CmdDiscoverIdent:
		if err := e.ConsumeIdentity(port, scope, payload); err != nil {
			return Response{}, err
		}
		if scope == pdvdm.SOP && e.discoverCable && p.records[scopeSOPPrime].IdentityState == DiscoveryNeeded {
			return e.request(p, pdvdm.SOPPrime, pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent), nil
		}
		if scope == pdvdm.SOPPrime && !p.records[scopeSOPPrime].Modal() {
			return e.request(p, pdvdm.SOP, pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID), nil
		}
		return e.request(p, scope, pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID), nil

	case pdvdm.CmdDiscoverSVID:
		if err := e.ConsumeSVIDs(port, scope, payload); err != nil {
			return Response{}, err
		}
		if _, r, _ := e.record(port, scope); r.SVIDState == DiscoveryNeeded {
			return e.request(p, scope, pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID), nil
		}
		return e.nextDiscovery(port, p, scope), nil

	case pdvdm.CmdDiscoverModes:
		idx, ok := scopeIndex(scope)
		if !ok {
			return Response{}, ErrProtocol{Port: port, Scope: scope, Reason: "modes on untracked scope"}
		}
		if err := e.ConsumeModes(port, scope, p.requested[idx], payload); err != nil {
			log.Warn("Discover modes failed", "error", err)
		}
		p.requested[idx] = 0
		return e.nextDiscovery(port, p, scope), nil

	case pdvdm.CmdEnterMode:
		s, err := e.commitEnter(port, p, scope, hdr)
		if err != nil {
			return Response{}, err
		}
		log.Info("Entered mode", "scope", scope, "svid", svidString(s.SVID), "opos", s.Opos)

		var out Response
		if n := s.handler.Status(port, out.Payload[:]); n > 0 {
			out.Count = n
			out.Scope = scope
			out.Payload[0] = uint32(pdvdm.Header(out.Payload[0]).WithVersion(e.svdmVersion(p, scope)))
		}
		return out, nil

	case pdvdm.CmdDPStatus:
		s := e.Lookup(port, scope, hdr.SVID())
		e.consumeAttention(port, scope, payload)
		if s == nil || s.Opos == 0 {
			return Response{}, nil
		}
		if s.SVID == pdvdm.SVIDDisplayPort && p.cfg.SafeBeforeConfig {
			if err := e.mux.SetSafe(port); err != nil {
				log.Error("Mux safe failed", "error", err)
				return Response{}, fmt.Errorf("%w: %v", ErrMuxFailed, err)
			}
		}

		var out Response
		if n := s.handler.Config(port, out.Payload[:]); n > 0 {
			out.Count = n
			out.Scope = scope
			out.Payload[0] = uint32(pdvdm.Header(out.Payload[0]).WithVersion(e.svdmVersion(p, scope)))
		}
		return out, nil

	case pdvdm.CmdDPConfig:
		if s := e.Lookup(port, scope, hdr.SVID()); s != nil && s.Opos != 0 {
			s.handler.PostConfig(port)
		}
	}

	return Response{}, nil
}

// nextDiscovery continues discovery on scope after an SVID or modes step.
func (e *Engine) nextDiscovery(port int, p *portState, scope pdvdm.Scope) Response {
	idx, _ := scopeIndex(scope)
	svid, st := p.records[idx].NextModeDiscoveryTarget()
	if st == DiscoveryNeeded {
		p.requested[idx] = svid
		return e.request(p, scope, svid, pdvdm.CmdDiscoverModes)
	}

	if scope == pdvdm.SOPPrime {
		return e.request(p, pdvdm.SOP, pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID)
	}

	e.portLog(port).Info("Discovery complete", "svids", len(p.records[scopeSOP].SVIDs()), "result", st)
	if e.apModeEntry {
		return Response{}
	}

	out, _, err := e.modeEntry(port, p)
	if err != nil {
		e.portLog(port).Warn("Mode entry failed", "error", err)
	}
	return out
}

func (e *Engine) handleBusy(port int, p *portState, scope pdvdm.Scope, hdr pdvdm.Header) Response {
	cmd := hdr.Command()
	if cmd.IsDiscovery() {
		e.portLog(port).Debug("Partner busy, retrying", "scope", scope, "cmd", cmd)
		return makeResponse(scope, hdr.WithType(pdvdm.TypeInit).WithVersion(e.svdmVersion(p, scope)))
	}

	// BUSY ends an Enter or Exit like a NAK does. Nothing is resent.
	if hdr.SVID() == pdvdm.SVIDIntel && e.tbt != nil &&
		(cmd == pdvdm.CmdEnterMode || cmd == pdvdm.CmdExitMode) {
		e.portLog(port).Warn("Partner busy on thunderbolt", "scope", scope, "cmd", cmd)
		if e.tbt.HandleNAK(port, scope, hdr) {
			return e.tbtContinue(port, p)
		}
		return Response{}
	}

	if cmd == pdvdm.CmdEnterMode {
		if idx, ok := scopeIndex(scope); ok {
			if s := p.modes[idx].find(hdr.SVID()); s != nil {
				s.pending = 0
			}
		}
		e.portLog(port).Error("Partner busy on enter mode", "scope", scope, "svid", svidString(hdr.SVID()))
	}
	return Response{}
}

func (e *Engine) handleNAK(port int, p *portState, scope pdvdm.Scope, hdr pdvdm.Header) Response {
	log := e.portLog(port)
	cmd := hdr.Command()

	if hdr.SVID() == pdvdm.SVIDIntel && e.tbt != nil &&
		(cmd == pdvdm.CmdEnterMode || cmd == pdvdm.CmdExitMode) {
		if e.tbt.HandleNAK(port, scope, hdr) {
			return e.tbtContinue(port, p)
		}
		return Response{}
	}

	idx, tracked := scopeIndex(scope)
	if !tracked {
		log.Warn("NAK on untracked scope", "scope", scope, "cmd", cmd)
		return Response{}
	}
	r := &p.records[idx]

	switch cmd {
	case pdvdm.CmdDiscoverIdent:
		r.IdentityState = DiscoveryFailed
		if scope == pdvdm.SOPPrime {
			return e.request(p, pdvdm.SOP, pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID)
		}
		log.Info("Partner refused identity")

	case pdvdm.CmdDiscoverSVID:
		r.SVIDState = DiscoveryFailed
		if scope == pdvdm.SOPPrime {
			return e.request(p, pdvdm.SOP, pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID)
		}
		log.Info("Partner refused SVID discovery")

	case pdvdm.CmdDiscoverModes:
		r.failModes(p.requested[idx])
		p.requested[idx] = 0
		return e.nextDiscovery(port, p, scope)

	case pdvdm.CmdEnterMode:
		if s := p.modes[idx].find(hdr.SVID()); s != nil {
			s.pending = 0
		}
		log.Warn("Partner refused enter mode", "scope", scope, "svid", svidString(hdr.SVID()))

	default:
		log.Debug("NAK", "scope", scope, "cmd", cmd, "svid", svidString(hdr.SVID()))
	}

	return Response{}
}

// tbtContinue advances the Thunderbolt sequence after a response.
func (e *Engine) tbtContinue(port int, p *portState) Response {
	res, out := e.tbt.SetupNextVDM(port)
	switch res {
	case SetupSuccess:
		return out
	case SetupMuxWait:
		p.muxWait = true
	case SetupError:
		e.portLog(port).Error("Thunderbolt setup failed")
	}
	return Response{}
}
