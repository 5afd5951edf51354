package altmode

import (
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// AModeCount is the number of active mode slots per port and scope.
const AModeCount = 3

// Slot binds a discovered SVID to its handler. Opos is zero until the
// partner acknowledged Enter Mode.
type Slot struct {
	SVID uint16
	Opos int

	handler Handler
	pending int
}

func (s *Slot) Handler() Handler {
	return s.handler
}

type modeTable struct {
	slots [AModeCount]Slot
	count int
}

func (t *modeTable) reset() {
	*t = modeTable{}
}

func (t *modeTable) find(svid uint16) *Slot {
	for i := 0; i < t.count; i++ {
		if t.slots[i].SVID == svid {
			return &t.slots[i]
		}
	}
	return nil
}

func (t *modeTable) entered() bool {
	for i := 0; i < t.count; i++ {
		if t.slots[i].Opos != 0 {
			return true
		}
	}
	return false
}

func (e *Engine) modes(port int, scope pdvdm.Scope) (*portState, *modeTable, *Record, error) {
	p, r, err := e.record(port, scope)
	if err != nil {
		return nil, nil, nil, err
	}
	idx, _ := scopeIndex(scope)
	return p, &p.modes[idx], r, nil
}

// Allocate binds svid to its registered handler. A zero svid selects the
// first registered handler whose SVID the partner reported with modes.
func (e *Engine) Allocate(port int, scope pdvdm.Scope, svid uint16) (*Slot, error) {
	_, t, r, err := e.modes(port, scope)
	if err != nil {
		return nil, err
	}
	return e.allocate(port, scope, t, r, svid)
}

func (e *Engine) allocate(port int, scope pdvdm.Scope, t *modeTable, r *Record, svid uint16) (*Slot, error) {
	if svid != 0 {
		if s := t.find(svid); s != nil {
			return s, nil
		}
	}

	for _, h := range e.registry.Handlers() {
		hsvid := h.SVID()
		if svid != 0 && hsvid != svid {
			continue
		}
		// Thunderbolt is entered through its own sequence.
		if svid == 0 && hsvid == pdvdm.SVIDIntel && e.tbt != nil {
			continue
		}
		if len(r.ModeCaps(hsvid)) == 0 {
			continue
		}
		if s := t.find(hsvid); s != nil {
			return s, nil
		}

		if t.count == AModeCount {
			return nil, ErrNoSpace{Port: port, Scope: scope, SVID: hsvid}
		}
		s := &t.slots[t.count]
		*s = Slot{SVID: hsvid, handler: h}
		t.count++
		return s, nil
	}

	return nil, ErrNotAllocated{Port: port, Scope: scope, SVID: svid}
}

// EnterMode prepares entry of svid at opos and returns the Enter Mode
// header to send. Opos zero selects the first mode. The position is
// committed once the partner acknowledges.
func (e *Engine) EnterMode(port int, scope pdvdm.Scope, svid uint16, opos int) (pdvdm.Header, error) {
	p, t, r, err := e.modes(port, scope)
	if err != nil {
		return 0, err
	}

	s, err := e.allocate(port, scope, t, r, svid)
	if err != nil {
		return 0, err
	}

	caps := r.ModeCaps(s.SVID)
	if opos == 0 {
		opos = 1
	}
	if opos < 1 || opos > len(caps) {
		return 0, ErrInvalidOpos{SVID: s.SVID, Opos: opos, Count: len(caps)}
	}

	if err := s.handler.Enter(port, caps[opos-1]); err != nil {
		return 0, ErrEnterRefused{SVID: s.SVID, Err: err}
	}
	s.pending = opos

	hdr := pdvdm.MakeHeader(s.SVID, pdvdm.CmdEnterMode).WithOpos(opos).WithVersion(e.svdmVersion(p, scope))
	e.portLog(port).Debug("Enter mode", "scope", scope, "svid", svidString(s.SVID), "opos", opos)
	return hdr, nil
}

// commitEnter records the position the partner acknowledged.
func (e *Engine) commitEnter(port int, p *portState, scope pdvdm.Scope, hdr pdvdm.Header) (*Slot, error) {
	idx, ok := scopeIndex(scope)
	if !ok {
		return nil, ErrProtocol{Port: port, Scope: scope, Reason: "enter on untracked scope"}
	}

	s := p.modes[idx].find(hdr.SVID())
	if s == nil {
		return nil, ErrNotAllocated{Port: port, Scope: scope, SVID: hdr.SVID()}
	}

	opos := hdr.Opos()
	if opos == 0 {
		opos = s.pending
	}
	count := len(p.records[idx].ModeCaps(s.SVID))
	if opos < 1 || opos > count {
		return nil, ErrInvalidOpos{SVID: s.SVID, Opos: opos, Count: count}
	}

	s.Opos = opos
	s.pending = 0
	p.dfpActive = true
	return s, nil
}

// ExitMode leaves svid at opos and reports whether an Exit Mode should be
// sent to the partner. A zero svid exits every mode of the scope and clears
// its slots; repeating it is a no-op.
func (e *Engine) ExitMode(port int, scope pdvdm.Scope, svid uint16, opos int) (bool, error) {
	p, t, _, err := e.modes(port, scope)
	if err != nil {
		return false, err
	}

	if svid == 0 {
		e.exitAll(port, p, scope)
		return false, nil
	}

	s := t.find(svid)
	if s == nil || s.Opos == 0 || s.Opos != opos {
		return false, ErrNotAllocated{Port: port, Scope: scope, SVID: svid}
	}

	s.handler.Exit(port)
	s.Opos = 0
	p.dfpActive = p.modes[scopeSOP].entered()
	return true, nil
}

func (e *Engine) exitAll(port int, p *portState, scope pdvdm.Scope) {
	idx, ok := scopeIndex(scope)
	if !ok {
		return
	}

	t := &p.modes[idx]
	for i := 0; i < t.count; i++ {
		t.slots[i].handler.Exit(port)
	}
	t.reset()

	if scope == pdvdm.SOP {
		p.dfpActive = false
	}
}

// Lookup returns the slot bound to svid, or nil.
func (e *Engine) Lookup(port int, scope pdvdm.Scope, svid uint16) *Slot {
	_, t, _, err := e.modes(port, scope)
	if err != nil {
		return nil
	}
	return t.find(svid)
}

// Opos returns the entered position of svid, zero when not entered.
func (e *Engine) Opos(port int, scope pdvdm.Scope, svid uint16) int {
	if s := e.Lookup(port, scope, svid); s != nil {
		return s.Opos
	}
	return 0
}

// consumeAttention hands an Attention or Status payload to the entered mode
// it addresses.
func (e *Engine) consumeAttention(port int, scope pdvdm.Scope, payload []uint32) int {
	hdr := pdvdm.Header(payload[0])
	s := e.Lookup(port, scope, hdr.SVID())
	if s == nil || s.Opos == 0 || s.Opos != hdr.Opos() {
		return 0
	}
	return s.handler.Attention(port, payload)
}
