package altmode

import (
	"fmt"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

type DiscoveryState uint8

const (
	DiscoveryNeeded DiscoveryState = iota
	DiscoveryComplete
	DiscoveryFailed
)

func (d DiscoveryState) String() string {
	switch d {
	case DiscoveryNeeded:
		return "needed"
	case DiscoveryComplete:
		return "complete"
	case DiscoveryFailed:
		return "failed"
	}
	return fmt.Sprintf("DiscoveryState(%d)", uint8(d))
}

const (
	// SVIDDiscoveryMax is the number of SVIDs kept per record.
	SVIDDiscoveryMax = 16
	// ModeCapacity is the number of mode VDOs kept per SVID.
	ModeCapacity = pdvdm.MaxObjects - 1
)

type SVIDEntry struct {
	SVID      uint16
	State     DiscoveryState
	Modes     [ModeCapacity]uint32
	ModeCount int
}

// Record accumulates what one partner or cable reported on one scope.
type Record struct {
	IdentityState DiscoveryState
	Identity      [pdvdm.IdentityWords]uint32
	IdentityCount int

	SVIDState DiscoveryState
	svids     [SVIDDiscoveryMax]SVIDEntry
	svidCount int
}

func (r *Record) reset() {
	*r = Record{}
}

// SVIDs returns the discovered SVIDs in discovery order. The slice aliases
// the record.
func (r *Record) SVIDs() []SVIDEntry {
	return r.svids[:r.svidCount]
}

func (r *Record) entry(svid uint16) *SVIDEntry {
	for i := 0; i < r.svidCount; i++ {
		if r.svids[i].SVID == svid {
			return &r.svids[i]
		}
	}
	return nil
}

func (r *Record) HasSVID(svid uint16) bool {
	return r.entry(svid) != nil
}

// ModeCaps returns the mode VDOs of svid, or nil unless its discovery completed.
func (r *Record) ModeCaps(svid uint16) []uint32 {
	e := r.entry(svid)
	if e == nil || e.State != DiscoveryComplete {
		return nil
	}
	return e.Modes[:e.ModeCount]
}

// FirstMode returns the first mode VDO of svid, or zero.
func (r *Record) FirstMode(svid uint16) uint32 {
	caps := r.ModeCaps(svid)
	if len(caps) == 0 {
		return 0
	}
	return caps[0]
}

func (r *Record) IDHeader() pdvdm.IDHeader {
	return pdvdm.IDHeader(r.Identity[pdvdm.IdentityIDHeader])
}

func (r *Record) ProductType() pdvdm.ProductType {
	if r.IdentityState != DiscoveryComplete {
		return pdvdm.ProductUndefined
	}
	return r.IDHeader().ProductType()
}

func (r *Record) Modal() bool {
	return r.IdentityState == DiscoveryComplete && r.IDHeader().Modal()
}

func (r *Record) VID() uint16 {
	return r.IDHeader().VID()
}

func (r *Record) PID() uint16 {
	return pdvdm.ProductVDO(r.Identity[pdvdm.IdentityProduct]).PID()
}

func (r *Record) CableVDO() pdvdm.CableVDO {
	return pdvdm.CableVDO(r.Identity[pdvdm.IdentityProduct1])
}

func (r *Record) AMAVDO() pdvdm.AMAVDO {
	return pdvdm.AMAVDO(r.Identity[pdvdm.IdentityProduct1])
}

// ConsumeIdentity stores an Identity ACK. payload starts with the VDM header.
// Without a header the identity is marked failed.
func (r *Record) ConsumeIdentity(payload []uint32) {
	if len(payload) == 0 {
		r.IdentityState = DiscoveryFailed
		return
	}

	n := len(payload) - 1
	if n > len(r.Identity) {
		n = len(r.Identity)
	}

	r.Identity = [pdvdm.IdentityWords]uint32{}
	copy(r.Identity[:], payload[1:1+n])
	r.IdentityCount = n
	r.IdentityState = DiscoveryComplete
}

// ConsumeSVIDs appends the SVIDs of a Discover SVID ACK. Duplicates are
// dropped. It reports whether the record ran out of room.
func (r *Record) ConsumeSVIDs(payload []uint32) (overflow bool) {
	if len(payload) == 0 {
		r.SVIDState = DiscoveryFailed
		return false
	}
	terminated := false

	for _, m := range payload[1:] {
		vdo := pdvdm.SVIDVDO(m)
		for _, svid := range [2]uint16{vdo.First(), vdo.Second()} {
			if svid == 0 {
				terminated = true
				break
			}
			if r.HasSVID(svid) {
				continue
			}
			if r.svidCount == SVIDDiscoveryMax {
				overflow = true
				break
			}
			r.svids[r.svidCount] = SVIDEntry{SVID: svid}
			r.svidCount++
		}
		if terminated || overflow {
			break
		}
	}

	// A full response without terminator may be followed by more SVIDs.
	if terminated || overflow || len(payload)-1 < ModeCapacity {
		r.SVIDState = DiscoveryComplete
	}
	return overflow
}

// ConsumeModes stores a Discover Modes ACK for the SVID that was requested.
// A response for another SVID, or one without modes, fails expected.
func (r *Record) ConsumeModes(expected uint16, payload []uint32) error {
	e := r.entry(expected)
	if e == nil {
		return fmt.Errorf("modes for unknown svid %04x", expected)
	}
	if len(payload) == 0 {
		e.State = DiscoveryFailed
		return fmt.Errorf("empty modes response for %04x", expected)
	}

	if got := pdvdm.Header(payload[0]).SVID(); got != expected {
		e.State = DiscoveryFailed
		return fmt.Errorf("requested modes of %04x, partner answered for %04x", expected, got)
	}

	n := len(payload) - 1
	if n < 1 {
		e.State = DiscoveryFailed
		return fmt.Errorf("svid %04x has no modes", expected)
	}
	if n > ModeCapacity {
		n = ModeCapacity
	}

	e.Modes = [ModeCapacity]uint32{}
	copy(e.Modes[:], payload[1:1+n])
	e.ModeCount = n
	e.State = DiscoveryComplete
	return nil
}

func (r *Record) failModes(svid uint16) {
	if e := r.entry(svid); e != nil {
		e.State = DiscoveryFailed
	}
}

// NextModeDiscoveryTarget returns the first SVID still Needed. When none
// is, it returns the first Failed SVID, or DiscoveryComplete when all
// succeeded or no SVIDs exist.
func (r *Record) NextModeDiscoveryTarget() (uint16, DiscoveryState) {
	for _, m := range r.SVIDs() {
		if m.State == DiscoveryNeeded {
			return m.SVID, DiscoveryNeeded
		}
	}
	for _, m := range r.SVIDs() {
		if m.State == DiscoveryFailed {
			return m.SVID, DiscoveryFailed
		}
	}
	return 0, DiscoveryComplete
}

// ModesDiscovered reports whether SVID and mode discovery both finished.
func (r *Record) ModesDiscovered() bool {
	if r.SVIDState != DiscoveryComplete {
		return false
	}
	_, st := r.NextModeDiscoveryTarget()
	return st != DiscoveryNeeded
}

func (e *Engine) record(port int, scope pdvdm.Scope) (*portState, *Record, error) {
	p, err := e.port(port)
	if err != nil {
		return nil, nil, err
	}
	idx, ok := scopeIndex(scope)
	if !ok {
		return nil, nil, ErrProtocol{Port: port, Scope: scope, Reason: "no discovery on this scope"}
	}
	return p, &p.records[idx], nil
}

// Record returns the discovery record of port and scope for inspection.
func (e *Engine) Record(port int, scope pdvdm.Scope) (*Record, error) {
	_, r, err := e.record(port, scope)
	return r, err
}

// ConsumeIdentity stores an Identity ACK and serves the power requests of
// alternate mode adapters.
func (e *Engine) ConsumeIdentity(port int, scope pdvdm.Scope, payload []uint32) error {
	_, r, err := e.record(port, scope)
	if err != nil {
		return err
	}

	r.ConsumeIdentity(payload)
	if len(payload) == 0 {
		return ErrProtocol{Port: port, Scope: scope, Reason: "empty identity response"}
	}

	if scope == pdvdm.SOP && r.ProductType() == pdvdm.ProductAMA {
		ama := r.AMAVDO()
		if ama.VCONNRequired() && !e.power.RequestVCONN(port) {
			e.portLog(port).Warn("AMA requested VCONN, not available")
		}
		if ama.VCONNRequired() && !ama.VBUSRequired() {
			e.power.ResetVBUS(port)
		}
	}

	e.portLog(port).Debug("Identity", "scope", scope, "vid", fmt.Sprintf("%04x", r.VID()),
		"pid", fmt.Sprintf("%04x", r.PID()), "type", r.ProductType(), "modal", r.Modal())
	return nil
}

func (e *Engine) ConsumeSVIDs(port int, scope pdvdm.Scope, payload []uint32) error {
	_, r, err := e.record(port, scope)
	if err != nil {
		return err
	}

	if r.ConsumeSVIDs(payload) {
		e.portLog(port).Warn("SVID overflow", "scope", scope, "max", SVIDDiscoveryMax)
	}
	if len(payload) == 0 {
		return ErrProtocol{Port: port, Scope: scope, Reason: "empty SVID response"}
	}
	return nil
}

func (e *Engine) ConsumeModes(port int, scope pdvdm.Scope, expected uint16, payload []uint32) error {
	_, r, err := e.record(port, scope)
	if err != nil {
		return err
	}

	if err := r.ConsumeModes(expected, payload); err != nil {
		return ErrProtocol{Port: port, Scope: scope, Reason: err.Error()}
	}
	return nil
}

func (e *Engine) NextModeDiscoveryTarget(port int, scope pdvdm.Scope) (uint16, DiscoveryState, error) {
	_, r, err := e.record(port, scope)
	if err != nil {
		return 0, DiscoveryNeeded, err
	}
	svid, st := r.NextModeDiscoveryTarget()
	return svid, st, nil
}
