package altmode

import (
	"fmt"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

type IdentityStatus struct {
	State string   `json:"state"`
	Type  string   `json:"type,omitempty"`
	VID   string   `json:"vid,omitempty"`
	PID   string   `json:"pid,omitempty"`
	Modal bool     `json:"modal"`
	VDOs  []string `json:"vdos,omitempty"`
}

type SVIDStatus struct {
	SVID  string   `json:"svid"`
	State string   `json:"state"`
	Modes []string `json:"modes,omitempty"`
}

type SlotStatus struct {
	SVID string `json:"svid"`
	Opos int    `json:"opos"`
}

type ScopeStatus struct {
	Scope     string         `json:"scope"`
	Identity  IdentityStatus `json:"identity"`
	SVIDState string         `json:"svidState"`
	SVIDs     []SVIDStatus   `json:"svids"`
	Slots     []SlotStatus   `json:"slots"`
}

// PortStatus is a point in time copy of a port for diagnostics.
type PortStatus struct {
	Port      int           `json:"port"`
	Connected bool          `json:"connected"`
	Session   string        `json:"session,omitempty"`
	Polarity  string        `json:"polarity"`
	Role      string        `json:"role"`
	DFPActive bool          `json:"dfpActive"`
	MFAllow   bool          `json:"mfAllow"`
	MuxWait   bool          `json:"muxWait"`
	Scopes    []ScopeStatus `json:"scopes"`
	DP        *DPFlags      `json:"dp,omitempty"`
	TBT       *TBTFlags     `json:"tbt,omitempty"`
}

func hexWords(words []uint32) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = fmt.Sprintf("%08x", w)
	}
	return out
}

func scopeStatus(scope pdvdm.Scope, r *Record, t *modeTable) ScopeStatus {
	st := ScopeStatus{
		Scope: scope.String(),
		Identity: IdentityStatus{
			State: r.IdentityState.String(),
		},
		SVIDState: r.SVIDState.String(),
		SVIDs:     []SVIDStatus{},
		Slots:     []SlotStatus{},
	}

	if r.IdentityState == DiscoveryComplete {
		st.Identity.Type = r.ProductType().String()
		st.Identity.VID = svidString(r.VID())
		st.Identity.PID = svidString(r.PID())
		st.Identity.Modal = r.Modal()
		st.Identity.VDOs = hexWords(r.Identity[:r.IdentityCount])
	}

	for _, m := range r.SVIDs() {
		st.SVIDs = append(st.SVIDs, SVIDStatus{
			SVID:  svidString(m.SVID),
			State: m.State.String(),
			Modes: hexWords(m.Modes[:m.ModeCount]),
		})
	}

	for i := 0; i < t.count; i++ {
		st.Slots = append(st.Slots, SlotStatus{
			SVID: svidString(t.slots[i].SVID),
			Opos: t.slots[i].Opos,
		})
	}
	return st
}

// Snapshot copies the state of port. Like every other method taking a port
// it must run on the task owning the port.
func (e *Engine) Snapshot(port int) (PortStatus, error) {
	p, err := e.port(port)
	if err != nil {
		return PortStatus{}, err
	}

	ps := PortStatus{
		Port:      port,
		Connected: p.connected,
		Polarity:  p.polarity.String(),
		Role:      p.role.String(),
		DFPActive: p.dfpActive,
		MFAllow:   p.mfAllow.Load(),
		MuxWait:   p.muxWait,
	}
	if p.connected {
		ps.Session = p.session.String()
	}

	for _, scope := range pdvdm.DiscoveryScopes {
		idx, _ := scopeIndex(scope)
		ps.Scopes = append(ps.Scopes, scopeStatus(scope, &p.records[idx], &p.modes[idx]))
	}

	if e.dp != nil {
		f := e.dp.flags(port)
		ps.DP = &f
	}
	if e.tbt != nil {
		f := e.tbt.flags(port)
		ps.TBT = &f
	}
	return ps, nil
}
