package altmode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/partner"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

func tbtFlags(t *testing.T, h *harness) altmode.TBTFlags {
	t.Helper()
	f, err := h.e.TBTState(0)
	require.NoError(t, err)
	return f
}

func sentOrder(h *harness, svid uint16, cmd pdvdm.Command) []pdvdm.Scope {
	var out []pdvdm.Scope
	for _, f := range h.lb.Sent() {
		if f.Header().SVID() == svid && f.Header().Command() == cmd && !f.Header().IsResponse() {
			out = append(out, f.Scope)
		}
	}
	return out
}

func TestTBTPassiveCable(t *testing.T) {
	h := newHarness(t, nil)
	h.connectProfile("tbt")

	f := tbtFlags(t, h)
	assert.Equal(t, altmode.TBTActive, f.State)
	assert.True(t, f.RetryDone)
	assert.False(t, f.CableEntryDone)

	assert.Equal(t, 1, h.e.Opos(0, pdvdm.SOP, pdvdm.SVIDIntel))
	assert.Zero(t, h.e.Opos(0, pdvdm.SOP, pdvdm.SVIDDisplayPort))
	assert.True(t, h.e.DFPModeActive(0))

	mode, _, sbu := h.sim.State()
	assert.Equal(t, altmode.MuxTBTCompat, mode)
	assert.True(t, sbu)

	assert.Equal(t, []pdvdm.Scope{pdvdm.SOP}, sentOrder(h, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	enter := pdvdm.TBTEnterVDO(h.lastSent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode).VDOs()[0])
	assert.Equal(t, pdvdm.TBTSpeedU32Gen12, enter.Speed())
	assert.False(t, enter.ActiveCable())

	res, err := h.e.RunModeEntry(0)
	require.NoError(t, err)
	assert.Equal(t, altmode.EntryDone, res)
}

func TestTBTSpeedCap(t *testing.T) {
	h := newHarness(t, func(o *altmode.Options) { o.Ports[0].MaxTBTSpeed = pdvdm.TBTSpeedU31Gen1 })
	h.connectProfile("tbt")

	enter := pdvdm.TBTEnterVDO(h.lastSent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode).VDOs()[0])
	assert.Equal(t, pdvdm.TBTSpeedU31Gen1, enter.Speed())
}

func TestTBTRetriesOnce(t *testing.T) {
	h := newHarness(t, nil)
	dock := partner.TBTDock()
	dock.NAK = map[pdvdm.Command]int{pdvdm.CmdEnterMode: -1}
	h.attach(dock, partner.PassiveCable(), nil)
	h.connect()

	assert.Equal(t, 2, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, 2, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdExitMode))

	f := tbtFlags(t, h)
	assert.Equal(t, altmode.TBTInactive, f.State)
	assert.Zero(t, h.e.Opos(0, pdvdm.SOP, pdvdm.SVIDIntel))
	assert.False(t, h.e.DFPModeActive(0))

	mode, _, _ := h.sim.State()
	assert.Equal(t, altmode.MuxUSB, mode)

	res, err := h.e.RunModeEntry(0)
	require.NoError(t, err)
	assert.Equal(t, altmode.EntryDone, res)
}

func TestTBTRetrySucceeds(t *testing.T) {
	h := newHarness(t, nil)
	dock := partner.TBTDock()
	dock.NAK = map[pdvdm.Command]int{pdvdm.CmdEnterMode: 1}
	h.attach(dock, partner.PassiveCable(), nil)
	h.connect()

	assert.Equal(t, 2, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, 1, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdExitMode))
	assert.Equal(t, altmode.TBTActive, tbtFlags(t, h).State)
	assert.Equal(t, 1, dock.Entered(pdvdm.SVIDIntel))
}

func TestTBTEnterBusy(t *testing.T) {
	h := newHarness(t, nil)
	dock := partner.TBTDock()
	dock.Busy = map[pdvdm.Command]int{pdvdm.CmdEnterMode: 1}
	h.attach(dock, partner.PassiveCable(), nil)
	h.connect()

	assert.Equal(t, 2, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, 1, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdExitMode))

	f := tbtFlags(t, h)
	assert.Equal(t, altmode.TBTActive, f.State)
	assert.True(t, f.RetryDone)
	assert.True(t, h.e.DFPModeActive(0))
	assert.Equal(t, 1, dock.Entered(pdvdm.SVIDIntel))

	res, err := h.e.RunModeEntry(0)
	require.NoError(t, err)
	assert.Equal(t, altmode.EntryDone, res)
}

func TestTBTEnterAlwaysBusy(t *testing.T) {
	h := newHarness(t, nil)
	dock := partner.TBTDock()
	dock.Busy = map[pdvdm.Command]int{pdvdm.CmdEnterMode: -1}
	h.attach(dock, partner.PassiveCable(), nil)
	h.connect()

	assert.Equal(t, 2, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, altmode.TBTInactive, tbtFlags(t, h).State)
	assert.False(t, h.e.DFPModeActive(0))

	mode, _, _ := h.sim.State()
	assert.Equal(t, altmode.MuxUSB, mode)

	res, err := h.e.RunModeEntry(0)
	require.NoError(t, err)
	assert.Equal(t, altmode.EntryDone, res)
}

func TestTBTActiveCable(t *testing.T) {
	h := newHarness(t, nil)
	h.connectProfile("tbt-active")

	assert.Equal(t, []pdvdm.Scope{pdvdm.SOPPrime, pdvdm.SOPPrimePrime, pdvdm.SOP},
		sentOrder(h, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))

	f := tbtFlags(t, h)
	assert.Equal(t, altmode.TBTActive, f.State)
	assert.True(t, f.CableEntryDone)
	assert.False(t, h.e.CableEntryRequiredForUSB4(0))

	enter := pdvdm.TBTEnterVDO(h.lastSent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode).VDOs()[0])
	assert.True(t, enter.ActiveCable())
	assert.Equal(t, pdvdm.TBTSpeedGen3, enter.Speed())

	h.lb.ClearSent()
	require.NoError(t, h.e.RunModeExit(0))
	h.settle()

	assert.Equal(t, []pdvdm.Scope{pdvdm.SOP, pdvdm.SOPPrimePrime, pdvdm.SOPPrime},
		sentOrder(h, pdvdm.SVIDIntel, pdvdm.CmdExitMode))

	f = tbtFlags(t, h)
	assert.Equal(t, altmode.TBTInactive, f.State)
	assert.True(t, f.ExitDone)
	assert.False(t, f.CableEntryDone)
	assert.Zero(t, h.e.Opos(0, pdvdm.SOP, pdvdm.SVIDIntel))

	mode, _, sbu := h.sim.State()
	assert.Equal(t, altmode.MuxUSB, mode)
	assert.False(t, sbu)

	assert.Zero(t, h.lb.Device(0, pdvdm.SOPPrime).Entered(pdvdm.SVIDIntel))
	assert.Zero(t, h.lb.Device(0, pdvdm.SOPPrimePrime).Entered(pdvdm.SVIDIntel))
}

func TestTBTActiveCableWithoutIntelMode(t *testing.T) {
	h := newHarness(t, nil)
	cable := partner.ActiveCable(false)
	cable.SVIDs = nil
	cable.Modes = nil
	h.attach(partner.TBTDock(), cable, nil)
	h.connect()

	assert.Zero(t, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, 1, h.e.Opos(0, pdvdm.SOP, pdvdm.SVIDDisplayPort))
	assert.Equal(t, "C", h.e.DPFlags(0).Pin)
}

func TestTBTWithoutCableDiscovery(t *testing.T) {
	h := newHarness(t, func(o *altmode.Options) { o.DiscoverCable = false })
	h.connectProfile("tbt")

	// Without a cable identity the speed is unknown, so DisplayPort is used.
	assert.Zero(t, h.sent(pdvdm.SOPPrime, pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent))
	assert.Zero(t, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, 1, h.e.Opos(0, pdvdm.SOP, pdvdm.SVIDDisplayPort))
}

func TestTBTAPModeEntry(t *testing.T) {
	h := newHarness(t, func(o *altmode.Options) { o.APModeEntry = true })
	h.connectProfile("tbt")

	assert.Zero(t, h.sent(pdvdm.SOP, pdvdm.SVIDIntel, pdvdm.CmdEnterMode))
	assert.Equal(t, altmode.TBTStart, tbtFlags(t, h).State)

	res, err := h.e.RunModeEntry(0)
	require.NoError(t, err)
	assert.Equal(t, altmode.EntryPending, res)
	assert.True(t, h.e.MuxWaiting(0))

	h.settle()
	assert.Equal(t, altmode.TBTActive, tbtFlags(t, h).State)

	require.NoError(t, h.e.RunModeExit(0))
	h.settle()

	f := tbtFlags(t, h)
	assert.Equal(t, altmode.TBTStart, f.State)
	assert.True(t, f.ExitDone)

	// The AP may enter again.
	res, err = h.e.RunModeEntry(0)
	require.NoError(t, err)
	assert.Equal(t, altmode.EntryPending, res)
}

func TestTBTCableEntryRequiredForUSB4(t *testing.T) {
	lrd := partner.PassiveCable()
	lrd.IDHeader = pdvdm.MakeIDHeader(pdvdm.ProductPassiveCable, true, 0x2222)
	lrd.SVIDs = []uint16{pdvdm.SVIDIntel}
	lrd.Modes = map[uint16][]uint32{
		pdvdm.SVIDIntel: {uint32(pdvdm.TBTCable{Speed: pdvdm.TBTSpeedGen3, Active: true}.VDO())},
	}

	old := partner.ActiveCable(false)
	old.ProductVDOs = []uint32{uint32(pdvdm.MakeCableVDO(pdvdm.Rev30SpeedGen3, false, 0))}

	tests := []struct {
		name  string
		cable *partner.Device
		want  bool
	}{
		{"passive", partner.PassiveCable(), false},
		{"active", partner.ActiveCable(false), false},
		{"active without usb4 fields", old, true},
		{"linear redriver", lrd, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *altmode.Options) { o.APModeEntry = true })
			h.attach(partner.TBTDock(), tt.cable, nil)
			h.connect()
			assert.Equal(t, tt.want, h.e.CableEntryRequiredForUSB4(0))
		})
	}
}

func TestTBTDisconnectRestoresMux(t *testing.T) {
	h := newHarness(t, nil)
	h.connectProfile("tbt")
	require.Equal(t, altmode.TBTActive, tbtFlags(t, h).State)

	require.NoError(t, h.e.Disconnect(0))

	assert.Equal(t, altmode.TBTStart, tbtFlags(t, h).State)
	assert.False(t, h.e.DFPModeActive(0))
	mode, _, _ := h.sim.State()
	assert.Equal(t, altmode.MuxUSB, mode)
}

func TestTBTUnexpectedResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.connectProfile("tbt")

	// An Exit ACK while active is out of sequence and ends the session.
	hdr := pdvdm.MakeHeader(pdvdm.SVIDIntel, pdvdm.CmdExitMode).WithOpos(1).
		WithType(pdvdm.TypeACK).WithVersion(pdvdm.Version20)
	out := h.inject(pdvdm.SOP, hdr)
	assert.Zero(t, out.Count)
	assert.Equal(t, altmode.TBTInactive, tbtFlags(t, h).State)
}
