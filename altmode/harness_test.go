package altmode_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/hwmux"
	"github.com/BertoldVdb/PDAltMode/partner"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type hpdEdge struct {
	at   time.Time
	high bool
}

type fakeHPD struct {
	clock *fakeClock
	level bool
	edges []hpdEdge
}

func (h *fakeHPD) SetLevel(port int, high bool) error {
	if high != h.level {
		h.edges = append(h.edges, hpdEdge{at: h.clock.Now(), high: high})
	}
	h.level = high
	return nil
}

func (h *fakeHPD) Level(port int) bool {
	return h.level
}

type fakeChipset struct {
	state altmode.ChipsetState
}

func (c *fakeChipset) State() altmode.ChipsetState {
	return c.state
}

type fakeAP struct {
	notified int
}

func (a *fakeAP) NotifyDPEntry(port int) {
	a.notified++
}

type fakePower struct {
	vconn     bool
	vconnReq  int
	vbusReset int
}

func (p *fakePower) RequestVCONN(port int) bool {
	p.vconnReq++
	return p.vconn
}

func (p *fakePower) ResetVBUS(port int) {
	p.vbusReset++
}

type harness struct {
	t *testing.T

	e       *altmode.Engine
	lb      *partner.Loopback
	sim     *hwmux.Sim
	hpd     *fakeHPD
	clock   *fakeClock
	chipset *fakeChipset
	ap      *fakeAP
	power   *fakePower
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, mutate func(*altmode.Options)) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := &harness{
		t:       t,
		lb:      partner.NewLoopback(),
		sim:     hwmux.NewSim(),
		hpd:     &fakeHPD{clock: clock},
		clock:   clock,
		chipset: &fakeChipset{state: altmode.ChipsetOn},
		ap:      &fakeAP{},
		power:   &fakePower{vconn: true},
	}

	opts := altmode.Options{
		Ports:         []altmode.PortConfig{{MFAllow: true}},
		PolicyEngine:  h.lb,
		Mux:           hwmux.NewPorts(nil, h.sim),
		HPD:           h.hpd,
		Chipset:       h.chipset,
		APNotifier:    h.ap,
		PowerSupply:   h.power,
		Clock:         h.clock,
		Logger:        quietLogger(),
		SVDMVersion:   pdvdm.Version20,
		DiscoverCable: true,
	}
	if mutate != nil {
		mutate(&opts)
	}

	e, err := altmode.New(opts)
	require.NoError(t, err)
	h.e = e
	return h
}

// settle pumps the conversation and releases the mux whenever a sequence
// waits for it.
func (h *harness) settle() {
	h.t.Helper()

	for i := 0; i < 32; i++ {
		require.NoError(h.t, h.lb.Pump(h.e))
		if !h.e.MuxWaiting(0) {
			return
		}
		require.NoError(h.t, h.e.MuxReady(0))
	}
	h.t.Fatal("conversation did not settle")
}

func (h *harness) attach(sop, cable, plug *partner.Device) {
	h.lb.Attach(0, pdvdm.SOP, sop)
	h.lb.Attach(0, pdvdm.SOPPrime, cable)
	h.lb.Attach(0, pdvdm.SOPPrimePrime, plug)
}

func (h *harness) connect() {
	h.t.Helper()
	require.NoError(h.t, h.e.Connect(0, altmode.PolarityCC1, altmode.RoleDFP))
	require.NoError(h.t, h.e.StartDiscovery(0))
	h.settle()
}

func (h *harness) connectProfile(name string) {
	h.t.Helper()
	require.NoError(h.t, h.lb.AttachProfile(0, name))
	h.connect()
}

func (h *harness) sent(scope pdvdm.Scope, svid uint16, cmd pdvdm.Command) int {
	return h.lb.SentCount(scope, svid, cmd)
}

func (h *harness) lastSent(scope pdvdm.Scope, svid uint16, cmd pdvdm.Command) pdvdm.Frame {
	h.t.Helper()

	frames := h.lb.Sent()
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if f.Scope == scope && f.Header().SVID() == svid && f.Header().Command() == cmd {
			return f
		}
	}
	h.t.Fatalf("no %s %04x %s sent", scope, svid, cmd)
	return pdvdm.Frame{}
}

// inject delivers a partner initiated VDM and returns the engine's answer.
func (h *harness) inject(scope pdvdm.Scope, hdr pdvdm.Header, vdos ...uint32) altmode.Response {
	h.t.Helper()
	out, err := h.e.HandleVDM(0, scope, append([]uint32{uint32(hdr)}, vdos...))
	require.NoError(h.t, err)
	return out
}

func attention(status pdvdm.DPStatus) (pdvdm.Header, uint32) {
	hdr := pdvdm.MakeHeader(pdvdm.SVIDDisplayPort, pdvdm.CmdAttention).WithOpos(1).WithVersion(pdvdm.Version20)
	return hdr, uint32(status.VDO())
}
