package partner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/partner"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

func request(svid uint16, cmd pdvdm.Command, opos int) []uint32 {
	return []uint32{uint32(pdvdm.MakeHeader(svid, cmd).WithOpos(opos).WithVersion(pdvdm.Version20))}
}

func TestDeviceIdentity(t *testing.T) {
	d := partner.PassiveCable()
	rsp := d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent, 0))
	require.Len(t, rsp, 5)

	hdr := pdvdm.Header(rsp[0])
	assert.Equal(t, pdvdm.TypeACK, hdr.Type())
	assert.Equal(t, pdvdm.ProductPassiveCable, pdvdm.IDHeader(rsp[1]).ProductType())
	assert.Equal(t, pdvdm.Rev30SpeedGen2, pdvdm.CableVDO(rsp[4]).Speed())
	assert.Equal(t, 1, d.Count(pdvdm.CmdDiscoverIdent))
}

func TestDeviceSVIDPages(t *testing.T) {
	d := &partner.Device{Version: pdvdm.Version20}
	for i := 0; i < 13; i++ {
		d.SVIDs = append(d.SVIDs, 0x2000+uint16(i))
	}

	first := d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID, 0))
	require.Len(t, first, pdvdm.MaxObjects)
	assert.Equal(t, uint16(0x2000), pdvdm.SVIDVDO(first[1]).First())

	second := d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID, 0))
	require.Len(t, second, 2)
	assert.Equal(t, uint16(0x200c), pdvdm.SVIDVDO(second[1]).First())
	assert.Zero(t, pdvdm.SVIDVDO(second[1]).Second())

	d.Reset()
	assert.Empty(t, d.Received())
	again := d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID, 0))
	assert.Equal(t, first, again)
}

func TestDeviceEnterExit(t *testing.T) {
	d := partner.DPSink(pdvdm.PinC)

	rsp := d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdDPStatus, 1))
	assert.Equal(t, pdvdm.TypeNAK, pdvdm.Header(rsp[0]).Type(), "status before enter")

	rsp = d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdEnterMode, 2))
	assert.Equal(t, pdvdm.TypeNAK, pdvdm.Header(rsp[0]).Type())

	rsp = d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdEnterMode, 1))
	assert.Equal(t, pdvdm.TypeACK, pdvdm.Header(rsp[0]).Type())
	assert.Equal(t, 1, d.Entered(pdvdm.SVIDDisplayPort))

	rsp = d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdDPStatus, 1))
	require.Len(t, rsp, 2)
	assert.True(t, pdvdm.DPStatusVDO(rsp[1]).HPDLevel())

	rsp = d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdExitMode, 1))
	assert.Equal(t, pdvdm.TypeACK, pdvdm.Header(rsp[0]).Type())
	assert.Zero(t, d.Entered(pdvdm.SVIDDisplayPort))

	rsp = d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdExitMode, 1))
	assert.Equal(t, pdvdm.TypeNAK, pdvdm.Header(rsp[0]).Type())
}

func TestDeviceRefusals(t *testing.T) {
	d := partner.DPSink(pdvdm.PinC)
	d.Busy = map[pdvdm.Command]int{pdvdm.CmdDiscoverIdent: 1}
	d.NAK = map[pdvdm.Command]int{pdvdm.CmdDiscoverSVID: -1}

	rsp := d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent, 0))
	assert.Equal(t, pdvdm.TypeBusy, pdvdm.Header(rsp[0]).Type())
	rsp = d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent, 0))
	assert.Equal(t, pdvdm.TypeACK, pdvdm.Header(rsp[0]).Type())

	for i := 0; i < 3; i++ {
		rsp = d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverSVID, 0))
		assert.Equal(t, pdvdm.TypeNAK, pdvdm.Header(rsp[0]).Type())
	}

	assert.Nil(t, d.Respond(request(pdvdm.SVIDDisplayPort, pdvdm.CmdAttention, 1)))
	assert.Nil(t, d.Respond(nil))

	d.Silent = true
	assert.Nil(t, d.Respond(request(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent, 0)))
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"dp", "dp-dock", "tbt", "tbt-active"}, partner.Profiles())

	for _, name := range partner.Profiles() {
		sop, _, _, err := partner.Profile(name)
		require.NoError(t, err, name)
		assert.NotNil(t, sop, name)
	}

	_, _, _, err := partner.Profile("usb4")
	assert.Error(t, err)

	lb := partner.NewLoopback()
	require.NoError(t, lb.AttachProfile(1, "tbt-active"))
	assert.NotNil(t, lb.Device(1, pdvdm.SOPPrimePrime))
	assert.Nil(t, lb.Device(0, pdvdm.SOP))
}

type recorder struct {
	got []pdvdm.Header
}

func (r *recorder) HandleVDM(port int, scope pdvdm.Scope, payload []uint32) (altmode.Response, error) {
	r.got = append(r.got, pdvdm.Header(payload[0]))
	return altmode.Response{}, nil
}

func TestLoopbackQueue(t *testing.T) {
	lb := partner.NewLoopback()
	lb.Attach(0, pdvdm.SOP, partner.DPSink(pdvdm.PinC))

	hdr := pdvdm.MakeHeader(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent)
	require.NoError(t, lb.SendVDM(0, pdvdm.SOP, hdr, nil))
	require.NoError(t, lb.SendVDM(0, pdvdm.SOPPrime, hdr, nil))
	require.NoError(t, lb.SendVDM(1, pdvdm.SOP, hdr, nil))
	assert.Equal(t, 2, lb.SentCount(pdvdm.SOP, pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent))

	lb.Drop(1)

	r := &recorder{}
	require.NoError(t, lb.Pump(r))
	require.Len(t, r.got, 2)
	assert.Equal(t, pdvdm.TypeACK, r.got[0].Type())
	assert.Equal(t, pdvdm.TypeNAK, r.got[1].Type(), "nobody answers on SOP'")

	more, err := lb.Step(r)
	require.NoError(t, err)
	assert.False(t, more)

	lb.ClearSent()
	assert.Empty(t, lb.Sent())
}

func TestLoopbackDeliver(t *testing.T) {
	lb := partner.NewLoopback()
	lb.Attach(0, pdvdm.SOP, partner.DPSink(pdvdm.PinC))

	var got [][]uint32
	lb.Deliver = func(port int, scope pdvdm.Scope, payload []uint32) {
		got = append(got, payload)
	}

	require.NoError(t, lb.SendVDM(0, pdvdm.SOP, pdvdm.MakeHeader(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent), nil))
	require.Len(t, got, 1)

	more, err := lb.Step(&recorder{})
	require.NoError(t, err)
	assert.False(t, more)
}

type echo struct{}

func (echo) HandleVDM(port int, scope pdvdm.Scope, payload []uint32) (altmode.Response, error) {
	var out altmode.Response
	out.Count = 1
	out.Scope = scope
	out.Payload[0] = uint32(pdvdm.Header(payload[0]).WithType(pdvdm.TypeInit))
	return out, nil
}

func TestLoopbackPumpLimit(t *testing.T) {
	lb := partner.NewLoopback()
	lb.Attach(0, pdvdm.SOP, partner.DPSink(pdvdm.PinC))
	require.NoError(t, lb.SendVDM(0, pdvdm.SOP, pdvdm.MakeHeader(pdvdm.SVIDPD, pdvdm.CmdDiscoverIdent), nil))

	assert.ErrorIs(t, lb.Pump(echo{}), partner.ErrPumpLimit)
}
