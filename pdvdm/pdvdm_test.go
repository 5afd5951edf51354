package pdvdm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

func TestHeaderFields(t *testing.T) {
	h := pdvdm.MakeHeader(pdvdm.SVIDDisplayPort, pdvdm.CmdEnterMode).
		WithOpos(1).
		WithType(pdvdm.TypeACK).
		WithVersion(pdvdm.Version20)

	assert.Equal(t, uint32(0xff01a144), uint32(h))
	assert.Equal(t, pdvdm.SVIDDisplayPort, h.SVID())
	assert.True(t, h.Structured())
	assert.Equal(t, 1, h.Opos())
	assert.Equal(t, pdvdm.TypeACK, h.Type())
	assert.Equal(t, pdvdm.CmdEnterMode, h.Command())
	assert.Equal(t, pdvdm.Version20, h.Version())

	// Rewriting a field leaves the others intact.
	h = h.WithType(pdvdm.TypeInit).WithOpos(0)
	assert.Equal(t, pdvdm.TypeInit, h.Type())
	assert.Equal(t, 0, h.Opos())
	assert.Equal(t, pdvdm.CmdEnterMode, h.Command())
	assert.Equal(t, pdvdm.Version20, h.Version())
}

func TestIDHeader(t *testing.T) {
	h := pdvdm.MakeIDHeader(pdvdm.ProductAMA, true, 0x18d1)
	assert.Equal(t, uint16(0x18d1), h.VID())
	assert.True(t, h.Modal())
	assert.Equal(t, pdvdm.ProductAMA, h.ProductType())

	h = pdvdm.MakeIDHeader(pdvdm.ProductPassiveCable, false, 0x1234)
	assert.False(t, h.Modal())
	assert.Equal(t, "passive-cable", h.ProductType().String())
}

func TestPackSVIDs(t *testing.T) {
	vdos := pdvdm.PackSVIDs([]uint16{0xff01, 0x8087, 0x18d1})
	require.Len(t, vdos, 2)
	assert.Equal(t, uint32(0xff018087), vdos[0])
	assert.Equal(t, uint32(0x18d10000), vdos[1])

	// An even list gets a full zero object as terminator.
	vdos = pdvdm.PackSVIDs([]uint16{0xff01, 0x8087})
	require.Len(t, vdos, 2)
	assert.Equal(t, uint32(0), vdos[1])

	// Twelve SVIDs fill the message and leave no room for a terminator.
	many := make([]uint16, 12)
	for i := range many {
		many[i] = uint16(0x1000 + i)
	}
	assert.Len(t, pdvdm.PackSVIDs(many), 6)
}

func TestDPModeVDOPinCaps(t *testing.T) {
	plug := pdvdm.MakeDPModeVDO(pdvdm.PinE, pdvdm.PinC|pdvdm.PinD, false, pdvdm.DPCapSink)
	assert.Equal(t, pdvdm.PinC|pdvdm.PinD, plug.PinCaps())
	assert.True(t, plug.SinkCapable())

	receptacle := pdvdm.MakeDPModeVDO(pdvdm.PinE, pdvdm.PinC|pdvdm.PinD, true, pdvdm.DPCapSource)
	assert.Equal(t, pdvdm.PinE, receptacle.PinCaps())
	assert.False(t, receptacle.SinkCapable())
}

func TestDPStatusVDO(t *testing.T) {
	v := pdvdm.DPStatus{HPDLevel: true, IRQ: true, MFPreferred: true, Connected: pdvdm.DPConnUFPD}.VDO()
	assert.True(t, v.HPDLevel())
	assert.True(t, v.IRQ())
	assert.True(t, v.MFPreferred())
	assert.False(t, v.Enabled())
	assert.Equal(t, uint8(pdvdm.DPConnUFPD), v.Connected())
	assert.Equal(t, uint32(0x192), uint32(v))
}

func TestDPConfigVDO(t *testing.T) {
	c := pdvdm.MakeDPConfigVDO(pdvdm.PinC, pdvdm.DPSignalDP13, pdvdm.DPConfigUFPD)
	assert.Equal(t, uint32(0x406), uint32(c))
	assert.Equal(t, pdvdm.PinC, c.Pin())
	assert.Equal(t, "C", pdvdm.PinName(c.Pin()))
}

func TestTBTEnterVDO(t *testing.T) {
	e := pdvdm.TBTEnter{
		Speed:       pdvdm.TBTSpeedGen3,
		ActiveCable: true,
		VendorB1:    true,
	}.VDO()
	assert.Equal(t, pdvdm.TBTSpeedGen3, e.Speed())
	assert.True(t, e.ActiveCable())
	assert.True(t, e.VendorB1())
	assert.False(t, e.Optical())
	assert.Equal(t, uint32(pdvdm.TBTAltMode), uint32(e)&0xffff)
}

func TestFrameUnmarshalRejectsGarbage(t *testing.T) {
	var f pdvdm.Frame
	assert.Error(t, f.Unmarshal(nil))
	assert.Error(t, f.Unmarshal([]byte{9, 1, 0, 0, 0, 0}))
	assert.Error(t, f.Unmarshal([]byte{0, 0}))
	assert.Error(t, f.Unmarshal([]byte{0, 2, 1, 2, 3, 4}))
	assert.Error(t, f.Unmarshal([]byte{0, 1, 1, 2, 3, 4, 5}))

	in := pdvdm.NewFrame(pdvdm.SOPPrime, pdvdm.MakeHeader(pdvdm.SVIDIntel, pdvdm.CmdEnterMode), 0x1)
	require.NoError(t, f.Unmarshal(in.Marshal()))
	assert.Equal(t, in, f)
}

func TestParseObjects(t *testing.T) {
	objs, err := pdvdm.ParseObjects("0xff01a043, 1c46")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0xff01a043, 0x1c46}, objs)

	_, err = pdvdm.ParseObjects("")
	assert.Error(t, err)
	_, err = pdvdm.ParseObjects("123456789")
	assert.Error(t, err)
	_, err = pdvdm.ParseObjects("zz")
	assert.Error(t, err)
}
