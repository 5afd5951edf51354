package pdvdm

// DisplayPort pin assignments.
const (
	PinA uint8 = 1 << iota
	PinB
	PinC
	PinD
	PinE
	PinF
)

const (
	// PinMultiFunction are the assignments leaving two lanes for USB.
	PinMultiFunction = PinB | PinD | PinF
	// PinBR2 are the legacy DP 1.3 style assignments.
	PinBR2 = PinA | PinB
)

// DP port capability bits of a mode VDO.
const (
	DPCapSource uint8 = 1
	DPCapSink   uint8 = 2
)

// DPModeVDO is a DisplayPort mode capability word from Discover Modes.
type DPModeVDO uint32

func MakeDPModeVDO(ufpPins, dfpPins uint8, receptacle bool, caps uint8) DPModeVDO {
	v := DPModeVDO(ufpPins&0x3f)<<16 | DPModeVDO(dfpPins&0x3f)<<8 | DPModeVDO(caps&3) | DPModeVDO(1)<<2
	if receptacle {
		v |= 1 << 6
	}
	return v
}

func (m DPModeVDO) Receptacle() bool { return m&(1<<6) != 0 }
func (m DPModeVDO) Caps() uint8      { return uint8(m & 3) }

// SinkCapable reports whether the partner can act as a DisplayPort sink.
func (m DPModeVDO) SinkCapable() bool { return m.Caps()&DPCapSink != 0 }

// PinCaps returns the assignments usable by a DFP_D talking to this partner.
// A receptacle based partner lists them in the UFP_D field, a plug based one
// in the DFP_D field.
func (m DPModeVDO) PinCaps() uint8 {
	if m.Receptacle() {
		return uint8((m >> 16) & 0x3f)
	}
	return uint8((m >> 8) & 0x3f)
}

// DP connection state in a status VDO.
const (
	DPConnNone = 0
	DPConnDFPD = 1
	DPConnUFPD = 2
	DPConnBoth = 3
)

// DPStatusVDO is carried by DP Status and Attention messages.
type DPStatusVDO uint32

type DPStatus struct {
	IRQ         bool
	HPDLevel    bool
	ExitRequest bool
	USBConfig   bool
	MFPreferred bool
	Enabled     bool
	LowPower    bool
	Connected   uint8
}

func (s DPStatus) VDO() DPStatusVDO {
	v := DPStatusVDO(s.Connected & 3)
	set := func(b bool, bit uint) {
		if b {
			v |= 1 << bit
		}
	}
	set(s.LowPower, 2)
	set(s.Enabled, 3)
	set(s.MFPreferred, 4)
	set(s.USBConfig, 5)
	set(s.ExitRequest, 6)
	set(s.HPDLevel, 7)
	set(s.IRQ, 8)
	return v
}

func (v DPStatusVDO) IRQ() bool         { return v&(1<<8) != 0 }
func (v DPStatusVDO) HPDLevel() bool    { return v&(1<<7) != 0 }
func (v DPStatusVDO) ExitRequest() bool { return v&(1<<6) != 0 }
func (v DPStatusVDO) MFPreferred() bool { return v&(1<<4) != 0 }
func (v DPStatusVDO) Enabled() bool     { return v&(1<<3) != 0 }
func (v DPStatusVDO) Connected() uint8  { return uint8(v & 3) }

// DP signalling and configuration values of a config VDO.
const (
	DPSignalDP13 = 1
	DPConfigUFPD = 2
	DPConfigUSB  = 0
)

type DPConfigVDO uint32

func MakeDPConfigVDO(pin uint8, signal uint8, cfg uint8) DPConfigVDO {
	return DPConfigVDO(uint32(pin)<<8 | uint32(signal&0xf)<<2 | uint32(cfg&3))
}

func (c DPConfigVDO) Pin() uint8    { return uint8(c >> 8) }
func (c DPConfigVDO) Signal() uint8 { return uint8((c >> 2) & 0xf) }
func (c DPConfigVDO) Config() uint8 { return uint8(c & 3) }

// PinName returns the letter of a single pin assignment bit.
func PinName(pin uint8) string {
	const names = "ABCDEF"
	for i := 0; i < len(names); i++ {
		if pin == 1<<uint(i) {
			return names[i : i+1]
		}
	}
	return "?"
}
