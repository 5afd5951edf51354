package pdvdm

// TBTAltMode is the alternate mode field of every Thunderbolt VDO.
const TBTAltMode = 0x0001

// Thunderbolt-compatible cable speeds.
const (
	TBTSpeedNone     = 0
	TBTSpeedU31Gen1  = 1
	TBTSpeedU32Gen12 = 2
	TBTSpeedGen3     = 3
)

// TBTCableVDO is the Intel mode VDO returned by a cable on SOP'.
type TBTCableVDO uint32

type TBTCable struct {
	Speed   int
	Rounded int
	Optical bool
	Retimer bool
	LSRX    bool
	Active  bool
}

func (c TBTCable) VDO() TBTCableVDO {
	v := TBTCableVDO(TBTAltMode) | TBTCableVDO(c.Speed&7)<<16 | TBTCableVDO(c.Rounded&3)<<19
	if c.Optical {
		v |= 1 << 21
	}
	if c.Retimer {
		v |= 1 << 22
	}
	if c.LSRX {
		v |= 1 << 23
	}
	if c.Active {
		v |= 1 << 25
	}
	return v
}

func (v TBTCableVDO) Speed() int    { return int((v >> 16) & 7) }
func (v TBTCableVDO) Rounded() int  { return int((v >> 19) & 3) }
func (v TBTCableVDO) Optical() bool { return v&(1<<21) != 0 }
func (v TBTCableVDO) Retimer() bool { return v&(1<<22) != 0 }
func (v TBTCableVDO) LSRX() bool    { return v&(1<<23) != 0 }
func (v TBTCableVDO) Active() bool  { return v&(1<<25) != 0 }

// TBTDeviceVDO is the Intel mode VDO returned by the partner on SOP.
type TBTDeviceVDO uint32

func MakeTBTDeviceVDO(adapter, intelB0, vendorB0, vendorB1 bool) TBTDeviceVDO {
	v := TBTDeviceVDO(TBTAltMode)
	if adapter {
		v |= 1 << 16
	}
	if intelB0 {
		v |= 1 << 26
	}
	if vendorB0 {
		v |= 1 << 30
	}
	if vendorB1 {
		v |= 1 << 31
	}
	return v
}

func (v TBTDeviceVDO) Adapter() bool  { return v&(1<<16) != 0 }
func (v TBTDeviceVDO) IntelB0() bool  { return v&(1<<26) != 0 }
func (v TBTDeviceVDO) VendorB0() bool { return v&(1<<30) != 0 }
func (v TBTDeviceVDO) VendorB1() bool { return v&(1<<31) != 0 }

// TBTEnterVDO is the second object of an Enter Mode sent to the partner.
type TBTEnterVDO uint32

type TBTEnter struct {
	Speed       int
	Rounded     int
	Optical     bool
	Retimer     bool
	LSRX        bool
	ActiveCable bool
	IntelB0     bool
	VendorB0    bool
	VendorB1    bool
}

func (e TBTEnter) VDO() TBTEnterVDO {
	v := TBTEnterVDO(TBTAltMode) | TBTEnterVDO(e.Speed&7)<<16 | TBTEnterVDO(e.Rounded&3)<<19
	bits := []struct {
		on  bool
		bit uint
	}{
		{e.Optical, 21}, {e.Retimer, 22}, {e.LSRX, 23}, {e.ActiveCable, 25},
		{e.IntelB0, 26}, {e.VendorB0, 30}, {e.VendorB1, 31},
	}
	for _, b := range bits {
		if b.on {
			v |= 1 << b.bit
		}
	}
	return v
}

func (v TBTEnterVDO) Speed() int        { return int((v >> 16) & 7) }
func (v TBTEnterVDO) ActiveCable() bool { return v&(1<<25) != 0 }
func (v TBTEnterVDO) Optical() bool     { return v&(1<<21) != 0 }
func (v TBTEnterVDO) VendorB1() bool    { return v&(1<<31) != 0 }
