package pdvdm

import "fmt"

// ProductType is the product type field of the ID header. UFP and cable
// product types share the same bits.
type ProductType uint8

const (
	ProductUndefined    ProductType = 0
	ProductHub          ProductType = 1
	ProductPeripheral   ProductType = 2
	ProductPassiveCable ProductType = 3
	ProductActiveCable  ProductType = 4
	ProductAMA          ProductType = 5
	ProductVPD          ProductType = 6
)

func (p ProductType) String() string {
	switch p {
	case ProductUndefined:
		return "undefined"
	case ProductHub:
		return "hub"
	case ProductPeripheral:
		return "peripheral"
	case ProductPassiveCable:
		return "passive-cable"
	case ProductActiveCable:
		return "active-cable"
	case ProductAMA:
		return "ama"
	case ProductVPD:
		return "vpd"
	}
	return fmt.Sprintf("ProductType(%d)", uint8(p))
}

// Identity VDO indexes, counted after the VDM header.
const (
	IdentityIDHeader = 0
	IdentityCertStat = 1
	IdentityProduct  = 2
	IdentityProduct1 = 3
	IdentityProduct2 = 4
	IdentityProduct3 = 5

	IdentityWords = 6
)

type IDHeader uint32

func MakeIDHeader(ptype ProductType, modal bool, vid uint16) IDHeader {
	h := IDHeader(ptype&7)<<27 | IDHeader(vid)
	if modal {
		h |= 1 << 26
	}
	return h
}

func (h IDHeader) VID() uint16              { return uint16(h) }
func (h IDHeader) Modal() bool              { return h&(1<<26) != 0 }
func (h IDHeader) ProductType() ProductType { return ProductType((h >> 27) & 7) }

type ProductVDO uint32

func MakeProductVDO(pid uint16, bcd uint16) ProductVDO {
	return ProductVDO(uint32(pid)<<16 | uint32(bcd))
}

func (p ProductVDO) PID() uint16 { return uint16(p >> 16) }
func (p ProductVDO) BCD() uint16 { return uint16(p) }

// USB highest speed encodings of the cable VDO.
const (
	Rev20SpeedU2          = 0
	Rev20SpeedU31Gen1     = 1
	Rev20SpeedU31Gen1Gen2 = 2

	Rev30SpeedU2   = 0
	Rev30SpeedGen1 = 1
	Rev30SpeedGen2 = 2
	Rev30SpeedGen3 = 3
)

// VDOVersion13 is the first active cable VDO version carrying USB4 fields.
const VDOVersion13 = 3

// CableVDO is product VDO 1 of a cable identity response.
type CableVDO uint32

func (c CableVDO) Speed() int { return int(c & 7) }

// SOPPrimePrime reports whether an active cable has a second plug controller.
func (c CableVDO) SOPPrimePrime() bool { return c&(1<<3) != 0 }
func (c CableVDO) VDOVersion() int     { return int((c >> 21) & 7) }

func MakeCableVDO(speed int, sopPP bool, vdoVersion int) CableVDO {
	c := CableVDO(speed&7) | CableVDO(vdoVersion&7)<<21
	if sopPP {
		c |= 1 << 3
	}
	return c
}

// AMAVDO is product VDO 1 of an alternate mode adapter.
type AMAVDO uint32

func (a AMAVDO) VCONNRequired() bool { return a&(1<<4) != 0 }
func (a AMAVDO) VBUSRequired() bool  { return a&(1<<3) != 0 }

func MakeAMAVDO(vconn, vbus bool) AMAVDO {
	var a AMAVDO
	if vconn {
		a |= 1 << 4
	}
	if vbus {
		a |= 1 << 3
	}
	return a
}

// SVIDVDO carries two SVIDs, the first in the upper half.
type SVIDVDO uint32

func MakeSVIDVDO(first, second uint16) SVIDVDO {
	return SVIDVDO(uint32(first)<<16 | uint32(second))
}

func (s SVIDVDO) First() uint16  { return uint16(s >> 16) }
func (s SVIDVDO) Second() uint16 { return uint16(s) }

// PackSVIDs builds the data objects of a Discover SVID response. A zero
// terminator is appended when it fits.
func PackSVIDs(svids []uint16) []uint32 {
	list := append([]uint16{}, svids...)
	if len(list)%2 == 0 {
		list = append(list, 0, 0)
	} else {
		list = append(list, 0)
	}

	out := make([]uint32, 0, len(list)/2)
	for i := 0; i+1 < len(list) && len(out) < MaxObjects-1; i += 2 {
		out = append(out, uint32(MakeSVIDVDO(list[i], list[i+1])))
	}
	return out
}
