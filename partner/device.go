// Package partner simulates the far side of a Type-C connection: a port
// partner or cable plug answering structured VDMs, and a loopback policy
// engine feeding the answers back into the alternate mode engine.
package partner

import (
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// Device answers the VDMs sent to one SOP* address.
type Device struct {
	IDHeader pdvdm.IDHeader
	Product  pdvdm.ProductVDO
	// ProductVDOs follow the product VDO in the identity response.
	ProductVDOs []uint32

	SVIDs []uint16
	Modes map[uint16][]uint32

	Version pdvdm.Version
	// Status is returned in DisplayPort Status ACKs.
	Status pdvdm.DPStatus

	// NAK and Busy give the number of times a command is refused before it
	// is served. A negative count refuses forever.
	NAK  map[pdvdm.Command]int
	Busy map[pdvdm.Command]int

	// Silent drops every request without an answer.
	Silent bool

	entered  map[uint16]int
	svidPage int
	received []pdvdm.Header
}

// svidsPerResponse is the number of SVIDs fitting in one response.
const svidsPerResponse = 2 * (pdvdm.MaxObjects - 1)

func take(m map[pdvdm.Command]int, cmd pdvdm.Command) bool {
	n, ok := m[cmd]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		m[cmd] = n - 1
	}
	return true
}

func (d *Device) ack(hdr pdvdm.Header, vdos ...uint32) []uint32 {
	return append([]uint32{uint32(hdr.WithType(pdvdm.TypeACK).WithVersion(d.Version))}, vdos...)
}

func (d *Device) reply(hdr pdvdm.Header, t pdvdm.CommandType) []uint32 {
	return []uint32{uint32(hdr.WithType(t).WithVersion(d.Version))}
}

// Received returns the headers of every request seen so far.
func (d *Device) Received() []pdvdm.Header {
	return append([]pdvdm.Header{}, d.received...)
}

// Count returns how often cmd was received.
func (d *Device) Count(cmd pdvdm.Command) int {
	n := 0
	for _, h := range d.received {
		if h.Command() == cmd {
			n++
		}
	}
	return n
}

// Entered returns the position entered for svid, zero if none.
func (d *Device) Entered(svid uint16) int {
	return d.entered[svid]
}

// Reset forgets the modes entered and the requests received.
func (d *Device) Reset() {
	d.entered = nil
	d.svidPage = 0
	d.received = nil
}

// Respond returns the answer to a request, or nil when none is sent.
func (d *Device) Respond(payload []uint32) []uint32 {
	if len(payload) == 0 {
		return nil
	}

	hdr := pdvdm.Header(payload[0])
	if hdr.IsResponse() {
		return nil
	}
	d.received = append(d.received, hdr)

	cmd := hdr.Command()
	if d.Silent || cmd == pdvdm.CmdAttention {
		return nil
	}
	if take(d.Busy, cmd) {
		return d.reply(hdr, pdvdm.TypeBusy)
	}
	if take(d.NAK, cmd) {
		return d.reply(hdr, pdvdm.TypeNAK)
	}

	switch cmd {
	case pdvdm.CmdDiscoverIdent:
		vdos := []uint32{uint32(d.IDHeader), 0, uint32(d.Product)}
		vdos = append(vdos, d.ProductVDOs...)
		if len(vdos) > pdvdm.MaxObjects-1 {
			vdos = vdos[:pdvdm.MaxObjects-1]
		}
		return d.ack(hdr, vdos...)

	case pdvdm.CmdDiscoverSVID:
		start := d.svidPage * svidsPerResponse
		if start > len(d.SVIDs) {
			start = len(d.SVIDs)
		}
		page := d.SVIDs[start:]
		if len(page) > svidsPerResponse {
			page = page[:svidsPerResponse]
		}
		d.svidPage++
		return d.ack(hdr, pdvdm.PackSVIDs(page)...)

	case pdvdm.CmdDiscoverModes:
		modes := d.Modes[hdr.SVID()]
		if len(modes) == 0 {
			return d.reply(hdr, pdvdm.TypeNAK)
		}
		return d.ack(hdr, modes...)

	case pdvdm.CmdEnterMode:
		opos := hdr.Opos()
		if opos < 1 || opos > len(d.Modes[hdr.SVID()]) {
			// Cable plugs accept Thunderbolt entry without advertising modes.
			if hdr.SVID() != pdvdm.SVIDIntel || opos != 1 {
				return d.reply(hdr, pdvdm.TypeNAK)
			}
		}
		if d.entered == nil {
			d.entered = make(map[uint16]int)
		}
		d.entered[hdr.SVID()] = opos
		return d.ack(hdr)

	case pdvdm.CmdExitMode:
		if d.entered[hdr.SVID()] == 0 {
			return d.reply(hdr, pdvdm.TypeNAK)
		}
		delete(d.entered, hdr.SVID())
		return d.ack(hdr)

	case pdvdm.CmdDPStatus:
		if hdr.SVID() != pdvdm.SVIDDisplayPort || d.entered[hdr.SVID()] == 0 {
			return d.reply(hdr, pdvdm.TypeNAK)
		}
		return d.ack(hdr, uint32(d.Status.VDO()))

	case pdvdm.CmdDPConfig:
		if hdr.SVID() != pdvdm.SVIDDisplayPort || d.entered[hdr.SVID()] == 0 {
			return d.reply(hdr, pdvdm.TypeNAK)
		}
		return d.ack(hdr)
	}

	return d.reply(hdr, pdvdm.TypeNAK)
}
