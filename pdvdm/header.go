// Package pdvdm encodes and decodes USB Power Delivery Structured VDM
// headers and the vendor data objects (VDOs) exchanged during alternate
// mode discovery and entry.
package pdvdm

import "fmt"

// Well known SVIDs.
const (
	SVIDPD          uint16 = 0xff00
	SVIDDisplayPort uint16 = 0xff01
	SVIDGoogle      uint16 = 0x18d1
	SVIDIntel       uint16 = 0x8087
)

// MaxObjects is the maximum number of 32 bit objects in a VDM, header included.
const MaxObjects = 7

type Command uint8

const (
	CmdDiscoverIdent Command = 1
	CmdDiscoverSVID  Command = 2
	CmdDiscoverModes Command = 3
	CmdEnterMode     Command = 4
	CmdExitMode      Command = 5
	CmdAttention     Command = 6
	CmdDPStatus      Command = 16
	CmdDPConfig      Command = 17
)

func (c Command) String() string {
	switch c {
	case CmdDiscoverIdent:
		return "DiscoverIdentity"
	case CmdDiscoverSVID:
		return "DiscoverSVID"
	case CmdDiscoverModes:
		return "DiscoverModes"
	case CmdEnterMode:
		return "EnterMode"
	case CmdExitMode:
		return "ExitMode"
	case CmdAttention:
		return "Attention"
	case CmdDPStatus:
		return "DPStatus"
	case CmdDPConfig:
		return "DPConfig"
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// IsDiscovery reports whether the command is one of the three discovery requests.
func (c Command) IsDiscovery() bool {
	return c == CmdDiscoverIdent || c == CmdDiscoverSVID || c == CmdDiscoverModes
}

type CommandType uint8

const (
	TypeInit CommandType = 0
	TypeACK  CommandType = 1
	TypeNAK  CommandType = 2
	TypeBusy CommandType = 3
)

func (t CommandType) String() string {
	switch t {
	case TypeInit:
		return "INIT"
	case TypeACK:
		return "ACK"
	case TypeNAK:
		return "NAK"
	case TypeBusy:
		return "BUSY"
	}
	return fmt.Sprintf("CommandType(%d)", uint8(t))
}

// Version is the SVDM major version field.
type Version uint8

const (
	Version10 Version = 0
	Version20 Version = 1
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "1.0"
	case Version20:
		return "2.0"
	}
	return fmt.Sprintf("Version(%d)", uint8(v))
}

// Header is the first object of every VDM.
//
//	31..16 SVID
//	15     structured
//	14..13 SVDM version
//	10..8  object position
//	7..6   command type
//	4..0   command
type Header uint32

// MakeHeader returns a structured INIT header for svid and cmd.
func MakeHeader(svid uint16, cmd Command) Header {
	return Header(uint32(svid)<<16 | 1<<15 | uint32(cmd)&0x1f)
}

func (h Header) SVID() uint16      { return uint16(h >> 16) }
func (h Header) Structured() bool  { return h&(1<<15) != 0 }
func (h Header) Version() Version  { return Version((h >> 13) & 3) }
func (h Header) Opos() int         { return int((h >> 8) & 7) }
func (h Header) Type() CommandType { return CommandType((h >> 6) & 3) }
func (h Header) Command() Command  { return Command(h & 0x1f) }
func (h Header) IsResponse() bool  { return h.Type() != TypeInit }

func (h Header) WithOpos(o int) Header {
	return h&^(7<<8) | Header(o&7)<<8
}

func (h Header) WithType(t CommandType) Header {
	return h&^(3<<6) | Header(t&3)<<6
}

func (h Header) WithVersion(v Version) Header {
	return h&^(3<<13) | Header(v&3)<<13
}

func (h Header) String() string {
	return fmt.Sprintf("%04x %s %s opos=%d v%s", h.SVID(), h.Command(), h.Type(), h.Opos(), h.Version())
}
