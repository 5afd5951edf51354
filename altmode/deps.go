package altmode

import (
	"time"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// PolicyEngine queues outbound VDMs. Acceptance means the message was queued,
// not that the partner received it.
type PolicyEngine interface {
	SendVDM(port int, scope pdvdm.Scope, hdr pdvdm.Header, vdos []uint32) error
}

type MuxMode uint8

const (
	MuxNone MuxMode = iota
	MuxUSB
	MuxDP
	MuxDock
	MuxTBTCompat
	MuxSafe
)

func (m MuxMode) String() string {
	switch m {
	case MuxNone:
		return "none"
	case MuxUSB:
		return "usb"
	case MuxDP:
		return "dp"
	case MuxDock:
		return "dock"
	case MuxTBTCompat:
		return "tbt"
	case MuxSafe:
		return "safe"
	}
	return "unknown"
}

type Polarity uint8

const (
	PolarityCC1 Polarity = iota
	PolarityCC2
)

func (p Polarity) String() string {
	if p == PolarityCC2 {
		return "cc2"
	}
	return "cc1"
}

type DataRole uint8

const (
	RoleUFP DataRole = iota
	RoleDFP
	RoleDisconnected
)

func (r DataRole) String() string {
	switch r {
	case RoleUFP:
		return "ufp"
	case RoleDFP:
		return "dfp"
	}
	return "disconnected"
}

// HPDLevel and HPDIRQ are the values reported to the mux HPD path.
type HPDLevel bool
type HPDIRQ bool

// Mux is the physical Type-C mux and SBU switch of every port.
type Mux interface {
	SetSafe(port int) error
	SetSafeExit(port int) error
	Set(port int, mode MuxMode, polarity Polarity) error
	SetSBU(port int, enable bool) error
	// RestoreDataRole returns the mux to the USB-only state matching role.
	RestoreDataRole(port int, role DataRole) error
	HPDUpdate(port int, level HPDLevel, irq HPDIRQ)
}

// HPD drives the HPD GPIO toward the display controller.
type HPD interface {
	SetLevel(port int, high bool) error
	Level(port int) bool
}

type ChipsetState uint8

const (
	ChipsetOff ChipsetState = iota
	ChipsetSuspend
	ChipsetOn
)

func (c ChipsetState) String() string {
	switch c {
	case ChipsetOff:
		return "off"
	case ChipsetSuspend:
		return "suspend"
	case ChipsetOn:
		return "on"
	}
	return "unknown"
}

type Chipset interface {
	State() ChipsetState
}

// APNotifier wakes the AP when a display shows up while it is suspended.
type APNotifier interface {
	NotifyDPEntry(port int)
}

// PowerSupply serves the VCONN/VBUS requests of alternate mode adapters.
type PowerSupply interface {
	RequestVCONN(port int) bool
	ResetVBUS(port int)
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type nopAP struct{}

func (nopAP) NotifyDPEntry(int) {}

type nopPower struct{}

func (nopPower) RequestVCONN(int) bool { return false }
func (nopPower) ResetVBUS(int)         {}

type fixedChipset ChipsetState

func (c fixedChipset) State() ChipsetState { return ChipsetState(c) }
