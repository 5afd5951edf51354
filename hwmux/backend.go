// Package hwmux drives the Type-C data mux, SBU switch and HPD line of each
// port. A Backend controls one port; Ports combines them into the mux and
// HPD collaborators of the alternate mode engine.
package hwmux

import (
	"github.com/BertoldVdb/PDAltMode/altmode"
)

type LogFunc func(format string, params ...interface{})

// Backend is the hardware of one port.
type Backend interface {
	// SetMode routes the high speed lanes. flip is set for CC2 polarity.
	SetMode(mode altmode.MuxMode, flip bool) error
	SetSBU(enable bool) error
	SetHPD(high bool) error
	HPD() bool
	// HPDUpdate forwards the HPD state to a mux or retimer that tracks it.
	HPDUpdate(level bool, irq bool) error
	Close() error
}
