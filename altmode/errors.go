package altmode

import (
	"errors"
	"fmt"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

var (
	ErrChipsetOff = errors.New("AP is off")
	ErrNotSink    = errors.New("partner is not a DisplayPort sink")
	ErrMuxFailed  = errors.New("mux configuration failed")
)

// ErrPortRange is returned for a port number outside the engine's arena.
type ErrPortRange struct {
	Port int
}

func (e ErrPortRange) Error() string {
	return fmt.Sprintf("port %d out of range", e.Port)
}

// ErrNoSpace is returned when every active mode slot of a scope is in use.
type ErrNoSpace struct {
	Port  int
	Scope pdvdm.Scope
	SVID  uint16
}

func (e ErrNoSpace) Error() string {
	return fmt.Sprintf("C%d %s: no free mode slot for svid %04x", e.Port, e.Scope, e.SVID)
}

// ErrNotAllocated is returned when no slot can be bound or found for an SVID.
type ErrNotAllocated struct {
	Port  int
	Scope pdvdm.Scope
	SVID  uint16
}

func (e ErrNotAllocated) Error() string {
	return fmt.Sprintf("C%d %s: svid %04x has no mode allocated", e.Port, e.Scope, e.SVID)
}

type ErrInvalidOpos struct {
	SVID  uint16
	Opos  int
	Count int
}

func (e ErrInvalidOpos) Error() string {
	return fmt.Sprintf("svid %04x: opos %d not in 1..%d", e.SVID, e.Opos, e.Count)
}

// ErrEnterRefused wraps a local refusal from a mode handler.
type ErrEnterRefused struct {
	SVID uint16
	Err  error
}

func (e ErrEnterRefused) Error() string {
	return fmt.Sprintf("svid %04x: enter refused: %v", e.SVID, e.Err)
}

func (e ErrEnterRefused) Unwrap() error {
	return e.Err
}

// ErrProtocol describes a partner message that does not fit the current state.
type ErrProtocol struct {
	Port   int
	Scope  pdvdm.Scope
	Reason string
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("C%d %s: protocol error: %s", e.Port, e.Scope, e.Reason)
}
