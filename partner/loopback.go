package partner

import (
	"errors"
	"sync"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// Receiver is the inbound side of the alternate mode engine.
type Receiver interface {
	HandleVDM(port int, scope pdvdm.Scope, payload []uint32) (altmode.Response, error)
}

type inbound struct {
	port  int
	scope pdvdm.Scope
	objs  []uint32
}

type portKey struct {
	port  int
	scope pdvdm.Scope
}

// Loopback implements altmode.PolicyEngine on top of simulated devices.
// Answers are queued until Pump, or handed to Deliver when it is set. A
// request to a scope without a device is NAKed, as a policy engine reports
// a message nobody acknowledged.
type Loopback struct {
	mu      sync.Mutex
	devices map[portKey]*Device
	pending []inbound
	sent    []pdvdm.Frame

	// Deliver receives every answer instead of the internal queue.
	Deliver func(port int, scope pdvdm.Scope, payload []uint32)
}

func NewLoopback() *Loopback {
	return &Loopback{
		devices: make(map[portKey]*Device),
	}
}

// Attach places d at scope of port. A nil device detaches.
func (l *Loopback) Attach(port int, scope pdvdm.Scope, d *Device) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d == nil {
		delete(l.devices, portKey{port, scope})
		return
	}
	l.devices[portKey{port, scope}] = d
}

func (l *Loopback) Device(port int, scope pdvdm.Scope) *Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.devices[portKey{port, scope}]
}

func (l *Loopback) SendVDM(port int, scope pdvdm.Scope, hdr pdvdm.Header, vdos []uint32) error {
	l.mu.Lock()

	frame := pdvdm.NewFrame(scope, hdr, vdos...)
	l.sent = append(l.sent, frame)

	var rsp []uint32
	if d := l.devices[portKey{port, scope}]; d != nil {
		rsp = d.Respond(frame.Objects)
	} else if !hdr.IsResponse() {
		rsp = []uint32{uint32(hdr.WithType(pdvdm.TypeNAK))}
	}
	if rsp == nil {
		l.mu.Unlock()
		return nil
	}

	deliver := l.Deliver
	if deliver == nil {
		l.pending = append(l.pending, inbound{port: port, scope: scope, objs: rsp})
	}
	l.mu.Unlock()

	if deliver != nil {
		deliver(port, scope, rsp)
	}
	return nil
}

// Sent returns every frame the engine sent.
func (l *Loopback) Sent() []pdvdm.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]pdvdm.Frame{}, l.sent...)
}

// SentCount returns how many frames with svid and cmd were sent on scope.
func (l *Loopback) SentCount(scope pdvdm.Scope, svid uint16, cmd pdvdm.Command) int {
	n := 0
	for _, f := range l.Sent() {
		if f.Scope == scope && f.Header().SVID() == svid && f.Header().Command() == cmd {
			n++
		}
	}
	return n
}

func (l *Loopback) ClearSent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = nil
}

// ErrPumpLimit is returned when a conversation does not settle.
var ErrPumpLimit = errors.New("conversation did not settle")

// Step feeds the oldest queued answer to r. It reports false when the
// queue was empty.
func (l *Loopback) Step(r Receiver) (bool, error) {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return false, nil
	}
	in := l.pending[0]
	l.pending = l.pending[1:]
	l.mu.Unlock()

	out, err := r.HandleVDM(in.port, in.scope, in.objs)
	if err != nil {
		return true, err
	}
	if out.Count > 0 {
		objs := out.Objects()
		if err := l.SendVDM(in.port, out.Scope, pdvdm.Header(objs[0]), objs[1:]); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Pump calls Step until no more traffic is generated.
func (l *Loopback) Pump(r Receiver) error {
	for i := 0; i < 1000; i++ {
		more, err := l.Step(r)
		if err != nil || !more {
			return err
		}
	}
	return ErrPumpLimit
}

// Drop discards the queued answers of port, like a policy engine does on
// disconnect.
func (l *Loopback) Drop(port int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.pending[:0]
	for _, in := range l.pending {
		if in.port != port {
			kept = append(kept, in)
		}
	}
	l.pending = kept
}
