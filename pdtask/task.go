// Package pdtask runs the alternate mode engine of one port on its own
// goroutine. Every engine call for the port happens there, in the order the
// events were posted.
package pdtask

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evHardReset
	evVDM
	evMuxReady
	evExit
	evChipset
	evCall
)

func (k eventKind) String() string {
	switch k {
	case evConnect:
		return "connect"
	case evDisconnect:
		return "disconnect"
	case evHardReset:
		return "hard-reset"
	case evVDM:
		return "vdm"
	case evMuxReady:
		return "mux-ready"
	case evExit:
		return "exit"
	case evChipset:
		return "chipset"
	case evCall:
		return "call"
	}
	return "unknown"
}

type event struct {
	kind eventKind

	polarity altmode.Polarity
	role     altmode.DataRole

	scope   pdvdm.Scope
	payload []uint32

	call func(e *altmode.Engine) error
	done chan error

	// Set on MuxReady events the task scheduled itself.
	muxGen uint64
}

// Options tune a Task.
type Options struct {
	// MuxSettle is how long the mux needs after a safe state change before
	// the next VDM of a sequence may be sent.
	MuxSettle time.Duration
	Logger    *slog.Logger
}

var ErrClosed = errors.New("task is closed")

// Task owns one port of an engine.
type Task struct {
	port   int
	engine *altmode.Engine
	pe     altmode.PolicyEngine
	opts   Options
	log    *slog.Logger

	workMutex sync.Mutex
	queue     []event
	wake      chan struct{}
	closed    bool

	done chan struct{}

	// Only touched on the Run goroutine.
	muxArmed bool
	muxGen   uint64
}

// New creates the task of port. Responses to inbound VDMs are sent through pe.
func New(engine *altmode.Engine, pe altmode.PolicyEngine, port int, opts Options) (*Task, error) {
	if port < 0 || port >= engine.Ports() {
		return nil, altmode.ErrPortRange{Port: port}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Task{
		port:   port,
		engine: engine,
		pe:     pe,
		opts:   opts,
		log:    logger.With("component", "pdtask", "port", port),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

func (t *Task) Port() int {
	return t.port
}

func (t *Task) post(ev event) error {
	t.workMutex.Lock()
	defer t.workMutex.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.queue = append(t.queue, ev)

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

func (t *Task) Connect(polarity altmode.Polarity, role altmode.DataRole) error {
	return t.post(event{kind: evConnect, polarity: polarity, role: role})
}

func (t *Task) Disconnect() error {
	return t.post(event{kind: evDisconnect})
}

func (t *Task) HardReset() error {
	return t.post(event{kind: evHardReset})
}

// ReceiveVDM queues an inbound VDM. It may be called from the task itself.
func (t *Task) ReceiveVDM(scope pdvdm.Scope, payload []uint32) error {
	return t.post(event{kind: evVDM, scope: scope, payload: append([]uint32{}, payload...)})
}

func (t *Task) MuxReady() error {
	return t.post(event{kind: evMuxReady})
}

// RequestExit asks the port to leave its alternate modes.
func (t *Task) RequestExit() error {
	return t.post(event{kind: evExit})
}

// ChipsetChanged retries mode entry that was held back by the AP state.
func (t *Task) ChipsetChanged() error {
	return t.post(event{kind: evChipset})
}

// Do runs f on the task and waits for its result.
func (t *Task) Do(ctx context.Context, f func(e *altmode.Engine) error) error {
	done := make(chan error, 1)
	if err := t.post(event{kind: evCall, call: f, done: done}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrClosed
	}
}

// Snapshot copies the port state on the task.
func (t *Task) Snapshot(ctx context.Context) (altmode.PortStatus, error) {
	var st altmode.PortStatus
	err := t.Do(ctx, func(e *altmode.Engine) error {
		var err error
		st, err = e.Snapshot(t.port)
		return err
	})
	return st, err
}

func (t *Task) next() (event, bool) {
	t.workMutex.Lock()
	defer t.workMutex.Unlock()

	if len(t.queue) == 0 {
		return event{}, false
	}
	ev := t.queue[0]
	t.queue[0] = event{}
	t.queue = t.queue[1:]
	return ev, true
}

// Run processes events until ctx is done or Close is called.
func (t *Task) Run(ctx context.Context) error {
	defer close(t.done)

	for {
		for {
			ev, ok := t.next()
			if !ok {
				break
			}
			t.handle(ev)
		}

		select {
		case <-ctx.Done():
			t.Close()
			return ctx.Err()
		case _, ok := <-t.wake:
			if !ok {
				return nil
			}
		}
	}
}

// Close stops Run. Queued events are dropped.
func (t *Task) Close() error {
	t.workMutex.Lock()
	defer t.workMutex.Unlock()

	if !t.closed {
		t.closed = true
		t.queue = nil
		close(t.wake)
	}
	return nil
}

func (t *Task) handle(ev event) {
	var err error

	switch ev.kind {
	case evConnect:
		if err = t.engine.Connect(t.port, ev.polarity, ev.role); err == nil && ev.role == altmode.RoleDFP {
			err = t.engine.StartDiscovery(t.port)
		}

	case evDisconnect:
		err = t.engine.Disconnect(t.port)

	case evHardReset:
		err = t.engine.HardReset(t.port)

	case evVDM:
		var out altmode.Response
		out, err = t.engine.HandleVDM(t.port, ev.scope, ev.payload)
		if err == nil && out.Count > 0 {
			objs := out.Objects()
			err = t.pe.SendVDM(t.port, out.Scope, out.Header(), objs[1:])
		}

	case evMuxReady:
		if ev.muxGen != 0 && ev.muxGen != t.muxGen {
			// Timer of a wait that already ended.
			return
		}
		t.muxArmed = false
		err = t.engine.MuxReady(t.port)

	case evExit:
		err = t.engine.RunModeExit(t.port)

	case evChipset:
		_, err = t.engine.RunModeEntry(t.port)

	case evCall:
		ev.done <- ev.call(t.engine)
	}

	if err != nil {
		t.log.Warn("Event failed", "event", ev.kind, "error", err)
	}

	switch waiting := t.engine.MuxWaiting(t.port); {
	case waiting && !t.muxArmed:
		t.scheduleMuxReady()
	case !waiting:
		// The wait ended some other way, for example by a disconnect.
		t.muxArmed = false
	}
}

// scheduleMuxReady arms one MuxReady for the wait that just started.
func (t *Task) scheduleMuxReady() {
	t.muxArmed = true
	t.muxGen++
	ev := event{kind: evMuxReady, muxGen: t.muxGen}

	if t.opts.MuxSettle <= 0 {
		t.post(ev)
		return
	}
	time.AfterFunc(t.opts.MuxSettle, func() {
		t.post(ev)
	})
}
