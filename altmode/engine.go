// Package altmode implements the DFP side of USB Power Delivery alternate
// mode negotiation: discovery of the partner and cable, allocation of mode
// handlers, the structured VDM dispatcher and the DisplayPort and
// Thunderbolt-compatible mode handlers.
//
// Every exported method that takes a port must be called from the single
// task owning that port. Only SetMFAllow and MFAllow may be used from other
// goroutines.
package altmode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// PortConfig holds the per-port board settings.
type PortConfig struct {
	// MFAllow is the initial multi-function preference for DisplayPort.
	MFAllow bool
	// SafeBeforeConfig sets the mux to safe mode before DP Configure.
	SafeBeforeConfig bool
	// MaxTBTSpeed caps the Thunderbolt-compatible cable speed. Zero means Gen3.
	MaxTBTSpeed int
}

type Options struct {
	Ports []PortConfig

	PolicyEngine PolicyEngine
	Mux          Mux
	HPD          HPD
	Chipset      Chipset
	APNotifier   APNotifier
	PowerSupply  PowerSupply
	Clock        Clock
	Logger       *slog.Logger

	// SVDMVersion is the highest structured VDM version spoken locally.
	SVDMVersion pdvdm.Version
	// APModeEntry leaves mode entry to the AP instead of entering the
	// default mode when discovery completes.
	APModeEntry bool
	// DiscoverCable enables SOP' discovery.
	DiscoverCable bool
	// Modes lists the built-in handlers to register, in priority order.
	// Nil registers Google, DisplayPort and Intel.
	Modes []uint16
	// Handlers are registered after the built-in ones.
	Handlers []Handler
}

// DefaultModes is the built-in handler priority order.
var DefaultModes = []uint16{pdvdm.SVIDGoogle, pdvdm.SVIDDisplayPort, pdvdm.SVIDIntel}

const (
	scopeSOP = iota
	scopeSOPPrime
	numTracked
)

func scopeIndex(scope pdvdm.Scope) (int, bool) {
	switch scope {
	case pdvdm.SOP:
		return scopeSOP, true
	case pdvdm.SOPPrime:
		return scopeSOPPrime, true
	}
	return 0, false
}

type portState struct {
	cfg PortConfig

	connected bool
	session   uuid.UUID
	polarity  Polarity
	role      DataRole

	records [numTracked]Record
	modes   [numTracked]modeTable
	// requested is the SVID of the Discover Modes in flight per scope.
	requested [numTracked]uint16
	version   [pdvdm.NumScopes]pdvdm.Version

	dfpActive bool
	muxWait   bool
	tbtDone   bool
	entryDone bool

	mfAllow atomic.Bool
}

type Engine struct {
	log *slog.Logger

	pe      PolicyEngine
	mux     Mux
	hpd     HPD
	chipset Chipset
	ap      APNotifier
	power   PowerSupply
	clock   Clock

	version       pdvdm.Version
	apModeEntry   bool
	discoverCable bool

	registry *Registry
	dp       *dpHandler
	tbt      *tbtEngine

	ports []portState
}

func New(opts Options) (*Engine, error) {
	if len(opts.Ports) == 0 {
		return nil, errors.New("no ports configured")
	}
	if opts.PolicyEngine == nil || opts.Mux == nil || opts.HPD == nil {
		return nil, errors.New("policy engine, mux and hpd are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		log:           logger.With("component", "altmode"),
		pe:            opts.PolicyEngine,
		mux:           opts.Mux,
		hpd:           opts.HPD,
		chipset:       opts.Chipset,
		ap:            opts.APNotifier,
		power:         opts.PowerSupply,
		clock:         opts.Clock,
		version:       opts.SVDMVersion,
		apModeEntry:   opts.APModeEntry,
		discoverCable: opts.DiscoverCable,
		ports:         make([]portState, len(opts.Ports)),
	}

	if e.chipset == nil {
		e.chipset = fixedChipset(ChipsetOn)
	}
	if e.ap == nil {
		e.ap = nopAP{}
	}
	if e.power == nil {
		e.power = nopPower{}
	}
	if e.clock == nil {
		e.clock = SystemClock
	}

	for i := range e.ports {
		p := &e.ports[i]
		p.cfg = opts.Ports[i]
		p.mfAllow.Store(p.cfg.MFAllow)
		p.role = RoleDisconnected
		p.reset(e.version)
	}

	modes := opts.Modes
	if modes == nil {
		modes = DefaultModes
	}

	var handlers []Handler
	for _, svid := range modes {
		switch svid {
		case pdvdm.SVIDGoogle:
			handlers = append(handlers, gfuHandler{})
		case pdvdm.SVIDDisplayPort:
			e.dp = newDPHandler(e, logger)
			handlers = append(handlers, e.dp)
		case pdvdm.SVIDIntel:
			e.tbt = newTBTEngine(e, logger)
			handlers = append(handlers, e.tbt)
		default:
			return nil, fmt.Errorf("no built-in handler for svid %04x", svid)
		}
	}
	handlers = append(handlers, opts.Handlers...)

	var err error
	if e.registry, err = NewRegistry(handlers...); err != nil {
		return nil, err
	}

	return e, nil
}

func (p *portState) reset(v pdvdm.Version) {
	for i := range p.records {
		p.records[i].reset()
		p.modes[i].reset()
		p.requested[i] = 0
	}
	for i := range p.version {
		p.version[i] = v
	}
	p.dfpActive = false
	p.muxWait = false
	p.tbtDone = false
	p.entryDone = false
}

func (e *Engine) port(port int) (*portState, error) {
	if port < 0 || port >= len(e.ports) {
		return nil, ErrPortRange{Port: port}
	}
	return &e.ports[port], nil
}

// Ports returns the number of ports in the arena.
func (e *Engine) Ports() int {
	return len(e.ports)
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) portLog(port int) *slog.Logger {
	return e.log.With("port", port)
}

// Connect starts a new session on port. Any leftover state is discarded.
func (e *Engine) Connect(port int, polarity Polarity, role DataRole) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}

	e.resetPort(port, p)
	p.connected = true
	p.session = uuid.New()
	p.polarity = polarity
	p.role = role

	e.portLog(port).Info("Partner connected", "session", p.session.String(), "polarity", polarity, "role", role)
	return nil
}

// Disconnect abandons every sequence in flight, runs the exit callback of
// every entered or allocated mode once and clears discovery.
func (e *Engine) Disconnect(port int) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}

	e.resetPort(port, p)
	p.connected = false
	p.role = RoleDisconnected
	e.portLog(port).Info("Partner disconnected")
	return nil
}

// HardReset behaves like Disconnect but keeps the port connected.
func (e *Engine) HardReset(port int) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}

	e.resetPort(port, p)
	e.portLog(port).Info("Hard reset")
	return nil
}

func (e *Engine) resetPort(port int, p *portState) {
	for _, scope := range pdvdm.DiscoveryScopes {
		e.exitAll(port, p, scope)
	}
	if e.tbt != nil {
		e.tbt.init(port)
	}
	if e.dp != nil {
		e.dp.reset(port)
	}
	p.reset(e.version)
}

func (e *Engine) polarity(port int) Polarity {
	return e.ports[port].polarity
}

// SetMFAllow sets the multi-function preference used by DisplayPort pin
// selection. Safe for concurrent use.
func (e *Engine) SetMFAllow(port int, allow bool) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}
	p.mfAllow.Store(allow)
	return nil
}

// MFAllow reads the multi-function preference. Safe for concurrent use.
func (e *Engine) MFAllow(port int) bool {
	p, err := e.port(port)
	if err != nil {
		return false
	}
	return p.mfAllow.Load()
}

// DFPModeActive reports whether a mode has been entered on port.
func (e *Engine) DFPModeActive(port int) bool {
	p, err := e.port(port)
	if err != nil {
		return false
	}
	return p.dfpActive
}

// SetSVDMVersion records the version advertised by the partner on scope.
func (e *Engine) SetSVDMVersion(port int, scope pdvdm.Scope, v pdvdm.Version) error {
	p, err := e.port(port)
	if err != nil {
		return err
	}
	if scope >= pdvdm.NumScopes {
		return ErrProtocol{Port: port, Scope: scope, Reason: "unknown scope"}
	}
	if v > e.version {
		v = e.version
	}
	p.version[scope] = v
	return nil
}

func (e *Engine) svdmVersion(p *portState, scope pdvdm.Scope) pdvdm.Version {
	if scope == pdvdm.SOPPrimePrime {
		scope = pdvdm.SOPPrime
	}
	return p.version[scope]
}
