package altmode

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// TBTState is the state of the Thunderbolt-compatible mode negotiation.
type TBTState uint8

const (
	TBTStart TBTState = iota
	TBTEnterSOP
	TBTActive
	TBTPrepareExit
	TBTExitSOP
	TBTInactive
	TBTEnterSOPPrime
	TBTEnterSOPPrimePrime
	TBTExitSOPPrime
	TBTExitSOPPrimePrime
)

func (s TBTState) String() string {
	switch s {
	case TBTStart:
		return "start"
	case TBTEnterSOP:
		return "enter-sop"
	case TBTActive:
		return "active"
	case TBTPrepareExit:
		return "prepare-exit"
	case TBTExitSOP:
		return "exit-sop"
	case TBTInactive:
		return "inactive"
	case TBTEnterSOPPrime:
		return "enter-sop'"
	case TBTEnterSOPPrimePrime:
		return "enter-sop''"
	case TBTExitSOPPrime:
		return "exit-sop'"
	case TBTExitSOPPrimePrime:
		return "exit-sop''"
	}
	return fmt.Sprintf("TBTState(%d)", uint8(s))
}

func (s TBTState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TBTState) UnmarshalText(text []byte) error {
	for st := TBTStart; st <= TBTExitSOPPrimePrime; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown thunderbolt state %q", text)
}

// command returns the VDM command a response must carry in this state.
func (s TBTState) command() (pdvdm.Command, bool) {
	switch s {
	case TBTEnterSOP, TBTEnterSOPPrime, TBTEnterSOPPrimePrime:
		return pdvdm.CmdEnterMode, true
	case TBTExitSOP, TBTExitSOPPrime, TBTExitSOPPrimePrime:
		return pdvdm.CmdExitMode, true
	}
	return 0, false
}

// SetupResult tells the caller of SetupNextVDM what to do next.
type SetupResult uint8

const (
	SetupSuccess SetupResult = iota
	SetupMuxWait
	SetupUnsupported
	SetupError
)

func (r SetupResult) String() string {
	switch r {
	case SetupSuccess:
		return "success"
	case SetupMuxWait:
		return "mux-wait"
	case SetupUnsupported:
		return "unsupported"
	case SetupError:
		return "error"
	}
	return fmt.Sprintf("SetupResult(%d)", uint8(r))
}

// tbtOpos is the only defined Thunderbolt mode position.
const tbtOpos = 1

var errTBTSequence = errors.New("thunderbolt mode is entered through its own sequence")

type tbtSession struct {
	state TBTState

	// RetryDone: the enter sequence was already retried once.
	retryDone bool
	// ExitDone: the last exit was requested rather than a protocol failure.
	exitDone bool
	// CableEntryDone: the cable acknowledged enter mode.
	cableEntryDone bool

	inFlight bool
}

// TBTFlags is a copy of the session flags for introspection.
type TBTFlags struct {
	State          TBTState `json:"state"`
	RetryDone      bool     `json:"retryDone"`
	ExitDone       bool     `json:"exitDone"`
	CableEntryDone bool     `json:"cableEntryDone"`
}

type tbtEngine struct {
	e   *Engine
	log *slog.Logger

	sessions []tbtSession
}

func newTBTEngine(e *Engine, logger *slog.Logger) *tbtEngine {
	t := &tbtEngine{
		e:        e,
		log:      logger.With("component", "tbt"),
		sessions: make([]tbtSession, len(e.ports)),
	}
	for i := range t.sessions {
		t.init(i)
	}
	return t
}

func (t *tbtEngine) init(port int) {
	t.sessions[port] = tbtSession{
		state:    TBTStart,
		exitDone: true,
	}
}

func (t *tbtEngine) prints(port int, msg string) {
	t.log.Info(msg, "port", port, "state", t.sessions[port].state)
}

func (t *tbtEngine) SVID() uint16 { return pdvdm.SVIDIntel }

func (t *tbtEngine) Enter(int, uint32) error { return errTBTSequence }

func (t *tbtEngine) Status(int, []uint32) int    { return 0 }
func (t *tbtEngine) Config(int, []uint32) int    { return 0 }
func (t *tbtEngine) PostConfig(int)              {}
func (t *tbtEngine) Attention(int, []uint32) int { return 0 }

// Exit drops the mode without talking to the partner.
func (t *tbtEngine) Exit(port int) {
	if t.sessions[port].state == TBTActive {
		t.restoreMux(port)
	}
	t.init(port)
}

func (t *tbtEngine) records(port int) (sop, cable *Record) {
	p := &t.e.ports[port]
	return &p.records[scopeSOP], &p.records[scopeSOPPrime]
}

func (t *tbtEngine) cableType(port int) pdvdm.ProductType {
	_, cable := t.records(port)
	return cable.ProductType()
}

// modeVDO returns the first Intel mode VDO discovered on scope.
func (t *tbtEngine) modeVDO(port int, scope pdvdm.Scope) uint32 {
	sop, cable := t.records(port)
	if scope == pdvdm.SOP {
		return sop.FirstMode(pdvdm.SVIDIntel)
	}
	return cable.FirstMode(pdvdm.SVIDIntel)
}

func (t *tbtEngine) cableMode(port int) pdvdm.TBTCableVDO {
	return pdvdm.TBTCableVDO(t.modeVDO(port, pdvdm.SOPPrime))
}

// isLRD reports a cable that is passive in its identity but active in its
// Thunderbolt mode VDO.
func (t *tbtEngine) isLRD(port int) bool {
	return t.cableType(port) == pdvdm.ProductPassiveCable && t.cableMode(port).Active()
}

func (t *tbtEngine) sopPrimeNeeded(port int) bool {
	return t.cableType(port) == pdvdm.ProductActiveCable || t.isLRD(port)
}

func (t *tbtEngine) sopPrimePrimeNeeded(port int) bool {
	_, cable := t.records(port)
	return t.cableType(port) == pdvdm.ProductActiveCable && cable.CableVDO().SOPPrimePrime()
}

// cableRev30 reports whether the cable speaks SVDM 2.0 or later.
func (t *tbtEngine) cableRev30(port int) bool {
	return t.e.ports[port].version[pdvdm.SOPPrime] >= pdvdm.Version20
}

func (t *tbtEngine) cableSuperSpeed(port int) bool {
	_, cable := t.records(port)

	switch cable.ProductType() {
	case pdvdm.ProductActiveCable:
		return true
	case pdvdm.ProductPassiveCable:
	default:
		return false
	}

	ss := cable.CableVDO().Speed()
	if t.cableRev30(port) {
		return ss == pdvdm.Rev30SpeedGen1 || ss == pdvdm.Rev30SpeedGen2 || ss == pdvdm.Rev30SpeedGen3
	}
	return ss == pdvdm.Rev20SpeedU31Gen1 || ss == pdvdm.Rev20SpeedU31Gen1Gen2
}

func rev30ToTBTSpeed(ss int) int {
	switch ss {
	case pdvdm.Rev30SpeedGen1:
		return pdvdm.TBTSpeedU31Gen1
	case pdvdm.Rev30SpeedGen2:
		return pdvdm.TBTSpeedU32Gen12
	case pdvdm.Rev30SpeedGen3:
		return pdvdm.TBTSpeedGen3
	}
	return pdvdm.TBTSpeedU32Gen12
}

// CableSpeed is the Thunderbolt speed usable with the attached cable,
// capped by the board limit.
func (t *tbtEngine) CableSpeed(port int) int {
	if !t.cableSuperSpeed(port) {
		return pdvdm.TBTSpeedNone
	}

	var speed int
	if mode := t.cableMode(port); mode == 0 {
		// An active cable without Intel SVID cannot carry Thunderbolt.
		if t.cableType(port) == pdvdm.ProductActiveCable {
			return pdvdm.TBTSpeedNone
		}
		_, cable := t.records(port)
		speed = rev30ToTBTSpeed(cable.CableVDO().Speed())
	} else {
		speed = mode.Speed()
	}

	limit := t.e.ports[port].cfg.MaxTBTSpeed
	if limit == 0 || limit > pdvdm.TBTSpeedGen3 {
		limit = pdvdm.TBTSpeedGen3
	}
	if speed > limit {
		speed = limit
	}
	return speed
}

func (t *tbtEngine) supported(port int) bool {
	sop, cable := t.records(port)

	if !sop.Modal() {
		return false
	}
	if t.CableSpeed(port) < pdvdm.TBTSpeedU31Gen1 {
		return false
	}
	if t.cableType(port) == pdvdm.ProductActiveCable && len(cable.ModeCaps(pdvdm.SVIDIntel)) == 0 {
		return false
	}
	return true
}

func (t *tbtEngine) exitDone(port int) {
	s := &t.sessions[port]

	// An autonomous exit is final. The AP may ask again when it owns entry.
	if t.e.apModeEntry {
		s.state = TBTStart
	} else {
		s.state = TBTInactive
	}
	s.retryDone = false
	s.cableEntryDone = false

	if !s.exitDone {
		s.exitDone = true
		t.prints(port, "Exited alternate mode")
		return
	}
	t.log.Warn("Alt mode protocol failed", "port", port)
}

func (t *tbtEngine) retryEnter(port int) {
	s := &t.sessions[port]
	s.state = TBTStart
	s.retryDone = true
}

func (t *tbtEngine) setModeReady(port int) {
	if err := t.e.mux.SetSBU(port, true); err != nil {
		t.log.Error("SBU connect failed", "port", port, "error", err)
	}
	if err := t.e.mux.Set(port, MuxTBTCompat, t.e.polarity(port)); err != nil {
		t.log.Error("Mux set failed", "port", port, "error", err)
	}
}

func (t *tbtEngine) restoreMux(port int) {
	if err := t.e.mux.RestoreDataRole(port, t.e.ports[port].role); err != nil {
		t.log.Error("Mux restore failed", "port", port, "error", err)
	}
}

func (t *tbtEngine) responseValid(port int, scope pdvdm.Scope, cmd pdvdm.Command) bool {
	st := t.sessions[port].state
	want, ok := st.command()

	if (st != TBTInactive && (!ok || want != cmd)) ||
		(t.cableType(port) == pdvdm.ProductPassiveCable && !t.cableMode(port).Active() && scope != pdvdm.SOP) {
		t.log.Warn("Unexpected response", "port", port, "state", st, "scope", scope, "cmd", cmd)
		t.exitDone(port)
		return false
	}
	return true
}

// exitStepDone continues after Exit Mode on SOP was answered.
func (t *tbtEngine) exitStepDone(port int) {
	s := &t.sessions[port]
	switch {
	case t.sopPrimePrimeNeeded(port):
		s.state = TBTExitSOPPrimePrime
	case t.sopPrimeNeeded(port):
		s.state = TBTExitSOPPrime
	default:
		t.restoreMux(port)
		if s.retryDone {
			t.exitDone(port)
		} else {
			t.retryEnter(port)
		}
	}
}

// exitCableDone finishes the sequence after the SOP' exit was answered.
func (t *tbtEngine) exitCableDone(port int) {
	t.restoreMux(port)
	if t.sessions[port].retryDone {
		t.exitDone(port)
	} else {
		t.retryEnter(port)
	}
}

// continues reports whether the session has another step to run.
func (t *tbtEngine) continues(port int) bool {
	s := &t.sessions[port]
	switch s.state {
	case TBTActive, TBTInactive:
		return false
	case TBTStart:
		return s.retryDone
	}
	return true
}

// HandleACK advances the session on an Enter or Exit Mode ACK. It reports
// whether SetupNextVDM should be called for the next step.
func (t *tbtEngine) HandleACK(port int, scope pdvdm.Scope, hdr pdvdm.Header) bool {
	s := &t.sessions[port]
	s.inFlight = false

	if !t.responseValid(port, scope, hdr.Command()) {
		return false
	}

	switch s.state {
	case TBTEnterSOPPrime:
		t.prints(port, "Enter mode SOP'")
		if t.sopPrimePrimeNeeded(port) {
			s.state = TBTEnterSOPPrimePrime
		} else {
			s.cableEntryDone = true
			s.state = TBTEnterSOP
		}
	case TBTEnterSOPPrimePrime:
		t.prints(port, "Enter mode SOP''")
		s.cableEntryDone = true
		s.state = TBTEnterSOP
	case TBTEnterSOP:
		t.setModeReady(port)
		s.state = TBTActive
		s.retryDone = true
		t.e.tbtEntered(port, true)
		t.prints(port, "Enter mode SOP")
		return false
	case TBTExitSOP:
		t.prints(port, "Exit mode SOP")
		t.e.tbtEntered(port, false)
		t.exitStepDone(port)
	case TBTExitSOPPrimePrime:
		t.prints(port, "Exit mode SOP''")
		s.state = TBTExitSOPPrime
	case TBTExitSOPPrime:
		t.prints(port, "Exit mode SOP'")
		t.exitCableDone(port)
	case TBTInactive:
		// Exit sent while the mode was shut down.
		return false
	default:
		t.log.Error("ACK in invalid state", "port", port, "state", s.state)
		t.exitDone(port)
	}

	return t.continues(port)
}

// HandleNAK advances the session on an Enter or Exit Mode NAK. The return
// value has the meaning of HandleACK's.
func (t *tbtEngine) HandleNAK(port int, scope pdvdm.Scope, hdr pdvdm.Header) bool {
	s := &t.sessions[port]
	s.inFlight = false

	if !t.responseValid(port, scope, hdr.Command()) {
		return false
	}

	switch s.state {
	case TBTEnterSOPPrime, TBTEnterSOPPrimePrime, TBTEnterSOP:
		// The partner is probably still in the mode from an earlier session.
		s.state = TBTPrepareExit
	case TBTExitSOP:
		t.prints(port, "Exit mode SOP failed")
		t.e.tbtEntered(port, false)
		t.exitStepDone(port)
	case TBTExitSOPPrimePrime:
		t.prints(port, "Exit mode SOP'' failed")
		s.state = TBTExitSOPPrime
	case TBTExitSOPPrime:
		t.prints(port, "Exit mode SOP' failed")
		t.exitCableDone(port)
	default:
		t.log.Warn("NAK in unexpected state", "port", port, "state", s.state, "cmd", hdr.Command())
		t.exitDone(port)
	}

	return t.continues(port)
}

// RequestExit starts leaving the mode. Call SetupNextVDM afterwards.
func (t *tbtEngine) RequestExit(port int) {
	s := &t.sessions[port]
	s.retryDone = true
	s.exitDone = false

	// Only the cable was entered, for USB4.
	if s.state == TBTEnterSOP {
		if t.sopPrimePrimeNeeded(port) {
			s.state = TBTExitSOPPrimePrime
		} else {
			s.state = TBTExitSOPPrime
		}
	}
}

func (t *tbtEngine) enterRequest(port int, scope pdvdm.Scope) Response {
	p := &t.e.ports[port]
	hdr := pdvdm.MakeHeader(pdvdm.SVIDIntel, pdvdm.CmdEnterMode).WithOpos(tbtOpos).WithVersion(t.e.svdmVersion(p, scope))
	if scope.IsCable() {
		return makeResponse(scope, hdr)
	}

	dev := pdvdm.TBTDeviceVDO(t.modeVDO(port, pdvdm.SOP))
	cable := t.cableMode(port)

	enter := pdvdm.TBTEnter{
		VendorB1:    dev.VendorB1(),
		VendorB0:    dev.VendorB0(),
		IntelB0:     dev.IntelB0(),
		ActiveCable: t.cableType(port) == pdvdm.ProductActiveCable || cable.Active(),
		LSRX:        cable.LSRX(),
		Retimer:     cable.Retimer(),
		Optical:     cable.Optical(),
		Rounded:     cable.Rounded(),
		Speed:       t.CableSpeed(port),
	}
	return makeResponse(scope, hdr, uint32(enter.VDO()))
}

func (t *tbtEngine) exitRequest(port int, scope pdvdm.Scope) Response {
	p := &t.e.ports[port]
	hdr := pdvdm.MakeHeader(pdvdm.SVIDIntel, pdvdm.CmdExitMode).WithOpos(tbtOpos).WithVersion(t.e.svdmVersion(p, scope))
	return makeResponse(scope, hdr)
}

// SetupNextVDM performs the local part of the current state and returns the
// VDM to send. MuxWait means the mux is settling; call again once it is.
func (t *tbtEngine) SetupNextVDM(port int) (SetupResult, Response) {
	s := &t.sessions[port]
	var out Response

	switch s.state {
	case TBTStart:
		if !t.supported(port) {
			return SetupUnsupported, out
		}
		if s.retryDone {
			t.prints(port, "Retry to enter mode")
		} else {
			t.prints(port, "Attempt to enter mode")
		}

		if err := t.e.mux.SetSafe(port); err != nil {
			t.log.Error("Mux safe failed", "port", port, "error", err)
			return SetupError, out
		}
		if t.sopPrimeNeeded(port) {
			s.state = TBTEnterSOPPrime
		} else {
			s.state = TBTEnterSOP
		}
		return SetupMuxWait, out

	case TBTEnterSOPPrime:
		out = t.enterRequest(port, pdvdm.SOPPrime)
	case TBTEnterSOPPrimePrime:
		out = t.enterRequest(port, pdvdm.SOPPrimePrime)
	case TBTEnterSOP:
		out = t.enterRequest(port, pdvdm.SOP)

	case TBTActive:
		s.retryDone = true
		fallthrough
	case TBTPrepareExit:
		if err := t.e.mux.SetSafeExit(port); err != nil {
			t.log.Error("Mux safe exit failed", "port", port, "error", err)
			return SetupError, out
		}
		s.state = TBTExitSOP
		return SetupMuxWait, out

	case TBTExitSOP:
		out = t.exitRequest(port, pdvdm.SOP)
	case TBTExitSOPPrimePrime:
		out = t.exitRequest(port, pdvdm.SOPPrimePrime)
	case TBTExitSOPPrime:
		out = t.exitRequest(port, pdvdm.SOPPrime)

	case TBTInactive:
		return SetupUnsupported, out
	default:
		t.log.Error("Setup in invalid state", "port", port, "state", s.state)
		return SetupError, out
	}

	s.inFlight = true
	return SetupSuccess, out
}

// IsActive reports whether a sequence is running or the mode is entered.
func (t *tbtEngine) IsActive(port int) bool {
	st := t.sessions[port].state
	return st != TBTInactive && st != TBTStart
}

func (t *tbtEngine) entryIsDone(port int) bool {
	st := t.sessions[port].state
	return st == TBTActive || st == TBTInactive
}

// CableEntryRequiredForUSB4 reports whether the cable must be put in
// Thunderbolt mode before USB4 can be entered with the partner.
func (t *tbtEngine) CableEntryRequiredForUSB4(port int) bool {
	if t.sessions[port].cableEntryDone {
		return false
	}
	if t.isLRD(port) {
		return true
	}
	if t.cableType(port) == pdvdm.ProductActiveCable {
		_, cable := t.records(port)
		return !t.cableRev30(port) || cable.CableVDO().VDOVersion() < pdvdm.VDOVersion13
	}
	return false
}

func (t *tbtEngine) flags(port int) TBTFlags {
	s := &t.sessions[port]
	return TBTFlags{
		State:          s.state,
		RetryDone:      s.retryDone,
		ExitDone:       s.exitDone,
		CableEntryDone: s.cableEntryDone,
	}
}

// tbtEntered mirrors the Thunderbolt state into the SOP mode table.
func (e *Engine) tbtEntered(port int, entered bool) {
	p := &e.ports[port]
	t := &p.modes[scopeSOP]

	s := t.find(pdvdm.SVIDIntel)
	if s == nil && entered {
		var err error
		if s, err = e.allocate(port, pdvdm.SOP, t, &p.records[scopeSOP], pdvdm.SVIDIntel); err != nil {
			e.portLog(port).Warn("No slot for Thunderbolt mode", "error", err)
		}
	}

	if s != nil {
		if entered {
			s.Opos = tbtOpos
		} else {
			s.Opos = 0
		}
	}
	p.dfpActive = entered || t.entered()
}

// TBTState returns the Thunderbolt session state of port.
func (e *Engine) TBTState(port int) (TBTFlags, error) {
	if _, err := e.port(port); err != nil {
		return TBTFlags{}, err
	}
	if e.tbt == nil {
		return TBTFlags{State: TBTInactive}, nil
	}
	return e.tbt.flags(port), nil
}

// CableEntryRequiredForUSB4 is exported for the USB4 entry logic of the
// policy layer.
func (e *Engine) CableEntryRequiredForUSB4(port int) bool {
	if _, err := e.port(port); err != nil || e.tbt == nil {
		return false
	}
	return e.tbt.CableEntryRequiredForUSB4(port)
}
