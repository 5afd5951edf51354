package hwmux

import (
	"fmt"
	"sync"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

// Sim is an in-memory backend that records every change.
type Sim struct {
	mu sync.Mutex

	mode   altmode.MuxMode
	flip   bool
	sbu    bool
	hpd    bool
	events []string

	// Fail makes SetMode return an error.
	Fail error
}

func NewSim() *Sim {
	return &Sim{}
}

func (s *Sim) record(format string, params ...interface{}) {
	s.events = append(s.events, fmt.Sprintf(format, params...))
}

func (s *Sim) SetMode(mode altmode.MuxMode, flip bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	s.mode = mode
	s.flip = flip
	s.record("mode %s flip=%v", mode, flip)
	return nil
}

func (s *Sim) SetSBU(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sbu = enable
	s.record("sbu %v", enable)
	return nil
}

func (s *Sim) SetHPD(high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hpd = high
	s.record("hpd %v", high)
	return nil
}

func (s *Sim) HPD() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hpd
}

func (s *Sim) HPDUpdate(level bool, irq bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("hpd-update level=%v irq=%v", level, irq)
	return nil
}

func (s *Sim) Close() error {
	return nil
}

// State returns the current lane mode, flip and SBU switch.
func (s *Sim) State() (altmode.MuxMode, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.flip, s.sbu
}

// Events returns the recorded changes in order.
func (s *Sim) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.events...)
}
