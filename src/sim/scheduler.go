// Package sim adapts the iti/evt discrete-event kernel to the simulator:
// virtual time as a time.Duration, closures as event handlers, and a sticky
// fatal error that halts the run.
package sim

import (
	"math"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/rs/zerolog"

	"go-arp-sim/src/internal/logger"
)

// Scheduler owns the event list of one simulation run. Events run one at a
// time on the goroutine that calls Run.
type Scheduler struct {
	mgr   *evtm.EventManager
	log   zerolog.Logger
	fired uint64
	err   error
}

// NewScheduler returns a scheduler at virtual time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{
		mgr: evtm.New(),
		log: logger.Component("sim"),
	}
}

// EventManager exposes the underlying kernel.
func (s *Scheduler) EventManager() *evtm.EventManager {
	return s.mgr
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Duration {
	return fromSeconds(s.mgr.CurrentSeconds())
}

// After runs fn once d of virtual time has passed. Events scheduled for the
// same instant run in the order they were scheduled.
func (s *Scheduler) After(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	s.mgr.Schedule(s, fn, fire, vrtime.SecondsToTime(d.Seconds()))
}

func fire(_ *evtm.EventManager, context any, data any) any {
	s := context.(*Scheduler)
	if s.err != nil {
		return nil
	}
	s.fired++
	data.(func())()
	return nil
}

// Fail records a fatal error. Events still queued are discarded as they
// come due and Run returns err.
func (s *Scheduler) Fail(err error) {
	if err == nil || s.err != nil {
		return
	}
	s.log.Error().Err(err).Dur("at", s.Now()).Msg("simulation halted")
	s.err = err
}

// Err returns the fatal error recorded by Fail.
func (s *Scheduler) Err() error {
	return s.err
}

// Fired returns the number of events executed so far.
func (s *Scheduler) Fired() uint64 {
	return s.fired
}

// Run executes events until virtual time reaches until or the event list
// drains, and returns the fatal error that stopped it, if any.
func (s *Scheduler) Run(until time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.log.Debug().Dur("until", until).Msg("run")
	s.mgr.Run(until.Seconds())
	return s.err
}

// RunFor advances virtual time by exactly d. The clock ends at now+d even
// when the event list drains earlier, so that interactive steps add up.
func (s *Scheduler) RunFor(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	until := s.Now() + d
	s.mgr.Schedule(s, nil, idle, vrtime.SecondsToTime(d.Seconds()))
	return s.Run(until)
}

func idle(_ *evtm.EventManager, _ any, _ any) any {
	return nil
}

func fromSeconds(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}
