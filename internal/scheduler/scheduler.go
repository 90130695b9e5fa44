// Package scheduler arms a once-a-day timer at a configured local
// wall-clock time. Re-arming replaces the previous timer (last call wins),
// and firing is fire-and-forget: the timer re-arms for the next day without
// waiting for the dispatched job to finish.
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Scheduler struct {
	mu     sync.Mutex
	log    zerolog.Logger
	nowFn  func() time.Time
	timer  *time.Timer
	gen    int
	hour   int
	minute int
	loc    *time.Location
	fire   func(now time.Time)
	armed  bool
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log, nowFn: time.Now}
}

// NextFire returns the next occurrence of hour:minute in loc strictly after
// now. Building the candidate with time.Date in loc keeps DST transitions
// correct.
func NextFire(now time.Time, hour int, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Arm tears down any previously armed timer and arms a new one. Calling it
// again with different arguments is equivalent to re-arming from scratch.
func (s *Scheduler) Arm(hour int, minute int, loc *time.Location, fire func(now time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	s.hour = hour
	s.minute = minute
	s.loc = loc
	s.fire = fire
	s.armed = true
	s.scheduleLocked(s.gen)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	s.armed = false
}

// State reports the currently armed schedule.
func (s *Scheduler) State() (hour int, minute int, tz string, armed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tz = ""
	if s.loc != nil {
		tz = s.loc.String()
	}
	return s.hour, s.minute, tz, s.armed
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) scheduleLocked(gen int) {
	now := s.nowFn()
	next := NextFire(now, s.hour, s.minute, s.loc)
	s.log.Info().Time("next_fire", next).Msg("report schedule armed")
	s.timer = time.AfterFunc(next.Sub(now), func() { s.tick(gen) })
}

// tick runs in the timer goroutine. A stale generation means the schedule
// was re-armed or stopped after this timer was set; it must do nothing.
func (s *Scheduler) tick(gen int) {
	s.mu.Lock()
	if gen != s.gen || !s.armed {
		s.mu.Unlock()
		return
	}
	fire := s.fire
	now := s.nowFn()
	s.scheduleLocked(gen)
	s.mu.Unlock()

	go fire(now)
}
