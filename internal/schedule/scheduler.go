// Package schedule fires recurring jobs from cron expressions. Callbacks
// run sequentially on the scheduler's goroutine and timers re-arm after a
// callback completes, so a slow run delays the next occurrence instead of
// overlapping it.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type entry struct {
	name      string
	fn        func(context.Context)
	delay     time.Duration
	period    time.Duration
	immediate bool
}

// Scheduler holds registered schedules until Run is called.
type Scheduler struct {
	nowFn   func() time.Time
	entries []*entry
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{nowFn: time.Now}
}

// Add registers a callback under a standard cron expression (five fields,
// plus @hourly-style descriptors and @every intervals). An expression that
// is due in the registration minute gets one immediate run. A parse error
// leaves the scheduler as it was; callers decide whether to continue with
// their remaining schedules.
func (s *Scheduler) Add(name, frequency string, fn func(context.Context)) error {
	sched, err := cron.ParseStandard(frequency)
	if err != nil {
		return fmt.Errorf("schedule %q: parsing %q: %w", name, frequency, err)
	}
	now := s.nowFn()
	first := sched.Next(now)
	e := &entry{
		name:   name,
		fn:     fn,
		delay:  first.Sub(now),
		period: sched.Next(first).Sub(first),
	}
	// cron.Next is strictly future, so a schedule matching the current
	// minute would otherwise silently wait a full period.
	minute := now.Truncate(time.Minute)
	if sched.Next(minute.Add(-time.Second)).Equal(minute) {
		e.immediate = true
	}
	s.entries = append(s.entries, e)
	slog.Info("schedule registered", "name", name, "frequency", frequency,
		"first", first.Round(time.Second), "period", e.period)
	return nil
}

// Len reports how many schedules are registered.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Run blocks until ctx is canceled, executing due callbacks one at a
// time. Re-arming after completion trades exact wall-clock alignment for
// the guarantee that a job never races itself.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.entries) == 0 {
		return
	}

	// Each entry has at most one pending fire, so the buffer never blocks
	// a timer goroutine.
	due := make(chan *entry, len(s.entries))
	// One live timer per entry; re-arming replaces the fired one.
	timers := make(map[*entry]*time.Timer, len(s.entries))
	arm := func(e *entry, d time.Duration) {
		timers[e] = time.AfterFunc(d, func() { due <- e })
	}

	for _, e := range s.entries {
		if e.immediate {
			due <- e
			continue
		}
		arm(e, e.delay)
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			return
		case e := <-due:
			started := s.nowFn()
			e.fn(ctx)
			slog.Debug("schedule completed", "name", e.name,
				"duration", s.nowFn().Sub(started).Round(time.Millisecond))
			arm(e, e.period)
		}
	}
}
