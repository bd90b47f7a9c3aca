/*
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package stackless

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Flags selects WatchdogDriver.Run's preemption behavior, per spec.md
// §4.6.
type Flags uint8

const (
	// FlagThreadBlock permits the thread to block waiting on a
	// cross-thread channel wake-up when no tasklet remains runnable.
	FlagThreadBlock Flags = 1 << iota
	// FlagSoft never hard-interrupts; only cooperative yields observe
	// the deadline.
	FlagSoft
	// FlagIgnoreNesting treats nesting_level as zero for interrupt
	// purposes.
	FlagIgnoreNesting
	// FlagTotalTimeout treats the timeout as one tick budget for the
	// entire run rather than a per-tasklet slice that resets on expiry:
	// each Tick draws a token from a bucket of timeout tokens that
	// refills at one token per wall-clock second, and a Tick that finds
	// the bucket empty counts as expired. It is not a wall-clock deadline.
	FlagTotalTimeout
)

// Watchdog is spec.md's WatchdogDriver: a tick-based preemption request
// mechanism driven by Tick calls from safe points inside running
// tasklets, since this port has no interpreter dispatch loop of its
// own to instrument.
type Watchdog struct {
	rt     *Runtime
	logger logrus.FieldLogger

	mu          sync.Mutex
	active      bool
	ticker      int
	interval    int
	flags       Flags
	interrupted *Tasklet
	limiter     *rate.Limiter
}

func newWatchdog(rt *Runtime, logger logrus.FieldLogger) *Watchdog {
	return &Watchdog{rt: rt, logger: logger}
}

// Run removes main from the ready queue, arms the tick budget, and
// switches to the first runnable peer. It must be called from the main
// tasklet's own goroutine. It returns the interrupted victim tasklet
// (hard mode), or nil on a soft deferral or normal exhaustion of
// runnables.
func (w *Watchdog) Run(timeout int, flags Flags) (*Tasklet, error) {
	if timeout < 0 {
		return nil, ErrBadWatchdogArg
	}
	rt := w.rt
	main, err := rt.GetMain()
	if err != nil {
		return nil, err
	}
	if rt.GetCurrent() != main {
		return nil, ErrWrongThread
	}

	w.mu.Lock()
	w.active = true
	w.ticker = timeout
	w.interval = timeout
	w.flags = flags
	w.interrupted = nil
	if flags&FlagTotalTimeout != 0 && timeout > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(1), timeout)
	} else {
		w.limiter = nil
	}
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{"timeout": timeout, "flags": flags}).
		Debug("watchdog: armed")

	// to == nil with removeFrom picks main's successor; if main is the
	// only runnable, scheduleTo self-continues without blocking.
	if _, err := rt.scheduleTo(main, nil, true, nil); err != nil {
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
		return nil, err
	}

	w.mu.Lock()
	victim := w.interrupted
	w.active = false
	w.mu.Unlock()

	// main was pulled out of the ready queue for the run; rejoin it now
	// that control is back, whether by interrupt or normal exhaustion.
	rt.mu.Lock()
	if !main.inQueue {
		if rt.current == main || rt.current == nil {
			if victim != nil && victim.inQueue {
				// anchor the insert on a tasklet that is actually
				// queued: a hard interrupt leaves current pointed at
				// main itself, which isn't queued yet.
				rt.current = victim
			}
		}
		rt.insertQueueLocked(main)
	}
	rt.current = main
	rt.mu.Unlock()

	return victim, nil
}

// Tick is the safe-point hook a running tasklet calls periodically in
// place of spec.md's interpreter dispatch-loop tick. It decrements the
// tick budget and, once exhausted, either flags pending_irq (when
// preemption is unsafe right now) or switches control to main.
func (w *Watchdog) Tick(current *Tasklet) {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}

	var expired bool
	if w.limiter != nil {
		expired = !w.limiter.Allow()
	} else {
		w.ticker--
		if w.ticker <= 0 {
			w.ticker = w.interval
			expired = true
		}
	}
	if !expired {
		w.mu.Unlock()
		return
	}
	ignoreNesting := w.flags&FlagIgnoreNesting != 0 || current.ignoreNesting
	soft := w.flags&FlagSoft != 0
	w.mu.Unlock()

	rt := w.rt
	rt.mu.Lock()
	deferred := current.Atomic() ||
		rt.schedLock != 0 ||
		rt.switchTrap != 0 ||
		soft ||
		(!ignoreNesting && rt.nestingLevel != 0)
	main := rt.main
	rt.mu.Unlock()

	if deferred {
		current.pendingIRQ = true
		w.logger.WithFields(logrus.Fields{
			"tasklet": current.Label(),
			"atomic":  current.Atomic(),
			"soft":    soft,
		}).Debug("watchdog: tick deferred")
		return
	}
	if main == nil || main == current {
		return
	}

	w.mu.Lock()
	w.interrupted = current
	w.mu.Unlock()

	w.logger.WithField("tasklet", current.Label()).Debug("watchdog: hard-interrupting to main")
	_, _ = rt.scheduleTo(current, main, false, nil)
}

// Interrupted returns the victim tasklet recorded by the most recent
// completed Run, or nil.
func (w *Watchdog) Interrupted() *Tasklet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interrupted
}
