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
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/I-asked/stackless/errext"
	"github.com/I-asked/stackless/errext/exitcodes"
	"github.com/I-asked/stackless/frame"
)

// insertQueueLocked inserts t at the ready-queue tail relative to
// current, per spec.md §4.5's current_insert. Caller holds rt.mu.
func (rt *Runtime) insertQueueLocked(t *Tasklet) {
	if t.inQueue {
		return
	}
	if rt.current == nil || rt.runcount == 0 {
		t.next, t.prev = t, t
	} else {
		tail := rt.current.prev
		t.prev = tail
		t.next = rt.current
		tail.next = t
		rt.current.prev = t
	}
	t.inQueue = true
	rt.runcount++
}

// removeQueueLocked unlinks t from the ready queue, advancing current
// to its successor if t was current, per spec.md §4.5's current_remove.
// Caller holds rt.mu.
func (rt *Runtime) removeQueueLocked(t *Tasklet) {
	if !t.inQueue {
		return
	}
	if t.next == t {
		if rt.current == t {
			rt.current = nil
		}
	} else {
		t.prev.next = t.next
		t.next.prev = t.prev
		if rt.current == t {
			rt.current = t.next
		}
	}
	t.next, t.prev = nil, nil
	t.inQueue = false
	rt.runcount--
}

// insertAfterCurrentLocked inserts t immediately after rt.current,
// per spec.md §5's ordering guarantee that a tasklet made runnable by
// a channel rendezvous is requeued right after the current tasklet.
// Caller holds rt.mu.
func (rt *Runtime) insertAfterCurrentLocked(t *Tasklet) {
	if t.inQueue {
		return
	}
	if rt.current == nil {
		t.next, t.prev = t, t
		rt.current = t
	} else {
		next := rt.current.next
		t.prev = rt.current
		t.next = next
		rt.current.next = t
		next.prev = t
	}
	t.inQueue = true
	rt.runcount++
}

// NewTasklet binds fn as a new Tasklet on rt, inserted into the ready
// queue. label is the descriptive string the profiler surfaces as this
// tasklet's top-level user_obj.
func (rt *Runtime) NewTasklet(label string, fn Func) (*Tasklet, error) {
	if fn == nil {
		return nil, ErrNotCallable
	}
	t := newTasklet(rt, label, fn)

	rt.mu.Lock()
	rt.insertQueueLocked(t)
	rt.mu.Unlock()

	go rt.runTasklet(t)
	return t, nil
}

// runTasklet is the goroutine body hosting t's callable: it parks until
// first scheduled to, runs fn to completion inside t's frame chain
// (a CFrame bridging into an interpreted Frame keyed on t's label), then
// hands the result (or a captured bomb) to terminate.
func (rt *Runtime) runTasklet(t *Tasklet) {
	<-t.resumeCh
	if rt.Profiler.Enabled() {
		rt.Profiler.Enter(t.ID(), t.ID(), t.Label())
	}

	code := rt.codeFor(t.Label())
	f := rt.framePool.Get(code)
	cf := rt.cframePool.Get()
	cf.Back = f
	cf.Executor = func(*frame.CFrame) (interface{}, error) { return t.fn(t) }
	t.frame = cf

	result, err := func() (v interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errext.WithHint(errAsError(r), "recovered panic inside a tasklet")
			}
		}()
		return cf.Run()
	}()

	t.frame = nil
	rt.cframePool.Release(cf)
	rt.framePool.Release(f)

	if rt.Profiler.Enabled() {
		rt.Profiler.Leave(t.ID(), t.ID())
	}
	rt.terminate(t, result, err)
	close(t.doneCh)
}

func errAsError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicValue{r}
}

type panicValue struct{ v interface{} }

func (p *panicValue) Error() string { return "panic: " + formatAny(p.v) }

func formatAny(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "non-error panic value"
}

// Schedule yields the current tasklet, carrying retval to whichever
// tasklet runs next, and blocks until this tasklet is itself resumed.
// It is spec.md's schedule([retval]).
func (rt *Runtime) Schedule(retval interface{}) (interface{}, error) {
	return rt.scheduleTo(rt.GetCurrent(), nil, false, retval)
}

// ScheduleRemove is Schedule but additionally removes the current
// tasklet from the ready queue before switching.
func (rt *Runtime) ScheduleRemove(retval interface{}) (interface{}, error) {
	return rt.scheduleTo(rt.GetCurrent(), nil, true, retval)
}

// scheduleTo implements spec.md §4.5's schedule primitive. to == nil
// picks from's successor in the ready queue.
func (rt *Runtime) scheduleTo(from, to *Tasklet, removeFrom bool, retval interface{}) (interface{}, error) {
	rt.mu.Lock()
	if rt.switchTrap > 0 {
		rt.mu.Unlock()
		return nil, ErrSwitchTrapped
	}

	if to == nil {
		if removeFrom {
			succ := from.next
			rt.removeQueueLocked(from)
			if succ == from || !succ.inQueue {
				to = rt.current
			} else {
				to = succ
			}
		} else if from.next != from {
			to = from.next
		} else {
			to = from // only one runnable: self-continue, no real switch
		}
	}
	if to == nil {
		// from just removed itself and nothing else is runnable: there
		// is no one to switch to, so it simply keeps running.
		rt.insertQueueLocked(from)
		to = from
	}
	rt.current = to

	cb := rt.scheduleCallback
	sameGoroutine := to == from

	if !sameGoroutine {
		to.tempValue = retval
	}

	// nestingLevel tracks how deep scheduleTo is currently reentered on
	// this goroutine's own call stack (e.g. a ScheduleCallback invoking
	// Schedule again before this call has parked); it excludes time
	// actually parked waiting for a peer, which is tracked below.
	rt.nestingLevel++
	mode := rt.switchModeLocked(from)
	rt.logger.WithFields(logrus.Fields{
		"from": from.Label(), "to": to.Label(), "mode": mode, "nesting_level": rt.nestingLevel,
	}).Debug("schedule: switch mode selected")
	rt.mu.Unlock()

	if cb != nil {
		rt.safeCall("schedule", func() { cb(from, to) })
	}

	if !sameGoroutine {
		rt.mu.Lock()
		rt.nestingLevel--
		rt.mu.Unlock()

		to.resumeCh <- struct{}{}
		<-from.resumeCh

		rt.mu.Lock()
		rt.nestingLevel++
		rt.mu.Unlock()
	}

	rt.mu.Lock()
	val, err := from.tempValue, from.tempErr
	from.tempValue, from.tempErr = nil, nil
	rt.nestingLevel--
	rt.mu.Unlock()
	return val, err
}

// switchModeLocked reports the logical switch mode (spec.md §9's "soft"
// vs "hard" distinction) this scheduleTo call selects, per SPEC_FULL.md
// §4.5 step 2: a switch is reported "hard" whenever soft-switch isn't
// the runtime default, or nestingLevel has pushed past the configured
// ceiling for a tasklet that isn't exempted. Caller holds rt.mu.
func (rt *Runtime) switchModeLocked(from *Tasklet) string {
	mode := "soft"
	if !rt.softSwitchEnabled {
		mode = "hard"
	}
	if rt.nestingCeiling > 0 && rt.nestingLevel > rt.nestingCeiling && !from.ignoreNesting {
		mode = "hard"
	}
	return mode
}

// terminate finalizes t's run: its result/error becomes its temp value,
// it leaves the ready queue, and an error (the "bomb") is handed to the
// error handler, or re-raised on main if there is none or it also
// fails; a bomb raised on main carries exitcodes.ScriptException. Per
// spec.md §9 Open Question (c), a bomb on main itself surfaces directly
// without invoking the handler. The schedule callback sees the hand-off
// to the next tasklet as (nil, next).
func (rt *Runtime) terminate(t *Tasklet, result interface{}, err error) {
	rt.mu.Lock()
	t.finished = true
	t.tempValue = result
	rt.removeQueueLocked(t)

	next := rt.current
	if next == nil {
		// Ready queue emptied out from under a tasklet that was running
		// with main pulled out of it (a watchdog run): hand control
		// back to main rather than deadlocking with no one to wake.
		next = rt.main
	}
	handler := rt.errorHandler
	cb := rt.scheduleCallback
	main := rt.main
	rt.mu.Unlock()

	if err != nil && !t.isMain {
		b := newBomb(err, t.Label(), abortReasonFor(err))
		if handler != nil {
			herr := rt.callErrorHandler(handler, b, t)
			if herr != nil {
				rt.raiseOnMain(main, herr)
			}
		} else {
			rt.raiseOnMain(main, b)
		}
	} else if err != nil && t.isMain {
		// main itself bombed: surfaces directly, no handler consulted.
		rt.raiseOnMain(main, err)
	}

	if next != nil && next != t {
		if cb != nil {
			rt.safeCall("schedule", func() { cb(nil, next) })
		}
		select {
		case next.resumeCh <- struct{}{}:
		default:
		}
	}
}

func (rt *Runtime) callErrorHandler(handler ErrorHandler, b error, victim *Tasklet) (result error) {
	defer func() {
		if r := recover(); r != nil {
			result = errAsError(r)
		}
	}()
	return handler(b, victim)
}

func (rt *Runtime) raiseOnMain(main *Tasklet, err error) {
	if main == nil {
		rt.logger.WithError(err).Error("uncaught tasklet bomb with no main tasklet bound")
		return
	}
	rt.mu.Lock()
	main.tempErr = errext.WithExitCodeIfNone(err, exitcodes.ScriptException)
	rt.mu.Unlock()
}

func abortReasonFor(err error) errext.AbortReason {
	var exc errext.Exception
	if errors.As(err, &exc) {
		return exc.AbortReason()
	}
	return errext.AbortReasonError
}
