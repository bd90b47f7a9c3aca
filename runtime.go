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
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/I-asked/stackless/clock"
	"github.com/I-asked/stackless/errext"
	"github.com/I-asked/stackless/errext/exitcodes"
	"github.com/I-asked/stackless/frame"
	"github.com/I-asked/stackless/profiler"
)

// ScheduleCallback observes every (prev, next) transition a schedule()
// is about to perform, per spec.md §4.5 step 6. prev is nil when control
// is handed on from a tasklet that just terminated; next is never nil.
type ScheduleCallback func(prev, next *Tasklet)

// ErrorHandler receives a tasklet's captured bomb. Returning a non-nil
// error re-raises (possibly the same or a replacement error) on main;
// returning nil marks the bomb handled.
type ErrorHandler func(bomb error, victim *Tasklet) error

// Options configures a Runtime, grounded on the teacher's pattern of a
// plain struct with an explicit Validate rather than tag-driven config.
type Options struct {
	SoftSwitchDefault bool
	WatchdogInterval  int
	FreeListCapacity  int // frame/c-frame free-lists, default 200; the profiler's context free-list is fixed at 200
	ProfilerSubcalls  bool
	ProfilerBuiltins  bool
	// NestingCeiling caps how deep scheduleTo may be reentered on this
	// runtime's goroutine before a switch is forced to report as hard
	// rather than soft, per SPEC_FULL.md's recursion-depth ceiling. 0
	// disables the ceiling.
	NestingCeiling int
	Logger         logrus.FieldLogger
}

// Validate checks Options for internal consistency.
func (o Options) Validate() error {
	if o.FreeListCapacity < 0 {
		return errext.WithExitCodeIfNone(errext.WithHint(
			fmt.Errorf("stackless: negative free-list capacity %d", o.FreeListCapacity),
			"free-list capacity must be >= 0 (0 selects the default of 200)"), exitcodes.InvalidConfig)
	}
	if o.WatchdogInterval < 0 {
		return errext.WithExitCodeIfNone(errext.WithHint(
			fmt.Errorf("stackless: negative watchdog interval %d", o.WatchdogInterval),
			"watchdog interval must be >= 0"), exitcodes.InvalidConfig)
	}
	return nil
}

// Runtime is spec.md's TaskletRuntimeState: one independent scheduler
// per OS thread. Tasklets created by a Runtime never migrate to
// another one.
type Runtime struct {
	mu sync.Mutex

	main    *Tasklet
	current *Tasklet
	runcount int

	softSwitchEnabled bool
	switchTrap        int
	schedLock         int
	nestingLevel      int
	nestingCeiling    int

	scheduleCallback ScheduleCallback
	channelCallback  ChannelCallback
	errorHandler     ErrorHandler

	watchdog *Watchdog

	logger   logrus.FieldLogger
	Clock    *clock.Source
	Profiler *profiler.Core

	framePool  *frame.Pool
	cframePool *frame.CFramePool

	codesMu sync.Mutex
	codes   map[string]*frame.Code
}

// New builds a Runtime with no main tasklet bound yet; call Init to
// bind the calling goroutine as main.
func New(opts Options) (*Runtime, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cap := opts.FreeListCapacity
	clk := clock.New(logger)
	rt := &Runtime{
		softSwitchEnabled: opts.SoftSwitchDefault,
		nestingCeiling:    opts.NestingCeiling,
		logger:            logger,
		Clock:             clk,
		Profiler:          profiler.New(clk, logger),
		framePool:         frame.NewPool(cap),
		cframePool:        frame.NewCFramePool(cap),
		codes:             make(map[string]*frame.Code),
	}
	rt.watchdog = newWatchdog(rt, logger)
	if opts.ProfilerSubcalls || opts.ProfilerBuiltins {
		if err := rt.Profiler.Enable(opts.ProfilerSubcalls, opts.ProfilerBuiltins); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// Init binds the calling goroutine as this Runtime's main tasklet. It
// is a ContractViolation to call it twice.
func (rt *Runtime) Init() (*Tasklet, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.main != nil {
		return nil, ErrDoubleInit
	}
	main := newTasklet(rt, "<main>", nil)
	main.isMain = true
	main.started = true
	rt.main = main
	rt.current = main
	rt.insertQueueLocked(main)
	return main, nil
}

// GetMain returns the runtime's main tasklet, or ErrNoMainTasklet if
// Init hasn't run yet.
func (rt *Runtime) GetMain() (*Tasklet, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.main == nil {
		return nil, ErrNoMainTasklet
	}
	return rt.main, nil
}

// GetCurrent returns the tasklet currently bound as current.
func (rt *Runtime) GetCurrent() *Tasklet {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.current
}

// GetRunCount returns the number of runnable tasklets (spec.md's
// getruncount()).
func (rt *Runtime) GetRunCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.runcount
}

// ThreadInfo is what the supplemented get_thread_info(id) introspection
// (SPEC_FULL.md §4) returns: a read-only snapshot of (main, current,
// runcount).
type ThreadInfo struct {
	Main     *Tasklet
	Current  *Tasklet
	RunCount int
}

// GetThreadInfo returns a live snapshot of this runtime's scheduling
// state.
func (rt *Runtime) GetThreadInfo() ThreadInfo {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return ThreadInfo{Main: rt.main, Current: rt.current, RunCount: rt.runcount}
}

// EnableSoftSwitch sets (or, with query=true, only reads) the runtime's
// default soft-switch eligibility flag, returning the previous value.
func (rt *Runtime) EnableSoftSwitch(flag bool, query bool) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.softSwitchEnabled
	if !query {
		rt.softSwitchEnabled = flag
	}
	return prev
}

// SwitchTrap adjusts the switch-trap counter by delta and returns its
// previous value.
func (rt *Runtime) SwitchTrap(delta int) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.switchTrap
	rt.switchTrap += delta
	return prev
}

// GetAtomic and SetAtomic are the supplemented direct-query pair
// (SPEC_FULL.md §4) alongside the scoped Atomic guard.
func (rt *Runtime) GetAtomic(t *Tasklet) bool { return t.Atomic() }

// SetAtomic forces t's atomic counter to a specific positive/zero state
// and returns the previous value, for callers that need to read/adjust
// atomicity outside a scoped guard.
func (rt *Runtime) SetAtomic(t *Tasklet, flag bool) bool {
	prev := t.atomicCount > 0
	if flag {
		t.atomicCount = 1
	} else {
		t.atomicCount = 0
	}
	return prev
}

// SetIgnoreNesting marks t as exempt from nesting_level-based watchdog
// deferral and hard-switch forcing, returning the previous value.
func (rt *Runtime) SetIgnoreNesting(t *Tasklet, flag bool) bool {
	prev := t.ignoreNesting
	t.ignoreNesting = flag
	return prev
}

// codeFor returns the stable *frame.Code identity backing label, the
// chain each of its tasklet's Frame activations is keyed on, creating
// one the first time a label is seen.
func (rt *Runtime) codeFor(label string) *frame.Code {
	rt.codesMu.Lock()
	defer rt.codesMu.Unlock()
	if c, ok := rt.codes[label]; ok {
		return c
	}
	c := &frame.Code{Name: label}
	rt.codes[label] = c
	return c
}

// SetScheduleCallback installs or clears (nil) the schedule observer.
func (rt *Runtime) SetScheduleCallback(cb ScheduleCallback) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.scheduleCallback = cb
}

// SetChannelCallback installs or clears (nil) the channel observer.
func (rt *Runtime) SetChannelCallback(cb ChannelCallback) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.channelCallback = cb
}

// SetErrorHandler installs or clears (nil) the error handler, returning
// the previous one.
func (rt *Runtime) SetErrorHandler(h ErrorHandler) ErrorHandler {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.errorHandler
	rt.errorHandler = h
	return prev
}

// Watchdog returns this runtime's WatchdogDriver.
func (rt *Runtime) Watchdog() *Watchdog { return rt.watchdog }

// safeCall invokes fn and, if it panics, reports it via the logger as a
// non-fatal UserCallbackFailure diagnostic instead of letting it escape
// (spec.md §7's "unraisable" channel for user-supplied callback
// failures).
func (rt *Runtime) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.WithField("callback", what).Warnf("user callback panicked: %v", r)
		}
	}()
	fn()
}
