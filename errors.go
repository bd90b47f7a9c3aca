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

// Package stackless implements a cooperative tasklet runtime: a
// single-OS-thread scheduler (Runtime), rendezvous channels (Channel),
// a tick-based preemption driver (Watchdog), and a scoped atomic-section
// guard (Atomic), all observable by a call-graph profiler
// (github.com/I-asked/stackless/profiler) that stays correct across
// cooperative switches.
//
// Go gives this port neither a single interpreter dispatch loop to
// unwind (spec.md's "soft switch") nor a C-stack-snapshot primitive
// ("hard switch"). Every switch here is realized the same way: the
// outgoing tasklet's goroutine parks on a rendezvous channel and the
// incoming one is released from its own. "Soft" vs "hard" survives only
// as the logical mode each schedule selects and logs at Debug level; it
// is not passed to schedule callbacks, and the watchdog decides deferral
// from nesting_level and FlagSoft directly, matching spec.md §9's note
// that this contract is platform-specific.
package stackless

import (
	"errors"

	"github.com/I-asked/stackless/errext"
	"github.com/I-asked/stackless/errext/exitcodes"
	"github.com/I-asked/stackless/profiler"
)

// ErrSwitchTrapped is raised instead of performing a forbidden switch
// while the runtime's switch-trap counter is non-zero.
var ErrSwitchTrapped = errors.New("stackless: switch attempted while switch_trap is active")

// ErrWrongThread is returned by Watchdog.Run when the runtime's current
// tasklet is not its main tasklet.
var ErrWrongThread = errext.WithExitCodeIfNone(
	errors.New("stackless: runtime method called from outside its current tasklet"),
	exitcodes.RuntimePanic,
)

// ErrNoMainTasklet is raised when an operation requires a main tasklet
// but the runtime has none bound yet.
var ErrNoMainTasklet = errext.WithExitCodeIfNone(
	errors.New("stackless: runtime has no main tasklet"),
	exitcodes.RuntimePanic,
)

// ErrDoubleInit is returned by Runtime.Init when the Runtime already has
// a main tasklet bound.
var ErrDoubleInit = errext.WithExitCodeIfNone(
	errors.New("stackless: runtime already initialized for this thread"),
	exitcodes.RuntimePanic,
)

// ErrNotCallable is raised when NewTasklet is given a nil callable.
var ErrNotCallable = errors.New("stackless: tasklet requires a non-nil callable")

// ErrBadWatchdogArg is raised by Watchdog.Run for an invalid timeout.
var ErrBadWatchdogArg = errors.New("stackless: watchdog timeout must be non-negative")

// ErrChannelClosed is returned by Send/Receive once a Channel has
// finished draining after Close.
var ErrChannelClosed = errors.New("stackless: channel is closed")

// ErrMemoryExhausted is profiler.ErrMemoryExhausted, re-exported at the
// package root the way the other sentinel errors are: the error a
// Runtime's Profiler control operation returns once MarkMemoryExhausted
// has set the profiler's sticky out-of-memory flag.
var ErrMemoryExhausted = profiler.ErrMemoryExhausted

// bomb wraps a tasklet's final user error as spec.md's "TaskletBomb": a
// captured exception escaping a tasklet's top frame, carrying a
// synthesized traceback and the reason the tasklet aborted.
type bomb struct {
	error
	trace  string
	reason errext.AbortReason
}

func (b *bomb) StackTrace() string          { return b.trace }
func (b *bomb) AbortReason() errext.AbortReason { return b.reason }
func (b *bomb) Unwrap() error                { return b.error }

func newBomb(err error, trace string, reason errext.AbortReason) error {
	if err == nil {
		return nil
	}
	return &bomb{error: err, trace: trace, reason: reason}
}
