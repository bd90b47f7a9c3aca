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
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/I-asked/stackless/frame"
	"github.com/I-asked/stackless/splaymap"
)

// Key is the stable integer identity spec.md's getcurrentid() exposes,
// and the same identity ProfilerCore keys its per-tasklet stack on.
type Key = splaymap.Key

var nextTaskletID uint64

func allocTaskletID() Key {
	return Key(atomic.AddUint64(&nextTaskletID, 1))
}

// Func is the callable a Tasklet wraps. t is the tasklet executing it,
// so the callable can call t.Runtime().Schedule to yield.
type Func func(t *Tasklet) (interface{}, error)

// Tasklet is spec.md's scheduled unit of computation: a pointer-stable
// identity, a callable bound to it, ready-queue neighbor links, and the
// flags a Runtime and Watchdog consult when deciding how to switch.
type Tasklet struct {
	runtime *Runtime
	id      Key
	label   string
	uuid    string
	fn      Func

	atomicCount   int
	ignoreNesting bool
	blocked       bool
	pendingIRQ    bool
	isMain        bool

	next, prev *Tasklet // ready-queue neighbors; nil iff not queued
	inQueue    bool

	frame *frame.CFrame // this tasklet's top-of-chain activation while running; nil otherwise

	tempValue interface{}
	tempErr   error

	resumeCh chan struct{}
	doneCh   chan struct{}
	started  bool
	finished bool
}

func newTasklet(rt *Runtime, label string, fn Func) *Tasklet {
	t := &Tasklet{
		runtime:  rt,
		id:       allocTaskletID(),
		label:    label,
		uuid:     uuid.NewString(),
		fn:       fn,
		resumeCh: make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}
	return t
}

// ID returns the tasklet's stable integer identity, the same value
// ProfilerCore keys its per-tasklet profile stack on.
func (t *Tasklet) ID() Key { return t.id }

// Label returns the descriptive string surfaced as the profiler's
// user_obj for this tasklet's top-level callable (spec.md's
// supplemented tasklet-label feature, SPEC_FULL.md §4).
func (t *Tasklet) Label() string {
	if t.label != "" {
		return t.label
	}
	return fmt.Sprintf("<tasklet %s>", t.uuid[:8])
}

// IsMain reports whether this is the runtime's distinguished main
// tasklet.
func (t *Tasklet) IsMain() bool { return t.isMain }

// Atomic reports whether this tasklet currently has a positive atomic
// counter (see Atomic and (*Runtime).SetAtomic).
func (t *Tasklet) Atomic() bool { return t.atomicCount > 0 }

// PendingIRQ reports whether a watchdog interrupt was deferred on this
// tasklet because it was unsafe to deliver immediately.
func (t *Tasklet) PendingIRQ() bool { return t.pendingIRQ }

// Runtime returns the Runtime this tasklet belongs to.
func (t *Tasklet) Runtime() *Runtime { return t.runtime }

// Frame returns t's current top-of-chain activation: a CFrame wrapping
// its native callable, backed by an interpreted Frame keyed on the
// tasklet's label (spec.md §4.4's FrameChain). It is nil before the
// tasklet starts and after it finishes.
func (t *Tasklet) Frame() *frame.CFrame { return t.frame }
