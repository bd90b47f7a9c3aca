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

// Package profiler implements spec.md §4.3's ProfilerCore: a
// deterministic call-graph profiler whose per-tasklet context stacks
// stay correct across cooperative tasklet switches, by pausing and
// resuming their time accounting as the current tasklet changes.
package profiler

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/I-asked/stackless/clock"
	"github.com/I-asked/stackless/errext"
	"github.com/I-asked/stackless/errext/exitcodes"
	"github.com/I-asked/stackless/splaymap"
)

// ErrMemoryExhausted is returned by the next control-plane profiler
// operation (Enable, Disable, Clear, GetStats) after MarkMemoryExhausted
// sets the sticky NOMEMORY flag, per spec.md §4.3's memory-exhaustion
// discipline. The flag clears the moment this is returned.
var ErrMemoryExhausted = errext.WithExitCodeIfNone(
	errors.New("profiler: memory exhausted during call-graph tracking"),
	exitcodes.MemoryExhausted,
)

// Key identifies a callable (code object or native function) or a
// tasklet, by pointer identity, the same way splaymap.Key does.
type Key = splaymap.Key

// SubEntry accumulates statistics for one (caller, callee) edge.
type SubEntry struct {
	UserObj            string
	CallCount          int64
	RecursiveCallCount int64
	TT, IT             int64
	recursionLevel     int
}

// Entry accumulates statistics for one callable, across every call
// site that invokes it.
type Entry struct {
	UserObj            string
	CallCount          int64
	RecursiveCallCount int64
	TT, IT             int64
	recursionLevel     int
	sub                splaymap.Map
}

// context is one open call on a tasklet's profile stack.
type context struct {
	t0, subt, paused     int64
	entry                *Entry
	callerEntry          *Entry
	subEntry             *SubEntry
	previous             *context
	isRecursion          bool
	isSubcallRecursion   bool
}

// stack is one tasklet's chain of open call contexts.
type stack struct {
	current    *context
	t0Snapshot int64
}

// Core is a ProfilerCore: enable/disable/clear/getstats plus the
// enter/leave event hooks a TaskletRuntime drives it with.
type Core struct {
	clock  *clock.Source
	logger logrus.FieldLogger

	enabled  bool
	subcalls bool
	builtins bool

	entries splaymap.Map // Key(code) -> *Entry
	stacks  splaymap.Map // Key(tasklet) -> *stack

	currentStack    *stack
	currentStackKey Key

	ctxFree    []*context
	ctxFreeCap int

	nomemory bool
}

// New builds an empty, disabled Core. A nil logger disables Debug
// logging of enable/disable/clear decisions.
func New(source *clock.Source, logger logrus.FieldLogger) *Core {
	return &Core{clock: source, logger: logger, ctxFreeCap: 200}
}

func (c *Core) debugf(fields logrus.Fields, msg string) {
	if c.logger == nil {
		return
	}
	c.logger.WithFields(fields).Debug(msg)
}

// Enabled reports whether the profiler is currently installed.
func (c *Core) Enabled() bool { return c.enabled }

// MarkMemoryExhausted sets the sticky NOMEMORY flag an Enter/Leave
// allocation failure would set in a native allocator. Exposed so
// callers (and tests) can simulate spec.md §4.3's memory-exhaustion
// discipline without an actual OOM condition.
func (c *Core) MarkMemoryExhausted() { c.nomemory = true }

// CheckMemoryExhausted reports and clears the sticky NOMEMORY flag, the
// way the next externally visible profiler operation (enable/disable/
// clear/getstats) must per spec.md §4.3.
func (c *Core) CheckMemoryExhausted() bool {
	if c.nomemory {
		c.nomemory = false
		return true
	}
	return false
}

// Enable installs the profiler as the per-OS-thread call/return
// observer. Re-enabling with different subcalls/builtins flags just
// updates them; it never discards existing statistics. It returns
// ErrMemoryExhausted (clearing the sticky flag) if MarkMemoryExhausted
// has set the flag.
func (c *Core) Enable(subcalls, builtins bool) error {
	c.debugf(logrus.Fields{"subcalls": subcalls, "builtins": builtins}, "profiler: enable")
	if c.CheckMemoryExhausted() {
		return ErrMemoryExhausted
	}
	c.enabled = true
	c.subcalls = subcalls
	c.builtins = builtins
	return nil
}

// Disable uninstalls the profiler, flushing every open context on
// every tasklet's profile stack as if synthetic returns occurred right
// now, so the statistics stay finite even if the real computation never
// returns from those frames. It returns ErrMemoryExhausted (clearing
// the sticky flag) if MarkMemoryExhausted has set the flag.
func (c *Core) Disable() error {
	c.debugf(nil, "profiler: disable")
	if !c.enabled {
		if c.CheckMemoryExhausted() {
			return ErrMemoryExhausted
		}
		return nil
	}
	c.flushAll()
	c.enabled = false
	if c.CheckMemoryExhausted() {
		return ErrMemoryExhausted
	}
	return nil
}

// Clear discards all collected statistics and frees all contexts and
// entries, after first running the same flush-unmatched pass as
// Disable. It returns ErrMemoryExhausted (clearing the sticky flag) if
// MarkMemoryExhausted has set the flag.
func (c *Core) Clear() error {
	c.debugf(nil, "profiler: clear")
	c.flushAll()
	c.entries = splaymap.Map{}
	c.stacks = splaymap.Map{}
	c.currentStack = nil
	c.ctxFree = nil
	if c.CheckMemoryExhausted() {
		return ErrMemoryExhausted
	}
	return nil
}

// flushAll walks every tasklet's profile stack to the bottom, recording
// a synthetic Leave for every open context, then drops the stacks.
func (c *Core) flushAll() {
	now := c.now()
	var keys []Key
	var stacks []*stack
	c.stacks.Enumerate(func(k Key, v interface{}) {
		keys = append(keys, k)
		stacks = append(stacks, v.(*stack))
	})
	for i, s := range stacks {
		for s.current != nil {
			c.closeContext(s, s.current, now)
			s.current = s.current.previous
		}
		_ = keys[i]
	}
}

func (c *Core) now() int64 {
	if c.clock == nil {
		return 0
	}
	return c.clock.Now()
}

// selectStack returns the profile stack for taskletID as of now,
// distributing paused time across the switch per spec.md §4.3's "stack
// selection" rule.
func (c *Core) selectStack(taskletID Key, now int64) *stack {
	v, ok := c.stacks.Get(taskletID)
	var s *stack
	if ok {
		s = v.(*stack)
	} else {
		s = &stack{t0Snapshot: now}
		c.stacks.Add(taskletID, s)
	}

	if c.currentStack != s {
		if c.currentStack != nil {
			c.currentStack.t0Snapshot = now
		}
		if s.current != nil {
			s.current.paused += now - s.t0Snapshot
		}
		c.currentStack = s
		c.currentStackKey = taskletID
	}
	return s
}

func (c *Core) getOrCreateEntry(key Key, userObj string) *Entry {
	if v, ok := c.entries.Get(key); ok {
		return v.(*Entry)
	}
	e := &Entry{UserObj: userObj}
	c.entries.Add(key, e)
	return e
}

func (c *Core) getContext() *context {
	if n := len(c.ctxFree); n > 0 {
		ctx := c.ctxFree[n-1]
		c.ctxFree[n-1] = nil
		c.ctxFree = c.ctxFree[:n-1]
		*ctx = context{}
		return ctx
	}
	return &context{}
}

func (c *Core) releaseContext(ctx *context) {
	if len(c.ctxFree) < c.ctxFreeCap {
		c.ctxFree = append(c.ctxFree, ctx)
	}
}

// Enter records a CALL event: key identifies the callable being
// entered, userObj is its descriptive label (used only the first time
// key is seen), taskletID identifies the tasklet making the call.
func (c *Core) Enter(taskletID, key Key, userObj string) {
	if !c.enabled {
		return
	}
	now := c.now()
	s := c.selectStack(taskletID, now)
	entry := c.getOrCreateEntry(key, userObj)

	ctx := c.getContext()
	ctx.t0 = now
	ctx.previous = s.current
	ctx.entry = entry

	entry.recursionLevel++
	if entry.recursionLevel > 1 {
		if c.stacks.Len() == 1 && entry.recursionLevel == 2 {
			ctx.isRecursion = true
			ctx.isSubcallRecursion = true
		} else {
			for anc := ctx.previous; anc != nil; anc = anc.previous {
				if anc.entry == entry {
					ctx.isRecursion = true
					if c.subcalls && ctx.previous != nil && anc.previous != nil &&
						anc.previous.entry == ctx.previous.entry {
						ctx.isSubcallRecursion = true
					}
					break
				}
			}
		}
	}

	if c.subcalls && ctx.previous != nil {
		callerEntry := ctx.previous.entry
		ctx.callerEntry = callerEntry
		sub := c.getOrCreateSubEntry(callerEntry, key, userObj)
		ctx.subEntry = sub
		sub.recursionLevel++
	}

	s.current = ctx
}

func (c *Core) getOrCreateSubEntry(caller *Entry, key Key, userObj string) *SubEntry {
	if v, ok := caller.sub.Get(key); ok {
		return v.(*SubEntry)
	}
	se := &SubEntry{UserObj: userObj}
	caller.sub.Add(key, se)
	return se
}

// Leave records a RETURN event matching the innermost open context for
// taskletID; key is unused beyond symmetry with Enter (the innermost
// context on the tasklet's stack is always the one that returns).
func (c *Core) Leave(taskletID, _ Key) {
	if !c.enabled {
		return
	}
	now := c.now()
	s := c.selectStack(taskletID, now)
	if s.current == nil {
		return
	}
	ctx := s.current
	s.current = ctx.previous
	c.closeContext(s, ctx, now)
}

// closeContext finalizes ctx (real or synthetic) as of now, attributing
// its time to its entry/sub-entry and to its parent's subt, passes its
// paused time on to its parent (so an enclosing call also excludes time
// its tasklet spent switched out), then recycles it.
func (c *Core) closeContext(s *stack, ctx *context, now int64) {
	tt := now - ctx.t0 - ctx.paused
	it := tt - ctx.subt

	entry := ctx.entry
	entry.recursionLevel--
	if ctx.isRecursion {
		entry.IT += it
		entry.RecursiveCallCount++
	} else {
		entry.TT += tt
		entry.IT += it
		entry.CallCount++
	}

	if ctx.previous != nil {
		ctx.previous.subt += tt
		ctx.previous.paused += ctx.paused
	}

	if ctx.subEntry != nil {
		se := ctx.subEntry
		se.recursionLevel--
		if ctx.isSubcallRecursion {
			se.IT += it
			se.RecursiveCallCount++
		} else {
			se.TT += tt
			se.IT += it
			se.CallCount++
		}
	}

	c.releaseContext(ctx)
}

// SubEntryStat is one GetStats sub-call 5-tuple.
type SubEntryStat struct {
	UserObj            string
	CallCount          int64
	RecursiveCallCount int64
	TotalTime          float64
	InlineTime         float64
}

// EntryStat is one GetStats 6-tuple.
type EntryStat struct {
	UserObj            string
	CallCount          int64
	RecursiveCallCount int64
	TotalTime          float64
	InlineTime         float64
	SubCalls           []SubEntryStat
}

// GetStats snapshots every collected entry, scaling raw ticks by the
// active time unit. It returns ErrMemoryExhausted (clearing the sticky
// flag) if MarkMemoryExhausted has set the flag.
func (c *Core) GetStats() ([]EntryStat, error) {
	if c.CheckMemoryExhausted() {
		return nil, ErrMemoryExhausted
	}
	unit := 1.0
	if c.clock != nil {
		unit = c.clock.Unit()
	}

	var out []EntryStat
	c.entries.Enumerate(func(_ Key, v interface{}) {
		e := v.(*Entry)
		stat := EntryStat{
			UserObj:            e.UserObj,
			CallCount:          e.CallCount,
			RecursiveCallCount: e.RecursiveCallCount,
			TotalTime:          float64(e.TT) * unit,
			InlineTime:         float64(e.IT) * unit,
		}
		if c.subcalls {
			e.sub.Enumerate(func(_ Key, sv interface{}) {
				se := sv.(*SubEntry)
				stat.SubCalls = append(stat.SubCalls, SubEntryStat{
					UserObj:            se.UserObj,
					CallCount:          se.CallCount,
					RecursiveCallCount: se.RecursiveCallCount,
					TotalTime:          float64(se.TT) * unit,
					InlineTime:         float64(se.IT) * unit,
				})
			})
		}
		out = append(out, stat)
	})
	return out, nil
}
