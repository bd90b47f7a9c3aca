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

// Guard is spec.md's AtomicGuard: a scoped marker that raises its
// tasklet's atomic counter on entry and restores the prior value on
// every exit path, including panics unwinding through the guarded
// scope.
type Guard struct {
	t    *Tasklet
	prev int
	done bool
}

// Atomic enters an atomic section on t, deferring watchdog preemption
// until the returned Guard's Release is called (typically via defer).
func Atomic(t *Tasklet) *Guard {
	g := &Guard{t: t, prev: t.atomicCount}
	t.atomicCount++
	return g
}

// Release restores t's atomic counter to exactly the value it had
// before this Guard was created. It is idempotent.
func (g *Guard) Release() {
	if g.done {
		return
	}
	g.t.atomicCount = g.prev
	g.done = true
}
