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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicGuardRestoresPriorFlag(t *testing.T) {
	rt, main := newTestRuntime(t)
	_ = rt

	assert.False(t, main.Atomic())

	g1 := Atomic(main)
	assert.True(t, main.Atomic())

	g2 := Atomic(main)
	assert.True(t, main.Atomic())

	g2.Release()
	assert.True(t, main.Atomic()) // g1 still holds it

	g1.Release()
	assert.False(t, main.Atomic())
}

func TestAtomicGuardReleaseIsIdempotent(t *testing.T) {
	_, main := newTestRuntime(t)

	g := Atomic(main)
	g.Release()
	assert.False(t, main.Atomic())
	g.Release() // must not double-restore or panic
	assert.False(t, main.Atomic())
}

func TestAtomicGuardRestoresOnPanicUnwind(t *testing.T) {
	_, main := newTestRuntime(t)

	func() {
		defer func() { _ = recover() }()
		guard := Atomic(main)
		defer guard.Release()
		panic("boom")
	}()

	assert.False(t, main.Atomic())
}
