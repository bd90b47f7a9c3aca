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
	"github.com/stretchr/testify/require"
)

func TestWatchdogHardInterruptsAndVictimResumesLater(t *testing.T) {
	rt, _ := newTestRuntime(t)
	wd := rt.Watchdog()

	const iterations = 5
	worker, err := rt.NewTasklet("worker", func(self *Tasklet) (interface{}, error) {
		for i := 0; i < iterations; i++ {
			wd.Tick(self)
		}
		return "worker-done", nil
	})
	require.NoError(t, err)

	victim, err := wd.Run(3, 0)
	require.NoError(t, err)
	require.Equal(t, worker, victim)

	for rt.GetRunCount() > 1 {
		_, err := rt.Schedule(nil)
		require.NoError(t, err)
	}
	<-worker.doneCh
	assert.Equal(t, "worker-done", worker.tempValue)
}

func TestWatchdogDefersInsideAtomicSection(t *testing.T) {
	rt, _ := newTestRuntime(t)
	wd := rt.Watchdog()

	worker, err := rt.NewTasklet("worker", func(self *Tasklet) (interface{}, error) {
		guard := Atomic(self)
		defer guard.Release()
		for i := 0; i < 6; i++ {
			wd.Tick(self)
		}
		return "done", nil
	})
	require.NoError(t, err)

	victim, err := wd.Run(3, 0)
	require.NoError(t, err)
	assert.Nil(t, victim)
	assert.True(t, worker.pendingIRQ)

	for rt.GetRunCount() > 1 {
		_, err := rt.Schedule(nil)
		require.NoError(t, err)
	}
	<-worker.doneCh
}

func TestWatchdogSoftFlagNeverHardInterrupts(t *testing.T) {
	rt, _ := newTestRuntime(t)
	wd := rt.Watchdog()

	worker, err := rt.NewTasklet("worker", func(self *Tasklet) (interface{}, error) {
		for i := 0; i < 6; i++ {
			wd.Tick(self)
		}
		return "done", nil
	})
	require.NoError(t, err)

	victim, err := wd.Run(2, FlagSoft)
	require.NoError(t, err)
	assert.Nil(t, victim)
	assert.True(t, worker.pendingIRQ)
	<-worker.doneCh
}

func TestWatchdogRejectsNegativeTimeout(t *testing.T) {
	rt, _ := newTestRuntime(t)
	_, err := rt.Watchdog().Run(-1, 0)
	assert.ErrorIs(t, err, ErrBadWatchdogArg)
}
