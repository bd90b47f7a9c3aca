package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/I-asked/stackless/clock"
)

// fakeClock drives clock.Source.SetUserTimer with an explicit,
// caller-advanced tick count instead of wall time, so tests can assert
// on exact elapsed-time arithmetic.
type fakeClock struct{ t int64 }

func (f *fakeClock) now() (interface{}, error) { return f.t, nil }

func newFakeClockSource() (*clock.Source, *fakeClock) {
	fc := &fakeClock{}
	src := clock.New(nil)
	src.SetUserTimer(fc.now)
	return src, fc
}

func TestEnterLeaveSingleCall(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	require.NoError(t, c.Enable(false, false))

	const tasklet Key = 1
	const fn Key = 100

	c.Enter(tasklet, fn, "fn")
	c.Leave(tasklet, fn)

	stats, err := c.GetStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].CallCount)
	assert.Equal(t, int64(0), stats[0].RecursiveCallCount)
}

func TestRecursiveCallIsClassified(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	require.NoError(t, c.Enable(false, false))

	const tasklet Key = 1
	const fn Key = 100

	c.Enter(tasklet, fn, "fn")
	c.Enter(tasklet, fn, "fn") // recursive call
	c.Leave(tasklet, fn)
	c.Leave(tasklet, fn)

	stats, err := c.GetStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].CallCount)
	assert.Equal(t, int64(1), stats[0].RecursiveCallCount)
}

func TestSubcallsTrackedUnderCaller(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	require.NoError(t, c.Enable(true, false))

	const tasklet Key = 1
	const f, g Key = 100, 200

	c.Enter(tasklet, f, "f")
	c.Enter(tasklet, g, "g")
	c.Leave(tasklet, g)
	c.Leave(tasklet, f)

	stats, err := c.GetStats()
	require.NoError(t, err)
	var fStat *EntryStat
	for i := range stats {
		if stats[i].UserObj == "f" {
			fStat = &stats[i]
		}
	}
	require.NotNil(t, fStat)
	require.Len(t, fStat.SubCalls, 1)
	assert.Equal(t, "g", fStat.SubCalls[0].UserObj)
	assert.Equal(t, int64(1), fStat.SubCalls[0].CallCount)
}

func TestTaskletSwitchPausesTime(t *testing.T) {
	t.Parallel()

	// S2: T1 calls f() which calls g() then "switches"; T2 runs h()
	// while T1 is paused; T1 resumes, g() returns, f() returns. f's tt
	// must exclude the time spent running h() on T2, and g.tt + f.it
	// must equal f.tt.
	src, fc := newFakeClockSource()
	c := New(src, nil)
	require.NoError(t, c.Enable(true, false))

	const t1, t2 Key = 1, 2
	const f, g, h Key = 100, 200, 300

	fc.t = 0
	c.Enter(t1, f, "f")
	fc.t = 1
	c.Enter(t1, g, "g")

	// Switch to t2 and run an unrelated call for 3 ticks while t1 is
	// parked; those 3 ticks must not count against g or f.
	fc.t = 2
	c.Enter(t2, h, "h")
	fc.t = 5
	c.Leave(t2, h)

	fc.t = 6
	c.Leave(t1, g)
	fc.t = 7
	c.Leave(t1, f)

	stats, err := c.GetStats()
	require.NoError(t, err)
	var fStat, gStat, hStat *EntryStat
	for i := range stats {
		switch stats[i].UserObj {
		case "f":
			fStat = &stats[i]
		case "g":
			gStat = &stats[i]
		case "h":
			hStat = &stats[i]
		}
	}
	require.NotNil(t, fStat)
	require.NotNil(t, gStat)
	require.NotNil(t, hStat)

	unit := src.Unit()
	// g was open from t=1 to t=6 (5 ticks) but paused for the 4 ticks
	// (2->6) t1 wasn't the current stack; its real inline time is just
	// the 1 tick (1->2) it ran before the switch to t2. If the pause
	// exclusion were broken this would wrongly read 5 ticks instead of 1.
	assert.InDelta(t, float64(1)*unit, gStat.TotalTime, 1e-18)
	assert.InDelta(t, float64(3)*unit, hStat.TotalTime, 1e-18)
	// f was open from t=0 to t=7 (7 ticks) less the same 4 paused ticks
	// passed up from g, so 3 ticks in all, 2 of them inline.
	assert.InDelta(t, float64(3)*unit, fStat.TotalTime, 1e-18)
	assert.InDelta(t, float64(2)*unit, fStat.InlineTime, 1e-18)
	assert.InDelta(t, fStat.TotalTime, gStat.TotalTime+fStat.InlineTime, 1e-18)
}

func TestDisableFlushesOpenContexts(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	require.NoError(t, c.Enable(false, false))

	const tasklet Key = 1
	const fn Key = 100
	c.Enter(tasklet, fn, "fn") // never left: tasklet aborted mid-call

	require.NoError(t, c.Disable())

	stats, err := c.GetStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].CallCount)
}

func TestMemoryExhaustedIsStickyThenClears(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	c.MarkMemoryExhausted()
	assert.True(t, c.CheckMemoryExhausted())
	assert.False(t, c.CheckMemoryExhausted())
}

func TestMemoryExhaustedSurfacesOnNextOperation(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	require.NoError(t, c.Enable(false, false))

	c.MarkMemoryExhausted()

	_, err := c.GetStats()
	assert.ErrorIs(t, err, ErrMemoryExhausted)

	// the flag cleared: the next operation succeeds again.
	_, err = c.GetStats()
	assert.NoError(t, err)
}
