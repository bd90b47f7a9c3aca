package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tryFinallyCode() *Code {
	return &Code{
		Name: "tryFinally",
		Regions: []Region{
			{Type: BlockTry, StartLine: 2, EndLine: 4, StackLevel: 0},
			{Type: BlockFinally, StartLine: 5, EndLine: 7, StackLevel: 0},
		},
		ExceptionEntryLines: map[int]bool{3: true},
	}
}

func TestSetLineRequiresLineEvent(t *testing.T) {
	t.Parallel()

	f := &Frame{Code: tryFinallyCode(), Line: 1}
	err := f.SetLine(EventCall, 1)
	assert.ErrorIs(t, err, ErrJumpInvalid)
}

func TestSetLineRejectsExceptionEntryLine(t *testing.T) {
	t.Parallel()

	f := &Frame{Code: tryFinallyCode(), Line: 1}
	err := f.SetLine(EventLine, 3)
	assert.ErrorIs(t, err, ErrJumpInvalid)
}

func TestSetLineRejectsJumpIntoFinally(t *testing.T) {
	t.Parallel()

	f := &Frame{Code: tryFinallyCode(), Line: 1}
	err := f.SetLine(EventLine, 6)
	assert.ErrorIs(t, err, ErrJumpInvalid)
}

func TestSetLineAllowsSiblingJumpWithinSameBlock(t *testing.T) {
	t.Parallel()

	code := &Code{
		Regions: []Region{
			{Type: BlockTry, StartLine: 2, EndLine: 6, StackLevel: 0},
		},
	}
	f := &Frame{Code: code, Line: 2}
	require.NoError(t, f.SetLine(EventLine, 4))
	assert.Equal(t, 4, f.Line)
}

func TestSetLineAllowsDroppingOutOfLoop(t *testing.T) {
	t.Parallel()

	code := &Code{
		Regions: []Region{
			{Type: BlockLoop, StartLine: 2, EndLine: 5, StackLevel: 1},
		},
	}
	f := &Frame{Code: code, Line: 3, ValueStack: []interface{}{"loopvar", "extra"}}
	require.NoError(t, f.SetLine(EventLine, 10))
	assert.Equal(t, []interface{}{"loopvar"}, f.ValueStack)
	assert.Empty(t, f.Blocks)
}

func TestSetLineWithinSameFinallyAllowed(t *testing.T) {
	t.Parallel()

	f := &Frame{Code: tryFinallyCode(), Line: 5}
	require.NoError(t, f.SetLine(EventLine, 7))
	assert.Equal(t, 7, f.Line)
}

func TestPoolZombieReuse(t *testing.T) {
	t.Parallel()

	p := NewPool(2)
	code := &Code{Name: "f"}

	f1 := p.Get(code)
	f1.Line = 42
	f1.ValueStack = append(f1.ValueStack, "x")
	p.Release(f1)

	f2 := p.Get(code)
	assert.Same(t, f1, f2)
	assert.Equal(t, 0, f2.Line)
	assert.Empty(t, f2.ValueStack)
	assert.Equal(t, 1, cap(f2.ValueStack), "value-stack backing array should be retained")
}

func TestPoolFreeListBounded(t *testing.T) {
	t.Parallel()

	p := NewPool(1)
	code := &Code{Name: "a"}

	// First release occupies code's zombie slot; later releases for the
	// same still-occupied code spill into the bounded free-list.
	p.Release(p.Get(code))
	p.Release(&Frame{Code: code})
	p.Release(&Frame{Code: code})
	p.Release(&Frame{Code: code})

	assert.LessOrEqual(t, len(p.free), 1)
}

func TestCFramePoolRecycles(t *testing.T) {
	t.Parallel()

	p := NewCFramePool(1)
	c1 := p.Get()
	c1.Int[0] = 7
	p.Release(c1)

	c2 := p.Get()
	assert.Same(t, c1, c2)
	assert.Equal(t, 0, c2.Int[0])
}
