package clock

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowMonotonic(t *testing.T) {
	t.Parallel()

	s := New(logrus.StandardLogger())
	a := s.Now()
	b := s.Now()
	assert.GreaterOrEqual(t, b, a)
}

func TestUserTimerInt(t *testing.T) {
	t.Parallel()

	s := New(logrus.StandardLogger())
	s.SetUserTimer(func() (interface{}, error) { return int64(42), nil })
	assert.Equal(t, int64(42), s.Now())
	assert.Equal(t, 1.0/precision, s.Unit())
}

func TestUserTimerFloat(t *testing.T) {
	t.Parallel()

	s := New(logrus.StandardLogger())
	s.SetUserTimer(func() (interface{}, error) { return 2.0, nil })
	assert.Equal(t, int64(2*precision), s.Now())
}

func TestUserTimerFailureSubstitutesZero(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	s := New(logger)
	s.SetUserTimer(func() (interface{}, error) { return nil, errors.New("broken timer") })

	require.Equal(t, int64(0), s.Now())
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
}
