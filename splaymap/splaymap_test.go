package splaymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissing(t *testing.T) {
	t.Parallel()

	var m Map
	_, ok := m.Get(1)
	assert.False(t, ok)
}

func TestAddGet(t *testing.T) {
	t.Parallel()

	var m Map
	m.Add(3, "three")
	m.Add(1, "one")
	m.Add(2, "two")

	require.Equal(t, 3, m.Len())

	for k, want := range map[Key]string{1: "one", 2: "two", 3: "three"} {
		v, ok := m.Get(k)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestAddDuplicateKeyReplaces(t *testing.T) {
	t.Parallel()

	var m Map
	m.Add(1, "first")
	m.Add(1, "second")

	assert.Equal(t, 1, m.Len())
	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestEnumerateVisitsAllInKeyOrder(t *testing.T) {
	t.Parallel()

	var m Map
	for _, k := range []Key{5, 3, 8, 1, 4} {
		m.Add(k, nil)
	}

	var seen []Key
	m.Enumerate(func(k Key, _ interface{}) {
		seen = append(seen, k)
	})

	assert.Equal(t, []Key{1, 3, 4, 5, 8}, seen)
}

func TestGetSplaysRecentlyTouchedToRoot(t *testing.T) {
	t.Parallel()

	var m Map
	for _, k := range []Key{1, 2, 3, 4, 5} {
		m.Add(k, nil)
	}

	_, ok := m.Get(5)
	require.True(t, ok)
	assert.Equal(t, Key(5), m.root.key)
}
