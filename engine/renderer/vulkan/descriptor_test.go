package vulkan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCache_ReusesSetsWithSameContent(t *testing.T) {
	var cache setCache[int]
	allocated, filled := 0, 0
	allocate := func() (int, error) {
		allocated++
		return allocated, nil
	}
	fill := func(int) error {
		filled++
		return nil
	}

	// one fish species drawn fish by fish binds the same four sets each time
	keys := []setKey{
		{table: true, base: 0},
		{offset: 0},
		{table: true, base: 12},
		{offset: 256},
	}
	for fish := 0; fish < 30000; fish++ {
		for _, k := range keys {
			_, err := cache.get(k, allocate, fill)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 4, allocated)
	assert.Equal(t, 4, filled)
	assert.Equal(t, 4, cache.len())

	set, err := cache.get(setKey{table: true, base: 12}, allocate, fill)
	require.NoError(t, err)
	assert.Equal(t, 3, set)

	cache.reset()
	assert.Equal(t, 0, cache.len())
	set, err = cache.get(setKey{table: true, base: 12}, allocate, fill)
	require.NoError(t, err)
	assert.Equal(t, 5, set)
}

func TestSetCache_FailedFillIsNotCached(t *testing.T) {
	var cache setCache[int]
	boom := errors.New("boom")
	allocate := func() (int, error) { return 1, nil }

	_, err := cache.get(setKey{base: 3}, allocate, func(int) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.len())

	_, err = cache.get(setKey{base: 3}, allocate, func(int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, cache.len())
}
