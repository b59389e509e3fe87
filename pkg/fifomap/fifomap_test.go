package fifomap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFifo(t *testing.T) {
	cache := NewFIFOMap[string, int](3)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)
	cache.Set("d", 4)

	_, ok := cache.Get("a")
	require.False(t, ok)
	v, ok := cache.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 3, cache.Len())
	require.Equal(t, []int{4, 3, 2}, cache.GetAll())
}

func TestFifoUpdateMovesToFront(t *testing.T) {
	cache := NewFIFOMap[string, int](2)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 10)
	cache.Set("c", 3)

	_, ok := cache.Get("b")
	require.False(t, ok)
	v, _ := cache.Get("a")
	require.Equal(t, 10, v)
}

func TestFifoSetIfAbsent(t *testing.T) {
	cache := NewFIFOMap[string, int](2)
	require.True(t, cache.SetIfAbsent("a", 1))
	require.False(t, cache.SetIfAbsent("a", 2))
	v, _ := cache.Get("a")
	require.Equal(t, 1, v)

	cache.Delete("a")
	require.Zero(t, cache.Len())
	cache.Set("b", 1)
	cache.Clear()
	require.Empty(t, cache.GetAll())
}

func TestFifoRejectsZeroSize(t *testing.T) {
	require.Panics(t, func() { NewFIFOMap[string, int](0) })
}
