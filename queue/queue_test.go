package queue

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFOSingleProducer(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Pop()
	require.False(t, ok, "expected empty queue")
}

func TestQueueMultipleProducersPreservesAllValues(t *testing.T) {
	q := New[int]()
	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		base := p * perProducer
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base + i)
			}
		}(base)
	}
	wg.Wait()

	got := make([]int, 0, producers*perProducer)
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Len(t, got, producers*perProducer)
	sort.Ints(got)
	for i, v := range got {
		require.Equalf(t, i, v, "missing or duplicate value at index %d", i)
	}
}

func TestQueueEmpty(t *testing.T) {
	q := New[string]()
	require.True(t, q.Empty(), "freshly constructed queue should be empty")
	q.Push("x")
	require.False(t, q.Empty(), "queue with a pushed value should not be empty")
}
