package indexing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatcherFlushesAtBatchSize(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	b := NewBatcher(3, time.Minute, func(batch []int) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, batch)
	})
	b.Start()
	for i := 0; i < 3; i++ {
		b.Submit(i)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1 && len(batches[0]) == 3
	}, 2*time.Second, 10*time.Millisecond)

	b.Stop()
}

func TestBatcherFlushesOnTimeout(t *testing.T) {
	var mu sync.Mutex
	var flushed []int

	b := NewBatcher(10, 20*time.Millisecond, func(batch []int) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, batch...)
	})
	b.Start()
	b.Submit(1)
	b.Submit(2)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 2
	}, time.Second, 10*time.Millisecond)

	b.Stop()
}

func TestBatcherStopFlushesRemainder(t *testing.T) {
	var mu sync.Mutex
	var flushed []int

	b := NewBatcher(100, time.Minute, func(batch []int) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, batch...)
	})
	b.Start()
	b.Submit(42)
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{42}, flushed)
}
