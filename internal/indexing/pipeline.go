package indexing

import (
	"sync"
	"time"
)

// defaultBatchSize and defaultBatchTimeout are §6's
// daemon.services.indexing.{batch_size,batch_timeout_s} defaults, used
// when a Batcher isn't given an explicit override.
const (
	defaultBatchSize    = 10
	defaultBatchTimeout = 5 * time.Second
)

// Batcher drains submitted items into batches of at most batchSize, or
// every flushInterval, whichever comes first (§5 "bounded channel,
// drains batches of ≤10 items or every 5s"). handle is called once per
// batch; a handle that isolates per-item failures (so one bad item
// doesn't drop its batch-mates) is the caller's responsibility — Batcher
// itself never drops a delivered item.
type Batcher[T any] struct {
	in            chan T
	batchSize     int
	flushInterval time.Duration
	handle        func([]T)

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewBatcher constructs a Batcher. A non-positive batchSize or
// flushInterval falls back to the §6 defaults.
func NewBatcher[T any](batchSize int, flushInterval time.Duration, handle func([]T)) *Batcher[T] {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultBatchTimeout
	}
	return &Batcher[T]{
		in:            make(chan T, 1000), // §5 default backpressure bound
		batchSize:     batchSize,
		flushInterval: flushInterval,
		handle:        handle,
		stop:          make(chan struct{}),
	}
}

// Start launches the batcher's drain loop. Call Stop to flush and tear
// it down.
func (b *Batcher[T]) Start() {
	b.wg.Add(1)
	go b.run()
}

// Submit enqueues an item for batching. Blocks if the bounded channel is
// full (backpressure, §5).
func (b *Batcher[T]) Submit(item T) {
	select {
	case b.in <- item:
	case <-b.stop:
	}
}

// Stop drains and flushes any remaining buffered items, then returns.
func (b *Batcher[T]) Stop() {
	close(b.stop)
	b.wg.Wait()
}

func (b *Batcher[T]) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	var batch []T
	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.handle(batch)
		batch = nil
	}

	for {
		select {
		case item := <-b.in:
			batch = append(batch, item)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.stop:
			// drain whatever is already queued without blocking further
			for {
				select {
				case item := <-b.in:
					batch = append(batch, item)
				default:
					flush()
					return
				}
			}
		}
	}
}
