// Package persistence coalesces high-rate observation appends into
// transactional batches so a busy feed does not issue one insert per
// tick.
package persistence

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mft-core/pkg/db"
)

// BatchWriter buffers observations and flushes them as one transaction,
// either when the buffer fills or on the flush interval.
type BatchWriter struct {
	db          *db.Database
	buffer      []db.Observation
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup

	written uint64
	batches uint64
	errors  uint64
}

// Metrics reports batch activity.
type Metrics struct {
	Written uint64 `json:"written"`
	Batches uint64 `json:"batches"`
	Errors  uint64 `json:"errors"`
}

// NewBatchWriter starts a writer flushing at maxSize rows or every
// interval, whichever comes first.
func NewBatchWriter(database *db.Database, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:          database,
		buffer:      make([]db.Observation, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Append buffers one observation; a full buffer flushes synchronously.
func (bw *BatchWriter) Append(o db.Observation) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, o)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		bw.Flush()
	}
}

// Flush writes the pending buffer in one transaction.
func (bw *BatchWriter) Flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	batch := bw.buffer
	bw.buffer = make([]db.Observation, 0, bw.maxSize)
	bw.mu.Unlock()

	if err := bw.db.AppendObservations(context.Background(), batch); err != nil {
		atomic.AddUint64(&bw.errors, 1)
		log.Printf("⚠️ observation batch of %d not written: %v", len(batch), err)
		return
	}
	atomic.AddUint64(&bw.written, uint64(len(batch)))
	atomic.AddUint64(&bw.batches, 1)
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bw.Flush()
		case <-bw.done:
			bw.Flush()
			return
		}
	}
}

// Close flushes whatever remains and stops the background loop.
func (bw *BatchWriter) Close() {
	close(bw.done)
	bw.wg.Wait()
}

// GetMetrics returns a snapshot of batch activity.
func (bw *BatchWriter) GetMetrics() Metrics {
	return Metrics{
		Written: atomic.LoadUint64(&bw.written),
		Batches: atomic.LoadUint64(&bw.batches),
		Errors:  atomic.LoadUint64(&bw.errors),
	}
}
