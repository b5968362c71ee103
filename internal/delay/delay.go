// Package delay implements the bounded FIFO of PCM samples that decouples
// decode rate from playout rate. The decoder stage appends whole blocks;
// the playback callback pops sample by sample, substituting silence on
// underrun.
package delay

import "sync"

// Buffer is a single bounded FIFO of float32 samples, capacity
// blockLength*100 (see New). It is the only multi-access resource in the
// pipeline: a mutex guards it, held for O(D) time by the playback
// callback and O(block) time by the producer.
type Buffer struct {
	mu       sync.Mutex
	samples  []float32
	capacity int

	underruns int64
}

// New creates a delay buffer with capacity blockLength*100, where
// blockLength is block samples times channels (an interleaved sample
// count), per §4.4.
func New(blockLength int) *Buffer {
	if blockLength <= 0 {
		blockLength = 1
	}
	return &Buffer{
		capacity: blockLength * 100,
		samples:  make([]float32, 0, blockLength*100),
	}
}

// Push appends a PCM block. If the buffer would exceed capacity, the
// oldest samples are dropped from the front in increments of blockLength
// until the buffer is within capacity again, preserving the freshest
// audio when the network outruns playout.
func (b *Buffer) Push(block []float32, blockLength int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, block...)

	if blockLength <= 0 {
		blockLength = len(block)
	}
	for len(b.samples) > b.capacity && blockLength > 0 {
		drop := blockLength
		if drop > len(b.samples) {
			drop = len(b.samples)
		}
		b.samples = b.samples[drop:]
	}
}

// Pop fills dst with exactly len(dst) samples, substituting 0.0 where the
// buffer runs empty. Returns the number of samples that were real (not
// silence-substituted), for underrun accounting.
func (b *Buffer) Pop(dst []float32) (real int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(dst)
	avail := len(b.samples)
	if avail > n {
		avail = n
	}
	copy(dst[:avail], b.samples[:avail])
	b.samples = b.samples[avail:]

	for i := avail; i < n; i++ {
		dst[i] = 0.0
	}
	if avail < n {
		b.underruns++
	}
	return avail
}

// Len returns the current sample count. Intended for tests and metrics;
// not on the hot path.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Underruns returns the number of Pop calls that had to substitute at
// least one silent sample.
func (b *Buffer) Underruns() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underruns
}

// Capacity returns the configured maximum sample count.
func (b *Buffer) Capacity() int {
	return b.capacity
}
