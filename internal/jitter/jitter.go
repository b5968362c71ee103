// Package jitter implements the receive-side reordering and loss
// concealment stage. Packets are staged in an ordered map keyed by
// sequence number; once the map holds at least the release threshold
// R entries, a drain cycle synthesizes concealment records for any
// gaps and emits every record in ascending sequence order.
package jitter

import (
	"sort"
)

// Record is one packet's worth of payload staged in the buffer, tagged
// with its per-frame length so the decoder knows how to stride through
// the payload. Concealed is true when this record was synthesized to
// fill a gap rather than received off the wire.
type Record struct {
	Sequence    uint32
	FrameLength uint32
	Payload     []byte
	Concealed   bool
}

// Buffer is the ordered-map jitter buffer described in §4.2. It is not
// safe for concurrent use; the receiver goroutine is the sole writer and
// calls Insert synchronously on its own thread, draining inline.
type Buffer struct {
	releaseThreshold int
	concealmentMax   int

	entries      map[uint32]Record
	lastReal     Record
	haveLastReal bool

	lastDrainedMax    uint32
	haveDrainedBefore bool
}

// New creates a jitter buffer with the given release threshold (minimum
// entries buffered before a drain cycle fires) and concealment window.
// The window is stored but not applied: a drain synthesizes every
// missing sequence between its extremes, whatever the gap size.
func New(releaseThreshold, concealmentWindow int) *Buffer {
	if releaseThreshold < 1 {
		releaseThreshold = 1
	}
	if concealmentWindow < 0 {
		concealmentWindow = 0
	}
	return &Buffer{
		releaseThreshold: releaseThreshold,
		concealmentMax:   concealmentWindow,
		entries:          make(map[uint32]Record),
	}
}

// Insert stores a record by sequence number. If, after the insert, the
// buffer holds at least the release threshold, a drain cycle runs
// synchronously and the ordered, gap-filled records are returned. A nil
// slice means no drain happened yet.
func (b *Buffer) Insert(rec Record) []Record {
	if b.haveDrainedBefore && int32(rec.Sequence-b.lastDrainedMax) <= 0 {
		// Late arrival for a sequence already released by a prior drain
		// cycle; discarded per §4.2 ("late arrivals after drain are
		// discarded").
		return nil
	}

	b.entries[rec.Sequence] = rec

	if len(b.entries) < b.releaseThreshold {
		return nil
	}
	return b.drain()
}

// drain empties the buffer, synthesizing concealment records for gaps
// between the extreme sequences currently held, and returns every record
// from min to max in ascending order. The buffer is empty after this call.
func (b *Buffer) drain() []Record {
	seqs := make([]uint32, 0, len(b.entries))
	for s := range b.entries {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	min, max := seqs[0], seqs[len(seqs)-1]

	out := make([]Record, 0, int(max-min)+1)
	last := b.lastReal
	haveLast := b.haveLastReal

	for s := min; ; s++ {
		if rec, ok := b.entries[s]; ok {
			out = append(out, rec)
			last, haveLast = rec, true
		} else if haveLast {
			out = append(out, Record{
				Sequence:    s,
				FrameLength: last.FrameLength,
				Payload:     last.Payload,
				Concealed:   true,
			})
		}
		// else: no prior payload exists (startup) — skip the gap; the
		// decoder stage will receive a discontinuity and substitute
		// silence at the PCM stage, per §4.2 failure semantics.
		if s == max {
			break
		}
	}

	b.lastReal, b.haveLastReal = last, haveLast
	b.lastDrainedMax, b.haveDrainedBefore = max, true
	b.entries = make(map[uint32]Record)

	return out
}

// Len reports the number of entries currently staged (pre-drain).
func (b *Buffer) Len() int {
	return len(b.entries)
}
