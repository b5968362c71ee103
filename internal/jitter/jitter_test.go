package jitter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rec(seq uint32, payload string) Record {
	return Record{Sequence: seq, FrameLength: 160, Payload: []byte(payload)}
}

func TestOrderPreservationOnReorder(t *testing.T) {
	// E2 — reorder within window: inject 2,1,3,4 with R=4.
	b := New(4, 50)

	require.Nil(t, b.Insert(rec(2, "p2")))
	require.Nil(t, b.Insert(rec(1, "p1")))
	require.Nil(t, b.Insert(rec(3, "p3")))

	out := b.Insert(rec(4, "p4"))
	require.Len(t, out, 4)
	for i, o := range out {
		require.Equal(t, uint32(i+1), o.Sequence)
		require.False(t, o.Concealed)
	}
}

func TestConcealmentFillsGap(t *testing.T) {
	// E3 — loss of one: inject 1,2,4,5 with R=4, expect record 3's
	// payload to equal record 2's.
	b := New(4, 50)

	require.Nil(t, b.Insert(rec(1, "p1")))
	require.Nil(t, b.Insert(rec(2, "p2")))
	require.Nil(t, b.Insert(rec(4, "p4")))

	out := b.Insert(rec(5, "p5"))
	require.Len(t, out, 5)

	require.Equal(t, uint32(3), out[2].Sequence)
	require.True(t, out[2].Concealed)
	require.Equal(t, []byte("p2"), out[2].Payload)
}

func TestConcealmentWithoutPriorPayloadSkipsGap(t *testing.T) {
	// Gap at the very start of the stream: no prior payload exists, so
	// the missing sequence is skipped rather than synthesized.
	b := New(3, 50)

	require.Nil(t, b.Insert(rec(5, "p5")))
	out := b.Insert(rec(7, "p7"))

	out = append(out, b.Insert(rec(8, "p8"))...)
	require.NotEmpty(t, out)

	for _, o := range out {
		require.NotEqual(t, uint32(6), o.Sequence)
	}
}

func TestLateArrivalAfterDrainIsDiscarded(t *testing.T) {
	b := New(2, 50)

	require.Nil(t, b.Insert(rec(1, "p1")))
	out := b.Insert(rec(2, "p2"))
	require.Len(t, out, 2)

	// Sequence 1 arrives late, after the window that contained it drained.
	late := b.Insert(rec(1, "late"))
	require.Nil(t, late)
	require.Equal(t, 0, b.Len())
}

func TestConcealmentGapLargerThanWindow(t *testing.T) {
	b := New(2, 5)

	require.Nil(t, b.Insert(rec(1, "p1")))
	out := b.Insert(rec(20, "p20"))
	require.Len(t, out, 20)
	for i := 1; i < 19; i++ {
		require.True(t, out[i].Concealed)
		require.Equal(t, []byte("p1"), out[i].Payload)
	}
}

func TestCleanSequentialStream(t *testing.T) {
	// E1 — clean stream of sequential packets drains in order with no
	// concealment.
	b := New(20, 50)

	var lastOut []Record
	for seq := uint32(1); seq <= 100; seq++ {
		if out := b.Insert(rec(seq, "ok")); out != nil {
			lastOut = out
			for _, o := range out {
				require.False(t, o.Concealed)
			}
		}
	}
	require.NotNil(t, lastOut)
}
