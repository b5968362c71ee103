package receiver

import (
	"errors"
	"math/big"
	"net"
	"testing"

	"github.com/cuervo-blanco/udp-voice/internal/jitter"
	"github.com/cuervo-blanco/udp-voice/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	datagrams [][]byte
	from      net.Addr
	idx       int
}

func (f *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if f.idx >= len(f.datagrams) {
		return 0, nil, errors.New("no more datagrams")
	}
	d := f.datagrams[f.idx]
	f.idx++
	n := copy(b, d)
	return n, f.from, nil
}

type fakeSink struct {
	inserted []jitter.Record
	drainOn  int // drain once this many records have been inserted
}

func (s *fakeSink) Insert(rec jitter.Record) []jitter.Record {
	s.inserted = append(s.inserted, rec)
	if s.drainOn > 0 && len(s.inserted) == s.drainOn {
		return s.inserted
	}
	return nil
}

func mustBuild(t *testing.T, seq uint32, frameLen uint32, payload []byte) []byte {
	t.Helper()
	raw, err := wire.Build(seq, big.NewInt(1000), frameLen, payload)
	require.NoError(t, err)
	return raw
}

func TestReceiverParsesAndInserts(t *testing.T) {
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9000")
	// payload is one frame: the 2-byte intra-frame tag followed by 4
	// bytes of coded data, matching the declared frame length of 4.
	conn := &fakeConn{
		datagrams: [][]byte{mustBuild(t, 7, 4, []byte{0, 0, 1, 2, 3, 4})},
		from:      addr,
	}
	sink := &fakeSink{drainOn: 1}

	var drained [][]jitter.Record
	r := New(conn, sink, func(out []jitter.Record) { drained = append(drained, out) }, nil)

	err := r.Run()
	require.Error(t, err) // fakeConn exhausts and returns an error, ending Run

	require.Len(t, sink.inserted, 1)
	require.Equal(t, uint32(7), sink.inserted[0].Sequence)
	require.Len(t, drained, 1)
}

func TestReceiverDiscardsMalformedWithoutBlocking(t *testing.T) {
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9000")
	good := mustBuild(t, 1, 4, []byte{0, 0, 1, 2, 3, 4})
	bad := make([]byte, 5) // too short to even have a header

	conn := &fakeConn{datagrams: [][]byte{bad, good}, from: addr}
	sink := &fakeSink{}

	var discarded int
	r := New(conn, sink, nil, func(err error, from net.Addr) { discarded++ })

	_ = r.Run()

	require.Equal(t, 1, discarded)
	require.Len(t, sink.inserted, 1)
}
