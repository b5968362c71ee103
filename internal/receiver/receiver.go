// Package receiver reads datagrams off the network, validates and parses
// them, and pushes PacketRecords into the jitter buffer. It never blocks
// on downstream stages: the jitter buffer is bounded and drops by its own
// policy, not the receiver's.
package receiver

import (
	"errors"
	"fmt"
	"net"

	"github.com/cuervo-blanco/udp-voice/internal/jitter"
	"github.com/cuervo-blanco/udp-voice/internal/wire"
)

// maxDatagramBytes is a generous read buffer; real datagrams are bounded
// by wire.MaxDatagramSize but UDP lets us over-read safely.
const maxDatagramBytes = 65536

// PacketConn is the subset of *net.UDPConn the Receiver needs.
type PacketConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
}

// Sink receives parsed records, one per valid datagram.
type Sink interface {
	Insert(rec jitter.Record) []jitter.Record
}

// DiscardLogger is notified of datagrams the parser had to discard.
// Implementations must not block.
type DiscardLogger func(err error, from net.Addr)

// Receiver owns the receive socket and feeds a Sink (normally a
// jitter.Buffer). Run blocks on socket reads; call it from its own
// goroutine, as described in §5.
type Receiver struct {
	conn      PacketConn
	sink      Sink
	onDrain   func([]jitter.Record)
	onDiscard DiscardLogger
}

// New creates a Receiver. onDrain is invoked (non-blocking) whenever an
// Insert triggers a jitter-buffer drain; onDiscard is invoked for every
// malformed, truncated, or bad-magic datagram.
func New(conn PacketConn, sink Sink, onDrain func([]jitter.Record), onDiscard DiscardLogger) *Receiver {
	return &Receiver{conn: conn, sink: sink, onDrain: onDrain, onDiscard: onDiscard}
}

// Run blocks on datagram reception until conn.ReadFrom returns a
// non-recoverable error (e.g. the socket was closed), which it returns
// to the caller.
func (r *Receiver) Run() error {
	buf := make([]byte, maxDatagramBytes)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("receiver: read: %w", err)
		}
		r.handleDatagram(buf[:n], addr)
	}
}

func (r *Receiver) handleDatagram(data []byte, from net.Addr) {
	dg, err := wire.Parse(data)
	if err != nil {
		if r.onDiscard != nil {
			r.onDiscard(classifyParseError(err), from)
		}
		return
	}

	rec := jitter.Record{
		Sequence:    dg.Header.Sequence,
		FrameLength: dg.Header.FrameLength,
		Payload:     dg.Payload,
	}

	if out := r.sink.Insert(rec); out != nil && r.onDrain != nil {
		r.onDrain(out)
	}
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, wire.ErrTruncated):
		return fmt.Errorf("receiver: %w", wire.ErrTruncated)
	case errors.Is(err, wire.ErrBadMagic):
		return fmt.Errorf("receiver: %w", wire.ErrBadMagic)
	default:
		return fmt.Errorf("receiver: %w", wire.ErrMalformed)
	}
}
