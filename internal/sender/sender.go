// Package sender batches coded frames into framed datagrams and
// transmits them to every peer currently in the peer table, per §4.6.
package sender

import (
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/cuervo-blanco/udp-voice/internal/discovery"
	"github.com/cuervo-blanco/udp-voice/internal/wire"
)

// BatchSize is N, the number of coded frames batched into one datagram.
const BatchSize = 20

// intraFrameTagSize is the legacy 2-byte tag prefixed to every coded
// frame inside the payload; see the resolved Open Question in SPEC_FULL.
const intraFrameTagSize = 2

// Conn is the subset of *net.UDPConn the Sender needs, narrowed for
// testability.
type Conn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Sender owns the send-side socket and batches CodedFrames handed to
// PushFrame into outbound datagrams.
type Sender struct {
	conn     Conn
	table    *discovery.PeerTable
	sequence uint32

	batch       [][]byte
	frameLength uint32

	onSendError func(peer discovery.Peer, err error)
}

// New creates a Sender writing through conn, reading peer addresses from
// table. onSendError, if non-nil, is called for every per-peer send
// failure (TransportSendPartial); it must not block.
func New(conn Conn, table *discovery.PeerTable, onSendError func(discovery.Peer, error)) *Sender {
	return &Sender{conn: conn, table: table, onSendError: onSendError}
}

// PushFrame adds one coded frame to the pending batch. Once BatchSize
// frames have accumulated, the batch is built into a datagram and sent
// to every peer in the current table snapshot.
func (s *Sender) PushFrame(frame []byte) error {
	if s.frameLength == 0 {
		s.frameLength = uint32(len(frame))
	} else if uint32(len(frame)) != s.frameLength {
		// A codec with variable frame sizes would break the single
		// frame-length tag in the datagram header; flush what we have
		// under the old length before starting a new run.
		if err := s.flush(); err != nil {
			return err
		}
		s.frameLength = uint32(len(frame))
	}

	s.batch = append(s.batch, frame)
	if len(s.batch) >= BatchSize {
		return s.flush()
	}
	return nil
}

// Flush forces the current partial batch out as a short datagram. Useful
// at stream teardown so the last few frames are not silently dropped.
func (s *Sender) Flush() error {
	return s.flush()
}

func (s *Sender) flush() error {
	if len(s.batch) == 0 {
		return nil
	}

	payload := make([]byte, 0, len(s.batch)*(intraFrameTagSize+int(s.frameLength)))
	for _, f := range s.batch {
		payload = append(payload, 0x00, 0x00) // intra-frame tag: dead weight, per Open Question
		payload = append(payload, f...)
	}

	datagram, err := wire.Build(s.sequence, nowMS(), s.frameLength, payload)
	if err != nil {
		return fmt.Errorf("sender: build datagram: %w", err)
	}
	s.sequence++
	s.batch = s.batch[:0]

	s.transmit(datagram)
	return nil
}

// transmit sends datagram to every peer in the current snapshot. A
// failure to send to one peer does not abort sends to the rest
// (TransportSendPartial, §7).
func (s *Sender) transmit(datagram []byte) {
	peers := s.table.Snapshot()
	for _, p := range peers {
		if p.Addr == nil {
			continue
		}
		if _, err := s.conn.WriteTo(datagram, p.Addr); err != nil {
			if s.onSendError != nil {
				s.onSendError(p, fmt.Errorf("sender: transport send partial to %s: %w", p.ID, err))
			}
		}
	}
}

func nowMS() *big.Int {
	return big.NewInt(time.Now().UnixMilli())
}
