// Package wire implements the bit-exact datagram framing described in the
// wire format: a magic-delimited header carrying a payload length,
// sequence number, 128-bit timestamp and per-frame length, followed by a
// payload of back-to-back coded frames.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// HeaderSize is the fixed size in bytes of the datagram header (everything
// before the payload).
const HeaderSize = 40

// intraFrameTagSize is the 2-byte legacy tag prefixed to every coded frame
// inside the payload (see internal/sender and internal/codec); the
// on-wire stride of one frame is this many bytes plus FrameLength.
const intraFrameTagSize = 2

// MaxDatagramSize bounds a sender's batch: N<=20 frames of at most F<=160
// bytes plus the 2-byte per-frame tag, plus the header.
const MaxDatagramSize = HeaderSize + 20*(2+160)

var (
	// ErrTruncated is returned when the datagram is shorter than its
	// header, or its declared payload length disagrees with the number
	// of bytes actually received.
	ErrTruncated = errors.New("wire: truncated datagram")
	// ErrBadMagic is returned when any of the four magic marker pairs
	// does not match.
	ErrBadMagic = errors.New("wire: bad magic marker")
	// ErrMalformed covers any other structurally invalid datagram (e.g.
	// payload length not a multiple of the frame stride, the declared
	// frame length plus the 2-byte intra-frame tag).
	ErrMalformed = errors.New("wire: malformed datagram")
)

// Header is the parsed form of a datagram header.
type Header struct {
	PayloadLength uint32
	Sequence      uint32
	TimestampMS   *big.Int // milliseconds since epoch, producer-monotonic, u128
	FrameLength   uint32
}

// Datagram is a fully parsed wire datagram: header plus payload bytes.
type Datagram struct {
	Header  Header
	Payload []byte
}

// Build encodes a datagram from a sequence number, timestamp (ms since
// epoch), per-frame length and payload (N back-to-back coded frames of
// that length). It is the inverse of Parse.
func Build(seq uint32, timestampMS *big.Int, frameLength uint32, payload []byte) ([]byte, error) {
	if timestampMS == nil {
		return nil, fmt.Errorf("%w: nil timestamp", ErrMalformed)
	}
	if timestampMS.Sign() < 0 || timestampMS.BitLen() > 128 {
		return nil, fmt.Errorf("%w: timestamp out of u128 range", ErrMalformed)
	}

	buf := make([]byte, HeaderSize+len(payload))

	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))

	buf[4], buf[5] = 0xCC, 0xDD
	binary.BigEndian.PutUint32(buf[6:10], seq)
	buf[10], buf[11] = 0xDD, 0xCC

	buf[12], buf[13] = 0xAA, 0xBB
	put128(buf[14:30], timestampMS)
	buf[30], buf[31] = 0xBB, 0xAA

	buf[32], buf[33] = 0xEE, 0xFF
	binary.BigEndian.PutUint32(buf[34:38], frameLength)
	buf[38], buf[39] = 0xFF, 0xEE

	copy(buf[HeaderSize:], payload)

	return buf, nil
}

// Parse validates and decodes a received datagram. It never panics on
// short or corrupt input; it returns one of ErrTruncated, ErrBadMagic or
// ErrMalformed instead.
func Parse(data []byte) (Datagram, error) {
	if len(data) < HeaderSize {
		return Datagram{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncated, len(data), HeaderSize)
	}

	payloadLength := binary.BigEndian.Uint32(data[0:4])

	if data[4] != 0xCC || data[5] != 0xDD {
		return Datagram{}, fmt.Errorf("%w: sequence open marker", ErrBadMagic)
	}
	seq := binary.BigEndian.Uint32(data[6:10])
	if data[10] != 0xDD || data[11] != 0xCC {
		return Datagram{}, fmt.Errorf("%w: sequence close marker", ErrBadMagic)
	}

	if data[12] != 0xAA || data[13] != 0xBB {
		return Datagram{}, fmt.Errorf("%w: timestamp open marker", ErrBadMagic)
	}
	ts := get128(data[14:30])
	if data[30] != 0xBB || data[31] != 0xAA {
		return Datagram{}, fmt.Errorf("%w: timestamp close marker", ErrBadMagic)
	}

	if data[32] != 0xEE || data[33] != 0xFF {
		return Datagram{}, fmt.Errorf("%w: frame-length open marker", ErrBadMagic)
	}
	frameLength := binary.BigEndian.Uint32(data[34:38])
	if data[38] != 0xFF || data[39] != 0xEE {
		return Datagram{}, fmt.Errorf("%w: frame-length close marker", ErrBadMagic)
	}

	payload := data[HeaderSize:]
	if uint32(len(payload)) != payloadLength {
		return Datagram{}, fmt.Errorf("%w: declared length %d, got %d", ErrTruncated, payloadLength, len(payload))
	}
	stride := frameLength + intraFrameTagSize
	if frameLength > 0 && payloadLength%stride != 0 {
		return Datagram{}, fmt.Errorf("%w: payload length %d not a multiple of frame stride %d", ErrMalformed, payloadLength, stride)
	}

	return Datagram{
		Header: Header{
			PayloadLength: payloadLength,
			Sequence:      seq,
			TimestampMS:   ts,
			FrameLength:   frameLength,
		},
		Payload: payload,
	}, nil
}

func put128(dst []byte, v *big.Int) {
	b := v.Bytes()
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(dst[16-len(b):], b)
}

func get128(src []byte) *big.Int {
	return new(big.Int).SetBytes(src)
}
