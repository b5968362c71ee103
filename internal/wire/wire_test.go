package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	// frameLength is the tag-exclusive per-frame length, as the sender
	// actually calls Build: each frame's on-wire stride is frameLength
	// plus the 2-byte intra-frame tag.
	payload := make([]byte, 8*(2+160))
	for i := range payload {
		payload[i] = byte(i)
	}

	ts := big.NewInt(1710000000123)
	raw, err := Build(42, ts, 160, payload)
	require.NoError(t, err)

	dg, err := Parse(raw)
	require.NoError(t, err)

	require.Equal(t, uint32(42), dg.Header.Sequence)
	require.Equal(t, uint32(160), dg.Header.FrameLength)
	require.Equal(t, uint32(len(payload)), dg.Header.PayloadLength)
	require.Equal(t, 0, ts.Cmp(dg.Header.TimestampMS))
	require.Equal(t, payload, dg.Payload)
}

// TestParseAcceptsSpecLiteralBatch uses the spec's own E1 configuration
// (F=160, N=20): payload is N frames each of the 2-byte tag plus F
// bytes, so payloadLength (3240) is not a multiple of F (160) alone but
// is a multiple of the true per-frame stride F+2.
func TestParseAcceptsSpecLiteralBatch(t *testing.T) {
	const frameLength = 160
	const batchSize = 20
	payload := make([]byte, batchSize*(2+frameLength))

	raw, err := Build(7, big.NewInt(1000), frameLength, payload)
	require.NoError(t, err)

	dg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, uint32(frameLength), dg.Header.FrameLength)
	require.Equal(t, uint32(len(payload)), dg.Header.PayloadLength)
}

func TestParseTruncated(t *testing.T) {
	raw, err := Build(1, big.NewInt(1000), 160, make([]byte, 160))
	require.NoError(t, err)

	_, err = Parse(raw[:len(raw)-10])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestParseBadMagic(t *testing.T) {
	raw, err := Build(1, big.NewInt(1000), 160, make([]byte, 160))
	require.NoError(t, err)

	raw[4] = 0x00
	_, err = Parse(raw)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestParseTooShort(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestParseMalformedFrameLength(t *testing.T) {
	// frameLength 3 implies a stride of 5 (3 + the 2-byte tag); 7 bytes
	// is not a whole number of strides.
	raw, err := Build(1, big.NewInt(1000), 3, make([]byte, 7))
	require.NoError(t, err)

	_, err = Parse(raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestBuildRejectsOversizedTimestamp(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	_, err := Build(1, huge, 160, nil)
	require.ErrorIs(t, err, ErrMalformed)
}
