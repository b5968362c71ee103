package capture

import (
	"context"
	"testing"

	"github.com/cuervo-blanco/udp-voice/internal/settings"
	"github.com/stretchr/testify/require"
)

func TestSineSourceProducesBoundedSamples(t *testing.T) {
	params := settings.StreamParams{SampleRate: 48000, Channels: 1, FrameSamples: 960, BlockSamples: 960}
	src := NewSineSource(params, 440)

	block, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, block, params.BlockLength())
	for _, s := range block {
		require.LessOrEqual(t, s, float32(1.0))
		require.GreaterOrEqual(t, s, float32(-1.0))
	}
}

func TestSineSourceRespectsContextCancellation(t *testing.T) {
	params := settings.StreamParams{SampleRate: 48000, Channels: 1, FrameSamples: 960, BlockSamples: 960}
	src := NewSineSource(params, 440)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSineSourceStereoDuplicatesAcrossChannels(t *testing.T) {
	params := settings.StreamParams{SampleRate: 48000, Channels: 2, FrameSamples: 960, BlockSamples: 960}
	src := NewSineSource(params, 440)

	block, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, block[0], block[1])
}
