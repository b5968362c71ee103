// Package settings resolves audio device handles and the fixed stream
// parameters shared by every pipeline stage.
package settings

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// validSampleRates mirrors the set the Opus codec accepts.
var validSampleRates = map[int]bool{
	8000:  true,
	12000: true,
	16000: true,
	24000: true,
	48000: true,
}

// StreamParams are the fixed audio parameters for the lifetime of a call.
// Created once at startup and never mutated.
type StreamParams struct {
	SampleRate   int // Hz
	Channels     int // 1 or 2
	FrameSamples int // samples per coded frame, per channel
	BlockSamples int // samples per playout block, per channel
}

// Default returns the nominal 48kHz mono, 20ms-frame configuration.
func Default() StreamParams {
	return StreamParams{
		SampleRate:   48000,
		Channels:     1,
		FrameSamples: 960,
		BlockSamples: 960,
	}
}

// Validate checks the invariants from the data model: frame and block
// sizes must be multiples of the channel count, and the sample rate must
// be one the codec supports.
func (p StreamParams) Validate() error {
	if p.Channels != 1 && p.Channels != 2 {
		return fmt.Errorf("settings: channels must be 1 or 2, got %d", p.Channels)
	}
	if !validSampleRates[p.SampleRate] {
		return fmt.Errorf("settings: unsupported sample rate %d", p.SampleRate)
	}
	if p.FrameSamples%p.Channels != 0 {
		return fmt.Errorf("settings: frame samples %d not a multiple of channels %d", p.FrameSamples, p.Channels)
	}
	if p.BlockSamples%p.Channels != 0 {
		return fmt.Errorf("settings: block samples %d not a multiple of channels %d", p.BlockSamples, p.Channels)
	}
	return nil
}

// FrameLength returns the number of interleaved samples (samples * channels)
// in one coded frame.
func (p StreamParams) FrameLength() int {
	return p.FrameSamples * p.Channels
}

// BlockLength returns the number of interleaved samples in one playout block.
func (p StreamParams) BlockLength() int {
	return p.BlockSamples * p.Channels
}

// Devices resolves the default PortAudio input and output devices for this
// stream. Callers that need a specific device should use portaudio.Devices
// directly and build their own portaudio.StreamParameters.
type Devices struct {
	Input  *portaudio.DeviceInfo
	Output *portaudio.DeviceInfo
}

// ResolveDevices asks PortAudio for the default input and output devices.
// PortAudio must already be initialized (portaudio.Initialize).
func ResolveDevices() (Devices, error) {
	input, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Devices{}, fmt.Errorf("settings: default input device: %w", err)
	}
	output, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return Devices{}, fmt.Errorf("settings: default output device: %w", err)
	}
	return Devices{Input: input, Output: output}, nil
}
