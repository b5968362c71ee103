// Package playback drives the real-time audio output stream. Each
// callback invocation drains exactly the requested number of samples
// from the delay buffer, substituting silence on underrun. No heap
// allocation or logging happens on this hot path; each block is handed
// to PortAudio's blocking Write, which paces the caller to device rate.
package playback

import (
	"github.com/cuervo-blanco/udp-voice/internal/delay"
	"github.com/gordonklaus/portaudio"
)

// paStream is the subset of *portaudio.Stream the Callback uses.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Write() error
}

// Callback owns the output stream and drains the shared delay buffer on
// every device tick.
type Callback struct {
	stream paStream
	buf    *delay.Buffer
	out    []float32
}

// Open opens a PortAudio output stream with a buffer pre-allocated to
// blockLength samples (block samples * channels), wired to pop from buf
// on every tick. The stream is NOT started yet — callers should wait for
// the orchestrator's prime-fill gate before calling Start.
func Open(sampleRate float64, channels int, blockSamples int, buf *delay.Buffer) (*Callback, error) {
	out := make([]float32, blockSamples*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, sampleRate, blockSamples, out)
	if err != nil {
		return nil, err
	}
	return &Callback{stream: stream, buf: buf, out: out}, nil
}

// Start begins playback. Must only be called after the delay buffer has
// reached the prime-fill threshold.
func (c *Callback) Start() error {
	return c.stream.Start()
}

// Tick is one invocation of the real-time callback: it fills c.out from
// the delay buffer (silence on deficit, §8 invariant 6) and writes it to
// the device. The slice is reused across calls — no allocation here.
func (c *Callback) Tick() error {
	c.buf.Pop(c.out)
	return c.stream.Write()
}

// Stop halts and releases the output stream.
func (c *Callback) Stop() error {
	if err := c.stream.Stop(); err != nil {
		return err
	}
	return c.stream.Close()
}
