// Package pipeline wires settings, peer table, delay buffer and stage
// handles together and owns their lifetimes. It starts stages in order
// (receiver -> jitter buffer -> decoder -> producer), waits for the
// delay buffer to cross the prime-fill threshold, and only then starts
// playback. On shutdown it cancels its stages and waits for them to
// return.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuervo-blanco/udp-voice/internal/codec"
	"github.com/cuervo-blanco/udp-voice/internal/delay"
	"github.com/cuervo-blanco/udp-voice/internal/jitter"
	"github.com/cuervo-blanco/udp-voice/internal/playback"
	"github.com/cuervo-blanco/udp-voice/internal/receiver"
	"github.com/cuervo-blanco/udp-voice/internal/settings"
)

// ErrDeviceUnavailable is returned when the host audio subsystem cannot
// yield an input or output device. Fatal at startup.
var ErrDeviceUnavailable = errors.New("pipeline: device unavailable")

// ErrTransportBind is returned when a UDP socket could not be bound.
var ErrTransportBind = errors.New("pipeline: transport bind failed")

// primeFillNumerator/Denominator implement the 4/5 prime-fill fraction
// from §4.5, relative to the delay buffer's capacity.
const primeFillNumerator = 4
const primeFillDenominator = 5

// Logger is the minimal logging surface the orchestrator needs; satisfied
// by *zap.SugaredLogger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ReceiveOrchestrator owns the full receive-side pipeline: receiver,
// jitter buffer, decoder/accumulator, delay buffer and playback callback.
type ReceiveOrchestrator struct {
	params settings.StreamParams
	log    Logger

	jb   *jitter.Buffer
	acc  *codec.Accumulator
	buf  *delay.Buffer
	cb   *playback.Callback
	recv *receiver.Receiver

	drained chan []jitter.Record

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReceiveOrchestrator constructs every stage but starts nothing.
func NewReceiveOrchestrator(params settings.StreamParams, conn receiver.PacketConn, log Logger, releaseThreshold, concealmentWindow int) (*ReceiveOrchestrator, error) {
	acc, err := codec.NewAccumulator(params)
	if err != nil {
		return nil, err
	}

	jb := jitter.New(releaseThreshold, concealmentWindow)
	buf := delay.New(params.BlockLength())

	o := &ReceiveOrchestrator{
		params:  params,
		log:     log,
		jb:      jb,
		acc:     acc,
		buf:     buf,
		drained: make(chan []jitter.Record, 8),
	}

	o.recv = receiver.New(conn, jitterSink{jb}, func(out []jitter.Record) {
		select {
		case o.drained <- out:
		default:
			// Decoder is behind; the jitter buffer already dropped by
			// its own policy, so this is a last-resort backpressure
			// valve rather than a correctness requirement.
			o.log.Warnf("pipeline: drained batch dropped, decoder stage congested")
		}
	}, func(err error, from net.Addr) {
		o.log.Debugf("receiver discarded datagram from %v: %v", from, err)
	})

	return o, nil
}

// jitterSink adapts *jitter.Buffer to receiver.Sink.
type jitterSink struct{ jb *jitter.Buffer }

func (s jitterSink) Insert(rec jitter.Record) []jitter.Record {
	return s.jb.Insert(rec)
}

// Start launches the receiver and decoder/producer goroutines, then
// starts the output device once the prime-fill threshold is crossed.
func (o *ReceiveOrchestrator) Start(ctx context.Context, outputSampleRate float64) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.recv.Run(); err != nil {
			o.log.Debugf("pipeline: receiver stopped: %v", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.decodeLoop(ctx)
	}()

	primeFill := (o.buf.Capacity() * primeFillNumerator) / primeFillDenominator
	o.waitForPrimeFill(ctx, primeFill)

	cb, err := playback.Open(outputSampleRate, o.params.Channels, o.params.BlockSamples, o.buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	o.cb = cb
	if err := o.cb.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.playbackLoop(ctx)
	}()

	return nil
}

// decodeLoop blocks on the jitter buffer's drained-batch channel (the
// "channel from the jitter buffer" in §5), decodes every record, and
// pushes resulting PCM blocks into the delay buffer (the producer stage,
// which blocks on the channel from the decoder only in the sense that it
// runs inline within the same goroutine here — both stages share no
// further hand-off boundary once decoding completes).
func (o *ReceiveOrchestrator) decodeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-o.drained:
			if !ok {
				return
			}
			for _, rec := range batch {
				blocks := o.acc.Process(rec)
				for _, block := range blocks {
					o.buf.Push(block, o.params.BlockLength())
				}
			}
		}
	}
}

// waitForPrimeFill blocks until the delay buffer holds at least
// threshold samples, polling at a short interval. This is the only
// intentional startup delay in the receive path.
func (o *ReceiveOrchestrator) waitForPrimeFill(ctx context.Context, threshold int) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.buf.Len() >= threshold {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// playbackLoop repeatedly ticks the real-time callback. PortAudio's
// blocking Write() call paces this loop to device rate.
func (o *ReceiveOrchestrator) playbackLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := o.cb.Tick(); err != nil {
			o.log.Debugf("pipeline: playback tick error: %v", err)
		}
	}
}

// Stop cancels the decode and playback goroutines, stops and closes the
// output stream, and waits for every stage goroutine to return. The
// receiver goroutine returns only when a read on its connection fails,
// so Stop returns only after that connection has been closed.
func (o *ReceiveOrchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.cb != nil {
		_ = o.cb.Stop()
	}
	o.wg.Wait()
}

// DelayBufferLen exposes the delay buffer occupancy for diagnostics.
func (o *ReceiveOrchestrator) DelayBufferLen() int {
	return o.buf.Len()
}

// Underruns exposes the playback underrun counter for diagnostics.
func (o *ReceiveOrchestrator) Underruns() int64 {
	return o.buf.Underruns()
}
