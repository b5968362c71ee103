package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cuervo-blanco/udp-voice/internal/capture"
	"github.com/cuervo-blanco/udp-voice/internal/sender"
)

// FrameEncoder is the subset of *codec.Encoder the SendOrchestrator uses,
// narrowed for testability.
type FrameEncoder interface {
	EncodeFrame(pcm []float32) ([]byte, error)
}

// SendOrchestrator owns the send-side mirror of the pipeline: a capture
// source, an encoder, and a packetizer/sender. It is a simpler mirror of
// ReceiveOrchestrator, specified only at the contract boundary (§1).
type SendOrchestrator struct {
	source capture.Source
	enc    FrameEncoder
	snd    *sender.Sender
	log    Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSendOrchestrator wires a capture source through an encoder into a
// sender. It does not start capturing until Start is called.
func NewSendOrchestrator(source capture.Source, enc FrameEncoder, snd *sender.Sender, log Logger) *SendOrchestrator {
	return &SendOrchestrator{source: source, enc: enc, snd: snd, log: log}
}

// Start begins the capture/encode/send loop. Calling Start while already
// running is a no-op (resolves the Open Question on double `send`:
// idempotent, not a restart or a second concurrent sender).
func (s *SendOrchestrator) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Infof("sender already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.captureLoop(ctx)
	}()
}

func (s *SendOrchestrator) captureLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = s.snd.Flush()
			return
		default:
		}

		block, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warnf("capture: %v", err)
			continue
		}

		frame, err := s.enc.EncodeFrame(block)
		if err != nil {
			s.log.Warnf("encode: %v", err)
			continue
		}

		if err := s.snd.PushFrame(frame); err != nil {
			s.log.Warnf("send: %v", err)
		}
	}
}

// Stop halts the capture/encode/send loop and releases the capture
// device. Safe to call whether or not Start was ever called.
func (s *SendOrchestrator) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.source != nil {
		return s.source.Close()
	}
	return nil
}

// IsRunning reports whether the capture/encode/send loop is active.
func (s *SendOrchestrator) IsRunning() bool {
	return s.running.Load()
}
