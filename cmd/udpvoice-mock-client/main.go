// Command udpvoice-mock-client streams a WAV or MP3 file through the
// same capture/encode/send pipeline a live microphone would use, for
// testing the network and jitter/delay stages without real hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuervo-blanco/udp-voice/internal/codec"
	"github.com/cuervo-blanco/udp-voice/internal/config"
	"github.com/cuervo-blanco/udp-voice/internal/discovery"
	"github.com/cuervo-blanco/udp-voice/internal/logging"
	"github.com/cuervo-blanco/udp-voice/internal/pipeline"
	"github.com/cuervo-blanco/udp-voice/internal/sender"
	"github.com/cuervo-blanco/udp-voice/internal/settings"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var errFileExhausted = errors.New("mock-client: file exhausted")

func main() {
	configFile := pflag.StringP("config-file", "c", "", "YAML configuration file (optional)")
	sendPort := pflag.IntP("send-port", "s", 0, "Local UDP port to send voice datagrams from (0: ephemeral)")
	loop := pflag.BoolP("loop", "L", false, "Replay the file indefinitely instead of exiting at EOF")
	logFile := pflag.StringP("log-file", "l", "", "Rotated JSON log file path (empty: console only)")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: udpvoice-mock-client [flags] <file.wav|file.mp3>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpvoice-mock-client: %v\n", err)
		os.Exit(1)
	}
	cfg = cfg.ApplyDefaults()
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	log, err := logging.New(logging.Options{FilePath: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpvoice-mock-client: logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, args[0], *sendPort, *loop, log); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, path string, sendPort int, loop bool, log *zap.SugaredLogger) error {
	params := settings.StreamParams{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		FrameSamples: cfg.FrameSamples,
		BlockSamples: cfg.BlockSamples,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	pcm, err := decodeFile(path, params)
	if err != nil {
		return err
	}
	log.Infof("decoded %s: %d interleaved samples", path, len(pcm))

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: sendPort})
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrTransportBind, err)
	}
	defer udpConn.Close()

	table := discovery.NewPeerTable()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	advertiser, err := discovery.Advertise("mock-client", cfg.SendPort, map[string]string{"role": "mock-client"})
	if err != nil {
		log.Warnf("discovery: advertise failed, continuing without announcement: %v", err)
	} else {
		defer advertiser.Close()
	}

	go func() {
		if err := discovery.Browse(ctx, table, cfg.ReceivePort); err != nil && ctx.Err() == nil {
			log.Warnf("discovery: browse stopped: %v", err)
		}
	}()

	enc, err := codec.NewEncoder(params)
	if err != nil {
		return err
	}

	snd := sender.New(udpConn, table, func(p discovery.Peer, err error) {
		log.Debugf("send failed to peer %s: %v", p.ID, err)
	})

	source := &fileSource{pcm: pcm, blockLen: params.BlockLength(), loop: loop, done: make(chan struct{})}
	so := pipeline.NewSendOrchestrator(source, enc, snd, log)
	so.Start(ctx)

	<-source.done
	cancel()
	return so.Stop()
}

// fileSource replays a fully decoded PCM buffer as fixed-size blocks,
// implementing capture.Source without touching any audio device.
type fileSource struct {
	pcm      []float32
	blockLen int
	loop     bool
	offset   int
	done     chan struct{}
	closed   bool
}

func (f *fileSource) Next(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if f.offset >= len(f.pcm) {
		if f.loop {
			f.offset = 0
		} else {
			if !f.closed {
				f.closed = true
				close(f.done)
			}
			return nil, errFileExhausted
		}
	}

	end := f.offset + f.blockLen
	block := make([]float32, f.blockLen)
	if end > len(f.pcm) {
		copy(block, f.pcm[f.offset:])
	} else {
		copy(block, f.pcm[f.offset:end])
	}
	f.offset = end
	return block, nil
}

func (f *fileSource) Close() error { return nil }

// decodeFile reads a WAV or MP3 file fully into memory and returns
// interleaved float32 PCM at the file's native channel count. The
// caller's StreamParams.Channels must match, since no resampling or
// channel mixing is performed.
func decodeFile(path string, params settings.StreamParams) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mock-client: open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	default:
		return nil, fmt.Errorf("mock-client: unsupported file extension %q", filepath.Ext(path))
	}
}

func decodeWAV(f *os.File) ([]float32, error) {
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("mock-client: decode wav: %w", err)
	}
	out := make([]float32, len(buf.Data))
	maxAmplitude := float32(int(1) << (uint(buf.SourceBitDepth-1)))
	if maxAmplitude == 0 {
		maxAmplitude = 32768
	}
	for i, s := range buf.Data {
		out[i] = float32(s) / maxAmplitude
	}
	return out, nil
}

func decodeMP3(f *os.File) ([]float32, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("mock-client: decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mock-client: read mp3: %w", err)
	}
	// go-mp3 always emits 16-bit little-endian stereo.
	out := make([]float32, len(raw)/2)
	for i := range out {
		lo, hi := raw[i*2], raw[i*2+1]
		v := int16(uint16(lo) | uint16(hi)<<8)
		out[i] = float32(v) / 32768
	}
	return out, nil
}
