// Command udpvoice-server runs the receive side of the endpoint: it
// binds the receive socket, advertises itself over mDNS/DNS-SD, and
// drives the receive pipeline (receiver -> jitter buffer -> decoder ->
// delay buffer -> playback) until interrupted.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuervo-blanco/udp-voice/internal/config"
	"github.com/cuervo-blanco/udp-voice/internal/discovery"
	"github.com/cuervo-blanco/udp-voice/internal/logging"
	"github.com/cuervo-blanco/udp-voice/internal/pipeline"
	"github.com/cuervo-blanco/udp-voice/internal/settings"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configFile := pflag.StringP("config-file", "c", "", "YAML configuration file (optional)")
	receivePort := pflag.IntP("receive-port", "r", 0, "UDP port to receive voice datagrams on (0: use config/default)")
	instanceName := pflag.StringP("name", "n", "", "mDNS instance name to advertise as (empty: hostname)")
	logFile := pflag.StringP("log-file", "l", "", "Rotated JSON log file path (empty: console only)")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpvoice-server: %v\n", err)
		os.Exit(1)
	}
	cfg = cfg.ApplyDefaults()
	if *receivePort != 0 {
		cfg.ReceivePort = *receivePort
	}
	if *instanceName != "" {
		cfg.DiscoveryInstanceName = *instanceName
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	log, err := logging.New(logging.Options{FilePath: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpvoice-server: logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	params := settings.StreamParams{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		FrameSamples: cfg.FrameSamples,
		BlockSamples: cfg.BlockSamples,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.ReceivePort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrTransportBind, err)
	}
	defer conn.Close()
	log.Infof("listening for voice datagrams on %s", conn.LocalAddr())

	table := discovery.NewPeerTable()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	advertiser, err := discovery.Advertise(cfg.DiscoveryInstanceName, cfg.ReceivePort, map[string]string{"role": "server"})
	if err != nil {
		log.Warnf("discovery: advertise failed, continuing without announcement: %v", err)
	} else {
		defer advertiser.Close()
	}

	go func() {
		if err := discovery.Browse(ctx, table, cfg.SendPort); err != nil && ctx.Err() == nil {
			log.Warnf("discovery: browse stopped: %v", err)
		}
	}()

	orch, err := pipeline.NewReceiveOrchestrator(params, conn, log, cfg.ReleaseThreshold, cfg.ConcealmentWindow)
	if err != nil {
		return err
	}

	if err := orch.Start(ctx, float64(params.SampleRate)); err != nil {
		return err
	}
	defer func() {
		conn.Close()
		orch.Stop()
	}()

	log.Infof("receive pipeline running; press Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Infof("shutting down (delay buffer underruns: %d)", orch.Underruns())
	return nil
}
