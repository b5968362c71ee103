// Command udpvoice-client runs the send side of the endpoint. It takes a
// username, advertises itself over mDNS/DNS-SD, and drives an interactive
// prompt recognizing `send`, `stop`, and `exit` to control the capture/
// encode/send loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/cuervo-blanco/udp-voice/internal/capture"
	"github.com/cuervo-blanco/udp-voice/internal/codec"
	"github.com/cuervo-blanco/udp-voice/internal/config"
	"github.com/cuervo-blanco/udp-voice/internal/discovery"
	"github.com/cuervo-blanco/udp-voice/internal/logging"
	"github.com/cuervo-blanco/udp-voice/internal/pipeline"
	"github.com/cuervo-blanco/udp-voice/internal/sender"
	"github.com/cuervo-blanco/udp-voice/internal/settings"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configFile := pflag.StringP("config-file", "c", "", "YAML configuration file (optional)")
	sendPort := pflag.IntP("send-port", "s", 0, "Local UDP port to send voice datagrams from (0: ephemeral)")
	sine := pflag.Bool("sine", false, "Use a synthetic sine tone instead of the microphone")
	logFile := pflag.StringP("log-file", "l", "", "Rotated JSON log file path (empty: console only)")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpvoice-client: %v\n", err)
		os.Exit(1)
	}
	cfg = cfg.ApplyDefaults()
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	log, err := logging.New(logging.Options{FilePath: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpvoice-client: logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	username := promptUsername()
	clearTerminal()

	if err := run(cfg, log, username, *sendPort, *sine); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

// promptUsername reads one line of stdin and sanitizes it into an
// instance name safe for mDNS advertisement.
func promptUsername() string {
	fmt.Println()
	fmt.Println("Enter Username:")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	line = strings.ReplaceAll(line, " ", "_")
	if line == "" {
		line = discovery.ServiceType
	}
	return line
}

func clearTerminal() {
	fmt.Print("\x1b[2J\x1b[H")
}

func run(cfg config.Config, log *zap.SugaredLogger, username string, sendPort int, useSine bool) error {
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

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: sendPort})
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrTransportBind, err)
	}
	defer udpConn.Close()

	table := discovery.NewPeerTable()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	advertiser, err := discovery.Advertise(username, cfg.SendPort, map[string]string{"role": "client"})
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

	openSource := func() (capture.Source, error) {
		if useSine {
			return capture.NewSineSource(params, 440), nil
		}
		return capture.OpenMicSource(params)
	}

	// so is rebuilt on every `send` that follows a `stop`, since Stop
	// releases the capture device rather than merely pausing it.
	var so *pipeline.SendOrchestrator

	fmt.Println("Commands: send | stop | exit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "send", "audio.start()":
			if so == nil {
				source, err := openSource()
				if err != nil {
					log.Warnf("send: %v", err)
					continue
				}
				so = pipeline.NewSendOrchestrator(source, enc, snd, log)
			}
			so.Start(ctx)
		case "stop", "audio.stop()":
			if so == nil {
				continue
			}
			if err := so.Stop(); err != nil {
				log.Warnf("stop: %v", err)
			}
			so = nil
		case "exit":
			if so != nil {
				return so.Stop()
			}
			return nil
		default:
			fmt.Println("command not permitted")
		}
	}
	if so != nil {
		return so.Stop()
	}
	return nil
}
