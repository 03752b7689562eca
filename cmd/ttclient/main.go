// Command ttclient is the runnable downloader: given one or more server
// addresses it connects to each, follows the map download and vote-sweep
// flow of the session FSM, and exits once every peer has disconnected.
//
// Grounded on original_source/downloader/src/main.rs's fn main()/Main::init
// (parse addresses, create maps/downloading directories, build one peer per
// address, run to completion) and the teacher's core/main.go (Banner,
// flat config load, signal-driven graceful shutdown).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"ttnetgo/eventloop"
	"ttnetgo/pkg/config"
	"ttnetgo/pkg/logger"
	"ttnetgo/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	version = "0.1.0"

	// protocolVersion is the string sent in the handshake Info message
	// and used by protocol/dialect.Select to pick a message catalog.
	// original_source imports this from a shared gamenet crate; this
	// port has no equivalent shared package, so it's a local constant.
	protocolVersion = "0.6 +ddnet"

	defaultPort = 8303

	mapsDir       = "maps"
	downloadingDir = "downloading"
)

func main() {
	logger.Banner("ttnetgo downloader", version)

	if len(os.Args) < 2 {
		logger.Fatal("usage: %s addr[:port] ...", os.Args[0])
	}

	targets, err := parseAddrs(os.Args[1:])
	if err != nil {
		logger.Fatal("invalid address: %v", err)
	}

	for _, dir := range []string{mapsDir, downloadingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("creating %s: %v", dir, err)
		}
	}

	cfg := config.Load()
	logger.Success("configuration loaded")
	logger.Info("connecting to %d target(s)", len(targets))

	mc := metrics.New(prometheus.Labels{"version": version})

	loop, err := eventloop.New("", targets, cfg, []byte(protocolVersion), mapsDir, downloadingDir, mc)
	if err != nil {
		logger.Fatal("starting event loop: %v", err)
	}
	defer loop.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		errChan <- loop.Run(time.Time{})
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("event loop error: %v", err)
		}
		logger.Success("all peers finished")
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
		logger.Info("shutting down")
		os.Exit(0)
	}
}

// parseAddrs resolves each addr[:port] argument, defaulting the port to
// defaultPort when omitted, per spec.md's CLI surface.
func parseAddrs(args []string) ([]*net.UDPAddr, error) {
	addrs := make([]*net.UDPAddr, 0, len(args))
	for _, arg := range args {
		host, port := arg, defaultPort
		if idx := strings.LastIndex(arg, ":"); idx != -1 && !strings.Contains(arg[idx+1:], "]") {
			h, p, err := net.SplitHostPort(arg)
			if err == nil {
				n, err := strconv.Atoi(p)
				if err != nil {
					return nil, fmt.Errorf("%s: bad port %q", arg, p)
				}
				host, port = h, n
			}
		}
		host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		addrs = append(addrs, udpAddr)
	}
	return addrs, nil
}
