package node

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"landrop/internal/beacon"
	"landrop/internal/download"
	"landrop/internal/fileserver"
	"landrop/internal/history"
	"landrop/internal/identity"
	"landrop/internal/listener"
	"landrop/internal/mdns"
	"landrop/internal/registry"
	"landrop/internal/rpc"
	"landrop/pkg/config"
	"landrop/pkg/logger"
)

// eventLogger is the outward event sink. The desktop overlay subscribes
// here in the full product; the daemon on its own just logs.
type eventLogger struct {
	log zerolog.Logger
}

func (e *eventLogger) PeerDiscovered(p registry.Peer) {
	e.log.Info().
		Str("event", "peer-discovered").
		Str("peer_id", p.ID).
		Str("name", p.Name).
		Str("ip", p.IP).
		Msg("Peer discovered")
}

func (e *eventLogger) GrabUpdate(p registry.Peer) {
	e.log.Info().
		Str("event", "grab-update").
		Str("peer_id", p.ID).
		Bool("holding", p.IsHolding).
		Str("held_file", p.HeldFile).
		Msg("Peer grab update")
}

// Run starts the landrop node: beacon broadcaster, discovery listener,
// file server, mDNS responder and the control socket. Each network
// component failing to start disables only that component; the rest of the
// node keeps running.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Node.LogLevel)

	dev := identity.New(cfg.Node.DeviceName)
	log.Info().
		Str("device_id", dev.ID).
		Str("device_name", dev.Name).
		Str("local_ip", dev.IP).
		Str("platform", dev.Platform).
		Msg("Device identity created")

	reg := registry.New(dev.ID)

	// Persistent peer ledger. Losing it degrades the node, not the protocol.
	var hist *history.Store
	histDir := filepath.Dir(cfg.Node.HistoryDB)
	if err := os.MkdirAll(histDir, 0700); err != nil {
		log.Error().Err(err).Str("dir", histDir).Msg("Failed to create history directory, continuing without history")
	} else {
		hist, err = history.Open(cfg.Node.HistoryDB, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open history store, continuing without history")
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	timeout, err := cfg.Download.ParseTimeout()
	if err != nil {
		return fmt.Errorf("parsing download timeout: %w", err)
	}
	dl := download.NewClient(timeout)

	events := make(chan listener.Event, 64)
	go listener.Dispatch(events, &eventLogger{log: log})

	interval, err := cfg.Node.ParseInterval()
	if err != nil {
		return fmt.Errorf("parsing interval: %w", err)
	}

	// Beacon broadcaster
	b, err := beacon.NewBroadcaster(dev, beacon.Config{
		Port:           cfg.Node.DiscoveryPort,
		Interval:       interval,
		BroadcastAddr:  cfg.Node.BroadcastAddr,
		MulticastGroup: cfg.Node.MulticastGroup,
		Interface:      cfg.Node.Interface,
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("Beacon broadcaster failed to start, this node will not announce itself")
	} else {
		go b.Run()
		defer b.Stop()
	}

	// Discovery listener
	lst, err := listener.Listen(cfg.Node.DiscoveryPort, dev.ID, reg, hist, events, log)
	if err != nil {
		log.Error().Err(err).Msg("Discovery listener failed to start, this node will not see beacons")
		log.Error().Msg("Another process may be using the discovery port, or a firewall is blocking it")
	} else {
		go lst.Run()
		defer lst.Stop()
	}

	// HTTP file server
	srv := fileserver.New(cfg.Server.SharedDir, cfg.Server.Port, log)
	if err := srv.Init(); err != nil {
		log.Error().Err(err).Msg("Failed to prepare shared directory")
	}
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("File server failed to start, peers cannot pull from this node")
	} else {
		defer srv.Stop()
	}

	// mDNS announce/browse
	if cfg.Node.MDNSEnabled() {
		resp, err := mdns.Start(dev, cfg.Server.Port, reg, events, log)
		if err != nil {
			log.Warn().Err(err).Msg("mDNS responder failed to start")
		} else {
			defer resp.Stop()
		}
	}

	// Control socket for the CLI
	if err := rpc.StartServer(cfg.Node.RPCSocket, dev, reg, hist, events, dl, log); err != nil {
		return fmt.Errorf("starting control socket: %w", err)
	}

	log.Info().Msg("landrop node running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	os.Remove(cfg.Node.RPCSocket)
	return nil
}
