package beacon

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"landrop/internal/identity"
)

// Config holds the broadcaster's network settings.
type Config struct {
	Port           int
	Interval       time.Duration
	BroadcastAddr  string
	MulticastGroup string
	Interface      string
}

// Broadcaster periodically announces the device's identity and grab state.
// Every tick sends the same packet to the broadcast address and to the
// multicast group: hotspots and guest networks often block one of the two,
// so the redundancy is intentional.
type Broadcaster struct {
	conn     *net.UDPConn
	targets  []*net.UDPAddr
	dev      *identity.Device
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	log      zerolog.Logger
}

// NewBroadcaster binds the send socket to an ephemeral local port with
// broadcast sending enabled and resolves both send targets. A failure here
// is fatal to the broadcaster only; the caller decides whether the rest of
// the process keeps running.
func NewBroadcaster(dev *identity.Device, cfg Config, log zerolog.Logger) (*Broadcaster, error) {
	bAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.BroadcastAddr, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("resolving broadcast address: %w", err)
	}
	mAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.MulticastGroup, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("resolving multicast address: %w", err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("binding beacon socket: %w", err)
	}
	conn := pc.(*net.UDPConn)

	// ipv4.PacketConn is used for multicast control
	mc := ipv4.NewPacketConn(conn)
	if cfg.Interface != "" {
		iface, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("finding interface %s: %w", cfg.Interface, err)
		}
		if err := mc.SetMulticastInterface(iface); err != nil {
			log.Warn().Err(err).Msg("Failed to set multicast interface")
		}
	}
	if err := mc.SetMulticastTTL(1); err != nil {
		log.Warn().Err(err).Msg("Failed to set multicast TTL")
	}

	return &Broadcaster{
		conn:     conn,
		targets:  []*net.UDPAddr{bAddr, mAddr},
		dev:      dev,
		interval: cfg.Interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      log,
	}, nil
}

// Run sends one beacon immediately, then one per tick until Stop is called.
// Per-packet send errors are dropped: UDP is lossy and the next tick
// retransmits the full current state anyway.
func (b *Broadcaster) Run() {
	defer close(b.done)
	defer b.conn.Close()

	b.log.Info().
		Str("broadcast", b.targets[0].String()).
		Str("multicast", b.targets[1].String()).
		Dur("interval", b.interval).
		Msg("Beacon started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.send()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.send()
		}
	}
}

// Stop terminates the loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	close(b.stop)
	<-b.done
}

func (b *Broadcaster) send() {
	packet := Snapshot(b.dev)
	data, err := packet.Encode()
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to encode beacon")
		return
	}

	for _, addr := range b.targets {
		if _, err := b.conn.WriteToUDP(data, addr); err != nil {
			b.log.Debug().Err(err).Str("target", addr.String()).Msg("Beacon send failed")
		}
	}
}

// enableBroadcast sets SO_BROADCAST on the socket before bind so sends to
// the limited-broadcast address are permitted.
func enableBroadcast(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
