// Package listener implements the UDP receiver that learns peers from
// beacon datagrams and classifies each observation.
package listener

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"landrop/internal/beacon"
	"landrop/internal/history"
	"landrop/internal/registry"
)

const (
	maxPacketSize = 4096
	readDeadline  = 2 * time.Second
)

// EventKind discriminates what a peer observation meant.
type EventKind int

const (
	// EventPeerDiscovered fires on the first beacon from an unknown ID.
	EventPeerDiscovered EventKind = iota
	// EventGrabUpdate fires when a known peer's grab state changed.
	EventGrabUpdate
)

// Event is one classified peer observation.
type Event struct {
	Kind EventKind
	Peer registry.Peer
}

// Listener receives beacon datagrams on the discovery port and keeps the
// registry current. Datagrams are processed serially: processing order is
// receive order. Events are pushed to a channel rather than delivered
// in-line so a slow subscriber can never stall the receive loop.
type Listener struct {
	conn   *net.UDPConn
	selfID string
	reg    *registry.Registry
	hist   *history.Store
	events chan<- Event
	stop   chan struct{}
	done   chan struct{}
	log    zerolog.Logger
}

// Listen binds the discovery socket. hist may be nil to skip the persistent
// ledger. Bind failure (port already taken, firewall policy) halts only
// this component.
func Listen(port int, selfID string, reg *registry.Registry, hist *history.Store, events chan<- Event, log zerolog.Logger) (*Listener, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("binding discovery port %d: %w", port, err)
	}

	if err := conn.SetReadBuffer(maxPacketSize * 10); err != nil {
		log.Warn().Err(err).Msg("Failed to set read buffer")
	}

	return &Listener{
		conn:   conn,
		selfID: selfID,
		reg:    reg,
		hist:   hist,
		events: events,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    log,
	}, nil
}

// LocalAddr returns the bound UDP address.
func (l *Listener) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Run receives datagrams until Stop is called. A short read deadline keeps
// the loop responsive to Stop without concurrent datagram handling.
func (l *Listener) Run() {
	defer close(l.done)
	defer l.conn.Close()

	l.log.Info().
		Str("addr", l.LocalAddr().String()).
		Msg("Discovery listener started")

	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			l.log.Error().Err(err).Msg("Error reading from UDP")
			continue
		}

		l.handlePacket(buf[:n], src)
	}
}

// Stop terminates the receive loop and waits for it to exit.
func (l *Listener) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Listener) handlePacket(data []byte, src *net.UDPAddr) {
	packet, err := beacon.Decode(data)
	if err != nil {
		// Malformed datagrams are dropped without surfacing an error:
		// anything may shout on a shared discovery port.
		l.log.Debug().Str("src", src.String()).Msg("Dropping undecodable datagram")
		return
	}
	if packet.ID == "" {
		l.log.Debug().Str("src", src.String()).Msg("Dropping beacon without ID")
		return
	}

	// Loopback from our own broadcast.
	if packet.ID == l.selfID {
		return
	}

	peer := registry.Peer{
		ID:        packet.ID,
		IP:        packet.IP,
		Name:      packet.Name,
		IsHolding: packet.IsHolding,
		HeldFile:  packet.HeldFile,
	}

	prev, existed := l.reg.Observe(peer)

	switch {
	case !existed:
		l.log.Info().
			Str("peer_id", peer.ID).
			Str("name", peer.Name).
			Str("ip", peer.IP).
			Msg("New peer discovered")
		l.emit(Event{Kind: EventPeerDiscovered, Peer: peer})
	case !prev.GrabEquals(peer):
		l.log.Info().
			Str("peer_id", peer.ID).
			Bool("holding", peer.IsHolding).
			Str("held_file", peer.HeldFile).
			Msg("Peer grab state changed")
		l.emit(Event{Kind: EventGrabUpdate, Peer: peer})
	}

	if l.hist != nil {
		if err := l.hist.Upsert(peer); err != nil {
			l.log.Error().Err(err).Str("peer_id", peer.ID).Msg("History write error")
		}
	}
}

// emit hands the event off without ever blocking the receive loop. When the
// queue is full the event is dropped; the registry already holds the
// current state, so a later beacon re-derives anything a subscriber missed.
func (l *Listener) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		l.log.Warn().Str("peer_id", ev.Peer.ID).Msg("Event queue full, dropping event")
	}
}
