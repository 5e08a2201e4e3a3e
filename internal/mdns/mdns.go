// Package mdns announces the file server over zeroconf and browses for
// other nodes doing the same. It is a secondary discovery path for networks
// that filter UDP broadcast and generic multicast but still pass mDNS.
package mdns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"landrop/internal/identity"
	"landrop/internal/listener"
	"landrop/internal/registry"
)

const (
	serviceName   = "_landrop._tcp"
	serviceDomain = "local."
	scanInterval  = 15 * time.Second
	scanTimeout   = 3 * time.Second
)

// Responder is the combined mDNS announcer and browser.
type Responder struct {
	server *zeroconf.Server
	selfID string
	reg    *registry.Registry
	events chan<- listener.Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger
}

// Start registers the local service and begins the periodic browse loop.
func Start(dev *identity.Device, servicePort int, reg *registry.Registry, events chan<- listener.Event, log zerolog.Logger) (*Responder, error) {
	txt := []string{"id=" + dev.ID}

	server, err := zeroconf.Register(dev.Name, serviceName, serviceDomain, servicePort, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("registering mDNS service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Responder{
		server: server,
		selfID: dev.ID,
		reg:    reg,
		events: events,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}

	log.Info().Str("service", serviceName).Int("port", servicePort).Msg("mDNS announcer started")

	go r.loop()
	return r, nil
}

// Stop shuts down the announcer and the browse loop.
func (r *Responder) Stop() {
	r.cancel()
	<-r.done
	r.server.Shutdown()
}

func (r *Responder) loop() {
	defer close(r.done)

	r.scan()

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.scan()
		}
	}
}

func (r *Responder) scan() {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to create mDNS resolver")
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, scanTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.drainEntries(ctx, entries)
	}()

	if err := resolver.Browse(ctx, serviceName, serviceDomain, entries); err != nil {
		r.log.Warn().Err(err).Msg("mDNS browse failed")
		cancel()
		<-done
		return
	}
	<-ctx.Done()
	<-done
}

// drainEntries consumes service entries until the scan context ends. It
// must terminate even when the entries channel is never closed, which is
// what happens when Browse fails before producing anything.
func (r *Responder) drainEntries(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			r.handleEntry(entry)
		}
	}
}

func (r *Responder) handleEntry(entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}

	id := txtValue(entry.Text, "id")
	if id == "" || id == r.selfID {
		return
	}

	// Beacons carry the authoritative grab state; mDNS entries do not.
	// Only first sightings go through here, so a known peer's record is
	// never clobbered with an empty grab state.
	if _, known := r.reg.Get(id); known {
		return
	}
	if len(entry.AddrIPv4) == 0 {
		return
	}

	peer := registry.Peer{
		ID:   id,
		IP:   entry.AddrIPv4[0].String(),
		Name: entry.Instance,
	}

	if _, existed := r.reg.Observe(peer); existed {
		return
	}

	r.log.Info().
		Str("peer_id", peer.ID).
		Str("name", peer.Name).
		Str("ip", peer.IP).
		Msg("Peer discovered via mDNS")

	select {
	case r.events <- listener.Event{Kind: listener.EventPeerDiscovered, Peer: peer}:
	default:
		r.log.Warn().Str("peer_id", peer.ID).Msg("Event queue full, dropping event")
	}
}

func txtValue(txt []string, key string) string {
	prefix := key + "="
	for _, t := range txt {
		if strings.HasPrefix(t, prefix) {
			return strings.TrimPrefix(t, prefix)
		}
	}
	return ""
}
