package mdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"landrop/internal/listener"
	"landrop/internal/registry"
)

func testResponder() (*Responder, *registry.Registry, chan listener.Event) {
	reg := registry.New("self-id")
	events := make(chan listener.Event, 8)
	r := &Responder{
		selfID: "self-id",
		reg:    reg,
		events: events,
		log:    zerolog.Nop(),
	}
	return r, reg, events
}

func testEntry(id, instance, ip string) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  serviceName,
			Domain:   serviceDomain,
		},
		Text: []string{"id=" + id},
	}
	if ip != "" {
		entry.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	return entry
}

func TestHandleEntry_NewPeer(t *testing.T) {
	r, reg, events := testResponder()

	r.handleEntry(testEntry("peer-1", "Phone", "10.0.0.5"))

	got, ok := reg.Get("peer-1")
	if !ok {
		t.Fatal("peer missing from registry")
	}
	if got.IP != "10.0.0.5" || got.Name != "Phone" {
		t.Errorf("peer mismatch: %+v", got)
	}

	select {
	case ev := <-events:
		if ev.Kind != listener.EventPeerDiscovered || ev.Peer.ID != "peer-1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("new mDNS peer must raise a discovery event")
	}
}

func TestHandleEntry_SkipsSelfAndIncomplete(t *testing.T) {
	r, reg, events := testResponder()

	r.handleEntry(testEntry("self-id", "Me", "10.0.0.1"))
	r.handleEntry(testEntry("", "NoID", "10.0.0.2"))
	r.handleEntry(testEntry("peer-2", "NoAddr", ""))
	r.handleEntry(nil)

	if reg.Len() != 0 {
		t.Errorf("registry must stay empty, got %d peers", reg.Len())
	}
	select {
	case ev := <-events:
		t.Errorf("no event expected, got %+v", ev)
	default:
	}
}

func TestHandleEntry_KnownPeerNotClobbered(t *testing.T) {
	r, reg, events := testResponder()

	// Peer already learned from a beacon, grab state included.
	reg.Observe(registry.Peer{ID: "peer-1", IP: "10.0.0.5", Name: "Phone", IsHolding: true, HeldFile: "x.txt"})

	r.handleEntry(testEntry("peer-1", "Phone", "10.0.0.5"))

	got, _ := reg.Get("peer-1")
	if !got.IsHolding || got.HeldFile != "x.txt" {
		t.Errorf("mDNS entry must not clobber beacon-learned grab state: %+v", got)
	}
	select {
	case ev := <-events:
		t.Errorf("known peer must not raise an event, got %+v", ev)
	default:
	}
}

// A failed browse never closes the entries channel; the drain loop must
// still exit with the scan context instead of leaking a goroutine.
func TestDrainEntries_StopsOnContextCancel(t *testing.T) {
	r, _, _ := testResponder()

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry) // never closed, never written

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.drainEntries(ctx, entries)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drainEntries did not terminate on context cancel")
	}
}

func TestDrainEntries_StopsOnClosedChannel(t *testing.T) {
	r, reg, _ := testResponder()

	entries := make(chan *zeroconf.ServiceEntry, 2)
	entries <- testEntry("peer-1", "Phone", "10.0.0.5")
	close(entries)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.drainEntries(context.Background(), entries)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drainEntries did not terminate on closed channel")
	}

	if _, ok := reg.Get("peer-1"); !ok {
		t.Error("entry sent before close must still be processed")
	}
}

func TestTxtValue(t *testing.T) {
	txt := []string{"version=1", "id=abc-123"}

	if got := txtValue(txt, "id"); got != "abc-123" {
		t.Errorf("id: got %q, want abc-123", got)
	}
	if got := txtValue(txt, "missing"); got != "" {
		t.Errorf("missing key: got %q, want empty", got)
	}
	if got := txtValue(nil, "id"); got != "" {
		t.Errorf("nil txt: got %q, want empty", got)
	}
}
