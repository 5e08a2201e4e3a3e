package listener

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"landrop/internal/beacon"
	"landrop/internal/registry"
)

func testListener(t *testing.T) (*registry.Registry, chan Event, *net.UDPConn) {
	t.Helper()

	reg := registry.New("self")
	events := make(chan Event, 16)

	l, err := Listen(0, "self", reg, nil, events, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to bind listener: %v", err)
	}
	go l.Run()
	t.Cleanup(l.Stop)

	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: l.LocalAddr().Port}
	sender, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	t.Cleanup(func() { sender.Close() })

	return reg, events, sender
}

func send(t *testing.T, sender *net.UDPConn, p beacon.Packet) {
	t.Helper()
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := sender.Write(data); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestListener_NewPeerThenGrabUpdate(t *testing.T) {
	reg, events, sender := testListener(t)

	send(t, sender, beacon.Packet{
		ID: "A", IP: "10.0.0.5", Name: "Phone",
		IsHolding: true, HeldFile: "photo.jpg",
	})

	ev := waitEvent(t, events)
	if ev.Kind != EventPeerDiscovered {
		t.Fatalf("first event: got kind %v, want EventPeerDiscovered", ev.Kind)
	}
	if ev.Peer.ID != "A" || ev.Peer.IP != "10.0.0.5" || ev.Peer.Name != "Phone" {
		t.Errorf("event payload mismatch: %+v", ev.Peer)
	}
	if !ev.Peer.IsHolding || ev.Peer.HeldFile != "photo.jpg" {
		t.Errorf("event grab state mismatch: %+v", ev.Peer)
	}

	if got, ok := reg.Get("A"); !ok || !got.IsHolding {
		t.Errorf("registry must hold the new peer, got %+v ok=%v", got, ok)
	}

	// Grab released: exactly one grab-update.
	send(t, sender, beacon.Packet{ID: "A", IP: "10.0.0.5", Name: "Phone"})

	ev = waitEvent(t, events)
	if ev.Kind != EventGrabUpdate {
		t.Fatalf("second event: got kind %v, want EventGrabUpdate", ev.Kind)
	}
	if ev.Peer.IsHolding || ev.Peer.HeldFile != "" {
		t.Errorf("grab-update payload mismatch: %+v", ev.Peer)
	}

	// A third identical packet refreshes the registry but emits nothing.
	// Prove it with a sentinel peer: the next event must be B's discovery.
	send(t, sender, beacon.Packet{ID: "A", IP: "10.0.0.5", Name: "Phone"})
	send(t, sender, beacon.Packet{ID: "B", IP: "10.0.0.6", Name: "Laptop"})

	ev = waitEvent(t, events)
	if ev.Kind != EventPeerDiscovered || ev.Peer.ID != "B" {
		t.Errorf("identical resend must emit no event, next event got %+v", ev)
	}
}

func TestListener_SelfBeaconsIgnored(t *testing.T) {
	reg, events, sender := testListener(t)

	send(t, sender, beacon.Packet{ID: "self", IP: "10.0.0.1", Name: "Me"})
	send(t, sender, beacon.Packet{ID: "other", IP: "10.0.0.2", Name: "Them"})

	ev := waitEvent(t, events)
	if ev.Peer.ID != "other" {
		t.Errorf("own beacon must not produce an event, got %+v", ev)
	}
	if _, ok := reg.Get("self"); ok {
		t.Error("registry must never contain the local device's own ID")
	}
}

func TestListener_MalformedDatagramsDropped(t *testing.T) {
	reg, events, sender := testListener(t)

	if _, err := sender.Write([]byte("definitely not json")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := sender.Write([]byte(`{"ip":"10.0.0.9"}`)); err != nil { // schema failure: no id
		t.Fatalf("send failed: %v", err)
	}
	send(t, sender, beacon.Packet{ID: "C", IP: "10.0.0.7", Name: "Tablet"})

	ev := waitEvent(t, events)
	if ev.Kind != EventPeerDiscovered || ev.Peer.ID != "C" {
		t.Errorf("malformed datagrams must be dropped silently, got %+v", ev)
	}
	if reg.Len() != 1 {
		t.Errorf("registry length: got %d, want 1", reg.Len())
	}
}

func TestListener_RefreshesRegistryWithoutEvent(t *testing.T) {
	reg, events, sender := testListener(t)

	send(t, sender, beacon.Packet{ID: "A", IP: "10.0.0.5", Name: "Phone"})
	waitEvent(t, events)

	// Same grab state, new IP: the record refreshes, no event fires.
	send(t, sender, beacon.Packet{ID: "A", IP: "10.0.0.99", Name: "Phone"})
	send(t, sender, beacon.Packet{ID: "Z", IP: "10.0.0.8", Name: "Sentinel"})

	ev := waitEvent(t, events)
	if ev.Peer.ID != "Z" {
		t.Fatalf("non-grab change must not emit an event, got %+v", ev)
	}

	got, _ := reg.Get("A")
	if got.IP != "10.0.0.99" {
		t.Errorf("registry must still refresh, IP got %s, want 10.0.0.99", got.IP)
	}
}
