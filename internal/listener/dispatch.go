package listener

import "landrop/internal/registry"

// Sink receives classified peer events. Implementations belong to the
// embedding layer (UI, logging, automation); they run on the dispatcher
// goroutine, decoupled from datagram reception.
type Sink interface {
	PeerDiscovered(registry.Peer)
	GrabUpdate(registry.Peer)
}

// Dispatch consumes events until the channel is closed, forwarding each to
// the sink. Run it on its own goroutine.
func Dispatch(events <-chan Event, sink Sink) {
	for ev := range events {
		switch ev.Kind {
		case EventPeerDiscovered:
			sink.PeerDiscovered(ev.Peer)
		case EventGrabUpdate:
			sink.GrabUpdate(ev.Peer)
		}
	}
}
