// Package registry keeps the in-memory map of known remote peers.
package registry

import "sync"

// Peer is the most recently observed state of one remote device.
type Peer struct {
	ID        string `json:"id"`
	IP        string `json:"ip"`
	Name      string `json:"name"`
	IsHolding bool   `json:"isHolding"`
	HeldFile  string `json:"heldFile,omitempty"`
}

// GrabEquals reports whether the two peers agree on their grab state.
func (p Peer) GrabEquals(other Peer) bool {
	return p.IsHolding == other.IsHolding && p.HeldFile == other.HeldFile
}

// Registry is the concurrent peer map, keyed by peer ID. Records are
// inserted or replaced, never deleted: a peer that goes offline stays
// listed until the process exits. Entries for the local device's own ID
// are rejected so loopback beacons can never register the node with itself.
type Registry struct {
	selfID string
	mu     sync.RWMutex
	peers  map[string]Peer
}

// New creates an empty registry that filters out selfID.
func New(selfID string) *Registry {
	return &Registry{
		selfID: selfID,
		peers:  make(map[string]Peer),
	}
}

// Observe inserts or replaces the record for p.ID and returns the previous
// record, if one existed, so the caller can classify the observation.
// Observations of the local device are ignored and report existed=true to
// suppress any event.
func (r *Registry) Observe(p Peer) (prev Peer, existed bool) {
	if p.ID == r.selfID {
		return p, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed = r.peers[p.ID]
	r.peers[p.ID] = p
	return prev, existed
}

// Get returns the record for the given peer ID.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// All returns a copy of every known peer record.
func (r *Registry) All() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
