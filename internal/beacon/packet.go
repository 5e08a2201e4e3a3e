// Package beacon defines the discovery wire packet and the broadcast loop.
package beacon

import (
	"encoding/json"

	"landrop/internal/identity"
)

// Packet is the payload each node announces over UDP. The JSON field names
// are the wire contract shared with every other client on the network, so
// they must not change.
type Packet struct {
	ID        string `json:"id"`
	IP        string `json:"ip"`
	Name      string `json:"name"`
	IsHolding bool   `json:"isHolding"`
	HeldFile  string `json:"heldFile,omitempty"`
}

// Snapshot builds a Packet from the device's current identity and grab
// state. The grab pair is read under the device lock, so the packet is
// internally consistent even while commands mutate the state.
func Snapshot(d *identity.Device) Packet {
	holding, heldFile := d.Holding()
	return Packet{
		ID:        d.ID,
		IP:        d.IP,
		Name:      d.Name,
		IsHolding: holding,
		HeldFile:  heldFile,
	}
}

// Encode serializes the packet to its wire form.
func (p Packet) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a received datagram into a Packet. Missing optional fields
// keep their zero values (isHolding false, heldFile empty).
func Decode(data []byte) (Packet, error) {
	var p Packet
	err := json.Unmarshal(data, &p)
	return p, err
}
