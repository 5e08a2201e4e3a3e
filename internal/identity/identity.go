// Package identity holds the per-process device identity and grab state.
package identity

import (
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Device is the process-wide identity plus the mutable grab state.
// ID, Name, IP and Platform are fixed at construction; the grab state is
// guarded by a readers-writer lock and mutated only through SetGrab and
// ClearGrab so the holding/heldFile pair always changes together.
type Device struct {
	ID       string
	Name     string
	IP       string
	Platform string

	mu       sync.RWMutex
	holding  bool
	heldFile string
}

// New builds the device identity. The ID is a fresh UUID, unique per
// process lifetime. nameOverride, when non-empty, wins over the detected
// hostname.
func New(nameOverride string) *Device {
	return &Device{
		ID:       uuid.New().String(),
		Name:     deviceName(nameOverride),
		IP:       LocalIP(),
		Platform: platformString(),
	}
}

// SetGrab marks this device as holding the named file for outbound transfer.
func (d *Device) SetGrab(filename string) {
	d.mu.Lock()
	d.holding = true
	d.heldFile = filename
	d.mu.Unlock()
}

// ClearGrab releases the held file.
func (d *Device) ClearGrab() {
	d.mu.Lock()
	d.holding = false
	d.heldFile = ""
	d.mu.Unlock()
}

// Holding returns the current grab state as one consistent snapshot.
func (d *Device) Holding() (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.holding, d.heldFile
}

func deviceName(override string) string {
	if override != "" {
		return override
	}
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "Unknown"
}

func platformString() string {
	info, err := host.Info()
	if err != nil {
		return ""
	}
	p := info.Platform
	if info.PlatformVersion != "" {
		p += " " + info.PlatformVersion
	}
	return p
}

// LocalIP returns the IPv4 address of the first up, non-loopback interface,
// falling back to 127.0.0.1 when nothing better exists.
func LocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}

	return "127.0.0.1"
}
