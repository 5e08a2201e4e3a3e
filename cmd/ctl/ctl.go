// Package ctl implements the landrop control CLI. Every subcommand talks
// to the running node over its Unix control socket.
package ctl

import (
	"fmt"
	"sort"
	"strings"

	"landrop/internal/registry"
	"landrop/internal/rpc"
	"landrop/pkg/config"
)

func dial(configPath string) (*rpc.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	client, err := rpc.NewClient(cfg.Node.RPCSocket)
	if err != nil {
		return nil, fmt.Errorf("connecting to node: %w\nIs 'landrop node' running?", err)
	}
	return client, nil
}

// Status prints the local device identity and grab state.
func Status(configPath string) error {
	client, err := dial(configPath)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	fmt.Printf("Device:   %s (%s)\n", st.Name, st.ID)
	fmt.Printf("IP:       %s\n", st.IP)
	if st.Platform != "" {
		fmt.Printf("Platform: %s\n", st.Platform)
	}
	if st.IsHolding {
		fmt.Printf("Holding:  %s\n", st.HeldFile)
	} else {
		fmt.Printf("Holding:  (nothing)\n")
	}
	fmt.Printf("Peers:    %d\n", st.PeerCount)
	return nil
}

// Peers prints the live peer registry, or the persistent ledger when
// history is true.
func Peers(configPath string, history bool) error {
	client, err := dial(configPath)
	if err != nil {
		return err
	}
	defer client.Close()

	if history {
		return printHistory(client)
	}

	peers, err := client.ListPeers()
	if err != nil {
		return fmt.Errorf("fetching peers: %w", err)
	}

	if len(peers) == 0 {
		fmt.Println("No peers discovered yet.")
		return nil
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Name < peers[j].Name })

	fmt.Printf("\n  Peers (%d found)\n\n", len(peers))
	displayPeerTable(peers)
	return nil
}

func printHistory(client *rpc.Client) error {
	records, err := client.History()
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No peers recorded yet.")
		return nil
	}

	sort.Slice(records, func(i, j int) bool { return records[i].LastSeen.After(records[j].LastSeen) })

	fmt.Printf("  %-20s %-16s %-20s %-20s %-8s\n",
		"Name", "IP Address", "First Seen", "Last Seen", "Beacons")
	fmt.Printf("  %s %s %s %s %s\n",
		strings.Repeat("─", 20),
		strings.Repeat("─", 16),
		strings.Repeat("─", 20),
		strings.Repeat("─", 20),
		strings.Repeat("─", 8))

	for _, r := range records {
		fmt.Printf("  %-20s %-16s %-20s %-20s %-8d\n",
			truncate(r.Peer.Name, 20),
			r.Peer.IP,
			r.FirstSeen.Format("2006-01-02 15:04:05"),
			r.LastSeen.Format("2006-01-02 15:04:05"),
			r.Beacons)
	}
	return nil
}

// Grab tells the node to start holding the named file.
func Grab(configPath, filename string) error {
	client, err := dial(configPath)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetGrab(filename); err != nil {
		return fmt.Errorf("setting grab: %w", err)
	}
	fmt.Printf("Now holding: %s\n", filename)
	return nil
}

// Release tells the node to drop the held file.
func Release(configPath string) error {
	client, err := dial(configPath)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.ClearGrab(); err != nil {
		return fmt.Errorf("clearing grab: %w", err)
	}
	fmt.Println("Released.")
	return nil
}

// Connect registers a peer by IP without discovery, for networks where
// broadcast and multicast are both blocked.
func Connect(configPath, ip string) error {
	client, err := dial(configPath)
	if err != nil {
		return err
	}
	defer client.Close()

	peer, err := client.AddPeer(ip)
	if err != nil {
		return fmt.Errorf("adding peer: %w", err)
	}
	fmt.Printf("Peer added: %s (%s)\n", peer.Name, peer.IP)
	return nil
}

// Fetch asks the node to download a remote file to local disk.
func Fetch(configPath, url, destPath string) error {
	client, err := dial(configPath)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Downloading %s...\n", url)
	if err := client.Download(url, destPath); err != nil {
		return err
	}
	fmt.Printf("Saved to %s\n", destPath)
	return nil
}

func displayPeerTable(peers []registry.Peer) {
	fmt.Printf("  %-20s %-16s %-10s %-30s\n",
		"Name", "IP Address", "Holding", "File")
	fmt.Printf("  %s %s %s %s\n",
		strings.Repeat("─", 20),
		strings.Repeat("─", 16),
		strings.Repeat("─", 10),
		strings.Repeat("─", 30))

	for _, p := range peers {
		holding := "no"
		if p.IsHolding {
			holding = "yes"
		}
		fmt.Printf("  %-20s %-16s %-10s %-30s\n",
			truncate(p.Name, 20),
			p.IP,
			holding,
			truncate(p.HeldFile, 30))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
