// Package config provides TOML configuration loading for landrop.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration structure.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Server   ServerConfig   `toml:"server"`
	Download DownloadConfig `toml:"download"`
}

// NodeConfig holds settings for the discovery node.
type NodeConfig struct {
	DiscoveryPort  int    `toml:"discovery_port"`
	Interval       string `toml:"interval"`
	BroadcastAddr  string `toml:"broadcast_addr"`
	MulticastGroup string `toml:"multicast_group"`
	Interface      string `toml:"interface"`
	DeviceName     string `toml:"device_name"`
	MDNS           *bool  `toml:"mdns"`
	HistoryDB      string `toml:"history_db"`
	RPCSocket      string `toml:"rpc_socket"`
	LogLevel       string `toml:"log_level"`
}

// ServerConfig holds settings for the embedded HTTP file server.
type ServerConfig struct {
	Port      int    `toml:"port"`
	SharedDir string `toml:"shared_dir"`
}

// DownloadConfig holds settings for the one-shot file downloader.
type DownloadConfig struct {
	Timeout string `toml:"timeout"`
}

// ParseInterval parses the node beacon interval string to a time.Duration.
func (n *NodeConfig) ParseInterval() (time.Duration, error) {
	if n.Interval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(n.Interval)
}

// MDNSEnabled reports whether zeroconf announce/browse should run.
// Defaults to true when unset.
func (n *NodeConfig) MDNSEnabled() bool {
	if n.MDNS == nil {
		return true
	}
	return *n.MDNS
}

// ParseTimeout parses the download timeout string to a time.Duration.
func (d *DownloadConfig) ParseTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.Timeout)
}

// Load reads and parses a TOML config file, applying defaults for unset
// values. A missing file is not an error: landrop runs with defaults when
// no config exists, so a node needs zero setup on a fresh machine.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg, nil
}

func (cfg *Config) expandPaths() {
	cfg.Node.HistoryDB = ExpandPath(cfg.Node.HistoryDB)
	cfg.Node.RPCSocket = ExpandPath(cfg.Node.RPCSocket)
	cfg.Server.SharedDir = ExpandPath(cfg.Server.SharedDir)
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Node defaults
	if cfg.Node.DiscoveryPort == 0 {
		cfg.Node.DiscoveryPort = 9988
	}
	if cfg.Node.Interval == "" {
		cfg.Node.Interval = "1s"
	}
	if cfg.Node.BroadcastAddr == "" {
		cfg.Node.BroadcastAddr = "255.255.255.255"
	}
	if cfg.Node.MulticastGroup == "" {
		cfg.Node.MulticastGroup = "224.0.0.251"
	}
	if cfg.Node.HistoryDB == "" {
		cfg.Node.HistoryDB = "~/.local/share/landrop/peers.db"
	}
	if cfg.Node.RPCSocket == "" {
		cfg.Node.RPCSocket = "/tmp/landrop.sock"
	}
	if cfg.Node.LogLevel == "" {
		cfg.Node.LogLevel = "info"
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SharedDir == "" {
		cfg.Server.SharedDir = "./shared"
	}

	// Download defaults
	if cfg.Download.Timeout == "" {
		cfg.Download.Timeout = "30s"
	}
}
