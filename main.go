// landrop — serverless LAN peer discovery & file drop
//
// Usage:
//
//	landrop node    — run the discovery node and file server
//	landrop peers   — list discovered peers
//	landrop grab    — hold a file for outbound transfer
//	landrop fetch   — pull a file from a peer
package main

import (
	"fmt"
	"os"

	"landrop/cmd/ctl"
	"landrop/cmd/node"
)

const (
	defaultSystemPath = "/etc/landrop/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "1.0.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""

	// Parse --config flag if present
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
			continue
		}
		if len(arg) > 9 && arg[:9] == "--config=" {
			configPath = arg[9:]
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
	}

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch subcommand {
	case "node":
		err = node.Run(configPath)
	case "status":
		err = ctl.Status(configPath)
	case "peers":
		history := len(args) > 1 && args[1] == "--history"
		err = ctl.Peers(configPath, history)
	case "grab":
		if len(args) < 2 {
			err = fmt.Errorf("usage: landrop grab <filename>")
		} else {
			err = ctl.Grab(configPath, args[1])
		}
	case "release":
		err = ctl.Release(configPath)
	case "connect":
		if len(args) < 2 {
			err = fmt.Errorf("usage: landrop connect <ip>")
		} else {
			err = ctl.Connect(configPath, args[1])
		}
	case "fetch":
		if len(args) < 3 {
			err = fmt.Errorf("usage: landrop fetch <url> <dest>")
		} else {
			err = ctl.Fetch(configPath, args[1], args[2])
		}
	case "edit":
		err = node.EditConfig(configPath)
	case "version":
		fmt.Printf("landrop v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`landrop v%s — serverless LAN peer discovery & file drop

Usage:
  landrop <command> [--config <path>]

Commands:
  node     Run the discovery node: beacons, listener, file server
  status   Show the local device identity and grab state
  peers    List discovered peers (--history for the persistent ledger)
  grab     Hold a file for outbound transfer: landrop grab <filename>
  release  Stop holding the current file
  connect  Add a peer manually by IP: landrop connect <ip>
  fetch    Download a file from a peer: landrop fetch <url> <dest>
  edit     Edit the configuration file in your system editor
  version  Print version information
  help     Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)

Examples:
  landrop node                                      # Start the node with defaults
  landrop grab photo.jpg                            # Announce you are holding photo.jpg
  landrop fetch http://10.0.0.5:8080/file/photo.jpg ./photo.jpg

`, version, defaultSystemPath)
}
