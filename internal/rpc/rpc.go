// Package rpc provides Unix socket IPC between the landrop node and the
// control CLI. This is the inward command surface: grab/release, manual
// peer add, downloads and status queries all arrive here.
package rpc

import (
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"

	"github.com/rs/zerolog"

	"landrop/internal/download"
	"landrop/internal/history"
	"landrop/internal/identity"
	"landrop/internal/listener"
	"landrop/internal/registry"
)

// Service is the RPC service exposed by the node.
type Service struct {
	dev    *identity.Device
	reg    *registry.Registry
	hist   *history.Store
	events chan<- listener.Event
	dl     *download.Client
	log    zerolog.Logger
}

// StatusArgs is the request for Status.
type StatusArgs struct{}

// StatusReply describes the local device.
type StatusReply struct {
	ID        string
	Name      string
	IP        string
	Platform  string
	IsHolding bool
	HeldFile  string
	PeerCount int
}

// ListPeersArgs is the request for ListPeers.
type ListPeersArgs struct{}

// ListPeersReply is the response for ListPeers.
type ListPeersReply struct {
	Peers []registry.Peer
}

// HistoryArgs is the request for History.
type HistoryArgs struct{}

// HistoryReply is the response for History.
type HistoryReply struct {
	Records []history.Record
}

// SetGrabArgs is the request for SetGrab.
type SetGrabArgs struct {
	Filename string
}

// ClearGrabArgs is the request for ClearGrab.
type ClearGrabArgs struct{}

// AddPeerArgs is the request for AddPeer.
type AddPeerArgs struct {
	IP string
}

// AddPeerReply is the response for AddPeer.
type AddPeerReply struct {
	Peer registry.Peer
}

// DownloadArgs is the request for Download.
type DownloadArgs struct {
	URL      string
	DestPath string
}

// Empty is a placeholder reply for side-effect-only calls.
type Empty struct{}

// Status returns the local device identity and grab state.
func (s *Service) Status(args *StatusArgs, reply *StatusReply) error {
	holding, heldFile := s.dev.Holding()
	reply.ID = s.dev.ID
	reply.Name = s.dev.Name
	reply.IP = s.dev.IP
	reply.Platform = s.dev.Platform
	reply.IsHolding = holding
	reply.HeldFile = heldFile
	reply.PeerCount = s.reg.Len()
	return nil
}

// ListPeers returns the live peer registry.
func (s *Service) ListPeers(args *ListPeersArgs, reply *ListPeersReply) error {
	reply.Peers = s.reg.All()
	return nil
}

// History returns every peer this node has ever recorded.
func (s *Service) History(args *HistoryArgs, reply *HistoryReply) error {
	if s.hist == nil {
		return fmt.Errorf("history store is disabled")
	}
	records, err := s.hist.All()
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	reply.Records = records
	return nil
}

// SetGrab marks the local device as holding the named file. The next beacon
// tick announces it.
func (s *Service) SetGrab(args *SetGrabArgs, reply *Empty) error {
	if args.Filename == "" {
		return fmt.Errorf("filename must not be empty")
	}
	s.dev.SetGrab(args.Filename)
	s.log.Info().Str("file", args.Filename).Msg("Grab set")
	return nil
}

// ClearGrab releases the held file.
func (s *Service) ClearGrab(args *ClearGrabArgs, reply *Empty) error {
	s.dev.ClearGrab()
	s.log.Info().Msg("Grab released")
	return nil
}

// AddPeer synthesizes a peer record for networks where neither broadcast
// nor multicast gets through. The record goes through the same observation
// path as a received beacon, so subscribers get the usual new-peer event.
func (s *Service) AddPeer(args *AddPeerArgs, reply *AddPeerReply) error {
	if net.ParseIP(args.IP) == nil {
		return fmt.Errorf("invalid peer IP: %q", args.IP)
	}

	peer := registry.Peer{
		ID:   "manual-" + args.IP,
		IP:   args.IP,
		Name: args.IP,
	}

	_, existed := s.reg.Observe(peer)
	if !existed {
		s.log.Info().Str("ip", args.IP).Msg("Peer added manually")
		select {
		case s.events <- listener.Event{Kind: listener.EventPeerDiscovered, Peer: peer}:
		default:
			s.log.Warn().Str("ip", args.IP).Msg("Event queue full, dropping event")
		}
	}

	reply.Peer = peer
	return nil
}

// Download fetches a remote file to local disk, blocking until done.
func (s *Service) Download(args *DownloadArgs, reply *Empty) error {
	if err := s.dl.Fetch(args.URL, args.DestPath); err != nil {
		return fmt.Errorf("downloading %s: %w", args.URL, err)
	}
	s.log.Info().Str("url", args.URL).Str("dest", args.DestPath).Msg("Download complete")
	return nil
}

// StartServer starts the Unix socket RPC server.
func StartServer(socketPath string, dev *identity.Device, reg *registry.Registry, hist *history.Store, events chan<- listener.Event, dl *download.Client, log zerolog.Logger) error {
	service := &Service{
		dev:    dev,
		reg:    reg,
		hist:   hist,
		events: events,
		dl:     dl,
		log:    log,
	}

	server := netrpc.NewServer()
	if err := server.Register(service); err != nil {
		return fmt.Errorf("registering RPC service: %w", err)
	}

	// Remove existing socket file if present
	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	if err := os.Chmod(socketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	log.Info().Str("socket", socketPath).Msg("Control socket started")

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Error().Err(err).Msg("RPC accept error")
				continue
			}
			go server.ServeConn(conn)
		}
	}()

	return nil
}

// Client is a client for the landrop RPC service.
type Client struct {
	client *netrpc.Client
}

// NewClient dials the Unix socket and returns an RPC client.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to control socket %s: %w", socketPath, err)
	}
	return &Client{client: netrpc.NewClient(conn)}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Status fetches the local device status from the node.
func (c *Client) Status() (*StatusReply, error) {
	reply := &StatusReply{}
	if err := c.client.Call("Service.Status", &StatusArgs{}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// ListPeers fetches the live peer registry from the node.
func (c *Client) ListPeers() ([]registry.Peer, error) {
	reply := &ListPeersReply{}
	if err := c.client.Call("Service.ListPeers", &ListPeersArgs{}, reply); err != nil {
		return nil, err
	}
	return reply.Peers, nil
}

// History fetches the persistent peer ledger from the node.
func (c *Client) History() ([]history.Record, error) {
	reply := &HistoryReply{}
	if err := c.client.Call("Service.History", &HistoryArgs{}, reply); err != nil {
		return nil, err
	}
	return reply.Records, nil
}

// SetGrab tells the node to start holding the named file.
func (c *Client) SetGrab(filename string) error {
	return c.client.Call("Service.SetGrab", &SetGrabArgs{Filename: filename}, &Empty{})
}

// ClearGrab tells the node to release the held file.
func (c *Client) ClearGrab() error {
	return c.client.Call("Service.ClearGrab", &ClearGrabArgs{}, &Empty{})
}

// AddPeer registers a peer by IP without discovery.
func (c *Client) AddPeer(ip string) (registry.Peer, error) {
	reply := &AddPeerReply{}
	if err := c.client.Call("Service.AddPeer", &AddPeerArgs{IP: ip}, reply); err != nil {
		return registry.Peer{}, err
	}
	return reply.Peer, nil
}

// Download asks the node to fetch a remote file to local disk.
func (c *Client) Download(url, destPath string) error {
	return c.client.Call("Service.Download", &DownloadArgs{URL: url, DestPath: destPath}, &Empty{})
}
