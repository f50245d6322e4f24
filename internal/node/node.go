// Package node wires the overlay peer table, transaction table, transform
// registry, object store, and dispatcher into one running server: it owns
// the listener accept loop and the per-connection reader goroutines that
// feed accepted frames to internal/dispatch.
//
// Grounded on cmd/minimega's degree-maintenance connection-accept loop
// (src/meshage/node.go's Node.connectionListener / handleConnection):
// accept, hand the new connection a reader goroutine, let the dispatcher
// decide what happens to each frame.
package node

import (
	"fmt"
	"net"
	"time"

	log "github.com/ntess/dnetgo/pkg/minilog"
	"github.com/ntess/dnetgo/pkg/wire"

	"github.com/ntess/dnetgo/internal/client"
	"github.com/ntess/dnetgo/internal/diag"
	"github.com/ntess/dnetgo/internal/discover"
	"github.com/ntess/dnetgo/internal/dispatch"
	"github.com/ntess/dnetgo/internal/join"
	"github.com/ntess/dnetgo/internal/overlay"
	"github.com/ntess/dnetgo/internal/store"
	"github.com/ntess/dnetgo/pkg/transform"
)

// Config bundles everything needed to bring up a Node.
type Config struct {
	OID           []byte
	ListenAddr    string // host:port this node advertises and binds
	ObjectRoot    string
	JoinTimeout   time.Duration
	LowWaterBytes uint64 // 0 disables the store's disk guard
	SeedAddrs     []string
	LANGroup      string // "" disables LAN discovery
	DNSDomain     string // "" disables DNS seed discovery
	DNSResolver   string
}

// Node is a running overlay member: listener, peer table, object store, and
// the dispatcher that answers every inbound frame.
type Node struct {
	cfg Config

	OID        []byte
	SelfAddr   wire.AddrAttr
	Peers      *overlay.Table
	Trans      *overlay.Transactions
	Transforms *transform.Registry
	Objects    *store.Store
	Client     *client.Client

	// Logs is a ring-buffered logger registered alongside whatever
	// cmd/dnetd configured via config.LogSetup, so this node's own recent
	// log lines are available without a remote diagnostics RPC (there is
	// none, see Diagnostics) -- a SIGHUP dumps it, see cmd/dnetd.
	Logs *log.Ring

	handler  *dispatch.Handler
	listener net.Listener
	lan      *discover.LAN
}

// New constructs a Node from cfg, opening its object store and building its
// peer/transaction/transform tables, but does not yet bind a listener or
// contact any peer -- call Listen and Join/SeedFromDNS separately so callers can
// sequence startup (e.g. bind before announcing).
func New(cfg Config) (*Node, error) {
	s, err := store.Open(cfg.ObjectRoot)
	if err != nil {
		return nil, err
	}
	if cfg.LowWaterBytes > 0 {
		s.SetLowWaterBytes(cfg.LowWaterBytes)
	}

	registry := transform.NewRegistry()
	registry.Add("blake2b", transform.NewBlake2b256())
	registry.Add("sha3-256", transform.NewSHA3_256())

	peers := overlay.NewTable(cfg.OID)
	trans := overlay.NewTransactions()

	n := &Node{
		cfg:        cfg,
		OID:        cfg.OID,
		Peers:      peers,
		Trans:      trans,
		Transforms: registry,
		Objects:    s,
		Client: &client.Client{
			Peers:      peers,
			Trans:      trans,
			Transforms: registry,
			SelfOID:    cfg.OID,
			Timeout:    cfg.JoinTimeout,
		},
	}

	n.handler = &dispatch.Handler{
		Peers:   peers,
		Objects: s,
		SelfOID: cfg.OID,
		OnJoin:  n.handleJoinRequest,
		OnList:  nil, // listing local holdings is out of scope, per spec
	}

	n.Logs = log.AddLogRing(fmt.Sprintf("ring:%x", cfg.OID), 256, log.DEBUG)

	return n, nil
}

// Listen binds cfg.ListenAddr, derives the node's advertised address
// attribute from the bound socket, and starts accepting connections in the
// background. It must be called before Join or Announce, since both need
// SelfAddr populated.
func (n *Node) Listen() error {
	l, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return err
	}
	n.listener = l
	n.SelfAddr = wire.EncodeAddr(l.Addr())
	n.handler.SelfAddr = n.SelfAddr

	go n.acceptLoop()

	log.Info("node: listening on %v, oid=%x", l.Addr(), n.OID)
	return nil
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			log.Error("node: accept: %v", err)
			return
		}

		// The connecting peer's OID is not known until it speaks; register
		// it under an empty placeholder OID and let its first JOIN move it
		// into position via overlay.Table.Move (answering its
		// reverse-lookup handshake does not change the placeholder).
		p := n.Peers.Create(nil, conn.RemoteAddr(), conn, n.cfg.JoinTimeout)
		go n.readLoop(p)
	}
}

func (n *Node) readLoop(p *overlay.Peer) {
	defer func() {
		n.Trans.DestroyForPeer(p)
		n.Peers.Put(p)
	}()

	for {
		if p.Timeout() > 0 {
			p.Conn().SetReadDeadline(time.Now().Add(p.Timeout()))
		}
		cmd, payload, err := wire.ReadCmd(p.Conn())
		if err != nil {
			return
		}
		p.Conn().SetReadDeadline(time.Time{})

		if cmd.IsReply() {
			// Stray reply on an inbound connection (e.g. a peer's own ack
			// to a request it didn't expect an answer for). Join-dialed
			// peers never reach this loop at all -- those connections have
			// no readLoop, see Join -- so this node's own outbound
			// requests are never in a read race with this loop. Driving a
			// client request against a peer known only through an
			// accepted connection is unsupported for the same reason.
			continue
		}

		if err := n.handler.Dispatch(p, cmd, payload); err != nil {
			log.Error("node: dispatch error from %x: %v", p.OID, err)
			return
		}
	}
}

// handleJoinRequest is the dispatcher's JoinFunc: a JOIN announce arrives on
// a connection already tracked (under a placeholder OID from accept, or
// whatever a prior handshake assigned), so this re-sorts that same peer
// record into position under its self-reported oid rather than creating a
// second, duplicate entry.
func (n *Node) handleJoinRequest(peer *overlay.Peer, oid []byte, addr wire.AddrAttr) error {
	peerAddr, err := wire.DecodeAddr(addr)
	if err != nil {
		return err
	}

	n.Peers.Move(peer, oid)
	peer.Addr = peerAddr

	log.Debug("node: join announce from %x at %v", oid, peerAddr)
	return nil
}

// Join dials every seed address in cfg.SeedAddrs, performing the mandatory
// reverse-lookup handshake via internal/join, then announces this node's
// own (OID, address) to the whole resulting peer set.
//
// A dialed peer gets no readLoop of its own: this node's outbound requests
// (internal/client) read their replies synchronously off that same
// connection, and a second concurrent reader would race them for the
// socket. The peer's other end services that connection instead, from its
// own accept-side readLoop -- every connection has exactly one reader per
// endpoint. A fully symmetric mesh, where either side can also route
// inbound requests over a connection it dialed itself, would need the
// transaction table's Callback to demux a single shared reader instead;
// that refinement is left as a documented limitation.
func (n *Node) Join() {
	for _, addr := range n.cfg.SeedAddrs {
		if _, err := join.Dial(addr, n.cfg.JoinTimeout, n.Peers, nil); err != nil {
			log.Error("node: join to %s failed: %v", addr, err)
		}
	}

	join.Announce(n.Peers, n.OID, n.SelfAddr)
}

// StartLANDiscovery joins the configured multicast group (or the default)
// and answers solicitations with a best-effort join attempt against the
// soliciting address; callers that also want to actively solicit can call
// Solicit on the returned *discover.LAN.
func (n *Node) StartLANDiscovery() (*discover.LAN, error) {
	lan, err := discover.NewLAN(n.cfg.LANGroup)
	if err != nil {
		return nil, err
	}
	n.lan = lan

	go func() {
		err := lan.Listen(func(addr *net.UDPAddr) {
			if _, err := join.Dial(addr.String(), n.cfg.JoinTimeout, n.Peers, nil); err != nil {
				log.Error("node: join from LAN solicitor %v failed: %v", addr, err)
			}
		})
		if err != nil {
			log.Error("node: LAN discovery listener stopped: %v", err)
		}
	}()

	return lan, nil
}

// SeedFromDNS resolves cfg.DNSDomain's SRV records and dials each result,
// the same way a configured static seed address would be dialed.
func (n *Node) SeedFromDNS() {
	if n.cfg.DNSDomain == "" {
		return
	}

	addrs, err := discover.DNSSeeds(n.cfg.DNSDomain, n.cfg.DNSResolver)
	if err != nil {
		log.Error("node: DNS seed lookup failed: %v", err)
		return
	}

	for _, addr := range addrs {
		if _, err := join.Dial(addr, n.cfg.JoinTimeout, n.Peers, nil); err != nil {
			log.Error("node: join to DNS seed %s failed: %v", addr, err)
		}
	}
}

// Diagnostics returns a point-in-time disk/memory snapshot for this node's
// object root, for cmd/dnetctl's status command.
func (n *Node) Diagnostics() (*diag.Snapshot, error) {
	return diag.Read(n.cfg.ObjectRoot)
}

// RecentLogs returns this node's recent log lines, oldest first, from its
// in-memory ring logger.
func (n *Node) RecentLogs() []string {
	if n.Logs == nil {
		return nil
	}
	return n.Logs.Dump()
}

// Close stops accepting connections, unregisters its ring logger, and
// releases the object store.
func (n *Node) Close() error {
	if n.lan != nil {
		n.lan.Close()
	}
	if n.listener != nil {
		n.listener.Close()
	}
	log.DelLogger(fmt.Sprintf("ring:%x", n.OID))
	return n.Objects.Close()
}
