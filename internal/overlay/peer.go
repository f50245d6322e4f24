// Package overlay implements the node's peer state table and transaction
// table: the per-peer connection records, the sorted-by-OID lookup used to
// route a request toward the overlay node responsible for an object ID, and
// the table that correlates outbound requests with their eventual replies.
//
// Grounded on internal/meshage's client map + clientLock + ref-counted
// teardown idiom (meshage/client.go's n.clients/n.clientLock, getClient,
// hasClient), generalized from string node names keyed by a routing table to
// []byte OIDs kept in sorted order for closest-predecessor lookup, since
// this spec's routing is one-hop "locate then send" rather than meshage's
// multi-hop route table.
package overlay

import (
	"bytes"
	"net"
	"sort"
	"sync"
	"time"

	log "github.com/ntess/dnetgo/pkg/minilog"
)

// Peer is the per-remote-peer connection record. Peer states are exclusively
// owned by a Table; callers acquire reference-counted views via Get and
// must release them with Put on every exit path.
type Peer struct {
	OID  []byte
	Addr net.Addr

	conn    net.Conn
	timeout time.Duration

	// SendLock serializes writes on this peer's socket. A logical frame and
	// its inline payload (header + data chunk for WRITE/READ) must be sent
	// under one acquisition so frames are not interleaved on the wire.
	SendLock sync.Mutex

	mu        sync.Mutex
	refs      int
	destroyed bool
}

// Conn returns the underlying connection. Callers must hold a reference
// (via Get) for the duration of any read/write.
func (p *Peer) Conn() net.Conn { return p.conn }

// Timeout returns the peer's configured receive timeout.
func (p *Peer) Timeout() time.Duration { return p.timeout }

// Table is the node's peer state table: a list of Peer records kept sorted
// by OID, plus the local node's own "self" peer.
type Table struct {
	mu    sync.Mutex
	peers []*Peer
	self  *Peer
}

// NewTable returns an empty peer table whose self-peer carries selfOID.
func NewTable(selfOID []byte) *Table {
	return &Table{
		self: &Peer{OID: append([]byte(nil), selfOID...), refs: 1},
	}
}

// Self returns the node's own peer record (used as the fallback target of
// Search and as the source of REVERSE_LOOKUP/LOOKUP replies).
func (t *Table) Self() *Peer { return t.self }

// Create allocates a peer state for (oid, addr, conn), inserts it into the
// table in sorted order, and returns a referenced handle (refcount 1, owned
// by the caller, who must Put it when done). The caller is responsible for
// starting any reader goroutine -- the table only tracks state, it does not
// know about the dispatcher.
func (t *Table) Create(oid []byte, addr net.Addr, conn net.Conn, timeout time.Duration) *Peer {
	p := &Peer{
		OID:     append([]byte(nil), oid...),
		Addr:    addr,
		conn:    conn,
		timeout: timeout,
		refs:    1,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.peers), func(i int) bool {
		return bytes.Compare(t.peers[i].OID, p.OID) >= 0
	})
	t.peers = append(t.peers, nil)
	copy(t.peers[i+1:], t.peers[i:])
	t.peers[i] = p

	log.Debug("overlay: created peer %x at %v", p.OID, addr)

	return p
}

// Search returns the peer whose OID is the closest lexicographic
// predecessor of oid (wrapping to the table's self-peer if oid precedes
// every known peer, or no peers are known), and increments its reference
// count. hint is accepted for API symmetry with the reference design's
// cursor-based search but is not required by a sorted-slice implementation.
func (t *Table) Search(oid []byte, hint *Peer) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.peers) == 0 {
		return t.get(t.self)
	}

	// find the last peer whose OID <= oid; sort.Search finds the first
	// index where peers[i].OID > oid, so the index before that is the
	// closest predecessor (an exact match included).
	i := sort.Search(len(t.peers), func(i int) bool {
		return bytes.Compare(t.peers[i].OID, oid) > 0
	})

	if i == 0 {
		// oid precedes every known peer: wrap to the highest predecessor,
		// which in ring terms is the last peer, unless none exist.
		return t.get(t.peers[len(t.peers)-1])
	}

	return t.get(t.peers[i-1])
}

// First returns any peer other than excluding, used when a client driver
// needs a starting hop for routing a request. Returns nil if no other peer
// is known.
func (t *Table) First(excluding *Peer) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.peers {
		if p != excluding {
			return t.get(p)
		}
	}

	return nil
}

// All returns referenced handles to every known peer (not including self),
// for fan-out operations like broadcasting a JOIN. Callers must Put each one.
func (t *Table) All() []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, t.get(p))
	}
	return out
}

// get increments p's reference count; callers must hold t.mu.
func (t *Table) get(p *Peer) *Peer {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
	return p
}

// Get increments p's reference count directly, for callers already holding
// a valid handle who need to hand out a second one.
func (t *Table) Get(p *Peer) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(p)
}

// Put releases a reference. The final Put on a non-self peer flips its
// destroyed flag, closes the socket, and removes it from the table.
func (t *Table) Put(p *Peer) {
	if p == t.self {
		return
	}

	p.mu.Lock()
	p.refs--
	last := p.refs <= 0
	if last {
		p.destroyed = true
	}
	p.mu.Unlock()

	if !last {
		return
	}

	if p.conn != nil {
		p.conn.Close()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, q := range t.peers {
		if q == p {
			t.peers = append(t.peers[:i], t.peers[i+1:]...)
			break
		}
	}

	log.Debug("overlay: destroyed peer %x", p.OID)
}

// Move re-sorts p into its correct list position after its OID has changed
// (e.g. on join completion, when a peer's advertised OID becomes known).
func (t *Table) Move(p *Peer, newOID []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, q := range t.peers {
		if q == p {
			t.peers = append(t.peers[:i], t.peers[i+1:]...)
			break
		}
	}

	p.OID = append([]byte(nil), newOID...)

	i := sort.Search(len(t.peers), func(i int) bool {
		return bytes.Compare(t.peers[i].OID, p.OID) >= 0
	})
	t.peers = append(t.peers, nil)
	copy(t.peers[i+1:], t.peers[i:])
	t.peers[i] = p
}

// Destroyed reports whether p has been torn down (final Put already ran).
func (p *Peer) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}
