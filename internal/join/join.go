// Package join implements the node's join/discovery handshake: dialing a
// candidate address, issuing the mandatory REVERSE_LOOKUP request, and
// registering the resulting peer under the OID and address the peer itself
// reports.
//
// Grounded on meshage.Node.dial's connect -> exchange handshake -> register
// -> spawn-reader sequence (src/meshage/node.go), adapted from meshage's gob
// handshake to this protocol's REVERSE_LOOKUP request / addr_cmd reply.
package join

import (
	"time"

	"net"

	log "github.com/ntess/dnetgo/pkg/minilog"
	"github.com/ntess/dnetgo/pkg/wire"

	"github.com/ntess/dnetgo/internal/overlay"
)

// Dial performs the reverse-lookup handshake against addr and, on success,
// registers the resulting peer in peers. A timeout on the reply is fatal:
// the socket is closed and no peer is added, per spec.
//
// startReader, if non-nil, is called with the newly created (already
// referenced) peer so the caller can spawn its per-connection reader
// goroutine -- join owns only the handshake, not the connection's ongoing
// read loop.
func Dial(addr string, timeout time.Duration, peers *overlay.Table, startReader func(*overlay.Peer)) (*overlay.Peer, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}

	payload := wire.BuildAttr(wire.CmdReverseLookup, 0, nil)
	req := wire.Cmd{Size: uint64(len(payload))}
	if err := wire.WriteCmd(conn, req, payload); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	cmd, body, err := wire.ReadCmd(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		log.Error("join: reverse-lookup to %s failed or timed out: %v", addr, err)
		return nil, err
	}

	recs, err := wire.ParseAttrs(body)
	if err != nil || len(recs) != 1 || recs[0].Attr.Cmd != wire.CmdReverseLookup {
		conn.Close()
		return nil, wire.ErrProto
	}
	if len(recs[0].Body) < wire.AddrAttrSize {
		conn.Close()
		return nil, wire.ErrProto
	}

	addrAttr := wire.UnmarshalAddrAttr(recs[0].Body[:wire.AddrAttrSize])
	peerAddr, err := wire.DecodeAddr(addrAttr)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Per spec step 4: register using the response's OID and address, not
	// the connect address -- a peer may advertise a different listener than
	// the socket it answered this handshake on.
	oid := append([]byte(nil), cmd.ID[:]...)
	p := peers.Create(oid, peerAddr, conn, timeout)

	log.Info("join: registered peer %x at %v", oid, peerAddr)

	if startReader != nil {
		startReader(p)
	}

	return p, nil
}

// Announce sends a JOIN request carrying (selfOID, selfAddr) to every known
// peer, per spec step 5, so the overlay learns of this node. It is best
// effort: a failed send is logged, not returned, since one unreachable peer
// should not abort announcing to the rest.
func Announce(peers *overlay.Table, selfOID []byte, selfAddr wire.AddrAttr) {
	body := wire.MarshalAddrAttr(selfAddr)
	attr := wire.BuildAttr(wire.CmdJoin, 0, body)

	var c wire.Cmd
	copy(c.ID[:], selfOID)
	c.Size = uint64(len(attr))

	for _, p := range peers.All() {
		p.SendLock.Lock()
		err := wire.WriteCmd(p.Conn(), c, attr)
		p.SendLock.Unlock()

		if err != nil {
			log.Error("join: announce to %x failed: %v", p.OID, err)
		}

		peers.Put(p)
	}
}
