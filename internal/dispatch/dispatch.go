// Package dispatch implements the node's command dispatcher: given a parsed
// frame header and its payload, it walks the attribute stream and routes
// each attribute to the component responsible for it, then emits a single
// acknowledgement frame if the request asked for one.
//
// Grounded on iomeshage's handleMessages/handleMessage shape
// (internal/iomeshage/handler.go): a type switch over an incoming message's
// kind, dispatched to per-kind handling inline on the reader goroutine. That
// shape is adapted here from "one message, one handler" to "one frame, a
// sequence of attribute handlers, first error wins" per the protocol's
// multi-attribute command payloads.
package dispatch

import (
	"errors"
	"io"

	log "github.com/ntess/dnetgo/pkg/minilog"
	"github.com/ntess/dnetgo/pkg/wire"

	"github.com/ntess/dnetgo/internal/overlay"
	"github.com/ntess/dnetgo/internal/store"
)

// Status codes returned in an ack's Status field, per the taxonomy in the
// error handling design: negative values are specific failure classes, 0 is
// success. These are deliberately small negative integers rather than real
// host errno values -- the wire carries a status code, not an errno ABI.
const (
	StatusOK       int32 = 0
	StatusProto    int32 = -1
	StatusIO       int32 = -2
	StatusNotFound int32 = -4
)

// JoinFunc is invoked when a JOIN attribute arrives on peer, carrying the
// joining peer's reported OID (cmd.ID) and advertised address. Handling the
// actual connect-back and handshake is internal/join's job; dispatch only
// routes the request to it, to avoid an import cycle (join depends on
// dispatch's wire types, not the reverse).
type JoinFunc func(peer *overlay.Peer, oid []byte, addr wire.AddrAttr) error

// ListFunc enumerates the OIDs this node holds locally, for the LIST
// request. Out of scope per spec (a "collaborator"); a nil ListFunc answers
// every LIST with an empty body rather than failing the request.
type ListFunc func() [][]byte

// Handler holds everything the dispatcher needs to service one node's
// frames: the peer table (for LOOKUP/REVERSE_LOOKUP targets), the object
// store (for WRITE/READ), and the node's own identity (for replies).
type Handler struct {
	Peers    *overlay.Table
	Objects  *store.Store
	SelfOID  []byte
	SelfAddr wire.AddrAttr
	OnJoin   JoinFunc
	OnList   ListFunc
}

// Dispatch parses payload as a sequence of attributes and routes each one.
// The first attribute handler to fail stops the loop; its status becomes
// the ack's status. A protocol error while parsing the attribute stream
// itself is fatal for the connection, per spec, and is returned to the
// caller (the reader loop) so it can tear the connection down -- an ack is
// still attempted first, mirroring the taxonomy's "reported to the peer via
// ack" for Proto.
func (h *Handler) Dispatch(peer *overlay.Peer, cmd wire.Cmd, payload []byte) error {
	recs, err := wire.ParseAttrs(payload)
	if err != nil {
		if cmd.Flags&wire.FlagNeedAck != 0 {
			h.ack(peer, cmd, StatusProto)
		}
		return wire.ErrProto
	}

	status := StatusOK
	for _, rec := range recs {
		if err := h.route(peer, cmd, rec); err != nil {
			status = statusFor(err)
			log.Debug("dispatch: attr %d failed: %v", rec.Attr.Cmd, err)
			break
		}
	}

	if cmd.Flags&wire.FlagNeedAck != 0 {
		h.ack(peer, cmd, status)
	}

	if status == StatusProto {
		return wire.ErrProto
	}
	return nil
}

func (h *Handler) route(peer *overlay.Peer, cmd wire.Cmd, rec wire.AttrRecord) error {
	switch rec.Attr.Cmd {
	case wire.CmdLookup:
		return h.handleLookup(peer, cmd)
	case wire.CmdReverseLookup:
		return h.handleReverseLookup(peer, cmd)
	case wire.CmdJoin:
		return h.handleJoin(peer, cmd, rec)
	case wire.CmdWrite:
		return h.handleWrite(rec)
	case wire.CmdRead:
		return h.handleRead(peer, cmd, rec)
	case wire.CmdList:
		return h.handleList(peer, cmd)
	default:
		return wire.ErrProto
	}
}

// handleLookup replies with the peer state responsible for cmd.ID: the
// table's closest lexicographic predecessor.
func (h *Handler) handleLookup(peer *overlay.Peer, cmd wire.Cmd) error {
	target := h.Peers.Search(cmd.ID[:], nil)
	defer h.Peers.Put(target)

	addr := h.SelfAddr
	if target != h.Peers.Self() {
		addr = wire.EncodeAddr(target.Addr)
	}

	return h.sendAddrReply(peer, cmd, wire.CmdLookup, target.OID, addr)
}

// handleReverseLookup replies with this node's own (OID, address).
func (h *Handler) handleReverseLookup(peer *overlay.Peer, cmd wire.Cmd) error {
	return h.sendAddrReply(peer, cmd, wire.CmdReverseLookup, h.SelfOID, h.SelfAddr)
}

func (h *Handler) handleJoin(peer *overlay.Peer, cmd wire.Cmd, rec wire.AttrRecord) error {
	if len(rec.Body) < wire.AddrAttrSize {
		return wire.ErrProto
	}
	addr := wire.UnmarshalAddrAttr(rec.Body[:wire.AddrAttrSize])

	if h.OnJoin == nil {
		return nil
	}
	return h.OnJoin(peer, cmd.ID[:], addr)
}

func (h *Handler) handleWrite(rec wire.AttrRecord) error {
	if len(rec.Body) < wire.IOAttrSize {
		return wire.ErrProto
	}
	io_ := wire.UnmarshalIOAttr(rec.Body[:wire.IOAttrSize])
	data := rec.Body[wire.IOAttrSize:]

	return h.Objects.Write(io_, rec.Attr.Size, data)
}

func (h *Handler) handleRead(peer *overlay.Peer, cmd wire.Cmd, rec wire.AttrRecord) error {
	if len(rec.Body) < wire.IOAttrSize {
		return wire.ErrProto
	}
	io_ := wire.UnmarshalIOAttr(rec.Body[:wire.IOAttrSize])

	return h.Objects.Read(io_, func(offset, size uint64, more bool, body io.Reader) error {
		return h.sendReadChunk(peer, cmd, io_, offset, size, more, body)
	})
}

func (h *Handler) handleList(peer *overlay.Peer, cmd wire.Cmd) error {
	var ids [][]byte
	if h.OnList != nil {
		ids = h.OnList()
	}

	body := make([]byte, 0, len(ids)*len(h.SelfOID))
	for _, id := range ids {
		body = append(body, id...)
	}

	return h.sendSimpleReply(peer, cmd, wire.CmdList, body)
}

// sendAddrReply builds and sends a LOOKUP/REVERSE_LOOKUP-style addr_cmd
// reply: the reply's cmd.ID carries oid, the attribute body carries addr.
func (h *Handler) sendAddrReply(peer *overlay.Peer, req wire.Cmd, op wire.MessageCmd, oid []byte, addr wire.AddrAttr) error {
	body := wire.MarshalAddrAttr(addr)
	attr := wire.BuildAttr(op, 0, body)

	return h.writeReply(peer, req, oid, 0, attr)
}

func (h *Handler) sendSimpleReply(peer *overlay.Peer, req wire.Cmd, op wire.MessageCmd, body []byte) error {
	attr := wire.BuildAttr(op, 0, body)
	return h.writeReply(peer, req, h.SelfOID, 0, attr)
}

// sendReadChunk sends one READ reply chunk: a frame whose payload is
// attr(cmd=READ, flags=MORE?) + io_attr, followed immediately by the chunk
// body written directly to the connection (the zero-copy path when body is
// backed by an *os.File section, per store.SendfileChunk).
func (h *Handler) sendReadChunk(peer *overlay.Peer, req wire.Cmd, io_ wire.IOAttr, offset, size uint64, more bool, body io.Reader) error {
	chunk := io_
	chunk.Offset = offset
	chunk.Size = size

	flags := wire.Flags(0)
	if more {
		flags = wire.FlagMore
	}

	// The attribute's Size covers the io_attr plus the chunk data that
	// follows it, so the data is part of the READ attribute's body.
	ioBytes := wire.MarshalIOAttr(chunk)
	attrHeader := append(wire.MarshalAttr(wire.Attr{Cmd: wire.CmdRead, Size: uint32(uint64(len(ioBytes)) + size), Flags: flags}), ioBytes...)

	peer.SendLock.Lock()
	defer peer.SendLock.Unlock()

	replyCmd := h.replyHeader(req, flags, uint64(len(attrHeader))+size)
	if err := wire.WriteHeader(peer.Conn(), replyCmd); err != nil {
		return err
	}
	if _, err := peer.Conn().Write(attrHeader); err != nil {
		return err
	}

	return store.SendfileChunk(peer.Conn(), body, int64(size))
}

func (h *Handler) writeReply(peer *overlay.Peer, req wire.Cmd, oid []byte, flags wire.Flags, attr []byte) error {
	peer.SendLock.Lock()
	defer peer.SendLock.Unlock()

	replyCmd := h.replyHeader(req, flags, uint64(len(attr)))
	copy(replyCmd.ID[:], oid)
	return wire.WriteCmd(peer.Conn(), replyCmd, attr)
}

func (h *Handler) ack(peer *overlay.Peer, req wire.Cmd, status int32) {
	peer.SendLock.Lock()
	defer peer.SendLock.Unlock()

	replyCmd := h.replyHeader(req, req.Flags, 0)
	replyCmd.Status = status

	if err := wire.WriteCmd(peer.Conn(), replyCmd, nil); err != nil {
		log.Error("dispatch: failed to send ack: %v", err)
	}
}

func (h *Handler) replyHeader(req wire.Cmd, flags wire.Flags, size uint64) wire.Cmd {
	var c wire.Cmd
	copy(c.ID[:], h.SelfOID)
	c.Flags = flags
	c.Size = size
	c.Trans = req.Trans
	c.SetReply(true)
	return c
}

func statusFor(err error) int32 {
	switch {
	case errors.Is(err, wire.ErrProto):
		return StatusProto
	default:
		return StatusIO
	}
}
