package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/ntess/dnetgo/internal/overlay"
	"github.com/ntess/dnetgo/internal/store"
	"github.com/ntess/dnetgo/pkg/wire"
)

func newHandler(t *testing.T) (*Handler, *overlay.Table, *overlay.Peer, net.Conn) {
	t.Helper()

	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tbl := overlay.NewTable([]byte{0xAA})

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	peer := tbl.Create([]byte{0xBB}, nil, serverConn, time.Second)

	h := &Handler{
		Peers:   tbl,
		Objects: s,
		SelfOID: []byte{0xAA},
	}

	return h, tbl, peer, clientConn
}

func writeAttrPayload(io_ wire.IOAttr, data []byte) []byte {
	return wire.BuildAttr(wire.CmdWrite, 0, append(wire.MarshalIOAttr(io_), data...))
}

func TestAckEmissionOnSuccess(t *testing.T) {
	h, _, peer, client := newHandler(t)

	var id [wire.IDSize]byte
	id[0] = 0x01
	io_ := wire.IOAttr{ID: id, Offset: 0, Size: 5}
	payload := writeAttrPayload(io_, []byte("hello"))

	req := wire.Cmd{Flags: wire.FlagNeedAck, Size: uint64(len(payload)), Trans: 7}

	go h.Dispatch(peer, req, payload)

	cmd, _, err := wire.ReadCmd(client)
	if err != nil {
		t.Fatalf("ReadCmd: %v", err)
	}
	if cmd.Status != StatusOK {
		t.Fatalf("expected status OK, got %d", cmd.Status)
	}
	if cmd.TransNumber() != req.Trans {
		t.Fatalf("expected trans %d, got %d", req.Trans, cmd.TransNumber())
	}
	if !cmd.IsReply() {
		t.Fatalf("expected reply bit set")
	}
}

func TestUnknownAttrYieldsProtoAck(t *testing.T) {
	h, _, peer, client := newHandler(t)

	payload := wire.BuildAttr(wire.MessageCmd(99), 0, nil)
	req := wire.Cmd{Flags: wire.FlagNeedAck, Size: uint64(len(payload)), Trans: 3}

	done := make(chan error, 1)
	go func() { done <- h.Dispatch(peer, req, payload) }()

	cmd, _, err := wire.ReadCmd(client)
	if err != nil {
		t.Fatalf("ReadCmd: %v", err)
	}
	if cmd.Status != StatusProto {
		t.Fatalf("expected proto status, got %d", cmd.Status)
	}

	if err := <-done; err != wire.ErrProto {
		t.Fatalf("expected ErrProto from Dispatch, got %v", err)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	h, _, peer, client := newHandler(t)

	var id [wire.IDSize]byte
	id[0] = 0x02
	io_ := wire.IOAttr{ID: id, Offset: 0, Size: 11}

	writePayload := writeAttrPayload(io_, []byte("hello world"))
	writeReq := wire.Cmd{Size: uint64(len(writePayload)), Trans: 1}
	if err := h.Dispatch(peer, writeReq, writePayload); err != nil {
		t.Fatalf("write dispatch: %v", err)
	}

	readIO := wire.IOAttr{ID: id, Offset: 0, Size: 0}
	readPayload := wire.BuildAttr(wire.CmdRead, 0, wire.MarshalIOAttr(readIO))
	readReq := wire.Cmd{Size: uint64(len(readPayload)), Trans: 2}

	done := make(chan error, 1)
	go func() { done <- h.Dispatch(peer, readReq, readPayload) }()

	cmd, chunkPayload, err := wire.ReadCmd(client)
	if err != nil {
		t.Fatalf("ReadCmd: %v", err)
	}
	recs, err := wire.ParseAttrs(chunkPayload)
	if err != nil {
		t.Fatalf("ParseAttrs: %v", err)
	}
	if len(recs) != 1 || recs[0].Attr.Cmd != wire.CmdRead {
		t.Fatalf("expected one READ attr, got %+v", recs)
	}
	chunkIO := wire.UnmarshalIOAttr(recs[0].Body[:wire.IOAttrSize])
	data := recs[0].Body[wire.IOAttrSize:]
	if string(data) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", data)
	}
	if cmd.Flags&wire.FlagMore != 0 {
		t.Fatalf("single chunk under max size should not carry MORE")
	}
	if chunkIO.Offset != 0 || chunkIO.Size != 11 {
		t.Fatalf("unexpected chunk io_attr: %+v", chunkIO)
	}

	if err := <-done; err != nil {
		t.Fatalf("read dispatch: %v", err)
	}
}

func TestLookupRepliesWithClosestPredecessor(t *testing.T) {
	h, tbl, peer, client := newHandler(t)

	c1, c2 := net.Pipe()
	defer c2.Close()

	target := tbl.Create([]byte{0x10}, nil, c1, time.Second)
	defer tbl.Put(target)

	var cmdID [wire.IDSize]byte
	cmdID[0] = 0x20
	payload := wire.BuildAttr(wire.CmdLookup, 0, nil)
	req := wire.Cmd{ID: cmdID, Size: uint64(len(payload)), Trans: 9}

	go h.Dispatch(peer, req, payload)

	cmd, body, err := wire.ReadCmd(client)
	if err != nil {
		t.Fatalf("ReadCmd: %v", err)
	}
	if string(cmd.ID[:1]) != string([]byte{0x10}) {
		t.Fatalf("expected reply cmd.ID to carry target OID 0x10, got %x", cmd.ID[:1])
	}
	recs, err := wire.ParseAttrs(body)
	if err != nil || len(recs) != 1 || recs[0].Attr.Cmd != wire.CmdLookup {
		t.Fatalf("expected one LOOKUP reply attr, got %+v, err=%v", recs, err)
	}
}
