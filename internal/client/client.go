// Package client implements the node's outbound entry points: write_file,
// read_file, and update_file. These run on the calling goroutine (per spec
// section 5, "outbound client driver calls run on caller threads") rather
// than a dedicated reader, so each entry point owns its target peer
// connection for the duration of its round trip.
//
// Grounded on iomeshage's getParts retry-with-attempt-cap shape
// (internal/iomeshage/iomeshage.go) for the general "derive an id, address a
// transaction, drive it to completion" structure, adapted from iomeshage's
// randomized part-fetch retries to this protocol's transform drive loop.
package client

import (
	"fmt"
	"os"
	"time"

	"github.com/ntess/dnetgo/internal/overlay"
	"github.com/ntess/dnetgo/internal/store"
	"github.com/ntess/dnetgo/pkg/transform"
	"github.com/ntess/dnetgo/pkg/wire"
)

// Client drives write/read/update requests against the overlay reachable
// through Peers.
type Client struct {
	Peers      *overlay.Table
	Trans      *overlay.Transactions
	Transforms *transform.Registry
	SelfOID    []byte
	Timeout    time.Duration
}

// nameID derives the object id addressing a path within the overlay by
// applying the transform registry to the path's bytes.
func (c *Client) nameID(path string) ([]byte, error) {
	cursor := 0
	return c.Transforms.Apply([]byte(path), &cursor)
}

// WriteFile implements write_file: it derives the file's name-id and
// content-id, then sends one WRITE transaction -- addressed to the name-id,
// per spec -- carrying the file's entire contents. Per spec section 5 ("send
// the header, then send the data via zero-copy from the open fd"), the file
// is never read into a buffer here: writeFromFile writes the attribute
// header and then hands the still-open *os.File to store.SendfileChunk,
// mirroring the server's own sendReadChunk (internal/dispatch/dispatch.go).
func (c *Client) WriteFile(path string) (nameID, contentID []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	nameID, err = c.nameID(path)
	if err != nil {
		return nil, nil, err
	}

	cursor := 0
	contentID, err = transform.ApplyFile(c.Transforms, path, 0, 0, &cursor)
	if err != nil {
		return nil, nil, err
	}

	if err := c.writeFromFile(nameID, 0, f, fi.Size(), 0); err != nil {
		return nil, nil, err
	}
	return nameID, contentID, nil
}

// UpdateFile implements update_file. Per the open question recorded in
// DESIGN.md, it derives both a name-id (from path) and a content-id (from
// data) and issues two WRITE transactions, one per id, both carrying the
// same offset/size/data -- the ambiguous-in-the-source behavior the spec
// asks implementers to mirror and document rather than guess away.
func (c *Client) UpdateFile(path string, offset int64, data []byte, appendMode bool) (nameID, contentID []byte, err error) {
	nameID, err = c.nameID(path)
	if err != nil {
		return nil, nil, err
	}

	cursor := 0
	contentID, err = c.Transforms.Apply(data, &cursor)
	if err != nil {
		return nil, nil, err
	}

	flags := wire.IOUpdate
	if appendMode {
		flags |= wire.IOAppend
	}

	if err := c.write(nameID, offset, data, flags); err != nil {
		return nil, nil, err
	}
	if err := c.write(contentID, offset, data, flags); err != nil {
		return nil, nil, err
	}
	return nameID, contentID, nil
}

// write sends one WRITE transaction addressed to id and blocks for its ack.
// The transaction is registered in the transaction table before the request
// is serialized, per spec section 2's "outbound requests from H are
// registered in D before being serialised through A" -- since this entry
// point owns its peer connection exclusively for the round trip, it reads
// the ack directly rather than waiting on the transaction's callback, but
// still books and releases the transaction record so its number is
// accounted for like any other in-flight request.
func (c *Client) write(id []byte, offset int64, data []byte, flags wire.IOFlags) error {
	var ioID [wire.IDSize]byte
	copy(ioID[:], id)

	io_ := wire.IOAttr{ID: ioID, Offset: uint64(offset), Size: uint64(len(data)), Flags: flags}
	body := append(wire.MarshalIOAttr(io_), data...)
	attr := wire.BuildAttr(wire.CmdWrite, 0, body)

	peer := c.Peers.Search(id, nil)
	defer c.Peers.Put(peer)

	tr := &overlay.Transaction{Peer: peer}
	c.Trans.Insert(tr)
	defer c.Trans.Destroy(tr.Trans, false)

	var reqCmd wire.Cmd
	copy(reqCmd.ID[:], c.SelfOID)
	reqCmd.Flags = wire.FlagNeedAck
	reqCmd.Size = uint64(len(attr))
	reqCmd.Trans = tr.Trans

	peer.SendLock.Lock()
	defer peer.SendLock.Unlock()

	if err := wire.WriteCmd(peer.Conn(), reqCmd, attr); err != nil {
		return err
	}

	peer.Conn().SetReadDeadline(time.Now().Add(c.Timeout))
	replyCmd, _, err := wire.ReadCmd(peer.Conn())
	peer.Conn().SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	if replyCmd.Status != 0 {
		return fmt.Errorf("client: write to %x failed with status %d", id, replyCmd.Status)
	}
	return nil
}

// writeFromFile sends one WRITE transaction addressed to id whose body is
// streamed directly from the already-open f rather than buffered, using the
// same header-then-body split as dispatch.sendReadChunk: the frame header
// and attribute header are written first, under the peer's send lock, then
// the chunk itself is handed to store.SendfileChunk so the kernel can carry
// it zero-copy when the connection and file support sendfile(2).
func (c *Client) writeFromFile(id []byte, offset int64, f *os.File, size int64, flags wire.IOFlags) error {
	var ioID [wire.IDSize]byte
	copy(ioID[:], id)

	io_ := wire.IOAttr{ID: ioID, Offset: uint64(offset), Size: uint64(size), Flags: flags}
	// The attribute's Size covers the io_attr plus the streamed file data.
	ioBytes := wire.MarshalIOAttr(io_)
	attrHeader := append(wire.MarshalAttr(wire.Attr{Cmd: wire.CmdWrite, Size: uint32(uint64(len(ioBytes)) + uint64(size))}), ioBytes...)

	peer := c.Peers.Search(id, nil)
	defer c.Peers.Put(peer)

	tr := &overlay.Transaction{Peer: peer}
	c.Trans.Insert(tr)
	defer c.Trans.Destroy(tr.Trans, false)

	var reqCmd wire.Cmd
	copy(reqCmd.ID[:], c.SelfOID)
	reqCmd.Flags = wire.FlagNeedAck
	reqCmd.Size = uint64(len(attrHeader)) + uint64(size)
	reqCmd.Trans = tr.Trans

	peer.SendLock.Lock()
	defer peer.SendLock.Unlock()

	if err := wire.WriteHeader(peer.Conn(), reqCmd); err != nil {
		return err
	}
	if _, err := peer.Conn().Write(attrHeader); err != nil {
		return err
	}
	if err := store.SendfileChunk(peer.Conn(), f, size); err != nil {
		return err
	}

	peer.Conn().SetReadDeadline(time.Now().Add(c.Timeout))
	replyCmd, _, err := wire.ReadCmd(peer.Conn())
	peer.Conn().SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	if replyCmd.Status != 0 {
		return fmt.Errorf("client: write to %x failed with status %d", id, replyCmd.Status)
	}
	return nil
}

// ReadFile implements read_file: it derives path's name-id, issues a READ
// request, and writes each incoming chunk to outPath at the chunk's offset
// as it arrives -- it does not coalesce chunks in memory, it pwrites each
// one as soon as it is received, per spec.
func (c *Client) ReadFile(path string, offset, size int64, outPath string) error {
	id, err := c.nameID(path)
	if err != nil {
		return err
	}

	var ioID [wire.IDSize]byte
	copy(ioID[:], id)
	io_ := wire.IOAttr{ID: ioID, Offset: uint64(offset), Size: uint64(size)}
	attr := wire.BuildAttr(wire.CmdRead, 0, wire.MarshalIOAttr(io_))

	peer := c.Peers.Search(id, nil)
	defer c.Peers.Put(peer)

	out, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	tr := &overlay.Transaction{Peer: peer}
	c.Trans.Insert(tr)
	defer c.Trans.Destroy(tr.Trans, false)

	var reqCmd wire.Cmd
	copy(reqCmd.ID[:], c.SelfOID)
	reqCmd.Size = uint64(len(attr))
	reqCmd.Trans = tr.Trans

	peer.SendLock.Lock()
	defer peer.SendLock.Unlock()

	if err := wire.WriteCmd(peer.Conn(), reqCmd, attr); err != nil {
		return err
	}

	for {
		peer.Conn().SetReadDeadline(time.Now().Add(c.Timeout))
		replyCmd, body, err := wire.ReadCmd(peer.Conn())
		peer.Conn().SetReadDeadline(time.Time{})
		if err != nil {
			return err
		}

		if replyCmd.Status != 0 {
			return fmt.Errorf("client: read of %x failed with status %d", id, replyCmd.Status)
		}

		recs, err := wire.ParseAttrs(body)
		if err != nil || len(recs) != 1 || recs[0].Attr.Cmd != wire.CmdRead {
			return wire.ErrProto
		}
		if len(recs[0].Body) < wire.IOAttrSize {
			return wire.ErrProto
		}

		chunkIO := wire.UnmarshalIOAttr(recs[0].Body[:wire.IOAttrSize])
		chunkData := recs[0].Body[wire.IOAttrSize:]

		if _, err := out.WriteAt(chunkData, int64(chunkIO.Offset)); err != nil {
			return err
		}

		if replyCmd.Flags&wire.FlagMore == 0 {
			return nil
		}
	}
}
