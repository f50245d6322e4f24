// Package store implements the node's object I/O engine: a content-addressed
// on-disk layout, offset-based writes, chunked zero-copy reads, and a
// per-object append-only history log.
//
// The layout and write path are a direct translation of the reference
// design's dnet_cmd_write; the chunked, offset-ordered reply path is
// grounded on the teacher's own offset-chunked file transfer idiom in
// src/ron/file.go (ron.File/ron.SendFile write data at an explicit Offset
// and mark a final EOF chunk), adapted here from "write chunks as they
// arrive" to "produce chunks in ascending-offset order on request".
package store

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	log "github.com/ntess/dnetgo/pkg/minilog"
	"github.com/ntess/dnetgo/pkg/wire"

	"github.com/ntess/dnetgo/internal/diag"
)

// DefaultMaxReadChunk bounds how many bytes a single READ reply chunk
// carries (MAX_READ_TRANS_SIZE in spec).
const DefaultMaxReadChunk = 4 << 20 // 4 MiB

const dirPerm = 0755
const filePerm = 0644

// Store is the node's local object shard rooted at a single directory.
type Store struct {
	root          string
	rootDir       *os.File // retained for the node's lifetime
	maxReadChunk  int64
	lowWaterBytes uint64 // 0 disables the disk guard
}

// Open roots a Store at dir, creating it if necessary, and keeps its
// directory handle open for the Store's lifetime.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}

	rf, err := os.Open(dir)
	if err != nil {
		return nil, err
	}

	return &Store{root: dir, rootDir: rf, maxReadChunk: DefaultMaxReadChunk}, nil
}

// Close releases the store's root directory handle.
func (s *Store) Close() error {
	return s.rootDir.Close()
}

// SetMaxReadChunk overrides the default READ chunk size (mainly for tests).
func (s *Store) SetMaxReadChunk(n int64) { s.maxReadChunk = n }

// SetLowWaterBytes enables the disk guard: WRITE is rejected once root's
// free space falls below n. n == 0 (the default) disables the guard.
func (s *Store) SetLowWaterBytes(n uint64) { s.lowWaterBytes = n }

// Path returns the canonical on-disk path for an object ID: root/HH/H, where
// H is the full hex ID and HH is the hex of its first byte. It never
// escapes root regardless of id's contents, since hex.EncodeToString cannot
// produce "/" or "..".
func (s *Store) Path(id []byte) string {
	h := hex.EncodeToString(id)
	if len(id) == 0 {
		h = "00"
	}
	dir := h[:2]
	return filepath.Join(s.root, dir, h)
}

func (s *Store) historyPath(id []byte) string {
	return s.Path(id) + ".history"
}

func (s *Store) dirFor(id []byte) string {
	return filepath.Dir(s.Path(id))
}

// Write implements the WRITE operation: validates the io attribute against
// the supplied data and the enclosing attribute size, ensures the object's
// first-level directory exists, and writes data at io.Offset (or appends,
// ignoring io.Offset, when IOAppend is set). When IOUpdate is set, a copy of
// io is appended to the object's history log.
func (s *Store) Write(io_ wire.IOAttr, attrSize uint32, data []byte) error {
	if uint64(attrSize) != uint64(wire.IOAttrSize)+io_.Size {
		return fmt.Errorf("store: attribute size %d does not match io_attr + %d bytes of data", attrSize, io_.Size)
	}
	if io_.Size != uint64(len(data)) {
		return fmt.Errorf("store: io.Size %d does not match %d supplied bytes", io_.Size, len(data))
	}

	if s.lowWaterBytes > 0 {
		low, err := diag.LowOnSpace(s.root, s.lowWaterBytes)
		if err != nil {
			return err
		}
		if low {
			return fmt.Errorf("store: free space below low-water mark, rejecting write")
		}
	}

	if err := os.MkdirAll(s.dirFor(io_.ID[:]), dirPerm); err != nil {
		return err
	}

	path := s.Path(io_.ID[:])

	if io_.Flags&wire.IOAppend != 0 {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := f.Write(data); err != nil {
			return err
		}
	} else {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := f.WriteAt(data, int64(io_.Offset)); err != nil {
			return err
		}
	}

	if io_.Flags&wire.IOUpdate != 0 {
		if err := s.appendHistory(io_); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) appendHistory(io_ wire.IOAttr) error {
	hf, err := os.OpenFile(s.historyPath(io_.ID[:]), os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return err
	}
	defer hf.Close()

	_, err = hf.Write(wire.MarshalIOAttr(io_))
	return err
}

// History returns every io_attr record appended to id's history log, oldest
// first.
func (s *Store) History(id []byte) ([]wire.IOAttr, error) {
	data, err := os.ReadFile(s.historyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var recs []wire.IOAttr
	for len(data) >= wire.IOAttrSize {
		recs = append(recs, wire.UnmarshalIOAttr(data[:wire.IOAttrSize]))
		data = data[wire.IOAttrSize:]
	}
	return recs, nil
}

// ChunkSend is called once per reply chunk while servicing a READ. offset
// and size describe the chunk, more is false only for the final chunk.
type ChunkSend func(offset, size uint64, more bool, body io.Reader) error

// Read implements the READ operation: if io.Size == 0 it is replaced with
// the file's current size. The object is emitted in ascending-offset chunks
// of at most the store's configured max chunk size, each delivered through
// send. If the object cannot be opened, Read returns the error without
// calling send.
func (s *Store) Read(io_ wire.IOAttr, send ChunkSend) error {
	f, err := os.Open(s.Path(io_.ID[:]))
	if err != nil {
		return err
	}
	defer f.Close()

	size := int64(io_.Size)
	if size == 0 {
		fi, err := f.Stat()
		if err != nil {
			return err
		}
		size = fi.Size()
	}

	offset := int64(io_.Offset)
	end := offset + size

	for offset < end {
		n := end - offset
		if n > s.maxReadChunk {
			n = s.maxReadChunk
		}

		more := offset+n < end
		section := io.NewSectionReader(f, offset, n)

		if err := send(uint64(offset), uint64(n), more, section); err != nil {
			return err
		}

		offset += n
	}

	if offset == end && size == 0 {
		// zero-length object: emit a single empty, final chunk so the
		// caller still gets exactly one reply frame.
		return send(uint64(io_.Offset), 0, false, io.LimitReader(f, 0))
	}

	return nil
}

// SendfileChunk writes body to conn using the kernel's zero-copy path when
// conn is backed by a *net.TCPConn and body by an *os.File-derived reader,
// by delegating to io.Copy (whose dst-side io.ReaderFrom special-cases
// *net.TCPConn + os.File to call sendfile(2) directly, skipping a userspace
// buffer copy).
func SendfileChunk(conn net.Conn, body io.Reader, n int64) error {
	written, err := io.CopyN(conn, body, n)
	if err != nil && err != io.EOF {
		return err
	}
	if written != n {
		log.Error("store: short chunk send: wrote %d of %d bytes", written, n)
	}
	return nil
}
