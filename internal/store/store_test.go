package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ntess/dnetgo/pkg/wire"
)

func idOf(b byte) [wire.IDSize]byte {
	var id [wire.IDSize]byte
	id[0] = b
	return id
}

func TestPathNeverEscapesRoot(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id := idOf(0xAB)
	p := s.Path(id[:])

	want := filepath.Join(s.root, "ab", "ab"+hexOf(id[1:]))
	if p != want {
		t.Fatalf("expected path %q, got %q", want, p)
	}
}

func hexOf(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, 2*len(b))
	for _, c := range b {
		out = append(out, hexDigits[c>>4], hexDigits[c&0xf])
	}
	return string(out)
}

func TestWriteThenReadIdentity(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id := idOf(0x01)
	data := []byte("hello")
	io_ := wire.IOAttr{ID: id, Offset: 0, Size: uint64(len(data))}

	if err := s.Write(io_, wire.IOAttrSize+uint32(len(data)), data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var gotChunks [][]byte
	var moreFlags []bool
	readReq := wire.IOAttr{ID: id, Offset: 0, Size: 0}
	err = s.Read(readReq, func(offset, size uint64, more bool, body io.Reader) error {
		b, rerr := io.ReadAll(body)
		if rerr != nil {
			return rerr
		}
		gotChunks = append(gotChunks, b)
		moreFlags = append(moreFlags, more)
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(gotChunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(gotChunks))
	}
	if !bytes.Equal(gotChunks[0], data) {
		t.Fatalf("expected %q, got %q", data, gotChunks[0])
	}
	if moreFlags[0] {
		t.Fatalf("the last (only) chunk must clear MORE")
	}
}

func TestReadChunksAtMaxSizeInAscendingOrder(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	s.SetMaxReadChunk(10)

	id := idOf(0x02)
	data := bytes.Repeat([]byte("x"), 25)
	io_ := wire.IOAttr{ID: id, Offset: 0, Size: uint64(len(data))}
	if err := s.Write(io_, wire.IOAttrSize+uint32(len(data)), data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var offsets []uint64
	var sizes []uint64
	var more []bool
	var assembled []byte

	readReq := wire.IOAttr{ID: id, Offset: 0, Size: 0}
	err = s.Read(readReq, func(offset, size uint64, m bool, body io.Reader) error {
		b, rerr := io.ReadAll(body)
		if rerr != nil {
			return rerr
		}
		offsets = append(offsets, offset)
		sizes = append(sizes, size)
		more = append(more, m)
		assembled = append(assembled, b...)
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(offsets) != 3 {
		t.Fatalf("expected 3 chunks of (10,10,5), got %d: sizes=%v", len(offsets), sizes)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Fatalf("chunks must be strictly ascending by offset: %v", offsets)
		}
	}
	if more[len(more)-1] {
		t.Fatalf("final chunk must clear MORE")
	}
	for i := 0; i < len(more)-1; i++ {
		if !more[i] {
			t.Fatalf("non-final chunk %d must set MORE", i)
		}
	}
	if !bytes.Equal(assembled, data) {
		t.Fatalf("reassembled data does not match original")
	}
}

func TestHistoryMonotonicity(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id := idOf(0x03)
	for i := 0; i < 3; i++ {
		data := []byte{byte(i)}
		io_ := wire.IOAttr{ID: id, Offset: uint64(i), Size: 1, Flags: wire.IOUpdate}
		if err := s.Write(io_, wire.IOAttrSize+1, data); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	hist, err := s.History(id[:])
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(hist))
	}
	for i, rec := range hist {
		if rec.Offset != uint64(i) || rec.Size != 1 {
			t.Fatalf("record %d: expected offset %d size 1, got %+v", i, i, rec)
		}
	}
}

func TestAppendSemanticsIgnoreOffset(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id := idOf(0x04)

	first := []byte("abc")
	io1 := wire.IOAttr{ID: id, Offset: 999, Size: uint64(len(first)), Flags: wire.IOAppend}
	if err := s.Write(io1, wire.IOAttrSize+uint32(len(first)), first); err != nil {
		t.Fatalf("Write 1: %v", err)
	}

	second := []byte("de")
	io2 := wire.IOAttr{ID: id, Offset: 0, Size: uint64(len(second)), Flags: wire.IOAppend}
	if err := s.Write(io2, wire.IOAttrSize+uint32(len(second)), second); err != nil {
		t.Fatalf("Write 2: %v", err)
	}

	on, err := os.ReadFile(s.Path(id[:]))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(on) != "abcde" {
		t.Fatalf("expected appended file \"abcde\", got %q", on)
	}
}

func TestWriteValidatesAttrSize(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id := idOf(0x05)
	io_ := wire.IOAttr{ID: id, Offset: 0, Size: 5}
	if err := s.Write(io_, 0, []byte("hello")); err == nil {
		t.Fatalf("expected an error when attrSize does not match io_attr + data")
	}
}
