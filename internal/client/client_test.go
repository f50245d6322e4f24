package client

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ntess/dnetgo/internal/dispatch"
	"github.com/ntess/dnetgo/internal/overlay"
	"github.com/ntess/dnetgo/internal/store"
	"github.com/ntess/dnetgo/pkg/transform"
	"github.com/ntess/dnetgo/pkg/wire"
)

// newTestClient wires a Client talking over an in-process net.Pipe to a real
// dispatch.Handler + store.Store acting as the remote node, so these tests
// exercise the whole wire round trip rather than mocking the transport.
func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()

	remoteOID := []byte{0x00}
	clientOID := []byte{0xFF}

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })

	clientTable := overlay.NewTable(clientOID)
	remotePeer := clientTable.Create(remoteOID, nil, c1, time.Second)
	t.Cleanup(func() { clientTable.Put(remotePeer) })

	serverTable := overlay.NewTable(remoteOID)
	requestorPeer := serverTable.Create(clientOID, nil, c2, time.Second)

	root := t.TempDir()
	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := &dispatch.Handler{
		Peers:   serverTable,
		Objects: s,
		SelfOID: remoteOID,
	}

	go func() {
		for {
			cmd, payload, err := wire.ReadCmd(requestorPeer.Conn())
			if err != nil {
				return
			}
			h.Dispatch(requestorPeer, cmd, payload)
		}
	}()

	registry := transform.NewRegistry()
	registry.Add("blake2b", transform.NewBlake2b256())

	cl := &Client{
		Peers:      clientTable,
		Trans:      overlay.NewTransactions(),
		Transforms: registry,
		SelfOID:    clientOID,
		Timeout:    2 * time.Second,
	}

	return cl, root
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	cl, root := newTestClient(t)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "greeting.txt")
	if err := os.WriteFile(srcPath, []byte("hello from the client"), 0644); err != nil {
		t.Fatalf("WriteFile(src): %v", err)
	}

	nameID, contentID, err := cl.WriteFile(srcPath)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if len(nameID) == 0 || len(contentID) == 0 {
		t.Fatalf("expected non-empty derived ids")
	}

	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	onDisk, err := os.ReadFile(s.Path(nameID))
	if err != nil {
		t.Fatalf("reading stored object: %v", err)
	}
	if string(onDisk) != "hello from the client" {
		t.Fatalf("expected stored object to equal source contents, got %q", onDisk)
	}

	outPath := filepath.Join(srcDir, "fetched.txt")
	if err := cl.ReadFile(srcPath, 0, 0, outPath); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	fetched, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading fetched output: %v", err)
	}
	if string(fetched) != "hello from the client" {
		t.Fatalf("expected fetched contents to equal source, got %q", fetched)
	}
}

func TestUpdateFileWritesBothNameAndContentIDs(t *testing.T) {
	cl, root := newTestClient(t)

	data := []byte("update payload")
	nameID, contentID, err := cl.UpdateFile("/objects/some/path", 0, data, false)
	if err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	for _, id := range [][]byte{nameID, contentID} {
		onDisk, err := os.ReadFile(s.Path(id))
		if err != nil {
			t.Fatalf("reading object %x: %v", id, err)
		}
		if string(onDisk) != string(data) {
			t.Fatalf("expected object %x to equal %q, got %q", id, data, onDisk)
		}

		hist, err := s.History(id)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != 1 {
			t.Fatalf("expected one history record for %x, got %d", id, len(hist))
		}
	}
}
