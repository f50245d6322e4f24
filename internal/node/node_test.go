package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestNode(t *testing.T, oid byte) *Node {
	t.Helper()

	n, err := New(Config{
		OID:         []byte{oid},
		ListenAddr:  "127.0.0.1:0",
		ObjectRoot:  t.TempDir(),
		JoinTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { n.Close() })

	return n
}

func TestJoinRegistersPeerUnderReportedOID(t *testing.T) {
	server := newTestNode(t, 0x01)
	client := newTestNode(t, 0x02)

	client.cfg.SeedAddrs = []string{server.listener.Addr().String()}
	client.Join()

	// give the server's accept + join-announce handling goroutines a beat
	// to process the inbound connection and JOIN frame.
	time.Sleep(100 * time.Millisecond)

	found := server.Peers.Search([]byte{0x02}, nil)
	defer server.Peers.Put(found)
	// the JOIN frame carries the client's oid zero-padded to wire.IDSize.
	want := make([]byte, wire.IDSize)
	want[0] = 0x02
	if string(found.OID) != string(want) {
		t.Fatalf("expected server to have repositioned the peer under oid 0x02, found %x", found.OID)
	}
}

func TestWriteFileThenReadFileAcrossNodes(t *testing.T) {
	server := newTestNode(t, 0x01)
	client := newTestNode(t, 0x02)

	client.cfg.SeedAddrs = []string{server.listener.Addr().String()}
	client.Join()
	time.Sleep(100 * time.Millisecond)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "object.bin")
	if err := os.WriteFile(srcPath, []byte("distributed content"), 0644); err != nil {
		t.Fatalf("WriteFile(src): %v", err)
	}

	nameID, _, err := client.Client.WriteFile(srcPath)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	onDisk, err := os.ReadFile(server.Objects.Path(nameID))
	if err != nil {
		t.Fatalf("reading object on server: %v", err)
	}
	if string(onDisk) != "distributed content" {
		t.Fatalf("expected server-stored object to equal source, got %q", onDisk)
	}

	outPath := filepath.Join(srcDir, "fetched.bin")
	if err := client.Client.ReadFile(srcPath, 0, 0, outPath); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	fetched, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading fetched output: %v", err)
	}
	if string(fetched) != "distributed content" {
		t.Fatalf("expected fetched contents to equal source, got %q", fetched)
	}
}
