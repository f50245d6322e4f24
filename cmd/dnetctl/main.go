// Command dnetctl is an interactive admin client for a running dnetd: a
// liner-driven REPL offering write/read/update/join/status commands against
// internal/client and internal/diag.
//
// REPL shape grounded on miniclient.Conn.Attach (pkg/miniclient/client.go):
// liner.NewLiner, SetCtrlCAborts(true), a Prompt loop that trims, skips
// blank lines, and appends history before dispatch.
package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/ntess/dnetgo/internal/client"
	"github.com/ntess/dnetgo/internal/diag"
	"github.com/ntess/dnetgo/internal/join"
	"github.com/ntess/dnetgo/internal/overlay"
	"github.com/ntess/dnetgo/pkg/transform"
	"github.com/ntess/dnetgo/pkg/wire"
)

var (
	fAddr    = flag.String("addr", "127.0.0.1:7772", "dnetd address to attach to")
	fOID     = flag.String("oid", "ff", "this client's own object id, as hex")
	fTimeout = flag.Duration("timeout", 5*time.Second, "request timeout")
	fRoot    = flag.String("root", ".", "path whose disk/memory diagnostics 'status' reports -- "+
		"there is no remote diagnostics RPC in the wire protocol, so this only means something "+
		"when dnetctl runs colocated with the dnetd it attached to")
)

func usage() {
	fmt.Println("dnetctl, an interactive client for dnetd")
	fmt.Println("usage: dnetctl [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	selfOID, err := hexOID(*fOID)
	if err != nil {
		fmt.Println(err)
		return
	}

	peers := overlay.NewTable(selfOID)
	registry := transform.NewRegistry()
	registry.Add("blake2b", transform.NewBlake2b256())
	registry.Add("sha3-256", transform.NewSHA3_256())

	cl := &client.Client{
		Peers:      peers,
		Trans:      overlay.NewTransactions(),
		Transforms: registry,
		SelfOID:    selfOID,
		Timeout:    *fTimeout,
	}

	if _, err := join.Dial(*fAddr, *fTimeout, peers, nil); err != nil {
		fmt.Printf("connecting to %s: %v\n", *fAddr, err)
		return
	}

	attach(cl)
}

func hexOID(s string) ([]byte, error) {
	var id [wire.IDSize]byte
	n := len(s) / 2
	if n > wire.IDSize {
		n = wire.IDSize
	}
	for i := 0; i < n; i++ {
		b, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("dnetctl: -oid: %w", err)
		}
		id[i] = byte(b)
	}
	return id[:], nil
}

func attach(cl *client.Client) {
	fmt.Println("connected. commands: write <src> , read <obj> <offset> <size> <dest> , " +
		"update <obj> <offset> <text> , join <addr> , status , quit")

	input := liner.NewLiner()
	defer input.Close()

	input.SetCtrlCAborts(true)
	input.SetTabCompletionStyle(liner.TabPrints)

	for {
		line, err := input.Prompt("dnetctl$ ")
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		if line == "quit" || line == "disconnect" {
			break
		}

		if err := dispatch(cl, line); err != nil {
			fmt.Println(err)
		}
	}
}

func dispatch(cl *client.Client, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "write":
		if len(fields) != 2 {
			return fmt.Errorf("usage: write <src>")
		}
		nameID, contentID, err := cl.WriteFile(fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("name-id=%x content-id=%x\n", nameID, contentID)
		return nil

	case "read":
		if len(fields) != 5 {
			return fmt.Errorf("usage: read <obj> <offset> <size> <dest>")
		}
		offset, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return fmt.Errorf("usage: read <obj> <offset> <size> <dest>: %w", err)
		}
		size, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return fmt.Errorf("usage: read <obj> <offset> <size> <dest>: %w", err)
		}
		return cl.ReadFile(fields[1], offset, size, fields[4])

	case "update":
		if len(fields) != 4 {
			return fmt.Errorf("usage: update <obj> <offset> <text>")
		}
		offset, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return fmt.Errorf("usage: update <obj> <offset> <text>: %w", err)
		}
		nameID, contentID, err := cl.UpdateFile(fields[1], offset, []byte(fields[3]), false)
		if err != nil {
			return err
		}
		fmt.Printf("name-id=%x content-id=%x\n", nameID, contentID)
		return nil

	case "join":
		if len(fields) != 2 {
			return fmt.Errorf("usage: join <addr>")
		}
		if _, err := join.Dial(fields[1], *fTimeout, cl.Peers, nil); err != nil {
			return err
		}
		fmt.Printf("joined %s\n", fields[1])
		return nil

	case "status":
		return printStatus()

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func printStatus() error {
	snap, err := diag.Read(*fRoot)
	if err != nil {
		return err
	}
	fmt.Printf("disk: %d/%d bytes free, mem: %d/%d kB free\n",
		snap.FreeBytes, snap.TotalBytes, snap.MemFreeKB, snap.MemTotalKB)
	return nil
}
