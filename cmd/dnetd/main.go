// Command dnetd runs one node of the overlay: it binds a listener, joins
// any configured seeds, and serves WRITE/READ/LOOKUP/JOIN/LIST requests
// until killed.
//
// Flag style grounded on cmd/minimega/main.go's f_-prefixed flag.* block
// and signal-driven teardown.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/ntess/dnetgo/pkg/minilog"

	"github.com/ntess/dnetgo/internal/config"
	"github.com/ntess/dnetgo/internal/node"
	"github.com/ntess/dnetgo/pkg/wire"
)

func usage() {
	fmt.Println("dnetd, a content-addressed overlay object store node")
	fmt.Println("usage: dnetd [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	config.LogSetup()

	oid := make([]byte, wire.IDSize)
	if _, err := rand.Read(oid); err != nil {
		log.Fatal("dnetd: generating a random oid: %v", err)
	}

	cfg, err := config.NodeConfig(oid)
	if err != nil {
		log.Fatal("dnetd: %v", err)
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Fatal("dnetd: %v", err)
	}

	if err := n.Listen(); err != nil {
		log.Fatal("dnetd: listen: %v", err)
	}

	if len(cfg.SeedAddrs) > 0 {
		n.Join()
	}

	if cfg.LANGroup != "" {
		lan, err := n.StartLANDiscovery()
		if err != nil {
			log.Error("dnetd: LAN discovery disabled: %v", err)
		} else {
			defer lan.Close()
		}
	}

	if cfg.DNSDomain != "" {
		n.SeedFromDNS()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for s := range sig {
		if s == syscall.SIGHUP {
			for _, line := range n.RecentLogs() {
				fmt.Fprintln(os.Stderr, line)
			}
			continue
		}
		break
	}

	log.Info("dnetd: shutting down")
	n.Close()
}
