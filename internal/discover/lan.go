package discover

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	log "github.com/ntess/dnetgo/pkg/minilog"
)

// DefaultGroup is the multicast group+port LAN discovery solicits on by
// default.
const DefaultGroup = "239.255.42.99:7773"

const solicitMagic = "dnet-solicit"

// LAN solicits an initial join candidate over a scoped multicast group.
// Grounded on meshage.Node.checkDegree/broadcastListener's net.DialUDP/
// net.ListenUDP subnet-broadcast idiom (src/meshage/node.go), adapted from
// subnet-wide broadcast to a joined multicast group via golang.org/x/net/
// ipv4, since an object-store overlay reasonably wants a scoped discovery
// channel rather than broadcast noise on every host in the subnet.
type LAN struct {
	group *net.UDPAddr
	pconn *ipv4.PacketConn
}

// NewLAN joins groupAddr (host:port) on every available interface. An empty
// groupAddr uses DefaultGroup.
func NewLAN(groupAddr string) (*LAN, error) {
	if groupAddr == "" {
		groupAddr = DefaultGroup
	}

	gaddr, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, err
	}

	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", gaddr.Port))
	if err != nil {
		return nil, err
	}
	pconn := ipv4.NewPacketConn(pc)

	ifaces, err := net.Interfaces()
	if err != nil {
		pconn.Close()
		return nil, err
	}

	joined := 0
	for i := range ifaces {
		if err := pconn.JoinGroup(&ifaces[i], &net.UDPAddr{IP: gaddr.IP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		pconn.Close()
		return nil, fmt.Errorf("discover: could not join %s on any interface", groupAddr)
	}

	return &LAN{group: gaddr, pconn: pconn}, nil
}

// Close leaves the multicast group and releases the socket.
func (l *LAN) Close() error { return l.pconn.Close() }

// Solicit broadcasts a single solicitation datagram to the group.
func (l *LAN) Solicit() error {
	conn, err := net.DialUDP("udp4", nil, l.group)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte(solicitMagic))
	return err
}

// Listen blocks, invoking handle once per solicitation received on the
// group. Solicitations are not filtered by sender, so ones this process
// sent itself are delivered too. It returns only on a socket error
// (including Close being called from another goroutine).
func (l *LAN) Listen(handle func(addr *net.UDPAddr)) error {
	buf := make([]byte, len(solicitMagic))
	for {
		n, _, src, err := l.pconn.ReadFrom(buf)
		if err != nil {
			return err
		}
		if string(buf[:n]) != solicitMagic {
			continue
		}

		udpAddr, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		log.Debug("discover: solicitation from %v", udpAddr)
		handle(udpAddr)
	}
}
