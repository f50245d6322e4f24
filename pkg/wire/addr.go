package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Address family / socket type / protocol numbers carried in an AddrAttr.
// These mirror the POSIX constants the reference design reads off a real
// sockaddr, but since this implementation never hands the bytes to a kernel
// socket API directly -- only encodes/decodes its own *net.TCPAddr -- their
// values only need to be stable across this package's own EncodeAddr/
// DecodeAddr pair.
const (
	FamilyInet  = 2
	FamilyInet6 = 10

	SockStream = 1
	ProtoTCP   = 6
)

// EncodeAddr packs a *net.TCPAddr into an address attribute: a 2-byte port
// followed by the raw IP bytes, same layout whether v4 or v6, distinguished
// by Family.
func EncodeAddr(addr net.Addr) AddrAttr {
	var aa AddrAttr

	tcp, ok := addr.(*net.TCPAddr)
	if !ok || tcp == nil {
		return aa
	}

	aa.SockType = SockStream
	aa.Proto = ProtoTCP

	if ip4 := tcp.IP.To4(); ip4 != nil {
		aa.Family = FamilyInet
		aa.AddrLen = 2 + 4
		binary.BigEndian.PutUint16(aa.Addr[0:2], uint16(tcp.Port))
		copy(aa.Addr[2:6], ip4)
		return aa
	}

	ip6 := tcp.IP.To16()
	aa.Family = FamilyInet6
	aa.AddrLen = 2 + 16
	binary.BigEndian.PutUint16(aa.Addr[0:2], uint16(tcp.Port))
	copy(aa.Addr[2:18], ip6)
	return aa
}

// DecodeAddr is EncodeAddr's inverse.
func DecodeAddr(aa AddrAttr) (net.Addr, error) {
	port := int(binary.BigEndian.Uint16(aa.Addr[0:2]))

	switch aa.Family {
	case FamilyInet:
		ip := append([]byte(nil), aa.Addr[2:6]...)
		return &net.TCPAddr{IP: net.IP(ip), Port: port}, nil
	case FamilyInet6:
		ip := append([]byte(nil), aa.Addr[2:18]...)
		return &net.TCPAddr{IP: net.IP(ip), Port: port}, nil
	default:
		return nil, fmt.Errorf("wire: unknown address family %d", aa.Family)
	}
}
