package wire

import (
	"net"
	"testing"
)

func TestEncodeDecodeAddrV4(t *testing.T) {
	want := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1234}

	aa := EncodeAddr(want)
	got, err := DecodeAddr(aa)
	if err != nil {
		t.Fatalf("DecodeAddr: %v", err)
	}

	gotTCP := got.(*net.TCPAddr)
	if !gotTCP.IP.Equal(want.IP) || gotTCP.Port != want.Port {
		t.Fatalf("round trip mismatch: want %v, got %v", want, gotTCP)
	}
}

func TestEncodeDecodeAddrV6(t *testing.T) {
	want := &net.TCPAddr{IP: net.ParseIP("fe80::1"), Port: 5353}

	aa := EncodeAddr(want)
	if aa.Family != FamilyInet6 {
		t.Fatalf("expected FamilyInet6, got %d", aa.Family)
	}

	got, err := DecodeAddr(aa)
	if err != nil {
		t.Fatalf("DecodeAddr: %v", err)
	}
	gotTCP := got.(*net.TCPAddr)
	if !gotTCP.IP.Equal(want.IP) || gotTCP.Port != want.Port {
		t.Fatalf("round trip mismatch: want %v, got %v", want, gotTCP)
	}
}
