// Package wire implements the node's binary framing: fixed-size headers
// converted between host and network byte order, and the attribute stream
// that makes up a command payload.
//
// The style is adapted from the struct-parsing idiom used for binary kernel
// headers elsewhere in the reference corpus (fixed-size struct, explicit
// byte-order conversion, no reflection) since the teacher's own mesh
// transport serializes with encoding/gob and has no analogous codec to
// generalize directly.
package wire

import "encoding/binary"

// IDSize is the default width of an object/overlay identifier. Individual
// nodes may be constructed with a different width; OID is just []byte.
const IDSize = 32

// Command selectors carried in an Attr header.
const (
	CmdLookup MessageCmd = iota
	CmdReverseLookup
	CmdJoin
	CmdWrite
	CmdRead
	CmdList
)

// MessageCmd is an attribute's operation selector.
type MessageCmd uint32

// Flag bits for Cmd.Flags.
const (
	FlagNeedAck Flags = 1 << iota
	FlagMore
	FlagDestroy
)

// Flags is the cmd header's bitset.
type Flags uint32

// IO attribute flag bits.
const (
	IOAppend IOFlags = 1 << iota
	IOUpdate
)

// IOFlags is the io_attr flag bitset.
type IOFlags uint32

// replyBit is the high bit of Cmd.Trans that marks a reply frame.
const replyBit = uint64(1) << 63

// Cmd is the fixed header that begins every frame.
type Cmd struct {
	ID     [IDSize]byte // source OID
	Flags  Flags
	Status int32
	Size   uint64 // bytes following this header
	Trans  uint64 // transaction number, high bit = reply
}

// TransNumber returns the 63-bit transaction number, stripped of the reply bit.
func (c *Cmd) TransNumber() uint64 { return c.Trans &^ replyBit }

// IsReply reports whether the reply bit is set on Trans.
func (c *Cmd) IsReply() bool { return c.Trans&replyBit != 0 }

// SetReply sets or clears the reply bit, preserving the transaction number.
func (c *Cmd) SetReply(reply bool) {
	if reply {
		c.Trans |= replyBit
	} else {
		c.Trans &^= replyBit
	}
}

// Attr is the header preceding every attribute body within a command payload.
type Attr struct {
	Cmd   MessageCmd
	Size  uint32 // payload bytes following this header
	Flags Flags
}

// IOAttr is the read/write operation body.
type IOAttr struct {
	ID     [IDSize]byte
	Offset uint64
	Size   uint64
	Flags  IOFlags
}

// AddrAttr describes a peer's listening address.
type AddrAttr struct {
	Addr     [28]byte // raw sockaddr bytes, zero-padded
	AddrLen  uint32
	SockType int32
	Proto    int32
	Family   uint16
}

// AddrCmd is the composite cmd+attr+addr_attr used by lookup/join/reverse-lookup.
type AddrCmd struct {
	Cmd  Cmd
	Attr Attr
	Addr AddrAttr
}

// ConvertCmd toggles Cmd's multi-byte fields between host and network order.
// It is its own inverse: calling it twice restores the original bit pattern.
func ConvertCmd(c *Cmd) {
	c.Flags = Flags(swap32(uint32(c.Flags)))
	c.Status = int32(swap32(uint32(c.Status)))
	c.Size = swap64(c.Size)
	c.Trans = swap64(c.Trans)
}

// ConvertAttr toggles Attr's multi-byte fields.
func ConvertAttr(a *Attr) {
	a.Cmd = MessageCmd(swap32(uint32(a.Cmd)))
	a.Size = swap32(a.Size)
	a.Flags = Flags(swap32(uint32(a.Flags)))
}

// ConvertIOAttr toggles IOAttr's multi-byte fields.
func ConvertIOAttr(io *IOAttr) {
	io.Offset = swap64(io.Offset)
	io.Size = swap64(io.Size)
	io.Flags = IOFlags(swap32(uint32(io.Flags)))
}

// ConvertAddrAttr toggles AddrAttr's multi-byte fields.
func ConvertAddrAttr(a *AddrAttr) {
	a.AddrLen = swap32(a.AddrLen)
	a.SockType = int32(swap32(uint32(a.SockType)))
	a.Proto = int32(swap32(uint32(a.Proto)))
	a.Family = swap16(a.Family)
}

// ConvertAddrCmd converts an AddrCmd's members in wire order: cmd, then attr,
// then address attribute. This ordering is part of the protocol, per spec.
func ConvertAddrCmd(c *AddrCmd) {
	ConvertCmd(&c.Cmd)
	ConvertAttr(&c.Attr)
	ConvertAddrAttr(&c.Addr)
}

func swap16(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

func swap32(v uint32) uint32 {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return binary.LittleEndian.Uint32(b[:])
}

func swap64(v uint64) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return binary.LittleEndian.Uint64(b[:])
}
