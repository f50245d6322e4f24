package wire

import "encoding/binary"

// Fixed wire sizes of each header, independent of any Go struct padding.
const (
	CmdSize      = IDSize + 4 + 4 + 8 + 8
	AttrSize     = 4 + 4 + 4
	IOAttrSize   = IDSize + 8 + 8 + 4
	AddrAttrSize = 28 + 4 + 4 + 4 + 2
)

// encodeCmd/decodeCmd place Cmd's fields into/out of a byte slice verbatim
// (no byte-order conversion -- callers apply ConvertCmd immediately before
// encoding and immediately after decoding, per the codec's design).
func encodeCmd(c *Cmd) []byte {
	b := make([]byte, CmdSize)
	n := copy(b, c.ID[:])
	binary.LittleEndian.PutUint32(b[n:], uint32(c.Flags))
	n += 4
	binary.LittleEndian.PutUint32(b[n:], uint32(c.Status))
	n += 4
	binary.LittleEndian.PutUint64(b[n:], c.Size)
	n += 8
	binary.LittleEndian.PutUint64(b[n:], c.Trans)
	return b
}

func decodeCmd(b []byte) Cmd {
	var c Cmd
	n := copy(c.ID[:], b[:IDSize])
	c.Flags = Flags(binary.LittleEndian.Uint32(b[n:]))
	n += 4
	c.Status = int32(binary.LittleEndian.Uint32(b[n:]))
	n += 4
	c.Size = binary.LittleEndian.Uint64(b[n:])
	n += 8
	c.Trans = binary.LittleEndian.Uint64(b[n:])
	return c
}

func encodeAttr(a *Attr) []byte {
	b := make([]byte, AttrSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(a.Cmd))
	binary.LittleEndian.PutUint32(b[4:], a.Size)
	binary.LittleEndian.PutUint32(b[8:], uint32(a.Flags))
	return b
}

func decodeAttr(b []byte) Attr {
	return Attr{
		Cmd:   MessageCmd(binary.LittleEndian.Uint32(b[0:])),
		Size:  binary.LittleEndian.Uint32(b[4:]),
		Flags: Flags(binary.LittleEndian.Uint32(b[8:])),
	}
}

func encodeIOAttr(io *IOAttr) []byte {
	b := make([]byte, IOAttrSize)
	n := copy(b, io.ID[:])
	binary.LittleEndian.PutUint64(b[n:], io.Offset)
	n += 8
	binary.LittleEndian.PutUint64(b[n:], io.Size)
	n += 8
	binary.LittleEndian.PutUint32(b[n:], uint32(io.Flags))
	return b
}

func decodeIOAttr(b []byte) IOAttr {
	var io IOAttr
	n := copy(io.ID[:], b[:IDSize])
	io.Offset = binary.LittleEndian.Uint64(b[n:])
	n += 8
	io.Size = binary.LittleEndian.Uint64(b[n:])
	n += 8
	io.Flags = IOFlags(binary.LittleEndian.Uint32(b[n:]))
	return io
}

func encodeAddrAttr(a *AddrAttr) []byte {
	b := make([]byte, AddrAttrSize)
	n := copy(b, a.Addr[:])
	binary.LittleEndian.PutUint32(b[n:], a.AddrLen)
	n += 4
	binary.LittleEndian.PutUint32(b[n:], uint32(a.SockType))
	n += 4
	binary.LittleEndian.PutUint32(b[n:], uint32(a.Proto))
	n += 4
	binary.LittleEndian.PutUint16(b[n:], a.Family)
	return b
}

func decodeAddrAttr(b []byte) AddrAttr {
	var a AddrAttr
	n := copy(a.Addr[:], b[:28])
	a.AddrLen = binary.LittleEndian.Uint32(b[n:])
	n += 4
	a.SockType = int32(binary.LittleEndian.Uint32(b[n:]))
	n += 4
	a.Proto = int32(binary.LittleEndian.Uint32(b[n:]))
	n += 4
	a.Family = binary.LittleEndian.Uint16(b[n:])
	return a
}

// MarshalCmd converts c to network order and serializes it.
func MarshalCmd(c Cmd) []byte {
	ConvertCmd(&c)
	return encodeCmd(&c)
}

// UnmarshalCmd deserializes a Cmd header and converts it to host order.
func UnmarshalCmd(b []byte) Cmd {
	c := decodeCmd(b)
	ConvertCmd(&c)
	return c
}

// MarshalAttr converts a to network order and serializes it.
func MarshalAttr(a Attr) []byte {
	ConvertAttr(&a)
	return encodeAttr(&a)
}

// UnmarshalAttr deserializes an Attr header and converts it to host order.
func UnmarshalAttr(b []byte) Attr {
	a := decodeAttr(b)
	ConvertAttr(&a)
	return a
}

// MarshalIOAttr converts io to network order and serializes it.
func MarshalIOAttr(io IOAttr) []byte {
	ConvertIOAttr(&io)
	return encodeIOAttr(&io)
}

// UnmarshalIOAttr deserializes an IOAttr and converts it to host order.
func UnmarshalIOAttr(b []byte) IOAttr {
	io := decodeIOAttr(b)
	ConvertIOAttr(&io)
	return io
}

// MarshalAddrAttr converts a to network order and serializes it.
func MarshalAddrAttr(a AddrAttr) []byte {
	ConvertAddrAttr(&a)
	return encodeAddrAttr(&a)
}

// UnmarshalAddrAttr deserializes an AddrAttr and converts it to host order.
func UnmarshalAddrAttr(b []byte) AddrAttr {
	a := decodeAddrAttr(b)
	ConvertAddrAttr(&a)
	return a
}

// MarshalAddrCmd serializes a full cmd+attr+addr_attr triple in wire order.
func MarshalAddrCmd(c AddrCmd) []byte {
	ConvertAddrCmd(&c)
	b := make([]byte, 0, CmdSize+AttrSize+AddrAttrSize)
	b = append(b, encodeCmd(&c.Cmd)...)
	b = append(b, encodeAttr(&c.Attr)...)
	b = append(b, encodeAddrAttr(&c.Addr)...)
	return b
}

// UnmarshalAddrCmd deserializes a cmd+attr+addr_attr triple.
func UnmarshalAddrCmd(b []byte) AddrCmd {
	var c AddrCmd
	c.Cmd = decodeCmd(b[:CmdSize])
	b = b[CmdSize:]
	c.Attr = decodeAttr(b[:AttrSize])
	b = b[AttrSize:]
	c.Addr = decodeAddrAttr(b[:AddrAttrSize])
	ConvertAddrCmd(&c)
	return c
}
