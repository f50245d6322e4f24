package wire

import (
	"errors"
	"io"
)

// ErrProto is returned when a frame or attribute stream is malformed -- a
// truncated header, an attribute whose declared size overruns the command,
// or an unknown attribute selector. Per spec this is fatal for the
// connection carrying it.
var ErrProto = errors.New("wire: protocol error")

// ReadCmd reads one frame's header and payload from r. The returned payload
// is exactly cmd.Size bytes and has not been interpreted as attributes yet.
func ReadCmd(r io.Reader) (Cmd, []byte, error) {
	hdr := make([]byte, CmdSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Cmd{}, nil, err
	}
	cmd := UnmarshalCmd(hdr)

	payload := make([]byte, cmd.Size)
	if cmd.Size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Cmd{}, nil, err
		}
	}

	return cmd, payload, nil
}

// WriteCmd writes a frame's header followed by payload in one call. Callers
// that need to interleave a header with a large body (e.g. a READ chunk
// backed by a file) should use WriteHeader and write the body themselves
// under the same send-lock acquisition, per the spec's single-acquisition
// framing rule.
func WriteCmd(w io.Writer, cmd Cmd, payload []byte) error {
	if err := WriteHeader(w, cmd); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// WriteHeader writes just the cmd header, converted to wire order.
func WriteHeader(w io.Writer, cmd Cmd) error {
	_, err := w.Write(MarshalCmd(cmd))
	return err
}

// AttrRecord is one parsed attribute header plus the slice of its body
// within the original payload (no copy).
type AttrRecord struct {
	Attr Attr
	Body []byte
}

// ParseAttrs walks a command payload into its attribute records. Per spec
// section 4.F / 8, any attribute whose declared size would overrun the
// remaining bytes (including a header that itself doesn't fit) is a fatal
// ErrProto, and no further attributes are returned.
func ParseAttrs(payload []byte) ([]AttrRecord, error) {
	var recs []AttrRecord

	for len(payload) > 0 {
		if len(payload) < AttrSize {
			return nil, ErrProto
		}

		a := UnmarshalAttr(payload[:AttrSize])
		payload = payload[AttrSize:]

		if uint64(a.Size) > uint64(len(payload)) {
			return nil, ErrProto
		}

		recs = append(recs, AttrRecord{Attr: a, Body: payload[:a.Size]})
		payload = payload[a.Size:]
	}

	return recs, nil
}

// BuildAttr concatenates an attribute header (with Size set to len(body))
// and its body, ready to append to a command payload.
func BuildAttr(cmd MessageCmd, flags Flags, body []byte) []byte {
	a := Attr{Cmd: cmd, Size: uint32(len(body)), Flags: flags}
	out := make([]byte, 0, AttrSize+len(body))
	out = append(out, MarshalAttr(a)...)
	out = append(out, body...)
	return out
}
