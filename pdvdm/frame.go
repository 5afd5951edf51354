package pdvdm

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Frame is a VDM together with the scope it was sent or received on. The
// byte form is the scope, the object count and the objects in USB PD
// (little endian) order.
type Frame struct {
	Scope   Scope
	Objects []uint32
}

func NewFrame(scope Scope, hdr Header, vdos ...uint32) Frame {
	return Frame{
		Scope:   scope,
		Objects: append([]uint32{uint32(hdr)}, vdos...),
	}
}

func (f Frame) Header() Header {
	if len(f.Objects) == 0 {
		return 0
	}
	return Header(f.Objects[0])
}

// VDOs returns the objects following the header.
func (f Frame) VDOs() []uint32 {
	if len(f.Objects) < 2 {
		return nil
	}
	return f.Objects[1:]
}

func bufExtract(input []byte, n int) ([]byte, []byte, error) {
	if len(input) < n {
		return nil, nil, errors.New("buffer too short")
	}
	return input[:n], input[n:], nil
}

func (f Frame) Marshal() []byte {
	buf := make([]byte, 2, 2+4*len(f.Objects))
	buf[0] = byte(f.Scope)
	buf[1] = byte(len(f.Objects))

	var w [4]byte
	for _, m := range f.Objects {
		binary.LittleEndian.PutUint32(w[:], m)
		buf = append(buf, w[:]...)
	}
	return buf
}

func (f *Frame) Unmarshal(data []byte) error {
	var err error
	var hdr []byte

	if hdr, data, err = bufExtract(data, 2); err != nil {
		return err
	}
	if hdr[0] >= NumScopes {
		return fmt.Errorf("invalid scope %d", hdr[0])
	}

	count := int(hdr[1])
	if count == 0 || count > MaxObjects {
		return fmt.Errorf("invalid object count %d", count)
	}

	f.Scope = Scope(hdr[0])
	f.Objects = make([]uint32, count)
	for i := range f.Objects {
		var obj []byte
		if obj, data, err = bufExtract(data, 4); err != nil {
			return err
		}
		f.Objects[i] = binary.LittleEndian.Uint32(obj)
	}

	if len(data) != 0 {
		return errors.New("extra data received")
	}
	return nil
}

// ParseObjects parses a whitespace or comma separated list of hex words
// such as "ff01a043 00001c46".
func ParseObjects(s string) ([]uint32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 || len(fields) > MaxObjects {
		return nil, fmt.Errorf("expected 1 to %d objects, got %d", MaxObjects, len(fields))
	}

	out := make([]uint32, 0, len(fields))
	for _, m := range fields {
		m = strings.TrimPrefix(strings.ToLower(m), "0x")
		if len(m) > 8 {
			return nil, fmt.Errorf("object %q too long", m)
		}
		m = strings.Repeat("0", 8-len(m)) + m
		raw, err := hex.DecodeString(m)
		if err != nil {
			return nil, err
		}
		out = append(out, binary.BigEndian.Uint32(raw))
	}
	return out, nil
}

func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", f.Scope, f.Header())
	for _, m := range f.VDOs() {
		fmt.Fprintf(&b, " %08x", m)
	}
	return b.String()
}
