package encoding

import (
	"io"
)

// Encode surface. Append is the core primitive; Encode adapts it to an
// io.Writer, and EncodedLen prices a packet without producing bytes.
// Encoding validates the §-invariants of the packet first, so a packet that
// could not have been produced by a successful decode is refused rather
// than emitted as garbage.

// Append appends the full encoding of p (fixed header and body) to dst and
// returns the extended slice.
func Append(dst []byte, p Packet) ([]byte, error) {
	if err := p.validate(); err != nil {
		return dst, err
	}

	length, err := p.bodyLen()
	if err != nil {
		return dst, err
	}
	if SizeVariableByteInteger(uint32(length)) == 0 {
		return dst, ErrInvalidRemainingLength
	}

	dst = append(dst, byte(p.Type())<<4|p.fixedFlags()&0x0F)
	dst, err = AppendVariableByteInteger(dst, uint32(length))
	if err != nil {
		return dst, err
	}

	return p.appendBody(dst)
}

// Encode writes the full encoding of p to w
func Encode(p Packet, w io.Writer) error {
	length, err := EncodedLen(p)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, length)
	buf, err = Append(buf, p)
	if err != nil {
		return err
	}

	_, err = w.Write(buf)
	return err
}

// EncodedLen returns the exact number of bytes Append would produce for p,
// without encoding. It fails with the same errors Append would.
func EncodedLen(p Packet) (int, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	length, err := p.bodyLen()
	if err != nil {
		return 0, err
	}

	prefix := SizeVariableByteInteger(uint32(length))
	if prefix == 0 {
		return 0, ErrInvalidRemainingLength
	}

	return 1 + prefix + length, nil
}
