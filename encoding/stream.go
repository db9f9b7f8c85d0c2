package encoding

import (
	"errors"
	"io"
)

// Streaming decode surface. The Decoder buffers bytes from an io.Reader and
// re-runs the sync decoder whenever more data arrives, which keeps one
// decode path for both surfaces; the sync core is bounded by the remaining
// length, so rework on retry is at most one packet's bytes.

const (
	// DefaultMaxPacketSize bounds incoming packets when the caller sets no
	// explicit limit. The MQTT maximum is 268 MB; nobody wants to buffer
	// that because a length prefix said so.
	DefaultMaxPacketSize uint32 = 1 << 20

	// defaultIdleBufferSize is the capacity the read buffer shrinks back to
	// between packets
	defaultIdleBufferSize = 4096

	// readChunkSize is the minimum free space ensured before a read call
	readChunkSize = 4096
)

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithMaxPacketSize sets the maximum total packet size (fixed header
// included) the decoder will buffer. Larger packets fail with
// ErrPacketTooLarge before their body is read.
func WithMaxPacketSize(limit uint32) DecoderOption {
	return func(d *Decoder) {
		if limit > 0 {
			d.maxPacketSize = limit
		}
	}
}

// WithIdleBufferSize sets the capacity the internal buffer is allowed to
// keep while no packet is in progress
func WithIdleBufferSize(size int) DecoderOption {
	return func(d *Decoder) {
		if size > 0 {
			d.idleSize = size
		}
	}
}

// Decoder reads MQTT packets from a byte stream. It is not safe for
// concurrent use; distinct streams get distinct Decoders.
type Decoder struct {
	r             io.Reader
	version       ProtocolVersion
	maxPacketSize uint32
	idleSize      int

	buf   []byte
	start int // consumed prefix of buf
}

// NewDecoder returns a Decoder for the given stream and protocol version.
//
// A zero version defers version selection to the stream: the first packet
// must then be a CONNECT, and its protocol name and level fix the version
// for the rest of the stream. This is the server-side shape, where the
// version is not known until the client speaks.
func NewDecoder(r io.Reader, version ProtocolVersion, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:             r,
		version:       version,
		maxPacketSize: DefaultMaxPacketSize,
		idleSize:      defaultIdleBufferSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Version returns the protocol version the decoder currently applies.
// Zero until a version-deferred decoder has seen its CONNECT.
func (d *Decoder) Version() ProtocolVersion {
	return d.version
}

// Buffered returns the number of unconsumed bytes held by the decoder
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.start
}

// Decode returns the next packet from the stream, reading as needed. It
// blocks until a full packet is available, the limit is exceeded, or the
// stream errors. io.EOF is returned only on a clean boundary between
// packets; a stream that ends mid-packet yields io.ErrUnexpectedEOF.
func (d *Decoder) Decode() (Packet, error) {
	for {
		window := d.buf[d.start:]

		// The fixed header tells us the full packet size as soon as it is
		// complete; reject oversized packets before buffering their body
		if err := d.checkLimit(window); err != nil {
			return nil, err
		}

		pkt, n, err := d.decodeWindow(window)
		if err == nil {
			d.start += n
			d.release()
			return pkt, nil
		}

		var need *InsufficientDataError
		if !errors.As(err, &need) {
			return nil, err
		}

		if err := d.fill(need.Need); err != nil {
			if err == io.EOF && d.Buffered() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// decodeWindow runs the sync decoder, resolving the version for
// version-deferred streams from the leading CONNECT.
func (d *Decoder) decodeWindow(window []byte) (Packet, int, error) {
	if d.version != 0 {
		return Decode(d.version, window)
	}

	connect, n, err := DecodeConnect(window)
	if err != nil {
		return nil, 0, err
	}
	d.version = connect.Version
	return connect, n, nil
}

// checkLimit fails with ErrPacketTooLarge once the fixed header of the
// pending packet proves it will not fit the configured limit
func (d *Decoder) checkLimit(window []byte) error {
	fh, n, err := DecodeFixedHeader(window)
	if err != nil {
		// Header incomplete or malformed; decodeWindow reports the latter
		return nil
	}

	if uint64(n)+uint64(fh.RemainingLength) > uint64(d.maxPacketSize) {
		return &PacketError{
			Err:        ErrPacketTooLarge,
			ReasonCode: ReasonPacketTooLarge,
		}
	}
	return nil
}

// fill reads at least min more bytes into the buffer, compacting first so
// the consumed prefix does not pin memory
func (d *Decoder) fill(min int) error {
	d.compact()

	total := 0
	for total < min {
		if free := cap(d.buf) - len(d.buf); free < readChunkSize {
			grow := make([]byte, len(d.buf), cap(d.buf)+readChunkSize*2)
			copy(grow, d.buf)
			d.buf = grow
		}

		n, err := d.r.Read(d.buf[len(d.buf):cap(d.buf)])
		d.buf = d.buf[:len(d.buf)+n]
		total += n

		if err != nil {
			if total >= min {
				return nil
			}
			return err
		}
	}
	return nil
}

// compact moves unconsumed bytes to the front of the buffer
func (d *Decoder) compact() {
	if d.start == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.start:])
	d.buf = d.buf[:n]
	d.start = 0
}

// release drops consumed bytes and returns an oversized buffer to the idle
// capacity once no partial packet remains buffered
func (d *Decoder) release() {
	d.compact()
	if len(d.buf) == 0 && cap(d.buf) > d.idleSize {
		d.buf = make([]byte, 0, d.idleSize)
	}
}
