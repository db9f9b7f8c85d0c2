package encoding

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, packets ...Packet) []byte {
	t.Helper()

	var stream []byte
	for _, pkt := range packets {
		var err error
		stream, err = Append(stream, pkt)
		require.NoError(t, err)
	}
	return stream
}

func TestDecoder_SinglePacket(t *testing.T) {
	stream := encodeAll(t, &PublishPacket{Version: Version311, TopicName: "t", Payload: []byte("p")})

	decoder := NewDecoder(bytes.NewReader(stream), Version311)

	pkt, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, "t", pkt.(*PublishPacket).TopicName)

	_, err = decoder.Decode()
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, decoder.Buffered())
}

func TestDecoder_OneBytePerRead(t *testing.T) {
	packets := []Packet{
		&ConnectPacket{Version: Version311, CleanStart: true, KeepAlive: 60, ClientID: "slow"},
		&SubscribePacket{Version: Version311, PacketID: 1, Subscriptions: []Subscription{{TopicFilter: "a/#", QoS: QoS1}}},
		&PingreqPacket{},
	}
	stream := encodeAll(t, packets...)

	decoder := NewDecoder(iotest.OneByteReader(bytes.NewReader(stream)), Version311)

	for _, expected := range packets {
		pkt, err := decoder.Decode()
		require.NoError(t, err)
		assert.Equal(t, expected, pkt)
	}

	_, err := decoder.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_PipelinedPackets(t *testing.T) {
	// Several packets arriving in one buffer fill
	stream := encodeAll(t,
		&PublishPacket{Version: Version50, TopicName: "a", Payload: []byte("1")},
		&PublishPacket{Version: Version50, TopicName: "b", Payload: []byte("2")},
		&PubackPacket{Version: Version50, PacketID: 9},
	)

	decoder := NewDecoder(bytes.NewReader(stream), Version50)

	first, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, "a", first.(*PublishPacket).TopicName)

	// The rest of the fill is retained for subsequent packets
	assert.Positive(t, decoder.Buffered())

	second, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, "b", second.(*PublishPacket).TopicName)

	third, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, uint16(9), third.(*PubackPacket).PacketID)

	_, err = decoder.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_VersionFromConnect(t *testing.T) {
	stream := encodeAll(t,
		&ConnectPacket{Version: Version50, CleanStart: true, ClientID: "auto"},
		&DisconnectPacket{Version: Version50, ReasonCode: ReasonServerShuttingDown},
	)

	decoder := NewDecoder(bytes.NewReader(stream), 0)
	assert.Equal(t, ProtocolVersion(0), decoder.Version())

	first, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, Version50, first.(*ConnectPacket).Version)
	assert.Equal(t, Version50, decoder.Version())

	second, err := decoder.Decode()
	require.NoError(t, err)
	assert.Equal(t, ReasonServerShuttingDown, second.(*DisconnectPacket).ReasonCode)
}

func TestDecoder_VersionDeferredRequiresConnect(t *testing.T) {
	stream := encodeAll(t, &PingreqPacket{})

	decoder := NewDecoder(bytes.NewReader(stream), 0)

	_, err := decoder.Decode()
	require.Error(t, err)
}

func TestDecoder_PacketTooLarge(t *testing.T) {
	big := &PublishPacket{
		Version:   Version311,
		TopicName: "t",
		Payload:   bytes.Repeat([]byte{0xAB}, 64*1024),
	}
	stream := encodeAll(t, big)

	decoder := NewDecoder(bytes.NewReader(stream), Version311, WithMaxPacketSize(256))

	_, err := decoder.Decode()
	require.ErrorIs(t, err, ErrPacketTooLarge)
	assert.Equal(t, ReasonPacketTooLarge, GetReasonCode(err))

	// The limit fires off the fixed header, before the body is buffered
	assert.Less(t, decoder.Buffered(), len(stream))
}

func TestDecoder_PacketWithinLimit(t *testing.T) {
	pkt := &PublishPacket{
		Version:   Version311,
		TopicName: "t",
		Payload:   bytes.Repeat([]byte{0xCD}, 100),
	}
	stream := encodeAll(t, pkt)

	decoder := NewDecoder(bytes.NewReader(stream), Version311, WithMaxPacketSize(256))

	decoded, err := decoder.Decode()
	require.NoError(t, err)
	assert.Len(t, decoded.(*PublishPacket).Payload, 100)
}

func TestDecoder_TruncatedStream(t *testing.T) {
	stream := encodeAll(t, &ConnectPacket{Version: Version311, CleanStart: true, ClientID: "cut"})

	decoder := NewDecoder(bytes.NewReader(stream[:len(stream)-2]), Version311)

	_, err := decoder.Decode()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecoder_MalformedPacketSurfaces(t *testing.T) {
	// PUBLISH with QoS 3 in the control byte
	decoder := NewDecoder(bytes.NewReader([]byte{0x36, 0x02, 0x00, 0x00}), Version311)

	_, err := decoder.Decode()
	require.ErrorIs(t, err, ErrInvalidQoS)
}

func TestDecoder_BufferShrinksWhenIdle(t *testing.T) {
	big := &PublishPacket{
		Version:   Version311,
		TopicName: "t",
		Payload:   bytes.Repeat([]byte{0x01}, 64*1024),
	}
	stream := encodeAll(t, big, &PingreqPacket{})

	decoder := NewDecoder(bytes.NewReader(stream), Version311,
		WithMaxPacketSize(1<<20), WithIdleBufferSize(512))

	_, err := decoder.Decode()
	require.NoError(t, err)

	_, err = decoder.Decode()
	require.NoError(t, err)

	// After draining, the retained capacity returns to the idle size
	assert.Zero(t, decoder.Buffered())
	assert.LessOrEqual(t, cap(decoder.buf), 512)
}

func TestDecoder_RoundTripAllTypes(t *testing.T) {
	packets := samplePackets(t)

	// Group by version so each stream is internally consistent
	byVersion := map[ProtocolVersion][]Packet{}
	for _, pkt := range packets {
		v := packetVersion(pkt)
		byVersion[v] = append(byVersion[v], pkt)
	}

	for version, group := range byVersion {
		stream := encodeAll(t, group...)

		decoder := NewDecoder(iotest.HalfReader(bytes.NewReader(stream)), version)
		for _, expected := range group {
			pkt, err := decoder.Decode()
			require.NoError(t, err, "%s %s", version, expected.Type())
			assert.Equal(t, expected, pkt)
		}

		_, err := decoder.Decode()
		assert.ErrorIs(t, err, io.EOF)
	}
}
