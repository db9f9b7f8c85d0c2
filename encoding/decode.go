package encoding

import (
	"errors"
)

// Sync decode surface. Decode works on a byte slice the caller already
// holds; the streaming Decoder in stream.go layers buffering on top of it.

// Decode decodes the next packet of the given protocol version from the
// front of data. It returns the packet and the number of bytes consumed.
//
// When data does not yet hold a complete packet, the error is an
// *InsufficientDataError whose Need field is a lower bound on the missing
// bytes (exact once the remaining length has been parsed). Decode never
// reads past the remaining length of the first packet in data.
//
// CONNECT carries its own version in the protocol name and level bytes; it
// is decoded from those and then checked against version, failing with
// ErrInvalidProtocolVersion on mismatch. Use DecodeConnect for the
// version-autodetecting path.
func Decode(version ProtocolVersion, data []byte) (Packet, int, error) {
	if !version.IsValid() {
		return nil, 0, ErrInvalidProtocolVersion
	}

	pkt, n, err := decodePacket(version, data)
	if err != nil {
		return nil, 0, err
	}

	if connect, ok := pkt.(*ConnectPacket); ok && connect.Version != version {
		return nil, 0, ErrInvalidProtocolVersion
	}

	return pkt, n, nil
}

// DecodeConnect decodes a CONNECT packet, selecting the protocol version
// from the protocol name and level bytes in its variable header. This is the
// entry point for the first packet of a connection, before any version has
// been negotiated.
func DecodeConnect(data []byte) (*ConnectPacket, int, error) {
	pkt, n, err := decodePacket(Version50, data)
	if err != nil {
		return nil, 0, err
	}

	connect, ok := pkt.(*ConnectPacket)
	if !ok {
		return nil, 0, NewMalformedPacketError(ErrInvalidType, "expected CONNECT")
	}

	return connect, n, nil
}

// decodePacket frames the next packet and dispatches to the body decoder.
// CONNECT always autodetects its version.
func decodePacket(version ProtocolVersion, data []byte) (Packet, int, error) {
	fh, n, err := DecodeFixedHeader(data)
	if err != nil {
		return nil, 0, err
	}

	rest := data[n:]
	if len(rest) < int(fh.RemainingLength) {
		return nil, 0, &InsufficientDataError{Need: int(fh.RemainingLength) - len(rest)}
	}

	body := rest[:fh.RemainingLength]
	consumed := n + int(fh.RemainingLength)

	pkt, err := decodeBody(version, fh, body)
	if err != nil {
		// A field that runs off the end of a complete body means the
		// remaining length lied about the layout
		if errors.Is(err, ErrUnexpectedEOF) {
			return nil, 0, NewMalformedPacketError(ErrMalformedPacket, "field extends past remaining length")
		}
		return nil, 0, err
	}

	return pkt, consumed, nil
}

func decodeBody(version ProtocolVersion, fh FixedHeader, body []byte) (Packet, error) {
	switch fh.Type {
	case CONNECT:
		return decodeConnectBody(body)
	case CONNACK:
		return decodeConnackBody(version, body)
	case PUBLISH:
		return decodePublishBody(version, fh, body)
	case PUBACK:
		pid, rc, props, err := decodeAckBody(version, PUBACK, body)
		if err != nil {
			return nil, err
		}
		return &PubackPacket{Version: version, PacketID: pid, ReasonCode: rc, Properties: props}, nil
	case PUBREC:
		pid, rc, props, err := decodeAckBody(version, PUBREC, body)
		if err != nil {
			return nil, err
		}
		return &PubrecPacket{Version: version, PacketID: pid, ReasonCode: rc, Properties: props}, nil
	case PUBREL:
		pid, rc, props, err := decodeAckBody(version, PUBREL, body)
		if err != nil {
			return nil, err
		}
		return &PubrelPacket{Version: version, PacketID: pid, ReasonCode: rc, Properties: props}, nil
	case PUBCOMP:
		pid, rc, props, err := decodeAckBody(version, PUBCOMP, body)
		if err != nil {
			return nil, err
		}
		return &PubcompPacket{Version: version, PacketID: pid, ReasonCode: rc, Properties: props}, nil
	case SUBSCRIBE:
		return decodeSubscribeBody(version, body)
	case SUBACK:
		return decodeSubackBody(version, body)
	case UNSUBSCRIBE:
		return decodeUnsubscribeBody(version, body)
	case UNSUBACK:
		return decodeUnsubackBody(version, body)
	case PINGREQ:
		if len(body) != 0 {
			return nil, NewMalformedPacketError(ErrTrailingBytes, "PINGREQ body must be empty")
		}
		return &PingreqPacket{}, nil
	case PINGRESP:
		if len(body) != 0 {
			return nil, NewMalformedPacketError(ErrTrailingBytes, "PINGRESP body must be empty")
		}
		return &PingrespPacket{}, nil
	case DISCONNECT:
		return decodeDisconnectBody(version, body)
	case AUTH:
		if version != Version50 {
			return nil, NewMalformedPacketError(ErrInvalidType, "AUTH requires MQTT 5.0")
		}
		return decodeAuthBody(body)
	default:
		return nil, ErrInvalidType
	}
}
