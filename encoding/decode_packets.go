package encoding

// Per-packet body decoders. Every decoder receives the exact body slice
// framed by the remaining length and must consume all of it; leftover bytes
// after the last defined field are malformed, except the PUBLISH payload
// which is the remainder of the body by definition.

func decodeConnectBody(body []byte) (*ConnectPacket, error) {
	protocolName, offset, err := readUTF8String(body)
	if err != nil {
		return nil, err
	}

	level, n, err := readByte(body[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	version, err := connectVersion(protocolName, level)
	if err != nil {
		return nil, err
	}

	flags, n, err := readByte(body[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	// Reserved bit (bit 0) must be 0
	if flags&0x01 != 0 {
		return nil, NewMalformedPacketError(ErrInvalidConnectFlags, "")
	}

	pkt := &ConnectPacket{
		Version:      version,
		CleanStart:   flags&0x02 != 0,
		UsernameFlag: flags&0x80 != 0,
		PasswordFlag: flags&0x40 != 0,
	}

	willFlag := flags&0x04 != 0
	willQoS := QoS((flags & 0x18) >> 3)
	willRetain := flags&0x20 != 0

	if !willQoS.IsValid() {
		return nil, NewMalformedPacketError(ErrInvalidWillQoS, "")
	}
	if !willFlag && (willQoS != QoS0 || willRetain) {
		return nil, NewProtocolError(ErrWillFlagMismatch, "")
	}

	// v5 relaxed MQTT-3.1.2-22: a password may travel without a username
	if pkt.PasswordFlag && !pkt.UsernameFlag && version != Version50 {
		return nil, NewMalformedPacketError(ErrPasswordWithoutUsername, "")
	}

	pkt.KeepAlive, n, err = readUint16(body[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	if version == Version50 {
		props, n, err := decodeProperties(body[offset:], pmask(CONNECT))
		if err != nil {
			return nil, err
		}
		pkt.Properties = props
		offset += n
	}

	pkt.ClientID, n, err = readUTF8String(body[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	if willFlag {
		will := &Will{QoS: willQoS, Retain: willRetain}

		if version == Version50 {
			willProperties, n, err := decodeProperties(body[offset:], willProps)
			if err != nil {
				return nil, err
			}
			will.Properties = willProperties
			offset += n
		}

		will.Topic, n, err = readUTF8String(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		if err := ValidateTopicName(will.Topic); err != nil {
			return nil, err
		}

		will.Payload, n, err = readBinaryData(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n

		pkt.Will = will
	}

	if pkt.UsernameFlag {
		pkt.Username, n, err = readUTF8String(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
	}

	if pkt.PasswordFlag {
		pkt.Password, n, err = readBinaryData(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
	}

	if offset != len(body) {
		return nil, NewMalformedPacketError(ErrTrailingBytes, "CONNECT")
	}

	return pkt, nil
}

// connectVersion maps the protocol name and level prefix to a revision
func connectVersion(name string, level byte) (ProtocolVersion, error) {
	switch name {
	case "MQIsdp":
		if level != byte(Version31) {
			return 0, ErrInvalidProtocolVersion
		}
		return Version31, nil
	case "MQTT":
		if level != byte(Version311) && level != byte(Version50) {
			return 0, ErrInvalidProtocolVersion
		}
		return ProtocolVersion(level), nil
	default:
		return 0, ErrInvalidProtocolName
	}
}

func decodeConnackBody(version ProtocolVersion, body []byte) (*ConnackPacket, error) {
	flags, offset, err := readByte(body)
	if err != nil {
		return nil, err
	}

	// Bits 7-1 of the acknowledge flags are reserved
	if flags&0xFE != 0 {
		return nil, NewMalformedPacketError(ErrMalformedPacket, "CONNACK acknowledge flags")
	}

	pkt := &ConnackPacket{
		Version:        version,
		SessionPresent: flags&0x01 != 0,
	}

	code, n, err := readByte(body[offset:])
	if err != nil {
		return nil, err
	}
	offset += n
	pkt.ReasonCode = ReasonCode(code)

	if version != Version50 {
		if code > ConnectRefusedNotAuthorized {
			return nil, NewMalformedPacketError(ErrInvalidReturnCode, "")
		}
		if offset != len(body) {
			return nil, NewMalformedPacketError(ErrTrailingBytes, "CONNACK")
		}
		return pkt, nil
	}

	props, n, err := decodeProperties(body[offset:], pmask(CONNACK))
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset != len(body) {
		return nil, NewMalformedPacketError(ErrTrailingBytes, "CONNACK")
	}

	return pkt, nil
}

func decodePublishBody(version ProtocolVersion, fh FixedHeader, body []byte) (*PublishPacket, error) {
	// DUP must be 0 for QoS 0 deliveries
	if fh.QoS == QoS0 && fh.DUP {
		return nil, NewMalformedPacketError(ErrMalformedPacket, "DUP set with QoS 0")
	}

	topic, offset, err := readUTF8String(body)
	if err != nil {
		return nil, err
	}

	pkt := &PublishPacket{
		Version:   version,
		DUP:       fh.DUP,
		QoS:       fh.QoS,
		Retain:    fh.Retain,
		TopicName: topic,
	}

	if fh.QoS > QoS0 {
		pid, n, err := readUint16(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		if pid == 0 {
			return nil, NewProtocolError(ErrInvalidPacketIDZero, "PUBLISH")
		}
		pkt.PacketID = pid
	}

	if version == Version50 {
		props, n, err := decodeProperties(body[offset:], pmask(PUBLISH))
		if err != nil {
			return nil, err
		}
		pkt.Properties = props
		offset += n
	}

	if topic == "" {
		// Only a v5 PUBLISH resolving a topic alias may omit the name
		if _, ok := pkt.Properties.TopicAlias(); !ok || version != Version50 {
			return nil, ErrInvalidTopicName
		}
	} else if err := ValidateTopicName(topic); err != nil {
		return nil, err
	}

	payload := body[offset:]
	if len(payload) > 0 {
		pkt.Payload = make([]byte, len(payload))
		copy(pkt.Payload, payload)
	}

	return pkt, nil
}

// decodeAckBody parses the shared PUBACK/PUBREC/PUBREL/PUBCOMP layout.
// The two-byte short form decodes to reason Success; the three-byte
// reason-code-only form keeps its reason code. Both have empty properties.
func decodeAckBody(version ProtocolVersion, pktType PacketType, body []byte) (uint16, ReasonCode, Properties, error) {
	var props Properties

	pid, offset, err := readUint16(body)
	if err != nil {
		return 0, 0, props, err
	}
	if pid == 0 {
		return 0, 0, props, NewProtocolError(ErrInvalidPacketIDZero, pktType.String())
	}

	if version != Version50 {
		if offset != len(body) {
			return 0, 0, props, NewMalformedPacketError(ErrTrailingBytes, pktType.String())
		}
		return pid, ReasonSuccess, props, nil
	}

	if offset == len(body) {
		return pid, ReasonSuccess, props, nil
	}

	code, n, err := readByte(body[offset:])
	if err != nil {
		return 0, 0, props, err
	}
	offset += n

	if offset == len(body) {
		return pid, ReasonCode(code), props, nil
	}

	props, n, err = decodeProperties(body[offset:], pmask(pktType))
	if err != nil {
		return 0, 0, props, err
	}
	offset += n

	if offset != len(body) {
		return 0, 0, props, NewMalformedPacketError(ErrTrailingBytes, pktType.String())
	}

	return pid, ReasonCode(code), props, nil
}

func decodeSubscribeBody(version ProtocolVersion, body []byte) (*SubscribePacket, error) {
	pid, offset, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, NewProtocolError(ErrInvalidPacketIDZero, "SUBSCRIBE")
	}

	pkt := &SubscribePacket{Version: version, PacketID: pid}

	if version == Version50 {
		props, n, err := decodeProperties(body[offset:], pmask(SUBSCRIBE))
		if err != nil {
			return nil, err
		}
		pkt.Properties = props
		offset += n
	}

	for offset < len(body) {
		filter, n, err := readUTF8String(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		if err := ValidateTopicFilter(filter); err != nil {
			return nil, err
		}

		options, n, err := readByte(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n

		sub, err := decodeSubscriptionOptions(version, options)
		if err != nil {
			return nil, err
		}
		sub.TopicFilter = filter

		pkt.Subscriptions = append(pkt.Subscriptions, sub)
	}

	if len(pkt.Subscriptions) == 0 {
		return nil, NewProtocolError(ErrEmptySubscriptionList, "")
	}

	return pkt, nil
}

func decodeSubscriptionOptions(version ProtocolVersion, options byte) (Subscription, error) {
	var sub Subscription

	sub.QoS = QoS(options & 0x03)
	if !sub.QoS.IsValid() {
		return sub, NewMalformedPacketError(ErrInvalidSubscriptionOpts, "QoS 3")
	}

	if version != Version50 {
		// v3 subscription options carry only the QoS bits
		if options&0xFC != 0 {
			return sub, NewMalformedPacketError(ErrInvalidSubscriptionOpts, "reserved bits")
		}
		return sub, nil
	}

	sub.NoLocal = options&0x04 != 0
	sub.RetainAsPublished = options&0x08 != 0
	sub.RetainHandling = (options & 0x30) >> 4

	if sub.RetainHandling > 2 {
		return sub, NewMalformedPacketError(ErrInvalidSubscriptionOpts, "retain handling 3")
	}
	if options&0xC0 != 0 {
		return sub, NewMalformedPacketError(ErrInvalidSubscriptionOpts, "reserved bits")
	}

	return sub, nil
}

func decodeSubackBody(version ProtocolVersion, body []byte) (*SubackPacket, error) {
	pid, offset, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, NewProtocolError(ErrInvalidPacketIDZero, "SUBACK")
	}

	pkt := &SubackPacket{Version: version, PacketID: pid}

	if version == Version50 {
		props, n, err := decodeProperties(body[offset:], pmask(SUBACK))
		if err != nil {
			return nil, err
		}
		pkt.Properties = props
		offset += n
	}

	if offset == len(body) {
		return nil, NewMalformedPacketError(ErrMalformedPacket, "SUBACK requires at least one reason code")
	}

	for _, code := range body[offset:] {
		if version != Version50 && !validSubackReturnCode(code) {
			return nil, NewMalformedPacketError(ErrInvalidReturnCode, "SUBACK")
		}
		pkt.ReasonCodes = append(pkt.ReasonCodes, ReasonCode(code))
	}

	return pkt, nil
}

// validSubackReturnCode checks the v3 SUBACK code space: granted QoS 0-2 or
// failure (0x80)
func validSubackReturnCode(code byte) bool {
	return code <= 0x02 || code == 0x80
}

func decodeUnsubscribeBody(version ProtocolVersion, body []byte) (*UnsubscribePacket, error) {
	pid, offset, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, NewProtocolError(ErrInvalidPacketIDZero, "UNSUBSCRIBE")
	}

	pkt := &UnsubscribePacket{Version: version, PacketID: pid}

	if version == Version50 {
		props, n, err := decodeProperties(body[offset:], pmask(UNSUBSCRIBE))
		if err != nil {
			return nil, err
		}
		pkt.Properties = props
		offset += n
	}

	for offset < len(body) {
		filter, n, err := readUTF8String(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		if err := ValidateTopicFilter(filter); err != nil {
			return nil, err
		}
		pkt.TopicFilters = append(pkt.TopicFilters, filter)
	}

	if len(pkt.TopicFilters) == 0 {
		return nil, NewProtocolError(ErrEmptyUnsubscribeList, "")
	}

	return pkt, nil
}

func decodeUnsubackBody(version ProtocolVersion, body []byte) (*UnsubackPacket, error) {
	pid, offset, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, NewProtocolError(ErrInvalidPacketIDZero, "UNSUBACK")
	}

	pkt := &UnsubackPacket{Version: version, PacketID: pid}

	if version != Version50 {
		if offset != len(body) {
			return nil, NewMalformedPacketError(ErrTrailingBytes, "UNSUBACK")
		}
		return pkt, nil
	}

	props, n, err := decodeProperties(body[offset:], pmask(UNSUBACK))
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset == len(body) {
		return nil, NewMalformedPacketError(ErrMalformedPacket, "UNSUBACK requires at least one reason code")
	}

	for _, code := range body[offset:] {
		pkt.ReasonCodes = append(pkt.ReasonCodes, ReasonCode(code))
	}

	return pkt, nil
}

func decodeDisconnectBody(version ProtocolVersion, body []byte) (*DisconnectPacket, error) {
	pkt := &DisconnectPacket{Version: version}

	if version != Version50 {
		if len(body) != 0 {
			return nil, NewMalformedPacketError(ErrTrailingBytes, "DISCONNECT")
		}
		return pkt, nil
	}

	// A zero-length v5 body means Normal Disconnection
	if len(body) == 0 {
		pkt.ReasonCode = ReasonNormalDisconnection
		return pkt, nil
	}

	code, offset, err := readByte(body)
	if err != nil {
		return nil, err
	}
	pkt.ReasonCode = ReasonCode(code)

	if offset == len(body) {
		return pkt, nil
	}

	props, n, err := decodeProperties(body[offset:], pmask(DISCONNECT))
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset != len(body) {
		return nil, NewMalformedPacketError(ErrTrailingBytes, "DISCONNECT")
	}

	return pkt, nil
}

func decodeAuthBody(body []byte) (*AuthPacket, error) {
	pkt := &AuthPacket{}

	// Reason code and properties may be omitted entirely for Success
	if len(body) == 0 {
		pkt.ReasonCode = ReasonSuccess
		return pkt, nil
	}

	code, offset, err := readByte(body)
	if err != nil {
		return nil, err
	}
	pkt.ReasonCode = ReasonCode(code)

	if !validAuthReasonCode(pkt.ReasonCode) {
		return nil, NewProtocolError(ErrMalformedPacket, "AUTH reason code")
	}

	if offset == len(body) {
		return pkt, nil
	}

	props, n, err := decodeProperties(body[offset:], pmask(AUTH))
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset != len(body) {
		return nil, NewMalformedPacketError(ErrTrailingBytes, "AUTH")
	}

	return pkt, nil
}

func validAuthReasonCode(rc ReasonCode) bool {
	return rc == ReasonSuccess || rc == ReasonContinueAuthentication || rc == ReasonReAuthenticate
}
