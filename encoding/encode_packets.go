package encoding

// Per-packet validation, size computation and body encoders. bodyLen and
// appendBody assume validate has passed; the two are kept in lockstep so
// that EncodedLen(p) always equals len(Append(nil, p)).

func (p *ConnectPacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}

	if err := ValidateUTF8String([]byte(p.ClientID)); err != nil {
		return err
	}

	if p.Version == Version50 {
		if err := p.Properties.validateFor(pmask(CONNECT)); err != nil {
			return err
		}
	} else if p.Properties.Len() > 0 {
		return ErrUnsupportedFeature
	}

	if p.Will != nil {
		if !p.Will.QoS.IsValid() {
			return ErrInvalidWillQoS
		}
		if err := ValidateTopicName(p.Will.Topic); err != nil {
			return err
		}
		if p.Version == Version50 {
			if err := p.Will.Properties.validateFor(willProps); err != nil {
				return err
			}
		} else if p.Will.Properties.Len() > 0 {
			return ErrUnsupportedFeature
		}
	}

	if p.PasswordFlag && !p.UsernameFlag && p.Version != Version50 {
		return ErrPasswordWithoutUsername
	}

	if p.UsernameFlag {
		if err := ValidateUTF8String([]byte(p.Username)); err != nil {
			return err
		}
	}

	return nil
}

func (p *ConnectPacket) bodyLen() (int, error) {
	name := p.Version.ProtocolName()
	length := sizeUTF8String(name) + 1 + 1 + 2 // name + level + flags + keep alive

	if p.Version == Version50 {
		length += p.Properties.encodedLen()
	}

	length += sizeUTF8String(p.ClientID)

	if p.Will != nil {
		if p.Version == Version50 {
			length += p.Will.Properties.encodedLen()
		}
		length += sizeUTF8String(p.Will.Topic)
		length += sizeBinaryData(p.Will.Payload)
	}

	if p.UsernameFlag {
		length += sizeUTF8String(p.Username)
	}
	if p.PasswordFlag {
		length += sizeBinaryData(p.Password)
	}

	return length, nil
}

func (p *ConnectPacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUTF8String(dst, p.Version.ProtocolName())
	dst = append(dst, byte(p.Version))

	var flags byte
	if p.CleanStart {
		flags |= 0x02
	}
	if p.Will != nil {
		flags |= 0x04
		flags |= byte(p.Will.QoS) << 3
		if p.Will.Retain {
			flags |= 0x20
		}
	}
	if p.PasswordFlag {
		flags |= 0x40
	}
	if p.UsernameFlag {
		flags |= 0x80
	}
	dst = append(dst, flags)

	dst = appendUint16(dst, p.KeepAlive)

	var err error
	if p.Version == Version50 {
		dst, err = p.Properties.appendTo(dst)
		if err != nil {
			return dst, err
		}
	}

	dst = appendUTF8String(dst, p.ClientID)

	if p.Will != nil {
		if p.Version == Version50 {
			dst, err = p.Will.Properties.appendTo(dst)
			if err != nil {
				return dst, err
			}
		}
		dst = appendUTF8String(dst, p.Will.Topic)
		dst = appendBinaryData(dst, p.Will.Payload)
	}

	if p.UsernameFlag {
		dst = appendUTF8String(dst, p.Username)
	}
	if p.PasswordFlag {
		dst = appendBinaryData(dst, p.Password)
	}

	return dst, nil
}

func (p *ConnectPacket) fixedFlags() byte { return 0 }

func (p *ConnackPacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}

	if p.Version != Version50 {
		if byte(p.ReasonCode) > ConnectRefusedNotAuthorized {
			return ErrInvalidReturnCode
		}
		if p.Properties.Len() > 0 {
			return ErrUnsupportedFeature
		}
		return nil
	}

	return p.Properties.validateFor(pmask(CONNACK))
}

func (p *ConnackPacket) bodyLen() (int, error) {
	length := 2 // acknowledge flags + code
	if p.Version == Version50 {
		length += p.Properties.encodedLen()
	}
	return length, nil
}

func (p *ConnackPacket) appendBody(dst []byte) ([]byte, error) {
	var flags byte
	if p.SessionPresent {
		flags |= 0x01
	}
	dst = append(dst, flags, byte(p.ReasonCode))

	if p.Version == Version50 {
		return p.Properties.appendTo(dst)
	}
	return dst, nil
}

func (p *ConnackPacket) fixedFlags() byte { return 0 }

func (p *PublishPacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}

	if !p.QoS.IsValid() {
		return ErrInvalidQoS
	}
	if p.QoS == QoS0 {
		if p.DUP {
			return NewMalformedPacketError(ErrMalformedPacket, "DUP set with QoS 0")
		}
		if p.PacketID != 0 {
			return ErrInvalidPacketID
		}
	} else if p.PacketID == 0 {
		return ErrInvalidPacketIDZero
	}

	if p.Version == Version50 {
		if err := p.Properties.validateFor(pmask(PUBLISH)); err != nil {
			return err
		}
	} else if p.Properties.Len() > 0 {
		return ErrUnsupportedFeature
	}

	if p.TopicName == "" {
		if _, ok := p.Properties.TopicAlias(); !ok || p.Version != Version50 {
			return ErrInvalidTopicName
		}
		return nil
	}
	return ValidateTopicName(p.TopicName)
}

func (p *PublishPacket) bodyLen() (int, error) {
	length := sizeUTF8String(p.TopicName)
	if p.QoS > QoS0 {
		length += 2
	}
	if p.Version == Version50 {
		length += p.Properties.encodedLen()
	}
	return length + len(p.Payload), nil
}

func (p *PublishPacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUTF8String(dst, p.TopicName)

	if p.QoS > QoS0 {
		dst = appendUint16(dst, p.PacketID)
	}

	if p.Version == Version50 {
		var err error
		dst, err = p.Properties.appendTo(dst)
		if err != nil {
			return dst, err
		}
	}

	return append(dst, p.Payload...), nil
}

func (p *PublishPacket) fixedFlags() byte {
	var flags byte
	if p.DUP {
		flags |= 0x08
	}
	flags |= byte(p.QoS) << 1
	if p.Retain {
		flags |= 0x01
	}
	return flags
}

// The four acknowledgement packets share one body layout

func validateAck(version ProtocolVersion, pktType PacketType, pid uint16, rc ReasonCode, props *Properties) error {
	if !version.IsValid() {
		return ErrInvalidProtocolVersion
	}
	if pid == 0 {
		return ErrInvalidPacketIDZero
	}

	if version != Version50 {
		if rc != ReasonSuccess || props.Len() > 0 {
			return ErrUnsupportedFeature
		}
		return nil
	}

	return props.validateFor(pmask(pktType))
}

// ackBodyLen prices the shared layout: the short two-byte form is used
// whenever the reason is Success and no properties are present
func ackBodyLen(version ProtocolVersion, rc ReasonCode, props *Properties) int {
	if version != Version50 || (rc == ReasonSuccess && props.Len() == 0) {
		return 2
	}
	return 2 + 1 + props.encodedLen()
}

func appendAckBody(dst []byte, version ProtocolVersion, pid uint16, rc ReasonCode, props *Properties) ([]byte, error) {
	dst = appendUint16(dst, pid)

	if version != Version50 || (rc == ReasonSuccess && props.Len() == 0) {
		return dst, nil
	}

	dst = append(dst, byte(rc))
	return props.appendTo(dst)
}

func (p *PubackPacket) validate() error {
	return validateAck(p.Version, PUBACK, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubackPacket) bodyLen() (int, error) {
	return ackBodyLen(p.Version, p.ReasonCode, &p.Properties), nil
}

func (p *PubackPacket) appendBody(dst []byte) ([]byte, error) {
	return appendAckBody(dst, p.Version, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubackPacket) fixedFlags() byte { return 0 }

func (p *PubrecPacket) validate() error {
	return validateAck(p.Version, PUBREC, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubrecPacket) bodyLen() (int, error) {
	return ackBodyLen(p.Version, p.ReasonCode, &p.Properties), nil
}

func (p *PubrecPacket) appendBody(dst []byte) ([]byte, error) {
	return appendAckBody(dst, p.Version, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubrecPacket) fixedFlags() byte { return 0 }

func (p *PubrelPacket) validate() error {
	return validateAck(p.Version, PUBREL, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubrelPacket) bodyLen() (int, error) {
	return ackBodyLen(p.Version, p.ReasonCode, &p.Properties), nil
}

func (p *PubrelPacket) appendBody(dst []byte) ([]byte, error) {
	return appendAckBody(dst, p.Version, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubrelPacket) fixedFlags() byte { return 0x02 }

func (p *PubcompPacket) validate() error {
	return validateAck(p.Version, PUBCOMP, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubcompPacket) bodyLen() (int, error) {
	return ackBodyLen(p.Version, p.ReasonCode, &p.Properties), nil
}

func (p *PubcompPacket) appendBody(dst []byte) ([]byte, error) {
	return appendAckBody(dst, p.Version, p.PacketID, p.ReasonCode, &p.Properties)
}

func (p *PubcompPacket) fixedFlags() byte { return 0 }

func (p *SubscribePacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}
	if p.PacketID == 0 {
		return ErrInvalidPacketIDZero
	}
	if len(p.Subscriptions) == 0 {
		return ErrEmptySubscriptionList
	}

	if p.Version == Version50 {
		if err := p.Properties.validateFor(pmask(SUBSCRIBE)); err != nil {
			return err
		}
	} else if p.Properties.Len() > 0 {
		return ErrUnsupportedFeature
	}

	for _, sub := range p.Subscriptions {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return err
		}
		if !sub.QoS.IsValid() {
			return ErrInvalidQoS
		}
		if p.Version != Version50 {
			if sub.NoLocal || sub.RetainAsPublished || sub.RetainHandling != 0 {
				return ErrUnsupportedFeature
			}
		} else if sub.RetainHandling > 2 {
			return ErrInvalidSubscriptionOpts
		}
	}

	return nil
}

func (p *SubscribePacket) bodyLen() (int, error) {
	length := 2
	if p.Version == Version50 {
		length += p.Properties.encodedLen()
	}
	for _, sub := range p.Subscriptions {
		length += sizeUTF8String(sub.TopicFilter) + 1
	}
	return length, nil
}

func (p *SubscribePacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUint16(dst, p.PacketID)

	if p.Version == Version50 {
		var err error
		dst, err = p.Properties.appendTo(dst)
		if err != nil {
			return dst, err
		}
	}

	for _, sub := range p.Subscriptions {
		dst = appendUTF8String(dst, sub.TopicFilter)

		options := byte(sub.QoS) & 0x03
		if p.Version == Version50 {
			if sub.NoLocal {
				options |= 0x04
			}
			if sub.RetainAsPublished {
				options |= 0x08
			}
			options |= (sub.RetainHandling & 0x03) << 4
		}
		dst = append(dst, options)
	}

	return dst, nil
}

func (p *SubscribePacket) fixedFlags() byte { return 0x02 }

func (p *SubackPacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}
	if p.PacketID == 0 {
		return ErrInvalidPacketIDZero
	}
	if len(p.ReasonCodes) == 0 {
		return ErrMalformedPacket
	}

	if p.Version == Version50 {
		return p.Properties.validateFor(pmask(SUBACK))
	}

	if p.Properties.Len() > 0 {
		return ErrUnsupportedFeature
	}
	for _, code := range p.ReasonCodes {
		if !validSubackReturnCode(byte(code)) {
			return ErrInvalidReturnCode
		}
	}
	return nil
}

func (p *SubackPacket) bodyLen() (int, error) {
	length := 2 + len(p.ReasonCodes)
	if p.Version == Version50 {
		length += p.Properties.encodedLen()
	}
	return length, nil
}

func (p *SubackPacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUint16(dst, p.PacketID)

	if p.Version == Version50 {
		var err error
		dst, err = p.Properties.appendTo(dst)
		if err != nil {
			return dst, err
		}
	}

	for _, code := range p.ReasonCodes {
		dst = append(dst, byte(code))
	}
	return dst, nil
}

func (p *SubackPacket) fixedFlags() byte { return 0 }

func (p *UnsubscribePacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}
	if p.PacketID == 0 {
		return ErrInvalidPacketIDZero
	}
	if len(p.TopicFilters) == 0 {
		return ErrEmptyUnsubscribeList
	}

	if p.Version == Version50 {
		if err := p.Properties.validateFor(pmask(UNSUBSCRIBE)); err != nil {
			return err
		}
	} else if p.Properties.Len() > 0 {
		return ErrUnsupportedFeature
	}

	for _, filter := range p.TopicFilters {
		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}
	}
	return nil
}

func (p *UnsubscribePacket) bodyLen() (int, error) {
	length := 2
	if p.Version == Version50 {
		length += p.Properties.encodedLen()
	}
	for _, filter := range p.TopicFilters {
		length += sizeUTF8String(filter)
	}
	return length, nil
}

func (p *UnsubscribePacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUint16(dst, p.PacketID)

	if p.Version == Version50 {
		var err error
		dst, err = p.Properties.appendTo(dst)
		if err != nil {
			return dst, err
		}
	}

	for _, filter := range p.TopicFilters {
		dst = appendUTF8String(dst, filter)
	}
	return dst, nil
}

func (p *UnsubscribePacket) fixedFlags() byte { return 0x02 }

func (p *UnsubackPacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}
	if p.PacketID == 0 {
		return ErrInvalidPacketIDZero
	}

	if p.Version != Version50 {
		if len(p.ReasonCodes) > 0 || p.Properties.Len() > 0 {
			return ErrUnsupportedFeature
		}
		return nil
	}

	if len(p.ReasonCodes) == 0 {
		return ErrMalformedPacket
	}
	return p.Properties.validateFor(pmask(UNSUBACK))
}

func (p *UnsubackPacket) bodyLen() (int, error) {
	if p.Version != Version50 {
		return 2, nil
	}
	return 2 + p.Properties.encodedLen() + len(p.ReasonCodes), nil
}

func (p *UnsubackPacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUint16(dst, p.PacketID)

	if p.Version != Version50 {
		return dst, nil
	}

	dst, err := p.Properties.appendTo(dst)
	if err != nil {
		return dst, err
	}
	for _, code := range p.ReasonCodes {
		dst = append(dst, byte(code))
	}
	return dst, nil
}

func (p *UnsubackPacket) fixedFlags() byte { return 0 }

func (p *PingreqPacket) validate() error                       { return nil }
func (p *PingreqPacket) bodyLen() (int, error)                 { return 0, nil }
func (p *PingreqPacket) appendBody(dst []byte) ([]byte, error) { return dst, nil }
func (p *PingreqPacket) fixedFlags() byte                      { return 0 }

func (p *PingrespPacket) validate() error                       { return nil }
func (p *PingrespPacket) bodyLen() (int, error)                 { return 0, nil }
func (p *PingrespPacket) appendBody(dst []byte) ([]byte, error) { return dst, nil }
func (p *PingrespPacket) fixedFlags() byte                      { return 0 }

func (p *DisconnectPacket) validate() error {
	if !p.Version.IsValid() {
		return ErrInvalidProtocolVersion
	}

	if p.Version != Version50 {
		if p.ReasonCode != ReasonNormalDisconnection || p.Properties.Len() > 0 {
			return ErrUnsupportedFeature
		}
		return nil
	}

	return p.Properties.validateFor(pmask(DISCONNECT))
}

func (p *DisconnectPacket) bodyLen() (int, error) {
	if p.Version != Version50 {
		return 0, nil
	}
	// Normal disconnection with no properties uses the empty body form
	if p.ReasonCode == ReasonNormalDisconnection && p.Properties.Len() == 0 {
		return 0, nil
	}
	return 1 + p.Properties.encodedLen(), nil
}

func (p *DisconnectPacket) appendBody(dst []byte) ([]byte, error) {
	if p.Version != Version50 {
		return dst, nil
	}
	if p.ReasonCode == ReasonNormalDisconnection && p.Properties.Len() == 0 {
		return dst, nil
	}

	dst = append(dst, byte(p.ReasonCode))
	return p.Properties.appendTo(dst)
}

func (p *DisconnectPacket) fixedFlags() byte { return 0 }

func (p *AuthPacket) validate() error {
	if !validAuthReasonCode(p.ReasonCode) {
		return ErrMalformedPacket
	}
	return p.Properties.validateFor(pmask(AUTH))
}

func (p *AuthPacket) bodyLen() (int, error) {
	if p.ReasonCode == ReasonSuccess && p.Properties.Len() == 0 {
		return 0, nil
	}
	return 1 + p.Properties.encodedLen(), nil
}

func (p *AuthPacket) appendBody(dst []byte) ([]byte, error) {
	if p.ReasonCode == ReasonSuccess && p.Properties.Len() == 0 {
		return dst, nil
	}

	dst = append(dst, byte(p.ReasonCode))
	return p.Properties.appendTo(dst)
}

func (p *AuthPacket) fixedFlags() byte { return 0 }
