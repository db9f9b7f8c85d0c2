package encoding

// One packet family covers all three protocol revisions. Each variant
// carries its version tag; v5-only fields (Properties, reason codes) stay
// zero-valued under the v3 tiers, and the decoder decides per field whether
// to read based on the version. Encoders refuse to emit v5-only fields
// under v3.
//
// Packet is a sealed sum: the unexported methods keep the set of variants
// closed to this package.

// Packet is a decoded MQTT control packet of any supported revision
type Packet interface {
	// Type returns the control packet type
	Type() PacketType

	// validate checks the packet's invariants ahead of encoding
	validate() error

	// bodyLen returns the exact encoded length of the body after the
	// fixed header
	bodyLen() (int, error)

	// appendBody appends the encoded body to dst
	appendBody(dst []byte) ([]byte, error)

	// fixedFlags returns the flag nibble for the fixed header
	fixedFlags() byte
}

// Will holds the Will message carried in CONNECT. Properties are v5 only.
type Will struct {
	Properties Properties
	Topic      string
	Payload    []byte
	QoS        QoS
	Retain     bool
}

// ConnectPacket represents CONNECT for any revision. UsernameFlag and
// PasswordFlag are carried explicitly because v5 permits a password without
// a username, so presence cannot be derived from the field values alone.
type ConnectPacket struct {
	Version      ProtocolVersion
	CleanStart   bool
	KeepAlive    uint16
	Properties   Properties // v5 only
	ClientID     string
	Will         *Will
	UsernameFlag bool
	PasswordFlag bool
	Username     string
	Password     []byte
}

// ConnackPacket represents CONNACK. For the v3 tiers ReasonCode holds the
// return code (0x00..0x05); for v5 it holds the full reason code space.
type ConnackPacket struct {
	Version        ProtocolVersion
	SessionPresent bool
	ReasonCode     ReasonCode
	Properties     Properties // v5 only
}

// PublishPacket represents PUBLISH
type PublishPacket struct {
	Version    ProtocolVersion
	DUP        bool
	QoS        QoS
	Retain     bool
	TopicName  string
	PacketID   uint16     // nonzero iff QoS > 0
	Properties Properties // v5 only
	Payload    []byte
}

// PubackPacket represents PUBACK. ReasonCode and Properties are v5 only;
// the short two-byte form decodes with ReasonCode Success.
type PubackPacket struct {
	Version    ProtocolVersion
	PacketID   uint16
	ReasonCode ReasonCode
	Properties Properties
}

// PubrecPacket represents PUBREC
type PubrecPacket struct {
	Version    ProtocolVersion
	PacketID   uint16
	ReasonCode ReasonCode
	Properties Properties
}

// PubrelPacket represents PUBREL
type PubrelPacket struct {
	Version    ProtocolVersion
	PacketID   uint16
	ReasonCode ReasonCode
	Properties Properties
}

// PubcompPacket represents PUBCOMP
type PubcompPacket struct {
	Version    ProtocolVersion
	PacketID   uint16
	ReasonCode ReasonCode
	Properties Properties
}

// Subscription is one (topic filter, options) pair in SUBSCRIBE. NoLocal,
// RetainAsPublished and RetainHandling exist only in v5.
type Subscription struct {
	TopicFilter       string
	QoS               QoS
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

// SubscribePacket represents SUBSCRIBE
type SubscribePacket struct {
	Version       ProtocolVersion
	PacketID      uint16
	Properties    Properties // v5 only
	Subscriptions []Subscription
}

// SubackPacket represents SUBACK. For v3 the codes are the granted-QoS
// return codes (0x00..0x02, 0x80); for v5 the reason code space.
type SubackPacket struct {
	Version     ProtocolVersion
	PacketID    uint16
	Properties  Properties // v5 only
	ReasonCodes []ReasonCode
}

// UnsubscribePacket represents UNSUBSCRIBE
type UnsubscribePacket struct {
	Version      ProtocolVersion
	PacketID     uint16
	Properties   Properties // v5 only
	TopicFilters []string
}

// UnsubackPacket represents UNSUBACK. The v3 tiers carry only the packet id.
type UnsubackPacket struct {
	Version     ProtocolVersion
	PacketID    uint16
	Properties  Properties   // v5 only
	ReasonCodes []ReasonCode // v5 only
}

// PingreqPacket represents PINGREQ (identical in every revision)
type PingreqPacket struct{}

// PingrespPacket represents PINGRESP
type PingrespPacket struct{}

// DisconnectPacket represents DISCONNECT. ReasonCode and Properties are v5
// only; a v5 DISCONNECT with an empty body means Normal Disconnection.
type DisconnectPacket struct {
	Version    ProtocolVersion
	ReasonCode ReasonCode
	Properties Properties
}

// AuthPacket represents AUTH, which exists only in v5
type AuthPacket struct {
	ReasonCode ReasonCode
	Properties Properties
}

func (p *ConnectPacket) Type() PacketType     { return CONNECT }
func (p *ConnackPacket) Type() PacketType     { return CONNACK }
func (p *PublishPacket) Type() PacketType     { return PUBLISH }
func (p *PubackPacket) Type() PacketType      { return PUBACK }
func (p *PubrecPacket) Type() PacketType      { return PUBREC }
func (p *PubrelPacket) Type() PacketType      { return PUBREL }
func (p *PubcompPacket) Type() PacketType     { return PUBCOMP }
func (p *SubscribePacket) Type() PacketType   { return SUBSCRIBE }
func (p *SubackPacket) Type() PacketType      { return SUBACK }
func (p *UnsubscribePacket) Type() PacketType { return UNSUBSCRIBE }
func (p *UnsubackPacket) Type() PacketType    { return UNSUBACK }
func (p *PingreqPacket) Type() PacketType     { return PINGREQ }
func (p *PingrespPacket) Type() PacketType    { return PINGRESP }
func (p *DisconnectPacket) Type() PacketType  { return DISCONNECT }
func (p *AuthPacket) Type() PacketType        { return AUTH }
