package encoding

import (
	"sort"
)

// PropertyID represents MQTT 5.0 property identifiers
type PropertyID byte

const (
	PropPayloadFormatIndicator          PropertyID = 0x01
	PropMessageExpiryInterval           PropertyID = 0x02
	PropContentType                     PropertyID = 0x03
	PropResponseTopic                   PropertyID = 0x08
	PropCorrelationData                 PropertyID = 0x09
	PropSubscriptionIdentifier          PropertyID = 0x0B
	PropSessionExpiryInterval           PropertyID = 0x11
	PropAssignedClientIdentifier        PropertyID = 0x12
	PropServerKeepAlive                 PropertyID = 0x13
	PropAuthenticationMethod            PropertyID = 0x15
	PropAuthenticationData              PropertyID = 0x16
	PropRequestProblemInformation       PropertyID = 0x17
	PropWillDelayInterval               PropertyID = 0x18
	PropRequestResponseInformation      PropertyID = 0x19
	PropResponseInformation             PropertyID = 0x1A
	PropServerReference                 PropertyID = 0x1C
	PropReasonString                    PropertyID = 0x1F
	PropReceiveMaximum                  PropertyID = 0x21
	PropTopicAliasMaximum               PropertyID = 0x22
	PropTopicAlias                      PropertyID = 0x23
	PropMaximumQoS                      PropertyID = 0x24
	PropRetainAvailable                 PropertyID = 0x25
	PropUserProperty                    PropertyID = 0x26
	PropMaximumPacketSize               PropertyID = 0x27
	PropWildcardSubscriptionAvailable   PropertyID = 0x28
	PropSubscriptionIdentifierAvailable PropertyID = 0x29
	PropSharedSubscriptionAvailable     PropertyID = 0x2A
)

// PropertyType represents the wire type of a property value
type PropertyType byte

const (
	PropertyTypeByte        PropertyType = 1
	PropertyTypeTwoByteInt  PropertyType = 2
	PropertyTypeFourByteInt PropertyType = 3
	PropertyTypeVarInt      PropertyType = 4
	PropertyTypeUTF8String  PropertyType = 5
	PropertyTypeUTF8Pair    PropertyType = 6
	PropertyTypeBinaryData  PropertyType = 7
)

// Property represents a single MQTT 5.0 property. Value holds byte, uint16,
// uint32, string, StringPair or []byte depending on the property type.
type Property struct {
	ID    PropertyID
	Value any
}

// Properties represents an ordered collection of MQTT 5.0 properties.
// Insertion order of User Properties is preserved; encoding canonicalises
// the rest to ascending identifier order so that decode∘encode is bitwise
// stable for canonical inputs.
type Properties struct {
	props []Property
}

// Packet-membership bitmask for a property. Bit n corresponds to packet
// type n; bit 0 (the reserved type) marks the Will property set.
const willProps uint32 = 1 << Reserved

func pmask(types ...PacketType) uint32 {
	var m uint32
	for _, t := range types {
		m |= 1 << t
	}
	return m
}

// propertySpec defines the wire type, multiplicity, and the packet types a
// property may appear in, per MQTT 5.0 section 2.2.2.2
type propertySpec struct {
	Type     PropertyType
	Multiple bool
	Packets  uint32
}

var propertySpecs = map[PropertyID]propertySpec{
	PropPayloadFormatIndicator:          {PropertyTypeByte, false, pmask(PUBLISH) | willProps},
	PropMessageExpiryInterval:           {PropertyTypeFourByteInt, false, pmask(PUBLISH) | willProps},
	PropContentType:                     {PropertyTypeUTF8String, false, pmask(PUBLISH) | willProps},
	PropResponseTopic:                   {PropertyTypeUTF8String, false, pmask(PUBLISH) | willProps},
	PropCorrelationData:                 {PropertyTypeBinaryData, false, pmask(PUBLISH) | willProps},
	PropSubscriptionIdentifier:          {PropertyTypeVarInt, false, pmask(PUBLISH, SUBSCRIBE)},
	PropSessionExpiryInterval:           {PropertyTypeFourByteInt, false, pmask(CONNECT, CONNACK, DISCONNECT)},
	PropAssignedClientIdentifier:        {PropertyTypeUTF8String, false, pmask(CONNACK)},
	PropServerKeepAlive:                 {PropertyTypeTwoByteInt, false, pmask(CONNACK)},
	PropAuthenticationMethod:            {PropertyTypeUTF8String, false, pmask(CONNECT, CONNACK, AUTH)},
	PropAuthenticationData:              {PropertyTypeBinaryData, false, pmask(CONNECT, CONNACK, AUTH)},
	PropRequestProblemInformation:       {PropertyTypeByte, false, pmask(CONNECT)},
	PropWillDelayInterval:               {PropertyTypeFourByteInt, false, willProps},
	PropRequestResponseInformation:      {PropertyTypeByte, false, pmask(CONNECT)},
	PropResponseInformation:             {PropertyTypeUTF8String, false, pmask(CONNACK)},
	PropServerReference:                 {PropertyTypeUTF8String, false, pmask(CONNACK, DISCONNECT)},
	PropReasonString:                    {PropertyTypeUTF8String, false, pmask(CONNACK, PUBACK, PUBREC, PUBREL, PUBCOMP, SUBACK, UNSUBACK, DISCONNECT, AUTH)},
	PropReceiveMaximum:                  {PropertyTypeTwoByteInt, false, pmask(CONNECT, CONNACK)},
	PropTopicAliasMaximum:               {PropertyTypeTwoByteInt, false, pmask(CONNECT, CONNACK)},
	PropTopicAlias:                      {PropertyTypeTwoByteInt, false, pmask(PUBLISH)},
	PropMaximumQoS:                      {PropertyTypeByte, false, pmask(CONNACK)},
	PropRetainAvailable:                 {PropertyTypeByte, false, pmask(CONNACK)},
	PropUserProperty:                    {PropertyTypeUTF8Pair, true, pmask(CONNECT, CONNACK, PUBLISH, PUBACK, PUBREC, PUBREL, PUBCOMP, SUBSCRIBE, SUBACK, UNSUBSCRIBE, UNSUBACK, DISCONNECT, AUTH) | willProps},
	PropMaximumPacketSize:               {PropertyTypeFourByteInt, false, pmask(CONNECT, CONNACK)},
	PropWildcardSubscriptionAvailable:   {PropertyTypeByte, false, pmask(CONNACK)},
	PropSubscriptionIdentifierAvailable: {PropertyTypeByte, false, pmask(CONNACK)},
	PropSharedSubscriptionAvailable:     {PropertyTypeByte, false, pmask(CONNACK)},
}

// decodeProperties parses a property section (variable byte integer length
// followed by that many bytes of properties) from the front of data. The
// owner mask selects the per-packet validity set: pmask(pktType) for header
// properties, willProps for the Will property set in CONNECT.
func decodeProperties(data []byte, owner uint32) (Properties, int, error) {
	var props Properties

	propLength, n, err := DecodeVariableByteInteger(data)
	if err != nil {
		return props, 0, err
	}
	offset := n

	if propLength == 0 {
		return props, offset, nil
	}

	if len(data[offset:]) < int(propLength) {
		return props, 0, ErrUnexpectedEOF
	}

	// All defined ids are below 64, so a uint64 bitmap covers duplicates
	var seen uint64

	section := data[offset : offset+int(propLength)]
	pos := 0
	for pos < len(section) {
		id, n, err := DecodeVariableByteInteger(section[pos:])
		if err != nil {
			return props, 0, err
		}
		pos += n

		if id > 0xFF {
			return props, 0, ErrInvalidPropertyID
		}
		propID := PropertyID(id)
		spec, ok := propertySpecs[propID]
		if !ok {
			return props, 0, ErrInvalidPropertyID
		}

		if spec.Packets&owner == 0 {
			return props, 0, NewProtocolError(ErrPropertyNotAllowed, propID.String())
		}

		if !spec.Multiple {
			if seen&(1<<uint(propID)) != 0 {
				return props, 0, NewProtocolError(ErrDuplicateProperty, propID.String())
			}
			seen |= 1 << uint(propID)
		}

		value, n, err := decodePropertyValue(section[pos:], spec.Type)
		if err != nil {
			return props, 0, err
		}
		pos += n

		props.props = append(props.props, Property{ID: propID, Value: value})
	}

	return props, offset + int(propLength), nil
}

func decodePropertyValue(data []byte, pt PropertyType) (any, int, error) {
	switch pt {
	case PropertyTypeByte:
		return readByte(data)
	case PropertyTypeTwoByteInt:
		return readUint16(data)
	case PropertyTypeFourByteInt:
		return readUint32(data)
	case PropertyTypeVarInt:
		return DecodeVariableByteInteger(data)
	case PropertyTypeUTF8String:
		return readUTF8String(data)
	case PropertyTypeUTF8Pair:
		return readStringPair(data)
	case PropertyTypeBinaryData:
		return readBinaryData(data)
	default:
		return nil, 0, ErrInvalidPropertyType
	}
}

// encodedLen returns the byte length of the encoded property section,
// including its own length prefix
func (p *Properties) encodedLen() int {
	length := p.payloadLen()
	return SizeVariableByteInteger(uint32(length)) + length
}

// payloadLen returns the byte length of the properties without the prefix
func (p *Properties) payloadLen() int {
	var length int
	for _, prop := range p.props {
		length++ // property identifier, single byte for every defined id

		spec := propertySpecs[prop.ID]
		switch spec.Type {
		case PropertyTypeByte:
			length++
		case PropertyTypeTwoByteInt:
			length += 2
		case PropertyTypeFourByteInt:
			length += 4
		case PropertyTypeVarInt:
			length += SizeVariableByteInteger(prop.Value.(uint32))
		case PropertyTypeUTF8String:
			length += sizeUTF8String(prop.Value.(string))
		case PropertyTypeUTF8Pair:
			pair := prop.Value.(StringPair)
			length += sizeUTF8String(pair.Key) + sizeUTF8String(pair.Value)
		case PropertyTypeBinaryData:
			length += sizeBinaryData(prop.Value.([]byte))
		}
	}
	return length
}

// appendTo appends the property section in canonical order: properties in
// ascending identifier order, with User Properties after all others in
// insertion order.
func (p *Properties) appendTo(dst []byte) ([]byte, error) {
	dst, err := AppendVariableByteInteger(dst, uint32(p.payloadLen()))
	if err != nil {
		return dst, err
	}

	for _, prop := range p.canonical() {
		dst = append(dst, byte(prop.ID))

		spec, ok := propertySpecs[prop.ID]
		if !ok {
			return dst, ErrInvalidPropertyID
		}
		switch spec.Type {
		case PropertyTypeByte:
			dst = append(dst, prop.Value.(byte))
		case PropertyTypeTwoByteInt:
			dst = appendUint16(dst, prop.Value.(uint16))
		case PropertyTypeFourByteInt:
			dst = appendUint32(dst, prop.Value.(uint32))
		case PropertyTypeVarInt:
			dst, err = AppendVariableByteInteger(dst, prop.Value.(uint32))
			if err != nil {
				return dst, err
			}
		case PropertyTypeUTF8String:
			dst = appendUTF8String(dst, prop.Value.(string))
		case PropertyTypeUTF8Pair:
			dst = appendStringPair(dst, prop.Value.(StringPair))
		case PropertyTypeBinaryData:
			dst = appendBinaryData(dst, prop.Value.([]byte))
		default:
			return dst, ErrInvalidPropertyType
		}
	}

	return dst, nil
}

// canonical returns the properties in encode order
func (p *Properties) canonical() []Property {
	if len(p.props) < 2 {
		return p.props
	}

	out := make([]Property, 0, len(p.props))
	for _, prop := range p.props {
		if prop.ID != PropUserProperty {
			out = append(out, prop)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, prop := range p.props {
		if prop.ID == PropUserProperty {
			out = append(out, prop)
		}
	}
	return out
}

// validateFor checks every property against the owner's validity set.
// Called at encode time; decode enforces the same table inline.
func (p *Properties) validateFor(owner uint32) error {
	var seen uint64
	for _, prop := range p.props {
		spec, ok := propertySpecs[prop.ID]
		if !ok {
			return ErrInvalidPropertyID
		}
		if spec.Packets&owner == 0 {
			return NewProtocolError(ErrPropertyNotAllowed, prop.ID.String())
		}
		if !spec.Multiple {
			if seen&(1<<uint(prop.ID)) != 0 {
				return NewProtocolError(ErrDuplicateProperty, prop.ID.String())
			}
			seen |= 1 << uint(prop.ID)
		}
	}
	return nil
}

// Len returns the number of properties in the collection
func (p *Properties) Len() int {
	return len(p.props)
}

// All returns the underlying property slice in insertion order
func (p *Properties) All() []Property {
	return p.props
}

// Add adds a property to the collection, rejecting unknown identifiers,
// mismatched value types, and duplicates of non-repeatable properties.
func (p *Properties) Add(id PropertyID, value any) error {
	spec, ok := propertySpecs[id]
	if !ok {
		return ErrInvalidPropertyID
	}

	if !matchesPropertyType(spec.Type, value) {
		return ErrInvalidPropertyType
	}

	if !spec.Multiple && p.lookup(id) != nil {
		return ErrDuplicateProperty
	}

	p.props = append(p.props, Property{ID: id, Value: value})
	return nil
}

func matchesPropertyType(pt PropertyType, value any) bool {
	switch pt {
	case PropertyTypeByte:
		_, ok := value.(byte)
		return ok
	case PropertyTypeTwoByteInt:
		_, ok := value.(uint16)
		return ok
	case PropertyTypeFourByteInt, PropertyTypeVarInt:
		_, ok := value.(uint32)
		return ok
	case PropertyTypeUTF8String:
		_, ok := value.(string)
		return ok
	case PropertyTypeUTF8Pair:
		_, ok := value.(StringPair)
		return ok
	case PropertyTypeBinaryData:
		_, ok := value.([]byte)
		return ok
	default:
		return false
	}
}

func (p *Properties) lookup(id PropertyID) *Property {
	for i := range p.props {
		if p.props[i].ID == id {
			return &p.props[i]
		}
	}
	return nil
}

// Typed accessors. Each returns the property value and whether it was present.

func (p *Properties) byteProp(id PropertyID) (byte, bool) {
	if prop := p.lookup(id); prop != nil {
		return prop.Value.(byte), true
	}
	return 0, false
}

func (p *Properties) uint16Prop(id PropertyID) (uint16, bool) {
	if prop := p.lookup(id); prop != nil {
		return prop.Value.(uint16), true
	}
	return 0, false
}

func (p *Properties) uint32Prop(id PropertyID) (uint32, bool) {
	if prop := p.lookup(id); prop != nil {
		return prop.Value.(uint32), true
	}
	return 0, false
}

func (p *Properties) stringProp(id PropertyID) (string, bool) {
	if prop := p.lookup(id); prop != nil {
		return prop.Value.(string), true
	}
	return "", false
}

func (p *Properties) binaryProp(id PropertyID) ([]byte, bool) {
	if prop := p.lookup(id); prop != nil {
		return prop.Value.([]byte), true
	}
	return nil, false
}

func (p *Properties) PayloadFormatIndicator() (byte, bool) { return p.byteProp(PropPayloadFormatIndicator) }
func (p *Properties) MessageExpiryInterval() (uint32, bool) {
	return p.uint32Prop(PropMessageExpiryInterval)
}
func (p *Properties) ContentType() (string, bool)     { return p.stringProp(PropContentType) }
func (p *Properties) ResponseTopic() (string, bool)   { return p.stringProp(PropResponseTopic) }
func (p *Properties) CorrelationData() ([]byte, bool) { return p.binaryProp(PropCorrelationData) }
func (p *Properties) SubscriptionIdentifier() (uint32, bool) {
	return p.uint32Prop(PropSubscriptionIdentifier)
}
func (p *Properties) SessionExpiryInterval() (uint32, bool) {
	return p.uint32Prop(PropSessionExpiryInterval)
}
func (p *Properties) AssignedClientIdentifier() (string, bool) {
	return p.stringProp(PropAssignedClientIdentifier)
}
func (p *Properties) ServerKeepAlive() (uint16, bool)      { return p.uint16Prop(PropServerKeepAlive) }
func (p *Properties) AuthenticationMethod() (string, bool) { return p.stringProp(PropAuthenticationMethod) }
func (p *Properties) AuthenticationData() ([]byte, bool)   { return p.binaryProp(PropAuthenticationData) }
func (p *Properties) RequestProblemInformation() (byte, bool) {
	return p.byteProp(PropRequestProblemInformation)
}
func (p *Properties) WillDelayInterval() (uint32, bool) { return p.uint32Prop(PropWillDelayInterval) }
func (p *Properties) RequestResponseInformation() (byte, bool) {
	return p.byteProp(PropRequestResponseInformation)
}
func (p *Properties) ResponseInformation() (string, bool) {
	return p.stringProp(PropResponseInformation)
}
func (p *Properties) ServerReference() (string, bool) { return p.stringProp(PropServerReference) }
func (p *Properties) ReasonString() (string, bool)    { return p.stringProp(PropReasonString) }
func (p *Properties) ReceiveMaximum() (uint16, bool)  { return p.uint16Prop(PropReceiveMaximum) }
func (p *Properties) TopicAliasMaximum() (uint16, bool) {
	return p.uint16Prop(PropTopicAliasMaximum)
}
func (p *Properties) TopicAlias() (uint16, bool)    { return p.uint16Prop(PropTopicAlias) }
func (p *Properties) MaximumQoS() (byte, bool)      { return p.byteProp(PropMaximumQoS) }
func (p *Properties) RetainAvailable() (byte, bool) { return p.byteProp(PropRetainAvailable) }
func (p *Properties) MaximumPacketSize() (uint32, bool) {
	return p.uint32Prop(PropMaximumPacketSize)
}
func (p *Properties) WildcardSubscriptionAvailable() (byte, bool) {
	return p.byteProp(PropWildcardSubscriptionAvailable)
}
func (p *Properties) SubscriptionIdentifierAvailable() (byte, bool) {
	return p.byteProp(PropSubscriptionIdentifierAvailable)
}
func (p *Properties) SharedSubscriptionAvailable() (byte, bool) {
	return p.byteProp(PropSharedSubscriptionAvailable)
}

// UserProperties returns all User Property pairs in insertion order
func (p *Properties) UserProperties() []StringPair {
	var pairs []StringPair
	for _, prop := range p.props {
		if prop.ID == PropUserProperty {
			pairs = append(pairs, prop.Value.(StringPair))
		}
	}
	return pairs
}

// String returns human-readable property ID name
func (id PropertyID) String() string {
	names := map[PropertyID]string{
		PropPayloadFormatIndicator:          "PayloadFormatIndicator",
		PropMessageExpiryInterval:           "MessageExpiryInterval",
		PropContentType:                     "ContentType",
		PropResponseTopic:                   "ResponseTopic",
		PropCorrelationData:                 "CorrelationData",
		PropSubscriptionIdentifier:          "SubscriptionIdentifier",
		PropSessionExpiryInterval:           "SessionExpiryInterval",
		PropAssignedClientIdentifier:        "AssignedClientIdentifier",
		PropServerKeepAlive:                 "ServerKeepAlive",
		PropAuthenticationMethod:            "AuthenticationMethod",
		PropAuthenticationData:              "AuthenticationData",
		PropRequestProblemInformation:       "RequestProblemInformation",
		PropWillDelayInterval:               "WillDelayInterval",
		PropRequestResponseInformation:      "RequestResponseInformation",
		PropResponseInformation:             "ResponseInformation",
		PropServerReference:                 "ServerReference",
		PropReasonString:                    "ReasonString",
		PropReceiveMaximum:                  "ReceiveMaximum",
		PropTopicAliasMaximum:               "TopicAliasMaximum",
		PropTopicAlias:                      "TopicAlias",
		PropMaximumQoS:                      "MaximumQoS",
		PropRetainAvailable:                 "RetainAvailable",
		PropUserProperty:                    "UserProperty",
		PropMaximumPacketSize:               "MaximumPacketSize",
		PropWildcardSubscriptionAvailable:   "WildcardSubscriptionAvailable",
		PropSubscriptionIdentifierAvailable: "SubscriptionIdentifierAvailable",
		PropSharedSubscriptionAvailable:     "SharedSubscriptionAvailable",
	}

	if name, ok := names[id]; ok {
		return name
	}
	return "UNKNOWN"
}
