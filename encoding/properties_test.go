package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProperties(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		owner    uint32
		consumed int
		check    func(t *testing.T, props Properties)
		wantErr  error
	}{
		{
			name:     "empty_section",
			input:    []byte{0x00},
			owner:    pmask(CONNECT),
			consumed: 1,
			check: func(t *testing.T, props Properties) {
				assert.Zero(t, props.Len())
			},
		},
		{
			name:     "session_expiry",
			input:    []byte{0x05, 0x11, 0x00, 0x00, 0x0E, 0x10},
			owner:    pmask(CONNECT),
			consumed: 6,
			check: func(t *testing.T, props Properties) {
				value, ok := props.SessionExpiryInterval()
				require.True(t, ok)
				assert.Equal(t, uint32(3600), value)
			},
		},
		{
			name:     "receive_maximum_and_topic_alias_maximum",
			input:    []byte{0x06, 0x21, 0x00, 0x14, 0x22, 0x00, 0x0A},
			owner:    pmask(CONNECT),
			consumed: 7,
			check: func(t *testing.T, props Properties) {
				rm, ok := props.ReceiveMaximum()
				require.True(t, ok)
				assert.Equal(t, uint16(20), rm)
				tam, ok := props.TopicAliasMaximum()
				require.True(t, ok)
				assert.Equal(t, uint16(10), tam)
			},
		},
		{
			name: "content_type_string",
			input: []byte{
				0x13, 0x03, 0x00, 0x10,
				'a', 'p', 'p', 'l', 'i', 'c', 'a', 't', 'i', 'o', 'n', '/', 'j', 's', 'o', 'n',
			},
			owner:    pmask(PUBLISH),
			consumed: 20,
			check: func(t *testing.T, props Properties) {
				ct, ok := props.ContentType()
				require.True(t, ok)
				assert.Equal(t, "application/json", ct)
			},
		},
		{
			name: "user_properties_repeat",
			input: []byte{
				0x0E,
				0x26, 0x00, 0x01, 'a', 0x00, 0x01, '1',
				0x26, 0x00, 0x01, 'b', 0x00, 0x01, '2',
			},
			owner:    pmask(PUBLISH),
			consumed: 15,
			check: func(t *testing.T, props Properties) {
				pairs := props.UserProperties()
				require.Len(t, pairs, 2)
				assert.Equal(t, StringPair{Key: "a", Value: "1"}, pairs[0])
				assert.Equal(t, StringPair{Key: "b", Value: "2"}, pairs[1])
			},
		},
		{
			name:     "correlation_data",
			input:    []byte{0x06, 0x09, 0x00, 0x03, 0xDE, 0xAD, 0xBF},
			owner:    pmask(PUBLISH),
			consumed: 7,
			check: func(t *testing.T, props Properties) {
				data, ok := props.CorrelationData()
				require.True(t, ok)
				assert.Equal(t, []byte{0xDE, 0xAD, 0xBF}, data)
			},
		},
		{
			name:     "subscription_identifier_varint",
			input:    []byte{0x03, 0x0B, 0x80, 0x01},
			owner:    pmask(SUBSCRIBE),
			consumed: 4,
			check: func(t *testing.T, props Properties) {
				id, ok := props.SubscriptionIdentifier()
				require.True(t, ok)
				assert.Equal(t, uint32(128), id)
			},
		},
		{
			name:    "duplicate_session_expiry",
			input:   []byte{0x0A, 0x11, 0x00, 0x00, 0x00, 0x01, 0x11, 0x00, 0x00, 0x00, 0x02},
			owner:   pmask(CONNECT),
			wantErr: ErrDuplicateProperty,
		},
		{
			name:    "unknown_property_id",
			input:   []byte{0x02, 0x7B, 0x00},
			owner:   pmask(CONNECT),
			wantErr: ErrInvalidPropertyID,
		},
		{
			name:    "property_not_allowed_for_packet",
			input:   []byte{0x03, 0x13, 0x00, 0x3C},
			owner:   pmask(CONNECT), // ServerKeepAlive belongs to CONNACK
			wantErr: ErrPropertyNotAllowed,
		},
		{
			name:    "section_truncated",
			input:   []byte{0x05, 0x11, 0x00, 0x00},
			owner:   pmask(CONNECT),
			wantErr: ErrUnexpectedEOF,
		},
		{
			name:    "value_crosses_section_end",
			input:   []byte{0x03, 0x11, 0x00, 0x00, 0x0E, 0x10},
			owner:   pmask(CONNECT),
			wantErr: ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props, consumed, err := decodeProperties(tt.input, tt.owner)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.consumed, consumed)
			tt.check(t, props)
		})
	}
}

func TestProperties_Add(t *testing.T) {
	var props Properties

	require.NoError(t, props.Add(PropSessionExpiryInterval, uint32(60)))
	require.NoError(t, props.Add(PropUserProperty, StringPair{Key: "k", Value: "v"}))
	require.NoError(t, props.Add(PropUserProperty, StringPair{Key: "k2", Value: "v2"}))

	assert.ErrorIs(t, props.Add(PropSessionExpiryInterval, uint32(61)), ErrDuplicateProperty)
	assert.ErrorIs(t, props.Add(PropertyID(0x7B), uint32(1)), ErrInvalidPropertyID)
	assert.ErrorIs(t, props.Add(PropReceiveMaximum, "not a uint16"), ErrInvalidPropertyType)

	assert.Equal(t, 3, props.Len())
}

func TestProperties_CanonicalEncodeOrder(t *testing.T) {
	var props Properties
	require.NoError(t, props.Add(PropUserProperty, StringPair{Key: "z", Value: "1"}))
	require.NoError(t, props.Add(PropTopicAlias, uint16(5)))
	require.NoError(t, props.Add(PropPayloadFormatIndicator, byte(1)))
	require.NoError(t, props.Add(PropUserProperty, StringPair{Key: "a", Value: "2"}))

	encoded, err := props.appendTo(nil)
	require.NoError(t, err)

	expected := []byte{
		0x13,             // section length
		0x01, 0x01,       // payload format indicator first (ascending id)
		0x23, 0x00, 0x05, // topic alias
		0x26, 0x00, 0x01, 'z', 0x00, 0x01, '1', // user properties keep insertion order
		0x26, 0x00, 0x01, 'a', 0x00, 0x01, '2',
	}
	assert.Equal(t, expected, encoded)
}

func TestProperties_RoundTrip(t *testing.T) {
	var props Properties
	require.NoError(t, props.Add(PropPayloadFormatIndicator, byte(1)))
	require.NoError(t, props.Add(PropMessageExpiryInterval, uint32(300)))
	require.NoError(t, props.Add(PropContentType, "text/plain"))
	require.NoError(t, props.Add(PropResponseTopic, "reply/here"))
	require.NoError(t, props.Add(PropCorrelationData, []byte{1, 2, 3}))
	require.NoError(t, props.Add(PropTopicAlias, uint16(7)))
	require.NoError(t, props.Add(PropUserProperty, StringPair{Key: "trace", Value: "abc"}))

	encoded, err := props.appendTo(nil)
	require.NoError(t, err)
	assert.Len(t, encoded, props.encodedLen())

	decoded, consumed, err := decodeProperties(encoded, pmask(PUBLISH))
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)

	// The decoded set re-encodes to the same canonical bytes
	reencoded, err := decoded.appendTo(nil)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestProperties_ValidateFor(t *testing.T) {
	var props Properties
	require.NoError(t, props.Add(PropWillDelayInterval, uint32(10)))

	assert.NoError(t, props.validateFor(willProps))
	assert.ErrorIs(t, props.validateFor(pmask(CONNECT)), ErrPropertyNotAllowed)
}

func TestPropertyIDString(t *testing.T) {
	assert.Equal(t, "SessionExpiryInterval", PropSessionExpiryInterval.String())
	assert.Equal(t, "UserProperty", PropUserProperty.String())
	assert.Equal(t, "UNKNOWN", PropertyID(0x7B).String())
}
