package hexutil

import (
	"testing"

	"github.com/ansel1/merry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"OCTET STRING":      "OctetString",
		"octet string":      "OctetString",
		"octetString":       "OctetString",
		"OctetString":       "OctetString",
		"RELATIVE-OID":      "RelativeOid",
		"OBJECT IDENTIFIER": "ObjectIdentifier",
		"UTF8String":        "UTF8String",
		"EMBEDDED PDV":      "EmbeddedPdv",
		"ObjectDescriptor":  "ObjectDescriptor",
	}

	for input, exp := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, exp, NormalizeName(input))
		})
	}
}

func TestParseUint(t *testing.T) {
	v, err := ParseUint("1000")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, v)

	v, err = ParseUint("0x03e8")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, v)

	_, err = ParseUint("0xzz")
	require.Error(t, err)
	assert.True(t, merry.Is(err, ErrInvalidHexString))

	_, err = ParseUint("0x010203040506070809")
	require.Error(t, err)
	assert.True(t, merry.Is(err, ErrInvalidHexString))
}

func TestDecodeString(t *testing.T) {
	b, err := DecodeString("30 06 | 02 01 01\n\t02 01 02")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}, b)

	b, err = DecodeString("0x0500")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00}, b)

	_, err = DecodeString("050")
	require.Error(t, err)
	assert.True(t, merry.Is(err, ErrInvalidHexString))

	assert.Panics(t, func() { MustDecodeString("0") })
}
