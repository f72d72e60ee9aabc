package main

import (
	"bytes"
	"testing"

	"github.com/gemalto/asn1stream"
	"github.com/gemalto/asn1stream/internal/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	in := hexutil.MustDecodeString("30 06 02 01 01 02 01 02 0C 02 68 69")

	tests := []struct {
		format string
		strip  bool
		exp    string
	}{
		{
			format: OutputText,
			exp:    "Sequence\n  Integer: 1\n  Integer: 2\n\nUTF8String: \"hi\"\n",
		},
		{
			format: OutputText,
			strip:  true,
			exp:    "Sequence {\n  Integer: 1\n  Integer: 2\n}\n\nUTF8String: \"hi\"\n",
		},
		{
			format: OutputHex,
			strip:  true,
			exp:    "3006\n  020101\n  020102\n0c026869\n",
		},
		{
			format: OutputJSON,
			exp: `{
  "tag": "Sequence",
  "value": [
    {
      "tag": "Integer",
      "value": 1
    },
    {
      "tag": "Integer",
      "value": 2
    }
  ]
}
{
  "tag": "UTF8String",
  "value": "hi"
}
`,
		},
		{
			format: OutputEvents,
			strip:  true,
			exp: "BEGIN_SEQUENCE indefinite=false length=8 raw=3006\n" +
				"OBJECT raw=020101 value=Integer: 1\n" +
				"OBJECT raw=020102 value=Integer: 2\n" +
				"END_SEQUENCE indefinite=false length=8\n" +
				"OBJECT raw=0c026869 value=UTF8String: \"hi\"\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			for _, chunk := range []int{0, 1, 5} {
				buf := bytes.NewBuffer(nil)
				err := run(in, tc.strip, chunk, &printer{w: buf, format: tc.format})
				require.NoError(t, err)
				assert.Equal(t, tc.exp, buf.String(), "chunk size %d", chunk)
			}
		})
	}
}

func TestRun_truncated(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	err := run(hexutil.MustDecodeString("30 06 02 01"), false, 1, &printer{w: buf, format: OutputText})
	assert.True(t, asn1stream.Is(err, asn1stream.ErrUnexpectedEOD))
	assert.Empty(t, buf.String())
}

func TestRun_malformed(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	err := run(hexutil.MustDecodeString("05 00 02 80 01 01 00 00"), false, 0, &printer{w: buf, format: OutputHex})
	assert.True(t, asn1stream.Is(err, asn1stream.ErrMalformedLength))
	assert.Equal(t, "0500\n", buf.String())
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatHex, detectFormat([]byte("30 06 | 02 01 01\n")))
	assert.Equal(t, FormatBinary, detectFormat([]byte{0x30, 0x00}))
}
