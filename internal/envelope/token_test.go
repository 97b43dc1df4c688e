package envelope

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stdToURL is the substitution the token format is defined by.
func stdToURL(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	encoded = strings.ReplaceAll(encoded, "=", "")
	encoded = strings.ReplaceAll(encoded, "+", "-")
	return strings.ReplaceAll(encoded, "/", "_")
}

func TestEncodeToken_MatchesSubstitutedStandardBase64(t *testing.T) {
	inputs := [][]byte{
		{},
		{0xfb},
		{0xfb, 0xff},
		{0xfb, 0xff, 0xbf},
		{0x01, 0xfb, 0xef, 0xbe, 0xff, 0x3e, 0x3f},
		[]byte("hello world"),
	}

	for _, in := range inputs {
		token := EncodeToken(in)
		assert.Equal(t, stdToURL(in), token)
		assert.NotContains(t, token, "=")
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")

		if len(in) == 0 {
			continue
		}
		out, err := DecodeToken(token)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestIsTokenAlphabet(t *testing.T) {
	assert.True(t, IsTokenAlphabet("AZaz09-_"))
	assert.True(t, IsTokenAlphabet(""))
	assert.False(t, IsTokenAlphabet("abc="))
	assert.False(t, IsTokenAlphabet("a+b"))
	assert.False(t, IsTokenAlphabet("a/b"))
	assert.False(t, IsTokenAlphabet("a b"))
}
