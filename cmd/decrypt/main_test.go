package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiecrypt/internal/envelope"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func writeKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "encryption.key")
	require.NoError(t, os.WriteFile(path, []byte(testKeyHex), 0o600))
	return path
}

func TestDecrypt_RoundTrip(t *testing.T) {
	token, err := envelope.EncodeHex([]byte("session-cookie"), testKeyHex)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := command().Execute(context.Background(), []string{"-key-file", writeKey(t), token}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "session-cookie\n", stdout.String())
}

func TestDecrypt_Failures(t *testing.T) {
	otherKey := "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100"
	foreign, err := envelope.EncodeHex([]byte("x"), otherKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{name: "wrong key", token: foreign, code: "AUTHENTICATION"},
		{name: "bad alphabet", token: "not*base64", code: "DECODE"},
		{name: "truncated", token: "AQID", code: "DECODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := command().Execute(context.Background(), []string{"-key-file", writeKey(t), tt.token}, &stdout, &stderr)

			assert.Equal(t, 1, code)
			assert.Empty(t, stdout.String())
			assert.Contains(t, stderr.String(), "decrypt error: ")
			assert.Contains(t, stderr.String(), tt.code)
		})
	}
}
