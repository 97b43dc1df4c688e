package envelope

import (
	"encoding/hex"
	"strings"

	apperrors "cookiecrypt/internal/errors"
)

// Key is a 256-bit AES key.
type Key [KeySize]byte

// ParseHexKey decodes a key given as 64 hex characters. Surrounding whitespace is
// ignored so that key files may end with a newline.
func ParseHexKey(s string) (Key, error) {
	var key Key

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return key, apperrors.NewConfigError("encryption_key", "encryption key is empty")
	}
	if len(trimmed)%2 != 0 {
		return key, apperrors.NewConfigError("encryption_key", "encryption key has an odd number of hex characters").
			WithContext("length", len(trimmed))
	}
	if len(trimmed) != hex.EncodedLen(KeySize) {
		return key, apperrors.NewConfigError("encryption_key", "encryption key must contain 64 hex characters").
			WithContext("length", len(trimmed))
	}

	// The decoder's error quotes the offending character, so it is not wrapped.
	n, err := hex.Decode(key[:], []byte(trimmed))
	if err != nil {
		return Key{}, apperrors.NewConfigError("encryption_key", "encryption key is not valid hex")
	}
	if n != KeySize {
		return Key{}, apperrors.NewConfigError("encryption_key", "encryption key must decode to 32 bytes")
	}
	return key, nil
}

// String keeps key material out of logs and fmt output.
func (k Key) String() string {
	return "envelope.Key(redacted)"
}

// GoString keeps key material out of %#v output.
func (k Key) GoString() string {
	return k.String()
}
