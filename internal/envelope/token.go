package envelope

import (
	"encoding/base64"
	"strings"

	apperrors "cookiecrypt/internal/errors"
)

// EncodeToken renders an envelope as base64url without padding. This is the standard
// base64 output with '+' mapped to '-', '/' mapped to '_' and trailing '=' removed.
func EncodeToken(envelope []byte) string {
	return base64.RawURLEncoding.EncodeToString(envelope)
}

// DecodeToken reverses EncodeToken. Trailing padding is tolerated; characters outside
// the base64url alphabet are not.
func DecodeToken(token string) ([]byte, error) {
	trimmed := strings.TrimRight(token, "=")
	if trimmed == "" {
		return nil, apperrors.NewDecodeError("empty token", nil)
	}

	data, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, apperrors.NewDecodeError("invalid base64url token", err)
	}
	return data, nil
}

// IsTokenAlphabet reports whether s only uses characters a token may contain.
func IsTokenAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
