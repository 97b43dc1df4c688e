package privacy

import (
	"strconv"
	"strings"

	"cookiecrypt/internal/constants"
)

// MaskToken keeps the first few characters of a token so log lines can be correlated
// without exposing the token itself.
// Example: "AQz8Yk3lPq0rX..." -> "AQz8Yk***(43)"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}

	keep := constants.DefaultTokenMaskKeep
	if len(token) <= keep*2 {
		return strings.Repeat("*", len(token))
	}
	return token[:keep] + "***(" + strconv.Itoa(len(token)) + ")"
}

// MaskAuthorization masks the credential of an Authorization header value but keeps
// the scheme.
// Example: "Bearer eyJhbGciOi..." -> "Bearer ***"
func MaskAuthorization(value string) string {
	if value == "" {
		return ""
	}
	scheme, _, found := strings.Cut(value, " ")
	if !found {
		return "***"
	}
	return scheme + " ***"
}

// MaskCookieHeader keeps cookie names and masks their values.
// Example: "app-at=AQ...; theme=dark" -> "app-at=***; theme=***"
func MaskCookieHeader(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.Split(header, ";")
	for i, part := range parts {
		name, _, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			parts[i] = "***"
			continue
		}
		parts[i] = name + "=***"
	}
	return strings.Join(parts, "; ")
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "token", "access_token", "csrf_token", "at_cookie", "csrf_cookie":
			masked[k] = MaskToken(s)
		case "authorization", "Authorization":
			masked[k] = MaskAuthorization(s)
		case "cookie", "Cookie":
			masked[k] = MaskCookieHeader(s)
		case "plaintext", "key", "encryption_key", "csrf_header":
			masked[k] = strings.Repeat("*", len(s))
		default:
			masked[k] = v
		}
	}

	return masked
}
