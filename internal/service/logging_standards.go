package service

// Logging standards for cookiecrypt
//
// Standard field names shared by the token service, the proxy middleware and
// the binaries. Use these exact names so log queries work across components.
const (
	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Envelope fields. Never log plaintext or key material.
	LogFieldTokenMasked  = "token"
	LogFieldVersion      = "envelope_version"
	LogFieldPlaintextLen = "plaintext_bytes"
	LogFieldEnvelopeLen  = "envelope_bytes"
	LogFieldKeySource    = "key_source"

	// Request fields
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldPath       = "path"
	LogFieldOrigin     = "origin"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldUpstream   = "upstream"
	LogFieldReason     = "reason"

	// Performance
	LogFieldDuration = "duration_ms"
	LogFieldSize     = "size_bytes"

	// Errors
	LogFieldErrorCode = "error_code"
)

// Log level usage
//
// DEBUG: per-request detail such as masked tokens and cookie names. Verbose mode only.
// INFO: startup, shutdown, configuration and key reloads.
// WARN: rejected requests (missing cookie, bad origin, failed authentication).
// ERROR: failures on our side such as an unreadable key file or a broken cipher.
// FATAL: configuration required for startup is missing.
//
// Message patterns:
//   "Starting [operation]" / "Completed [operation]" / "Failed to [operation]"
//   "Rejected request: [reason]"
//   "Loaded [config type] configuration"
