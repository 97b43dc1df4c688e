package errors

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
)

// Common error creators for the envelope and proxy code paths

// NewConfigError creates a configuration error for a missing or malformed setting
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeConfiguration, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// WrapConfigError wraps a loading or parsing failure as a configuration error
func WrapConfigError(err error, key, message string) *AppError {
	return Wrap(err, ErrCodeConfiguration, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewEntropyError reports a failure of the random source
func NewEntropyError(err error, wanted, got int) *AppError {
	return Wrap(err, ErrCodeEntropy, "failed to read nonce from random source").
		WithContext("wanted_bytes", wanted).
		WithContext("read_bytes", got)
}

// NewEncryptionError reports a failure of the cipher primitive while sealing
func NewEncryptionError(err error, message string) *AppError {
	return Wrap(err, ErrCodeEncryption, message)
}

// NewDecryptionError reports a failure of the cipher primitive while opening
func NewDecryptionError(err error, message string) *AppError {
	return Wrap(err, ErrCodeDecryption, message)
}

// NewAuthenticationError reports a tag verification failure
func NewAuthenticationError(err error) *AppError {
	return Wrap(err, ErrCodeAuthentication, "message authentication failed").
		WithUserMessage("Authentication failed")
}

// NewDecodeError reports a malformed token
func NewDecodeError(reason string, err error) *AppError {
	appErr := New(ErrCodeDecode, reason)
	if err != nil {
		appErr = Wrap(err, ErrCodeDecode, reason)
	}
	return appErr.WithUserMessage("Malformed token")
}

// NewUnauthorizedError is returned by the proxy when a request carries no usable credential
func NewUnauthorizedError(reason string) *AppError {
	return New(ErrCodeUnauthorized, reason).
		WithContext("reason", reason).
		WithUserMessage("Access denied due to missing or invalid credentials")
}

// Context helpers

// WithRequestID stores a request ID for later error enrichment
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithTraceID stores a trace ID for later error enrichment
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// FromContext extracts error context from a context.Context if present
func FromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	errorCtx := make(map[string]interface{})

	if requestID := ctx.Value(requestIDKey); requestID != nil {
		errorCtx["request_id"] = requestID
	}
	if traceID := ctx.Value(traceIDKey); traceID != nil {
		errorCtx["trace_id"] = traceID
	}

	return errorCtx
}

// WithContextFromRequest adds request context to an error
func WithContextFromRequest(err *AppError, ctx context.Context) *AppError {
	if err == nil || ctx == nil {
		return err
	}

	for k, v := range FromContext(ctx) {
		err = err.WithContext(k, v)
	}

	return err
}

// HTTP helpers

// HTTPStatusCode maps error codes to the status the proxy answers with.
// Anything the client could have caused is a 401; broken server state is a 500.
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeUnauthorized, ErrCodeAuthentication, ErrCodeDecode, ErrCodeDecryption:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for rejected requests
type HTTPErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	httpCodeUnauthorized = "unauthorized"
	httpCodeServerError  = "server_error"
)

// ToHTTPResponse converts an error to the body SPAs expect. Only two shapes are exposed
// so that clients cannot learn why a credential was rejected.
func ToHTTPResponse(err error) HTTPErrorResponse {
	if HTTPStatusCode(err) == http.StatusInternalServerError {
		return HTTPErrorResponse{
			Code:    httpCodeServerError,
			Message: "Problem encountered processing the request",
		}
	}
	return HTTPErrorResponse{
		Code:    httpCodeUnauthorized,
		Message: "Access denied due to missing or invalid credentials",
	}
}
