package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"cookiecrypt/internal/tracing"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks a context for verbose logging
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	verbose, _ := ctx.Value(VerboseContextKey).(bool)
	return verbose
}

// LogWithContext returns an entry carrying the request and trace IDs found in ctx
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		fields[LogFieldRequestID] = requestID
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		fields[LogFieldTraceID] = traceID
	}
	return logger.WithFields(fields)
}
