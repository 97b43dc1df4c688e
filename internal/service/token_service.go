package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cookiecrypt/internal/envelope"
	apperrors "cookiecrypt/internal/errors"
	"cookiecrypt/internal/metrics"
	"cookiecrypt/internal/privacy"
	"cookiecrypt/internal/tracing"
)

const (
	operationEncrypt = "encrypt"
	operationDecrypt = "decrypt"

	metricOperations = "envelope_operations_total"
	metricDuration   = "envelope_operation_duration"
	metricKeyReloads = "envelope_key_reloads_total"
)

// TokenService encrypts and decrypts cookie tokens. The underlying encoder can be
// replaced at runtime when the key is reloaded; calls in flight keep the encoder
// they started with.
type TokenService struct {
	encoder atomic.Pointer[envelope.Encoder]
	logger  *apperrors.Logger
}

// NewTokenService creates a token service backed by enc. enc may be nil until a key
// is installed with SetEncoder; calls fail with a CONFIGURATION error meanwhile.
func NewTokenService(enc *envelope.Encoder, logger *logrus.Logger) *TokenService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &TokenService{logger: apperrors.FromLogrus(logger)}
	s.encoder.Store(enc)
	return s
}

// SetEncoder swaps the encoder used by subsequent calls
func (s *TokenService) SetEncoder(enc *envelope.Encoder) {
	if enc == nil {
		return
	}
	s.encoder.Store(enc)
	metrics.IncrementCounter(metricKeyReloads, nil, "Total encryption key reloads")
	s.logger.WithField(LogFieldComponent, "token_service").Info("Encryption key reloaded")
}

// Encrypt seals plaintext into a token. Failures are returned unchanged; nothing is retried.
func (s *TokenService) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "envelope.encrypt",
		attribute.Int(LogFieldPlaintextLen, len(plaintext)),
	)
	defer span.End()

	start := time.Now()
	var token string
	enc, err := s.current()
	if err == nil {
		token, err = enc.Encode(plaintext)
	}
	s.record(ctx, operationEncrypt, start, err)
	if err != nil {
		return "", err
	}

	tracing.SetSpanStatus(ctx, codes.Ok, "")
	if IsVerboseLogging(ctx) {
		LogWithContext(ctx, s.logger.Logger).WithFields(logrus.Fields{
			LogFieldOperation:    operationEncrypt,
			LogFieldPlaintextLen: len(plaintext),
			LogFieldTokenMasked:  privacy.MaskToken(token),
		}).Debug("Completed encrypt")
	}
	return token, nil
}

// Decrypt opens a token produced by Encrypt. A wrong key or a modified token is
// reported as an AUTHENTICATION error and no plaintext is returned.
func (s *TokenService) Decrypt(ctx context.Context, token string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "envelope.decrypt",
		attribute.Int(LogFieldSize, len(token)),
	)
	defer span.End()

	start := time.Now()
	var plaintext []byte
	enc, err := s.current()
	if err == nil {
		plaintext, err = enc.Decode(token)
	}
	s.record(ctx, operationDecrypt, start, err)
	if err != nil {
		return nil, err
	}

	tracing.SetSpanStatus(ctx, codes.Ok, "")
	if IsVerboseLogging(ctx) {
		LogWithContext(ctx, s.logger.Logger).WithFields(logrus.Fields{
			LogFieldOperation:    operationDecrypt,
			LogFieldTokenMasked:  privacy.MaskToken(token),
			LogFieldPlaintextLen: len(plaintext),
		}).Debug("Completed decrypt")
	}
	return plaintext, nil
}

func (s *TokenService) current() (*envelope.Encoder, error) {
	enc := s.encoder.Load()
	if enc == nil {
		return nil, apperrors.NewConfigError("encryption_key", "no encryption key is loaded")
	}
	return enc, nil
}

// record updates metrics, the active span and the log for one operation
func (s *TokenService) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = string(apperrors.GetCode(err))
	}
	labels := map[string]string{"operation": operation, "status": status}
	metrics.IncrementCounter(metricOperations, labels, "Total envelope operations")
	metrics.RecordTimer(metricDuration, time.Since(start), map[string]string{"operation": operation}, "Envelope operation duration")

	if err == nil {
		return
	}

	tracing.RecordError(ctx, err, attribute.String(LogFieldErrorCode, status))
	fields := logrus.Fields{
		LogFieldOperation: operation,
		LogFieldDuration:  time.Since(start).Milliseconds(),
	}
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		fields[LogFieldRequestID] = requestID
	}
	s.logger.LogByKind(err, "Failed to "+operation+" token", fields)
}
