// Package proxy turns encrypted browser cookies into bearer tokens for an upstream API.
//
// For each request the handler checks the Origin against the trusted list, enforces
// the double-submit CSRF check on data-changing methods, decrypts the access token
// cookie and forwards the request with an Authorization header.
package proxy

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	apperrors "cookiecrypt/internal/errors"
	"cookiecrypt/internal/httputil"
	"cookiecrypt/internal/metrics"
	"cookiecrypt/internal/models"
	"cookiecrypt/internal/privacy"
	"cookiecrypt/internal/service"
	"cookiecrypt/internal/tracing"
)

// Decrypter opens cookie tokens
type Decrypter interface {
	Decrypt(ctx context.Context, token string) ([]byte, error)
}

// Rejection reasons, used in logs and metric labels
const (
	reasonUntrustedOrigin = "untrusted_origin"
	reasonMissingCSRF     = "missing_csrf_cookie"
	reasonMissingCSRFHdr  = "missing_csrf_header"
	reasonCSRFMismatch    = "csrf_mismatch"
	reasonMissingCookie   = "missing_access_token_cookie"
	reasonDecryptFailed   = "decrypt_failed"
)

const metricRequests = "proxy_requests_total"

// Handler holds the live proxy settings. Settings can be replaced while requests are
// being served.
type Handler struct {
	settings atomic.Pointer[models.ProxyConfig]
	tokens   Decrypter
	logger   *apperrors.Logger
}

// NewHandler creates a proxy handler
func NewHandler(cfg models.ProxyConfig, tokens Decrypter, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		tokens: tokens,
		logger: apperrors.FromLogrus(logger),
	}
	h.UpdateConfig(cfg)
	return h
}

// UpdateConfig replaces the settings used by subsequent requests
func (h *Handler) UpdateConfig(cfg models.ProxyConfig) {
	cfg.TrustedWebOrigins = append([]string(nil), cfg.TrustedWebOrigins...)
	h.settings.Store(&cfg)
	enabled := 0.0
	if cfg.Enabled {
		enabled = 1
	}
	metrics.SetGauge("proxy_enabled", enabled, nil, "Whether cookie decryption is enabled")
}

// Config returns the settings currently in effect
func (h *Handler) Config() models.ProxyConfig {
	return *h.settings.Load()
}

// Middleware wraps next, which normally forwards to the upstream API
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := h.settings.Load()
		if !cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		trusted := cfg.IsTrustedOrigin(origin)

		if r.Method == http.MethodOptions {
			if !cfg.CORSEnabled {
				next.ServeHTTP(w, r)
				return
			}
			if trusted {
				writePreflightHeaders(w, r, cfg, origin)
			}
			h.count("preflight")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if cfg.CORSEnabled && trusted {
			writeCORSHeaders(w, cfg, origin)
		}

		if cfg.AllowTokens && r.Header.Get("Authorization") != "" {
			h.count("token_passthrough")
			next.ServeHTTP(w, r)
			return
		}

		if !trusted {
			h.reject(w, r, cfg, apperrors.NewUnauthorizedError(reasonUntrustedOrigin).
				WithContext(service.LogFieldOrigin, origin))
			return
		}

		if httputil.IsDataChangingMethod(r.Method) {
			if err := h.verifyCSRF(r, cfg); err != nil {
				h.reject(w, r, cfg, err)
				return
			}
		}

		accessToken, err := h.decryptCookie(r, cfg.AccessTokenCookieName(), reasonMissingCookie)
		if err != nil {
			h.reject(w, r, cfg, err)
			return
		}

		r.Header.Set("Authorization", "Bearer "+string(accessToken))
		tracing.AddSpanAttributes(r.Context(), attribute.Bool("proxy.cookie_decrypted", true))
		h.count("forwarded")
		next.ServeHTTP(w, r)
	})
}

// verifyCSRF checks that the decrypted CSRF cookie matches the CSRF request header
func (h *Handler) verifyCSRF(r *http.Request, cfg *models.ProxyConfig) error {
	csrfToken, err := h.decryptCookie(r, cfg.CSRFCookieName(), reasonMissingCSRF)
	if err != nil {
		return err
	}

	header := r.Header.Get(cfg.CSRFHeaderName())
	if header == "" {
		return apperrors.NewUnauthorizedError(reasonMissingCSRFHdr)
	}

	if subtle.ConstantTimeCompare(csrfToken, []byte(header)) != 1 {
		return apperrors.NewUnauthorizedError(reasonCSRFMismatch)
	}
	return nil
}

// decryptCookie returns the decrypted value of the named cookie
func (h *Handler) decryptCookie(r *http.Request, name, missingReason string) ([]byte, error) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return nil, apperrors.NewUnauthorizedError(missingReason).WithContext("cookie", name)
	}

	plaintext, err := h.tokens.Decrypt(r.Context(), cookie.Value)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.GetCode(err), reasonDecryptFailed).
			WithContext("cookie", name).
			WithContext(service.LogFieldReason, reasonDecryptFailed)
	}
	return plaintext, nil
}

// reject logs the failure and writes the JSON error body. Client caused failures get a
// 401; anything else is a 500. A trusted origin can always read the body, even with
// CORS disabled.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, cfg *models.ProxyConfig, err error) {
	status := apperrors.HTTPStatusCode(err)

	if origin := r.Header.Get("Origin"); !cfg.CORSEnabled && cfg.IsTrustedOrigin(origin) {
		writeErrorCORSHeaders(w, origin)
	}

	fields := logrus.Fields{
		service.LogFieldMethod:     r.Method,
		service.LogFieldPath:       r.URL.Path,
		service.LogFieldStatusCode: status,
		service.LogFieldRemoteIP:   httputil.GetClientIP(r),
	}
	if requestID := tracing.GetRequestID(r.Context()); requestID != "" {
		fields[service.LogFieldRequestID] = requestID
	}
	if service.IsVerboseLogging(r.Context()) {
		fields["cookie"] = privacy.MaskCookieHeader(r.Header.Get("Cookie"))
	}
	h.logger.LogByKind(err, "Rejected request", fields)

	reason := reasonOf(err)
	h.count("rejected_" + reason)
	tracing.AddSpanAttributes(r.Context(), attribute.String("proxy.reject_reason", reason))

	if werr := httputil.WriteJSON(w, r, status, apperrors.ToHTTPResponse(err)); werr != nil {
		h.logger.WithError(werr).Debug("Failed to write error response")
	}
}

func (h *Handler) count(outcome string) {
	metrics.IncrementCounter(metricRequests, map[string]string{"outcome": outcome}, "Total requests seen by the cookie proxy")
}

// reasonOf returns the rejection reason recorded on an error, or its code
func reasonOf(err error) string {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		if reason, ok := appErr.Context[service.LogFieldReason].(string); ok {
			return reason
		}
	}
	return string(apperrors.GetCode(err))
}
