package proxy

import (
	stderrors "errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	apperrors "cookiecrypt/internal/errors"
	cchttp "cookiecrypt/internal/httputil"
	"cookiecrypt/internal/service"
	"cookiecrypt/internal/tracing"
	"cookiecrypt/pkg/circuitbreaker"
)

// NewReverseProxy forwards requests to upstream through transport (nil means the
// default transport). When the handler has CORS enabled the upstream's own CORS
// headers are dropped in favour of the proxy's.
func NewReverseProxy(upstream *url.URL, h *Handler, transport http.RoundTripper) *httputil.ReverseProxy {
	rp := &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			if requestID := tracing.GetRequestID(pr.In.Context()); requestID != "" {
				pr.Out.Header.Set(tracing.RequestIDHeader, requestID)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			cfg := h.settings.Load()
			if cfg.Enabled && cfg.CORSEnabled {
				stripUpstreamCORS(resp.Header)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			body := apperrors.ToHTTPResponse(apperrors.Wrap(err, apperrors.ErrCodeInternalError, "upstream request failed"))

			var openErr *circuitbreaker.OpenError
			if stderrors.As(err, &openErr) {
				h.logger.WithError(err).WithField(service.LogFieldPath, r.URL.Path).Warn("Upstream circuit is open, rejecting request")
				h.count("circuit_open")
				_ = cchttp.WriteJSON(w, r, http.StatusServiceUnavailable, body)
				return
			}

			h.logger.WithError(err).WithField(service.LogFieldPath, r.URL.Path).Error("Upstream request failed")
			h.count("upstream_error")
			_ = cchttp.WriteJSON(w, r, http.StatusBadGateway, body)
		},
	}
	return rp
}
