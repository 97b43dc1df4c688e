package proxy

import (
	"net/http"
	"strconv"
	"strings"

	"cookiecrypt/internal/models"
)

const (
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerExposeHeaders    = "Access-Control-Expose-Headers"
	headerMaxAge           = "Access-Control-Max-Age"
	headerRequestHeaders   = "Access-Control-Request-Headers"
)

// writeCORSHeaders sets the headers every response to a trusted origin carries
func writeCORSHeaders(w http.ResponseWriter, cfg *models.ProxyConfig, origin string) {
	h := w.Header()
	h.Set(headerAllowOrigin, origin)
	h.Set(headerAllowCredentials, "true")
	h.Add("Vary", "Origin")
	if len(cfg.CORSExposeHeaders) > 0 {
		h.Set(headerExposeHeaders, strings.Join(cfg.CORSExposeHeaders, ","))
	}
}

// writeErrorCORSHeaders lets a trusted origin read an error body when CORS is off
func writeErrorCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set(headerAllowOrigin, origin)
	h.Set(headerAllowCredentials, "true")
}

// writePreflightHeaders answers an OPTIONS request from a trusted origin. Without
// configured allow headers the requested ones are echoed back, so caches must key
// on the request headers as well as the origin.
func writePreflightHeaders(w http.ResponseWriter, r *http.Request, cfg *models.ProxyConfig, origin string) {
	h := w.Header()
	h.Set(headerAllowOrigin, origin)
	h.Set(headerAllowCredentials, "true")
	h.Add("Vary", "Origin, Access-Control-Request-Headers")
	h.Set(headerAllowMethods, strings.Join(cfg.CORSAllowMethods, ","))
	if len(cfg.CORSExposeHeaders) > 0 {
		h.Set(headerExposeHeaders, strings.Join(cfg.CORSExposeHeaders, ","))
	}

	if len(cfg.CORSAllowHeaders) > 0 {
		h.Set(headerAllowHeaders, strings.Join(cfg.CORSAllowHeaders, ","))
	} else if requested := r.Header.Get(headerRequestHeaders); requested != "" {
		h.Set(headerAllowHeaders, requested)
	}

	if cfg.CORSMaxAgeSec > 0 {
		h.Set(headerMaxAge, strconv.Itoa(cfg.CORSMaxAgeSec))
	}
}

// stripUpstreamCORS removes CORS headers an upstream API sets so the proxy's own are
// the only ones the browser sees
func stripUpstreamCORS(h http.Header) {
	for name := range h {
		if strings.HasPrefix(name, "Access-Control-") {
			h.Del(name)
		}
	}
}
