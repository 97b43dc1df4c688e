package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiecrypt/internal/tracing"
	"cookiecrypt/pkg/circuitbreaker"
)

func TestReverseProxy_ForwardsWithBearer(t *testing.T) {
	var gotAuth, gotRequestID, gotForwardedHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(tracing.RequestIDHeader)
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	f := newFixture(t, defaultProxyConfig())
	handler := f.handler.Middleware(NewReverseProxy(target, f.handler, nil))

	r := httptest.NewRequest(http.MethodGet, "http://proxy.example.com/api/data", nil)
	r.Header.Set("Origin", trustedOrigin)
	r.AddCookie(&http.Cookie{Name: "example-at", Value: f.seal(t, accessToken)})
	r = r.WithContext(tracing.WithRequestID(r.Context(), "req_forward"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bearer "+accessToken, gotAuth)
	assert.Equal(t, "req_forward", gotRequestID)
	assert.Equal(t, "proxy.example.com", gotForwardedHost)
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, []string{trustedOrigin}, w.Header().Values("Access-Control-Allow-Origin"))
}

func TestReverseProxy_KeepsUpstreamCORSWhenProxyCORSDisabled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://upstream.example.com")
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	cfg := defaultProxyConfig()
	cfg.CORSEnabled = false
	f := newFixture(t, cfg)

	r := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	r.Header.Set("Origin", trustedOrigin)
	r.AddCookie(&http.Cookie{Name: "example-at", Value: f.seal(t, accessToken)})
	w := httptest.NewRecorder()
	f.handler.Middleware(NewReverseProxy(target, f.handler, nil)).ServeHTTP(w, r)

	assert.Equal(t, "https://upstream.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestReverseProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	upstream.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	h := NewHandler(defaultProxyConfig(), brokenDecrypter{}, logger)

	r := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	w := httptest.NewRecorder()
	NewReverseProxy(target, h, nil).ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "server_error", decodeError(t, w).Code)
}

func TestReverseProxy_OpenCircuit(t *testing.T) {
	hits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	h := NewHandler(defaultProxyConfig(), brokenDecrypter{}, logger)
	breaker := circuitbreaker.New(circuitbreaker.Settings{Name: "test-upstream", MaxFailures: 1, Cooldown: time.Hour}, logger)
	rp := NewReverseProxy(target, h, circuitbreaker.NewTransport(nil, breaker))

	w := httptest.NewRecorder()
	rp.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "upstream status is relayed")

	w = httptest.NewRecorder()
	rp.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "server_error", decodeError(t, w).Code)
	assert.Equal(t, 1, hits)
}

func TestStripUpstreamCORS(t *testing.T) {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Content-Type", "application/json")

	stripUpstreamCORS(h)

	assert.Empty(t, h.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}
