package models

import (
	"strings"

	"cookiecrypt/internal/constants"
	"cookiecrypt/internal/tracing"
)

// Config holds the oauth proxy configuration
type Config struct {
	Server      ServerConfig          `json:"server"`
	Proxy       ProxyConfig           `json:"proxy"`
	Tracing     tracing.TracingConfig `json:"tracing"`
	LogLevel    string                `json:"log_level"`
	Environment string                `json:"environment"`
}

// ServerConfig holds listener and upstream settings
type ServerConfig struct {
	Port                  int    `json:"port"`
	UpstreamURL           string `json:"upstream_url"`
	ReadTimeoutSec        int    `json:"read_timeout_sec"`
	WriteTimeoutSec       int    `json:"write_timeout_sec"`
	IdleTimeoutSec        int    `json:"idle_timeout_sec"`
	GracefulShutdownSec   int    `json:"graceful_shutdown_sec"`
	ConfigPollIntervalSec int    `json:"config_poll_interval_sec"`

	// Upstream circuit breaker
	UpstreamMaxFailures    int `json:"upstream_max_failures"`
	UpstreamCooldownSec    int `json:"upstream_cooldown_sec"`
	UpstreamHalfOpenProbes int `json:"upstream_half_open_probes"`
}

// ProxyConfig holds the cookie handling settings applied to every proxied request
type ProxyConfig struct {
	Enabled           bool     `json:"enabled"`
	CookieNamePrefix  string   `json:"cookie_name_prefix"`
	EncryptionKey     string   `json:"encryption_key,omitempty"`
	KeyFile           string   `json:"key_file,omitempty"`
	TrustedWebOrigins []string `json:"trusted_web_origins"`
	AllowTokens       bool     `json:"allow_tokens"`

	CORSEnabled       bool     `json:"cors_enabled"`
	CORSAllowMethods  []string `json:"cors_allow_methods,omitempty"`
	CORSAllowHeaders  []string `json:"cors_allow_headers,omitempty"`
	CORSExposeHeaders []string `json:"cors_expose_headers,omitempty"`
	CORSMaxAgeSec     int      `json:"cors_max_age_sec"`
}

// AccessTokenCookieName returns the name of the cookie carrying the encrypted access token
func (p ProxyConfig) AccessTokenCookieName() string {
	return p.CookieNamePrefix + constants.AccessTokenCookieSuffix
}

// CSRFCookieName returns the name of the cookie carrying the encrypted CSRF token
func (p ProxyConfig) CSRFCookieName() string {
	return p.CookieNamePrefix + constants.CSRFCookieSuffix
}

// CSRFHeaderName returns the request header the SPA echoes the CSRF token in
func (p ProxyConfig) CSRFHeaderName() string {
	return constants.CSRFHeaderPrefix + p.CookieNamePrefix + constants.CSRFHeaderSuffix
}

// IsTrustedOrigin reports whether origin matches one of the configured origins, ignoring case
func (p ProxyConfig) IsTrustedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, trusted := range p.TrustedWebOrigins {
		if strings.EqualFold(trusted, origin) {
			return true
		}
	}
	return false
}

// Redacted returns a copy that is safe to log
func (c Config) Redacted() Config {
	if c.Proxy.EncryptionKey != "" {
		c.Proxy.EncryptionKey = "***"
	}
	c.Proxy.TrustedWebOrigins = append([]string(nil), c.Proxy.TrustedWebOrigins...)
	return c
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
