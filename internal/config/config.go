package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"cookiecrypt/internal/constants"
	"cookiecrypt/internal/envelope"
	"cookiecrypt/internal/keysource"
	"cookiecrypt/internal/models"
	"cookiecrypt/internal/security"
)

var (
	ErrMissingUpstreamURL = models.ConfigError{Message: "missing upstream URL"}
	ErrMissingPrefix      = models.ConfigError{Message: "cookie_name_prefix is required"}
	ErrMissingOrigins     = models.ConfigError{Message: "at least one trusted web origin is required"}
	ErrMissingKey         = models.ConfigError{Message: "an encryption key is required (encryption_key, key_file or " + constants.EnvKeyHex + ")"}
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables that are
// already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := resolveKeyFile(&config, filepath.Dir(path)); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// KeySource returns the key sources for a configuration in priority order:
// environment, inline encryption_key, then key_file.
func KeySource(c *models.Config) keysource.Source {
	sources := []keysource.Source{
		keysource.EnvSource{Name: constants.EnvKeyHex},
		keysource.StaticSource{Hex: c.Proxy.EncryptionKey},
	}
	if c.Proxy.KeyFile != "" {
		sources = append(sources, keysource.FileSource{Path: c.Proxy.KeyFile})
	}
	return keysource.FirstOf(sources...)
}

// resolveKeyFile makes a relative key_file from the config file relative to that file's directory
func resolveKeyFile(c *models.Config, baseDir string) error {
	keyFile := c.Proxy.KeyFile
	if keyFile == "" {
		return nil
	}
	if filepath.IsAbs(keyFile) {
		if err := security.ValidateFilePath(keyFile); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid key_file: %v", err)}
		}
		return nil
	}
	if err := security.ValidateFilePathWithBase(keyFile, baseDir); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid key_file: %v", err)}
	}
	c.Proxy.KeyFile = filepath.Join(baseDir, keyFile)
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.GracefulShutdownSec <= 0 {
		c.Server.GracefulShutdownSec = constants.DefaultGracefulShutdownSec
	}
	if c.Server.ConfigPollIntervalSec <= 0 {
		c.Server.ConfigPollIntervalSec = constants.DefaultConfigPollIntervalSec
	}
	if c.Server.UpstreamMaxFailures <= 0 {
		c.Server.UpstreamMaxFailures = constants.DefaultUpstreamMaxFailures
	}
	if c.Server.UpstreamCooldownSec <= 0 {
		c.Server.UpstreamCooldownSec = constants.DefaultUpstreamCooldownSec
	}
	if c.Server.UpstreamHalfOpenProbes <= 0 {
		c.Server.UpstreamHalfOpenProbes = constants.DefaultUpstreamHalfOpenProbes
	}
	if len(c.Proxy.CORSAllowMethods) == 0 {
		c.Proxy.CORSAllowMethods = strings.Split(constants.DefaultCORSAllowMethods, ",")
	}
	if c.Proxy.CORSMaxAgeSec <= 0 {
		c.Proxy.CORSMaxAgeSec = constants.DefaultCORSMaxAgeSec
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "cookiecrypt-oauthproxy"
	}
}

func validate(c *models.Config) error {
	if c.Server.UpstreamURL == "" {
		return ErrMissingUpstreamURL
	}
	upstream, err := url.Parse(c.Server.UpstreamURL)
	if err != nil || (upstream.Scheme != "http" && upstream.Scheme != "https") || upstream.Host == "" {
		return models.ConfigError{Message: fmt.Sprintf("invalid upstream URL: %s", c.Server.UpstreamURL)}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid port: %d", c.Server.Port)}
	}

	if err := ValidateProxy(&c.Proxy); err != nil {
		return err
	}

	if err := c.Tracing.Validate(); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	return nil
}

// ValidateProxy checks the cookie settings. A disabled proxy needs nothing else.
func ValidateProxy(p *models.ProxyConfig) error {
	if !p.Enabled {
		return nil
	}

	if p.CookieNamePrefix == "" {
		return ErrMissingPrefix
	}
	if len(p.CookieNamePrefix) > constants.MaxCookieNamePrefixLen {
		return models.ConfigError{Message: fmt.Sprintf("cookie_name_prefix must be at most %d characters", constants.MaxCookieNamePrefixLen)}
	}
	if !isCookieToken(p.CookieNamePrefix) {
		return models.ConfigError{Message: "cookie_name_prefix contains characters not allowed in a cookie name"}
	}

	if p.EncryptionKey != "" {
		if _, err := envelope.ParseHexKey(p.EncryptionKey); err != nil {
			return models.ConfigError{Message: "encryption_key must be exactly 64 hex characters"}
		}
	} else if p.KeyFile == "" && os.Getenv(constants.EnvKeyHex) == "" {
		return ErrMissingKey
	}

	if len(p.TrustedWebOrigins) == 0 {
		return ErrMissingOrigins
	}
	for _, origin := range p.TrustedWebOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	return nil
}

// validateOrigin accepts scheme://host[:port] with no path, as browsers send in Origin
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" ||
		(u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid trusted web origin: %q", origin)}
	}
	if strings.HasSuffix(origin, "/") {
		return models.ConfigError{Message: fmt.Sprintf("trusted web origin must not end with '/': %q", origin)}
	}
	return nil
}

// isCookieToken reports whether s only holds characters valid in a cookie name
func isCookieToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte("()<>@,;:\\\"/[]?={}", c) >= 0 {
			return false
		}
	}
	return true
}

func applyEnvironmentOverrides(c *models.Config) error {
	if upstream := os.Getenv(constants.EnvUpstreamURL); upstream != "" {
		c.Server.UpstreamURL = upstream
	}
	if keyFile := os.Getenv(constants.EnvKeyFile); keyFile != "" {
		// Paths from the environment are relative to the working directory, not the config file
		if err := security.ValidateFilePath(keyFile); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %v", constants.EnvKeyFile, err)}
		}
		abs, err := filepath.Abs(keyFile)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %v", constants.EnvKeyFile, err)}
		}
		c.Proxy.KeyFile = abs
	}
	if level := os.Getenv(constants.EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if env := os.Getenv(constants.EnvEnvironment); env != "" {
		c.Environment = env
	}
	if port := os.Getenv(constants.EnvPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %q", constants.EnvPort, port)}
		}
		c.Server.Port = p
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.Environment != "production" {
		if c.Proxy.EncryptionKey != "" {
			fmt.Fprintf(os.Stderr, "WARNING: encryption_key is stored in the configuration file. Prefer key_file or the %s environment variable.\n", constants.EnvKeyHex)
		}
		return nil
	}

	if c.Proxy.EncryptionKey != "" {
		return models.ConfigError{Message: "encryption_key must not be stored in the configuration file in production (use key_file or " + constants.EnvKeyHex + ")"}
	}
	if c.LogLevel == "debug" || c.LogLevel == "trace" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	for _, origin := range c.Proxy.TrustedWebOrigins {
		if strings.HasPrefix(strings.ToLower(origin), "http://") {
			return models.ConfigError{Message: fmt.Sprintf("trusted web origin must use https in production: %s", origin)}
		}
	}
	return nil
}
