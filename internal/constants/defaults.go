package constants

// Cookie and header naming used by the proxy
const (
	AccessTokenCookieSuffix = "-at"
	CSRFCookieSuffix        = "-csrf"
	CSRFHeaderPrefix        = "x-"
	CSRFHeaderSuffix        = "-csrf"
	MaxCookieNamePrefixLen  = 64
)

// Default CORS configuration values
const (
	DefaultCORSAllowMethods = "OPTIONS,HEAD,GET,POST,PUT,PATCH,DELETE"
	DefaultCORSMaxAgeSec    = 86400
)

// Default server values
const (
	DefaultServerPort            = 8080
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultConfigPollIntervalSec = 5
	ServerErrorChannelSize       = 1
)

// Default upstream circuit breaker values
const (
	DefaultUpstreamMaxFailures    = 5
	DefaultUpstreamCooldownSec    = 30
	DefaultUpstreamHalfOpenProbes = 3
)

// Environment variables recognised by the binaries
const (
	EnvKeyHex      = "COOKIECRYPT_ENCRYPTION_KEY"
	EnvKeyFile     = "COOKIECRYPT_KEY_FILE"
	EnvUpstreamURL = "COOKIECRYPT_UPSTREAM_URL"
	EnvPort        = "COOKIECRYPT_PORT"
	EnvLogLevel    = "COOKIECRYPT_LOG_LEVEL"
	EnvEnvironment = "COOKIECRYPT_ENV"
)

// Privacy settings
const (
	DefaultTokenMaskKeep = 6
)
