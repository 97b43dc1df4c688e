// Package keysource loads the hex-encoded envelope key from files, the environment
// or configuration. Every failure is reported as a single CONFIGURATION error.
package keysource

import (
	stderrors "errors"
	"os"

	"cookiecrypt/internal/envelope"
	apperrors "cookiecrypt/internal/errors"
	"cookiecrypt/internal/security"
)

// DefaultKeyFile is where the CLIs look for the key when nothing else is configured.
const DefaultKeyFile = "./encryption.key"

// ErrNotPresent is wrapped by sources that have nothing configured, which lets
// FirstOf fall through to the next source.
var ErrNotPresent = stderrors.New("key source not present")

// Source supplies an envelope key.
type Source interface {
	Load() (envelope.Key, error)
}

// FileSource reads a key file containing 64 hex characters.
type FileSource struct {
	Path string
}

func (s FileSource) Load() (envelope.Key, error) {
	if err := security.ValidateFilePath(s.Path); err != nil {
		return envelope.Key{}, apperrors.WrapConfigError(err, "key_file", "invalid key file path").
			WithContext("path", s.Path)
	}

	data, err := os.ReadFile(s.Path) // #nosec G304 - path validated above
	if err != nil {
		return envelope.Key{}, apperrors.WrapConfigError(err, "key_file", "unable to read key file").
			WithContext("path", s.Path)
	}

	key, err := envelope.ParseHexKey(string(data))
	if err != nil {
		return envelope.Key{}, apperrors.WrapConfigError(err, "key_file", "key file does not hold a valid key").
			WithContext("path", s.Path)
	}
	return key, nil
}

// EnvSource reads the hex key from an environment variable.
type EnvSource struct {
	Name string
}

func (s EnvSource) Load() (envelope.Key, error) {
	value, ok := os.LookupEnv(s.Name)
	if !ok || value == "" {
		return envelope.Key{}, apperrors.WrapConfigError(ErrNotPresent, s.Name, "environment variable is not set")
	}
	key, err := envelope.ParseHexKey(value)
	if err != nil {
		return envelope.Key{}, apperrors.WrapConfigError(err, s.Name, "environment variable does not hold a valid key")
	}
	return key, nil
}

// StaticSource holds a hex key taken from a configuration value.
type StaticSource struct {
	Hex string
}

func (s StaticSource) Load() (envelope.Key, error) {
	if s.Hex == "" {
		return envelope.Key{}, apperrors.WrapConfigError(ErrNotPresent, "encryption_key", "encryption key is not configured")
	}
	return envelope.ParseHexKey(s.Hex)
}

// FirstOf tries each source in order. Sources reporting ErrNotPresent are skipped;
// any other failure stops the search.
func FirstOf(sources ...Source) Source {
	return chain(sources)
}

type chain []Source

func (c chain) Load() (envelope.Key, error) {
	for _, src := range c {
		key, err := src.Load()
		if err == nil {
			return key, nil
		}
		if !stderrors.Is(err, ErrNotPresent) {
			return envelope.Key{}, err
		}
	}
	return envelope.Key{}, apperrors.WrapConfigError(ErrNotPresent, "encryption_key", "no encryption key was provided")
}
