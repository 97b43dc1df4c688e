package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiecrypt/internal/config"
	"cookiecrypt/internal/constants"
	"cookiecrypt/internal/envelope"
	apperrors "cookiecrypt/internal/errors"
	"cookiecrypt/internal/proxy"
	"cookiecrypt/internal/service"
)

func TestConfigureLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		want    logrus.Level
	}{
		{name: "default", level: "", want: logrus.InfoLevel},
		{name: "configured", level: "warn", want: logrus.WarnLevel},
		{name: "invalid falls back to info", level: "loud", want: logrus.InfoLevel},
		{name: "verbose wins", level: "error", verbose: true, want: logrus.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetOutput(io.Discard)
			configureLogLevel(logger, tt.level, tt.verbose)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestReloader_SwapsKeyAndSettings(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	oldKey := testKey(t, "11")
	oldEnc, err := envelope.NewEncoder(oldKey)
	require.NoError(t, err)

	cfg := testConfig()
	tokens := service.NewTokenService(oldEnc, logger)
	handler := proxy.NewHandler(cfg.Proxy, tokens, logger)

	keyPath := filepath.Join(t.TempDir(), "encryption.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(strings.Repeat("22", envelope.KeySize)+"\n"), 0o600))

	updated := testConfig()
	updated.Proxy.KeyFile = keyPath
	updated.Proxy.TrustedWebOrigins = []string{"https://app.example.com"}

	reload := newReloader(&oldKey, tokens, handler, logger)
	reload(updated)

	assert.Equal(t, []string{"https://app.example.com"}, handler.Config().TrustedWebOrigins)

	newToken, err := envelope.EncodeHex([]byte("rotated"), strings.Repeat("22", envelope.KeySize))
	require.NoError(t, err)
	plaintext, err := tokens.Decrypt(testContext(t), newToken)
	require.NoError(t, err)
	assert.Equal(t, "rotated", string(plaintext))

	oldToken, err := oldEnc.EncodeString("stale")
	require.NoError(t, err)
	_, err = tokens.Decrypt(testContext(t), oldToken)
	assert.Error(t, err)
}

func TestReloader_KeepsKeyOnFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	key := testKey(t, "11")
	enc, err := envelope.NewEncoder(key)
	require.NoError(t, err)

	cfg := testConfig()
	tokens := service.NewTokenService(enc, logger)
	handler := proxy.NewHandler(cfg.Proxy, tokens, logger)

	broken := testConfig()
	broken.Proxy.KeyFile = filepath.Join(t.TempDir(), "missing.key")

	newReloader(&key, tokens, handler, logger)(broken)

	token, err := enc.EncodeString("still valid")
	require.NoError(t, err)
	plaintext, err := tokens.Decrypt(testContext(t), token)
	require.NoError(t, err)
	assert.Equal(t, "still valid", string(plaintext))
}

func TestLoadEncoder_DisabledProxyWithoutKey(t *testing.T) {
	t.Setenv(constants.EnvKeyHex, "")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"server":{"upstream_url":"http://api.internal:3000"},"proxy":{"enabled":false}}`), 0o600))

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	encoder, key, err := loadEncoder(cfg)
	require.NoError(t, err)
	assert.Nil(t, encoder)
	assert.Nil(t, key)
}

func TestLoadEncoder_EnabledProxyRequiresKey(t *testing.T) {
	t.Setenv(constants.EnvKeyHex, "")

	cfg := testConfig()
	cfg.Proxy.KeyFile = filepath.Join(t.TempDir(), "missing.key")

	_, _, err := loadEncoder(cfg)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))
}

func TestReloader_InstallsKeyWhenProxyEnabled(t *testing.T) {
	t.Setenv(constants.EnvKeyHex, "")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	disabled := testConfig()
	disabled.Proxy.Enabled = false
	tokens := service.NewTokenService(nil, logger)
	handler := proxy.NewHandler(disabled.Proxy, tokens, logger)
	reload := newReloader(nil, tokens, handler, logger)

	// still disabled without a key: nothing to install
	reload(disabled)
	_, err := tokens.Encrypt(testContext(t), []byte("x"))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))

	keyHex := strings.Repeat("44", envelope.KeySize)
	keyPath := filepath.Join(t.TempDir(), "encryption.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(keyHex), 0o600))

	enabled := testConfig()
	enabled.Proxy.KeyFile = keyPath
	reload(enabled)

	assert.True(t, handler.Config().Enabled)
	token, err := envelope.EncodeHex([]byte("now enabled"), keyHex)
	require.NoError(t, err)
	plaintext, err := tokens.Decrypt(testContext(t), token)
	require.NoError(t, err)
	assert.Equal(t, "now enabled", string(plaintext))
}
