package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiecrypt/internal/constants"
	"cookiecrypt/internal/keysource"
	"cookiecrypt/internal/service"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func echoCommand() Command {
	return Command{
		Name:    "echo",
		ArgName: "value",
		Version: "test",
		Run: func(_ context.Context, _ *service.TokenService, arg string) (string, error) {
			return strings.ToUpper(arg), nil
		},
	}
}

func writeKey(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "encryption.key")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestExecute_Success(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := echoCommand().Execute(context.Background(), []string{"-key-file", writeKey(t, testKeyHex), "hello"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Equal(t, "HELLO\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     func(t *testing.T) []string
		contains string
	}{
		{
			name:     "missing argument",
			args:     func(t *testing.T) []string { return []string{"-key-file", writeKey(t, testKeyHex)} },
			contains: "CONFIGURATION: missing value argument",
		},
		{
			name:     "missing key file",
			args:     func(t *testing.T) []string { return []string{"-key-file", filepath.Join(t.TempDir(), "nope.key"), "x"} },
			contains: "CONFIGURATION",
		},
		{
			name:     "malformed key",
			args:     func(t *testing.T) []string { return []string{"-key-file", writeKey(t, "not-a-key"), "x"} },
			contains: "CONFIGURATION",
		},
		{
			name:     "unknown flag",
			args:     func(t *testing.T) []string { return []string{"-bogus", "x"} },
			contains: "flag provided but not defined: -bogus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := echoCommand().Execute(context.Background(), tt.args(t), &stdout, &stderr)

			assert.Equal(t, 1, code)
			assert.Empty(t, stdout.String())
			assert.True(t, strings.HasPrefix(stderr.String(), "echo error: "), stderr.String())
			assert.Contains(t, stderr.String(), tt.contains)
			assert.Equal(t, 1, strings.Count(stderr.String(), "\n"), stderr.String())
		})
	}
}

func TestExecute_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := echoCommand().Execute(context.Background(), []string{"-version"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "cookiecrypt echo test")
}

func TestDefaultKeyFile(t *testing.T) {
	t.Setenv(constants.EnvKeyFile, "")
	assert.Equal(t, keysource.DefaultKeyFile, DefaultKeyFile())

	t.Setenv(constants.EnvKeyFile, "/run/secrets/cookie.key")
	assert.Equal(t, "/run/secrets/cookie.key", DefaultKeyFile())
}

func TestExecute_FailureWritesSingleLine(t *testing.T) {
	cmd := echoCommand()
	cmd.Run = func(ctx context.Context, tokens *service.TokenService, arg string) (string, error) {
		_, err := tokens.Decrypt(ctx, arg)
		return "", err
	}

	var stdout, stderr bytes.Buffer
	code := cmd.Execute(context.Background(), []string{"-key-file", writeKey(t, testKeyHex), "AQID"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Equal(t, 1, strings.Count(stderr.String(), "\n"), stderr.String())
	assert.Contains(t, stderr.String(), "DECODE")
}

func TestExecute_DashPrefixedArgumentAfterDoubleDash(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := echoCommand().Execute(context.Background(), []string{"-key-file", writeKey(t, testKeyHex), "--", "-not-a-flag"}, &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "-NOT-A-FLAG\n", stdout.String())
}

func TestExecute_HelpMentionsDoubleDash(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := echoCommand().Execute(context.Background(), []string{"-h"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "Usage: echo [flags] [--] <value>")
	assert.Contains(t, stderr.String(), "-key-file")
}

func TestExecute_VerboseLogsCompletedOperation(t *testing.T) {
	cmd := echoCommand()
	cmd.Run = func(ctx context.Context, tokens *service.TokenService, arg string) (string, error) {
		return tokens.Encrypt(ctx, []byte(arg))
	}

	var stdout, stderr bytes.Buffer
	code := cmd.Execute(context.Background(), []string{"-verbose", "-key-file", writeKey(t, testKeyHex), "hello"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "Completed encrypt")
	assert.NotContains(t, stderr.String(), strings.TrimSpace(stdout.String()), "the full token is never logged")
}
