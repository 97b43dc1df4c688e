// Command encrypt prints the envelope token for a plaintext under the key in
// ./encryption.key (or -key-file, or $COOKIECRYPT_KEY_FILE).
package main

import (
	"context"
	"os"

	"cookiecrypt/internal/cli"
	"cookiecrypt/internal/service"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func command() cli.Command {
	return cli.Command{
		Name:      "encrypt",
		ArgName:   "plaintext",
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		Run: func(ctx context.Context, tokens *service.TokenService, plaintext string) (string, error) {
			return tokens.Encrypt(ctx, []byte(plaintext))
		},
	}
}

func main() {
	os.Exit(command().Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
