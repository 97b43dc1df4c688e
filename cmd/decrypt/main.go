// Command decrypt prints the plaintext held in an envelope token, for inspecting
// cookies issued with the same key.
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
		Name:      "decrypt",
		ArgName:   "token",
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		Run: func(ctx context.Context, tokens *service.TokenService, token string) (string, error) {
			plaintext, err := tokens.Decrypt(ctx, token)
			if err != nil {
				return "", err
			}
			return string(plaintext), nil
		},
	}
}

func main() {
	os.Exit(command().Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
