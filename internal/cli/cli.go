// Package cli holds the flag handling and error reporting shared by the encrypt
// and decrypt commands. Standard output carries only the result.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"cookiecrypt/internal/constants"
	"cookiecrypt/internal/envelope"
	apperrors "cookiecrypt/internal/errors"
	"cookiecrypt/internal/keysource"
	"cookiecrypt/internal/service"
)

// Operation turns the single positional argument into the line printed on success.
type Operation func(ctx context.Context, tokens *service.TokenService, arg string) (string, error)

// Command describes one of the CLI binaries.
type Command struct {
	Name      string
	ArgName   string
	Version   string
	BuildTime string
	GitCommit string
	Run       Operation
}

// Execute parses args (without the program name), runs the operation and returns
// the process exit code.
func (c Command) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(c.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	keyFile := fs.String("key-file", DefaultKeyFile(), "Path to the file holding the 64 hex character key")
	verbose := fs.Bool("verbose", false, "Log diagnostics to stderr")
	version := fs.Bool("version", false, "Show version information")
	// Parse errors are reported by fail as a single line, so the flag package stays quiet
	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			fmt.Fprintf(stderr, "Usage: %s [flags] [--] <%s>\n", c.Name, c.ArgName)
			fmt.Fprintf(stderr, "Use -- before a %s that starts with '-'.\n", c.ArgName)
			fs.SetOutput(stderr)
			fs.PrintDefaults()
			return 0
		}
		return c.fail(stderr, err)
	}

	if *version {
		fmt.Fprintf(stdout, "cookiecrypt %s %s\nBuild Time: %s\nGit Commit: %s\n", c.Name, c.Version, c.BuildTime, c.GitCommit)
		return 0
	}

	logger := newLogger(stderr, *verbose)

	if fs.NArg() < 1 {
		return c.fail(stderr, apperrors.NewConfigError(c.ArgName, "missing "+c.ArgName+" argument"))
	}

	key, err := keysource.FileSource{Path: *keyFile}.Load()
	if err != nil {
		return c.fail(stderr, err)
	}
	encoder, err := envelope.NewEncoder(key)
	if err != nil {
		return c.fail(stderr, err)
	}

	ctx = service.WithVerbose(ctx, *verbose)
	out, err := c.Run(ctx, service.NewTokenService(encoder, logger), fs.Arg(0))
	if err != nil {
		return c.fail(stderr, err)
	}

	fmt.Fprintln(stdout, out)
	return 0
}

func (c Command) fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "%s error: %v\n", c.Name, err)
	return 1
}

// DefaultKeyFile is the key file path used when -key-file is not given
func DefaultKeyFile() string {
	if path := os.Getenv(constants.EnvKeyFile); path != "" {
		return path
	}
	return keysource.DefaultKeyFile
}

// newLogger keeps stderr to the single error line unless verbose is set
func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if !verbose {
		logger.SetOutput(io.Discard)
		logger.SetLevel(logrus.WarnLevel)
		return logger
	}
	logger.SetOutput(w)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
