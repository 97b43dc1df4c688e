package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"cookiecrypt/internal/config"
	"cookiecrypt/internal/constants"
	"cookiecrypt/internal/envelope"
	"cookiecrypt/internal/keysource"
	"cookiecrypt/internal/models"
	"cookiecrypt/internal/proxy"
	"cookiecrypt/internal/service"
	"cookiecrypt/internal/tracing"
	"cookiecrypt/pkg/circuitbreaker"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (masked cookies and headers)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	envFile    = flag.String("env-file", ".env", "Optional file of KEY=VALUE environment defaults")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("cookiecrypt oauthproxy %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting cookiecrypt oauthproxy")

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	encoder, key, err := loadEncoder(cfg)
	if err != nil {
		return err
	}
	if encoder == nil {
		logger.Warn("Cookie proxy is disabled and no encryption key is configured, requests pass through unchanged")
	}

	tokens := service.NewTokenService(encoder, logger)
	proxyHandler := proxy.NewHandler(cfg.Proxy, tokens, logger)

	upstream, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream URL: %w", err)
	}

	watcher := config.NewConfigWatcher(*configPath, time.Duration(cfg.Server.ConfigPollIntervalSec)*time.Second, logger)
	watcher.OnConfigChange(newReloader(key, tokens, proxyHandler, logger))
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Error("Configuration watcher stopped")
		}
	}()

	breaker := circuitbreaker.New(circuitbreaker.Settings{
		Name:           upstream.Host,
		MaxFailures:    uint32(cfg.Server.UpstreamMaxFailures),
		Cooldown:       time.Duration(cfg.Server.UpstreamCooldownSec) * time.Second,
		HalfOpenProbes: uint32(cfg.Server.UpstreamHalfOpenProbes),
	}, logger)
	reverseProxy := proxy.NewReverseProxy(upstream, proxyHandler, circuitbreaker.NewTransport(nil, breaker))

	server := NewServer(cfg, proxyHandler, reverseProxy, logger, *verbose)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.GracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// configureLogLevel applies the configured level. Verbose forces debug.
func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - masked cookie and authorization headers will be logged")
		return
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

// loadEncoder builds the encoder for the configured key. A disabled proxy may run
// without any key, in which case both results are nil.
func loadEncoder(cfg *models.Config) (*envelope.Encoder, *envelope.Key, error) {
	key, err := config.KeySource(cfg).Load()
	if err != nil {
		if !cfg.Proxy.Enabled && errors.Is(err, keysource.ErrNotPresent) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	encoder, err := envelope.NewEncoder(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return encoder, &key, nil
}

// newReloader returns the watcher callback that applies new proxy settings and
// swaps the encoder when the key changed. current is nil while no key is loaded.
// A key that fails to load leaves the previous one in place.
func newReloader(current *envelope.Key, tokens *service.TokenService, proxyHandler *proxy.Handler, logger *logrus.Logger) func(*models.Config) {
	return func(cfg *models.Config) {
		proxyHandler.UpdateConfig(cfg.Proxy)

		encoder, key, err := loadEncoder(cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to reload encryption key, keeping the previous key")
			return
		}
		if encoder == nil || (current != nil && *key == *current) {
			return
		}
		tokens.SetEncoder(encoder)
		current = key
	}
}
