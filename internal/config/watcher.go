package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cookiecrypt/internal/models"
)

// ConfigWatcher polls the configuration file, and the key file it names, for
// changes and reloads the configuration when either is modified.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
	modTimes   map[string]time.Time
}

// NewConfigWatcher creates a new configuration watcher. A non-positive interval
// falls back to five seconds.
func NewConfigWatcher(configPath string, interval time.Duration, logger *logrus.Logger) *ConfigWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ConfigWatcher{
		configPath: configPath,
		interval:   interval,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
		modTimes:   make(map[string]time.Time),
	}
}

// Start loads the configuration and polls for changes until ctx is cancelled
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()
	cw.snapshotModTimes(config)

	cw.logger.WithFields(logrus.Fields{
		"path":     cw.configPath,
		"interval": cw.interval.String(),
	}).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			if cw.changed() {
				cw.logger.Debug("Configuration or key file changed")
				cw.reloadConfig()
			}
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback run after every successful reload. Callbacks
// run one after another in registration order.
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// watchedPaths returns the config file plus the key file it references, if any
func (cw *ConfigWatcher) watchedPaths(config *models.Config) []string {
	paths := []string{cw.configPath}
	if config != nil && config.Proxy.KeyFile != "" {
		paths = append(paths, config.Proxy.KeyFile)
	}
	return paths
}

func (cw *ConfigWatcher) snapshotModTimes(config *models.Config) {
	modTimes := make(map[string]time.Time)
	for _, path := range cw.watchedPaths(config) {
		if stat, err := os.Stat(path); err == nil {
			modTimes[path] = stat.ModTime()
		}
	}
	cw.mu.Lock()
	cw.modTimes = modTimes
	cw.mu.Unlock()
}

func (cw *ConfigWatcher) changed() bool {
	cw.mu.RLock()
	config := cw.config
	known := cw.modTimes
	cw.mu.RUnlock()

	for _, path := range cw.watchedPaths(config) {
		stat, err := os.Stat(path)
		if err != nil {
			cw.logger.WithError(err).WithField("path", path).Error("Failed to stat watched file")
			continue
		}
		if !stat.ModTime().Equal(known[path]) {
			return true
		}
	}
	return false
}

// reloadConfig reloads the configuration from file. A broken file keeps the
// previous configuration in place.
func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		// Record the new mtimes so a broken file is reported once, not every tick
		cw.mu.RLock()
		current := cw.config
		cw.mu.RUnlock()
		cw.snapshotModTimes(current)
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()
	cw.snapshotModTimes(newConfig)

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		cw.runCallback(callback, newConfig)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

func (cw *ConfigWatcher) runCallback(callback func(*models.Config), config *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	callback(config)
}

// logConfigChanges logs notable configuration changes
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.Proxy.Enabled != new.Proxy.Enabled {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Proxy.Enabled,
			"new": new.Proxy.Enabled,
		}).Info("Proxy enabled flag changed")
	}

	if old.Proxy.CookieNamePrefix != new.Proxy.CookieNamePrefix {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Proxy.CookieNamePrefix,
			"new": new.Proxy.CookieNamePrefix,
		}).Info("Cookie name prefix changed")
	}

	if len(old.Proxy.TrustedWebOrigins) != len(new.Proxy.TrustedWebOrigins) {
		cw.logger.WithFields(logrus.Fields{
			"old_count": len(old.Proxy.TrustedWebOrigins),
			"new_count": len(new.Proxy.TrustedWebOrigins),
		}).Info("Number of trusted web origins changed")
	}

	if old.Server.UpstreamURL != new.Server.UpstreamURL {
		cw.logger.Warn("Upstream URL changed; a restart is required for it to take effect")
	}
}
