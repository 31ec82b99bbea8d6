package service

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// Run supervises the node until a signal arrives or ctx ends.
func Run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	logger.Infof("Service runner starting...")
	logger.Infof("Daemon: %s, data directory: %s, rpc: %s", cfg.Daemon.Path, cfg.Daemon.DataDir, cfg.RPCEndpoint())

	svc, err := New(cfg, logger)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	runErr := svc.Start(ctx)
	if runErr == nil {
		logger.Infof("Service is ready")

		select {
		case receivedSignal := <-sig:
			logger.Infof("Service runner received signal: %v", receivedSignal)
		case <-ctx.Done():
			logger.Infof("Service runner context done")
		}
	} else {
		logger.Errorf("Service failed to start, error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Service shutdown reported errors: %v", err)
	}

	logger.Infof("Service runner stopped")
	return runErr
}

// ValidateConfigFile loads and validates a configuration file without
// running anything.
func ValidateConfigFile(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return cfg, nil
}
