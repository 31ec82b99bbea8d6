package monitoring

import "github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"

// ValidateConfig validates monitor configuration
func ValidateConfig(config Config) error {
	if config.PollingInterval <= 0 {
		return errors.NewValidationError("polling interval must be positive", nil)
	}

	if config.MaxPollingFailures < 1 {
		return errors.NewValidationError("max polling failures must be at least 1", nil)
	}

	if config.MaxDeviance < 0 {
		return errors.NewValidationError("max deviance cannot be negative", nil)
	}

	if config.BlockTargetTime <= 0 {
		return errors.NewValidationError("block target time must be positive", nil)
	}

	return nil
}
