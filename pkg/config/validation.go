package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/wcstore/internal/telemetry"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when telemetry is enabled")
	}

	if cfg.Telemetry.Profiling.Enabled {
		if _, err := telemetry.ParseProfileTypes(cfg.Telemetry.Profiling.ProfileTypes); err != nil {
			return fmt.Errorf("telemetry.profiling: %w", err)
		}
	}

	switch cfg.Pristine.Type {
	case "filesystem":
		if p, _ := cfg.Pristine.Filesystem["path"].(string); p == "" {
			return errors.New("pristine.filesystem: path is required")
		}
	case "badger":
		if cfg.Pristine.Badger.Path == "" {
			return errors.New("pristine.badger: path is required")
		}
	case "s3":
		if b, _ := cfg.Pristine.S3["bucket"].(string); b == "" {
			return errors.New("pristine.s3: bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
