package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here; validation
// accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	switch cfg.Store.Type {
	case "zarr":
		if _, ok := cfg.Store.Zarr["path"].(string); !ok || cfg.Store.Zarr["path"] == "" {
			// S3-backed stores carry a bucket instead of a path
			if _, ok := cfg.Store.Zarr["bucket"].(string); !ok {
				return fmt.Errorf("store.zarr: either path or bucket is required")
			}
		}
	case "hier":
		if _, ok := cfg.Store.Hier["path"].(string); !ok || cfg.Store.Hier["path"] == "" {
			return fmt.Errorf("store.hier: path is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
