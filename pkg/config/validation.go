package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct validation tags plus
// the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	return nil
}
