package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers mapwarden-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("argon2_hash", validateArgon2Hash); err != nil {
		return fmt.Errorf("failed to register argon2_hash validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateArgon2Hash checks the field is an Argon2id encoded hash.
func validateArgon2Hash(fl validator.FieldLevel) bool {
	return strings.HasPrefix(fl.Field().String(), "$argon2id$")
}

// validateDuration checks the field parses as a Go duration ("30m", "24h").
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSecret(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateAdminEmails(); err != nil {
		return err
	}

	return nil
}

// validateSecret requires a non-trivial signing secret outside dev mode.
// Tag validation can't express this because the requirement depends on
// DevMode.
func (c *Config) validateSecret() error {
	if c.DevMode {
		return nil
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required; set MAPWARDEN_AUTH_SECRET")
	}
	if len(c.Auth.Secret) < 32 {
		return errors.New("auth.secret must be at least 32 characters")
	}
	return nil
}

// validateDatabase requires a file path when the sqlite driver is selected.
func (c *Config) validateDatabase() error {
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return errors.New("database.path is required when database.driver is sqlite")
	}
	return nil
}

// validateAdminEmails rejects duplicate admin seed emails.
func (c *Config) validateAdminEmails() error {
	seen := make(map[string]struct{}, len(c.Auth.Admins))
	for i, admin := range c.Auth.Admins {
		email := strings.ToLower(strings.TrimSpace(admin.Email))
		if _, dup := seen[email]; dup {
			return fmt.Errorf("auth.admins[%d]: duplicate email %s", i, email)
		}
		seen[email] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly
// messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "timezone":
		return fmt.Sprintf("%s must be a valid IANA timezone name", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30m\" or \"24h\"", field)
	case "argon2_hash":
		return fmt.Sprintf("%s must be an Argon2id hash (generate with: mapwarden hash-password)", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
