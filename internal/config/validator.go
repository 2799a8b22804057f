package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// RegisterCustomValidators registers AppLock Forge validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("enforcement_mode", validateEnforcementMode); err != nil {
		return fmt.Errorf("failed to register enforcement_mode validator: %w", err)
	}
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	return nil
}

// validateEnforcementMode accepts the AppLocker enforcement mode values.
func validateEnforcementMode(fl validator.FieldLevel) bool {
	switch rule.EnforcementMode(fl.Field().String()) {
	case rule.ModeNotConfigured, rule.ModeAuditOnly, rule.ModeEnabled:
		return true
	}
	return false
}

// validateKeyHash accepts "sha256:<64 hex chars>" or an argon2id encoded
// hash.
func validateKeyHash(fl validator.FieldLevel) bool {
	h := fl.Field().String()
	if strings.HasPrefix(h, "$argon2id$") {
		return true
	}
	if digest, ok := strings.CutPrefix(h, "sha256:"); ok {
		if len(digest) != 64 {
			return false
		}
		_, err := hex.DecodeString(digest)
		return err == nil
	}
	return false
}

// Validate validates the Config using struct tags plus cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		return errors.New("storage: path is required when backend is sqlite")
	}

	if err := c.validateKeyNamesUnique(); err != nil {
		return err
	}

	return nil
}

// validateKeyNamesUnique ensures API key names are distinct, since names
// identify actors in the change journal.
func (c *Config) validateKeyNamesUnique() error {
	seen := make(map[string]struct{}, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if _, dup := seen[k.Name]; dup {
			return fmt.Errorf("auth.api_keys[%d]: duplicate key name %q", i, k.Name)
		}
		seen[k.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
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

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "enforcement_mode":
		return fmt.Sprintf("%s must be NotConfigured, AuditOnly, or Enabled", field)
	case "key_hash":
		return fmt.Sprintf("%s must be 'sha256:<hex digest>' or an argon2id hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
