package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers conduit-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("origin", validateOrigin); err != nil {
		return fmt.Errorf("failed to register origin validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("keyhash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register keyhash validator: %w", err)
	}
	return nil
}

// validateOrigin accepts "*" or an absolute http(s) URL without a path.
func validateOrigin(fl validator.FieldLevel) bool {
	origin := fl.Field().String()
	if origin == "*" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && (u.Path == "" || u.Path == "/")
}

// validateDuration accepts any value time.ParseDuration does.
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// validateKeyHash accepts "sha256:<64 hex>" or an Argon2id PHC hash.
// Raw keys in config files are rejected on purpose.
func validateKeyHash(fl validator.FieldLevel) bool {
	h := fl.Field().String()
	if strings.HasPrefix(h, "$argon2id$") {
		return true
	}
	if strings.HasPrefix(h, "sha256:") {
		hex := strings.TrimPrefix(h, "sha256:")
		return len(hex) == 64 && isHex(hex)
	}
	return false
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Validate validates the Config using struct tags plus cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field: the redis backend needs an address.
	if c.RateLimit.Backend == "redis" && c.RateLimit.Redis.Addr == "" {
		return errors.New("rate_limit: backend \"redis\" requires rate_limit.redis.addr")
	}

	// Cross-field: identities referenced by keys must be non-empty and
	// hashes must be unique (a duplicate hash would shadow an identity).
	seen := make(map[string]string, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		if prev, dup := seen[k.KeyHash]; dup {
			return fmt.Errorf("auth: duplicate key_hash for identities %q and %q", prev, k.Identity)
		}
		seen[k.KeyHash] = k.Identity
	}

	return nil
}

// formatValidationErrors converts validator errors to actionable messages.
func formatValidationErrors(err error) error {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "origin":
			msgs = append(msgs, fmt.Sprintf("%s: %q is not a valid origin (want \"*\" or scheme://host[:port])", fe.Namespace(), fe.Value()))
		case "duration":
			msgs = append(msgs, fmt.Sprintf("%s: %q is not a valid duration (want e.g. \"30s\", \"5m\")", fe.Namespace(), fe.Value()))
		case "keyhash":
			msgs = append(msgs, fmt.Sprintf("%s: key_hash must be \"sha256:<hex>\" or an argon2id hash (see: conduit hash-key)", fe.Namespace()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("config validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
