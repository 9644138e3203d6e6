package config

import "errors"

// Domain errors for configuration.
var (
	// ErrConfigNotFound indicates the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidFormat indicates the config file could not be parsed.
	ErrInvalidFormat = errors.New("invalid config format")

	// ErrUnsupportedFormat indicates an unrecognized config file format.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidDuration indicates a malformed duration value.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrMissingEnvVar indicates a referenced env var is unset in strict mode.
	ErrMissingEnvVar = errors.New("missing environment variable")

	// ErrValidationFailed indicates the config failed semantic validation.
	ErrValidationFailed = errors.New("config validation failed")
)
