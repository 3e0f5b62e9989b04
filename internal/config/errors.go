package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	// ErrNoSeed is returned when neither a URL argument nor --list gave a seed.
	ErrNoSeed = errors.New("no seed specified: provide a URL or use --list")

	// ErrNoScope is returned when no include pattern is configured. Crawling
	// without one would match nothing.
	ErrNoScope = errors.New("no scope specified: use --include, --scope or the config file")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidMaxRetries is returned when the retry budget is not positive.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be positive")

	// ErrInvalidVerbosity is returned for an unknown verbosity name.
	ErrInvalidVerbosity = errors.New("invalid verbosity: use debug, info, warning, error or critical")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the body limit is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidRateLimit is returned for a negative rate limit.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidRenderer is returned for an unknown renderer name.
	ErrInvalidRenderer = errors.New("invalid renderer: use http or browser")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxy is returned when both --tor and --proxy are set.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --tor and --proxy cannot be used together")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
