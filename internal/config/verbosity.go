package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/scopecrawl/internal/log"
)

// Verbosity is the minimum severity that is logged.
type Verbosity string

// Verbosity levels, lowest first.
const (
	VerbosityDebug    Verbosity = "debug"
	VerbosityInfo     Verbosity = "info"
	VerbosityWarning  Verbosity = "warning"
	VerbosityError    Verbosity = "error"
	VerbosityCritical Verbosity = "critical"
)

var verbosityLevels = map[Verbosity]slog.Level{
	VerbosityDebug:    slog.LevelDebug,
	VerbosityInfo:     slog.LevelInfo,
	VerbosityWarning:  slog.LevelWarn,
	VerbosityError:    slog.LevelError,
	VerbosityCritical: log.LevelCritical,
}

// ParseVerbosity accepts a level name, case-insensitively. "warn" is an
// alias of "warning".
func ParseVerbosity(s string) (Verbosity, error) {
	v := Verbosity(strings.ToLower(strings.TrimSpace(s)))
	if v == "warn" {
		v = VerbosityWarning
	}
	if !v.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVerbosity, s)
	}
	return v, nil
}

// VerbosityFromCount maps repeated -v flags to a level: 0 keeps the default,
// 1 is warning, 2 is info and 3 or more is debug.
func VerbosityFromCount(n int) Verbosity {
	switch {
	case n <= 0:
		return DefaultVerbosity
	case n == 1:
		return VerbosityWarning
	case n == 2:
		return VerbosityInfo
	default:
		return VerbosityDebug
	}
}

// IsValid reports whether v is a known level.
func (v Verbosity) IsValid() bool {
	_, ok := verbosityLevels[v]
	return ok
}

// Level returns the slog level for v. Unknown values map to slog.LevelError.
func (v Verbosity) Level() slog.Level {
	if l, ok := verbosityLevels[v]; ok {
		return l
	}
	return slog.LevelError
}

// String implements fmt.Stringer.
func (v Verbosity) String() string {
	return string(v)
}
