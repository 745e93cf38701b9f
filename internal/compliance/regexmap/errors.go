package regexmap

import (
	"errors"
	"fmt"
)

// ErrConfigLoad is wrapped by every error that prevents a rule set from
// loading. It is fatal for the process, unlike per-pattern compile failures.
var ErrConfigLoad = errors.New("compliance regex map could not be loaded")

// ConfigError reports a missing, unparseable or invalid rule set.
type ConfigError struct {
	Version string
	Path    string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("regex map %s: %v", e.Version, e.Err)
	}
	return fmt.Sprintf("regex map %s (%s): %v", e.Version, e.Path, e.Err)
}

// Unwrap exposes both ErrConfigLoad and the underlying cause.
func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfigLoad, e.Err}
}
