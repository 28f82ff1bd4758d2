package config

import "fmt"

// ValidationError wraps a configuration problem detected while loading the
// contract INI file or the topology YAML file. All configuration errors are
// fatal at start-up, before any network connection is opened.
type ValidationError struct {
	Source string // "contract" or "topology"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s configuration invalid: %s", e.Source, e.Reason)
}

func newValidationError(source, format string, args ...any) error {
	return &ValidationError{Source: source, Reason: fmt.Sprintf(format, args...)}
}
