package woodland

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration marks every woodland configuration problem.
var ErrInvalidConfiguration = errors.New("invalid woodland configuration")

// ConfigError describes one rejected configuration field. Err holds the
// underlying cause when the field was rejected by a collaborator, such as
// an unknown species name.
type ConfigError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfiguration, e.Field, e.Message)
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfiguration, e.Err}
	}
	return []error{ErrInvalidConfiguration}
}

// IsTransient returns false as configuration errors need caller correction
func (e *ConfigError) IsTransient() bool {
	return false
}

func configError(field string, value interface{}, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   fmt.Sprint(value),
		Message: fmt.Sprintf(format, args...),
	}
}
