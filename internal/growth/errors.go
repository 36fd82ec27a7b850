package growth

import (
	"errors"
	"fmt"
)

// Error kinds reported by fitting and model construction. Match them with
// errors.Is; the concrete *Error carries the detail.
var (
	ErrInsufficientData  = errors.New("insufficient growth data")
	ErrFitDivergence     = errors.New("growth curve fit did not converge")
	ErrInvalidParameters = errors.New("invalid growth curve parameters")
	ErrInvalidDomain     = errors.New("age outside growth curve domain")
)

// Error is a growth-curve failure of one of the kinds above.
// All kinds are data problems and are never transient.
type Error struct {
	Kind    error
	Species string
	Message string
}

func (e *Error) Error() string {
	if e.Species != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Species, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// IsTransient returns false as growth data errors need caller correction
func (e *Error) IsTransient() bool {
	return false
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
