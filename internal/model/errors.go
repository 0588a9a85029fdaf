package model

import (
	"errors"
	"fmt"
)

// ErrInputValidation is returned for rejected caller input. No state is mutated.
var ErrInputValidation = errors.New("input validation")

// Invalidf returns an error wrapping ErrInputValidation.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputValidation, fmt.Sprintf(format, args...))
}
