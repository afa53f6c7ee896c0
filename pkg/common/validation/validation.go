// Package validation provides small boundary-check helpers used at every
// public entry point in the concurrent-aspects framework.
package validation

import (
	"fmt"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
)

// NotNil returns an ErrInvalidArgument-wrapped error if value is nil.
func NotNil(field string, value any) error {
	if value == nil {
		return fmt.Errorf("%s cannot be nil: %w", field, aerrors.ErrInvalidArgument)
	}
	return nil
}

// NotEmptyString returns an ErrInvalidArgument-wrapped error if value is
// the empty string.
func NotEmptyString(field string, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty: %w", field, aerrors.ErrInvalidArgument)
	}
	return nil
}

// Number is the set of ordered numeric types Positive, NonNegative, and
// AtLeast accept. time.Duration satisfies it through its underlying
// int64, so a duration argument still renders through its own Stringer
// (e.g. "5s") rather than a raw count of nanoseconds.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Positive returns an ErrInvalidArgument-wrapped error if value <= 0.
func Positive[T Number](field string, value T) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %v: %w", field, value, aerrors.ErrInvalidArgument)
	}
	return nil
}

// NonNegative returns an ErrInvalidArgument-wrapped error if value < 0.
func NonNegative[T Number](field string, value T) error {
	if value < 0 {
		return fmt.Errorf("%s cannot be negative, got %v: %w", field, value, aerrors.ErrInvalidArgument)
	}
	return nil
}

// AtLeast returns an ErrInvalidArgument-wrapped error if value < min.
func AtLeast[T Number](field string, value, min T) error {
	if value < min {
		return fmt.Errorf("%s must be at least %v, got %v: %w", field, min, value, aerrors.ErrInvalidArgument)
	}
	return nil
}

// NotSameReference returns an ErrInvalidArgument-wrapped error if a and b
// are the same comparable reference. Used by the instance-attribute
// registry to reject an instance used as its own attribute key.
func NotSameReference(a, b any) error {
	if a == b {
		return fmt.Errorf("instance and attribute cannot be the same reference: %w", aerrors.ErrInvalidArgument)
	}
	return nil
}
