package formula

import (
	"errors"
	"fmt"
)

// ErrInvalidFormulaConstruction is returned when a formula is built with
// arguments that violate its preconditions.
var ErrInvalidFormulaConstruction = errors.New("invalid formula construction")

// ConstructionError describes an invalid formula construction.
//
// It matches ErrInvalidFormulaConstruction via errors.Is.
type ConstructionError struct {
	Kind   Kind
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("invalid %s formula: %s", e.Kind, e.Reason)
}

func (e *ConstructionError) Unwrap() error { return ErrInvalidFormulaConstruction }
