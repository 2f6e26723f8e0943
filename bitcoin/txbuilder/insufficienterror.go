// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"
)

// ErrInsufficientCardinalFunds is the matchable kind for InsufficientError.
var ErrInsufficientCardinalFunds = errors.New("insufficient cardinal funds")

// InsufficientError describes a failed cardinal selection with details.
type InsufficientError struct {
	Required int64 // satoshi needed including fee buffer.
	Found    int64 // satoshi found across spendable cardinal outputs.
}

// NewInsufficientError is a constructor for InsufficientError.
func NewInsufficientError(required, found int64) *InsufficientError {
	return &InsufficientError{Required: required, Found: found}
}

// Error returns error description.
func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient cardinal funds: required %d sat, found %d sat", e.Required, e.Found)
}

// Is implements comparator method for [errors] package.
func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientCardinalFunds
}
