package primitives

import "errors"

var (
	// ErrDimension indicates inconsistent matrix or vector sizes.
	ErrDimension = errors.New("primitives: inconsistent dimensions")

	// ErrExpression indicates a CEL expression that failed to compile or evaluate.
	ErrExpression = errors.New("primitives: expression error")
)
