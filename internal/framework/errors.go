package framework

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	ErrAlreadyBuilt     = errors.New("framework: builder already compiled")
	ErrEmptyDiagram     = errors.New("framework: diagram has no subsystems")
	ErrNotRegistered    = errors.New("framework: system not registered")
	ErrAlreadyConnected = errors.New("framework: input port already connected or exported")
	ErrAlreadyOwned     = errors.New("framework: system already owned by a diagram")
	ErrDuplicateName    = errors.New("framework: duplicate name")
	ErrDataTypeMismatch = errors.New("framework: port data type mismatch")
	ErrSizeMismatch     = errors.New("framework: size mismatch")
	ErrAlgebraicLoop    = errors.New("framework: algebraic loop")
	ErrUnresolvedInput  = errors.New("framework: input port has no fixed value and no connection")
	ErrUnknownPort      = errors.New("framework: unknown port")
	ErrSystemKind       = errors.New("framework: wrong system kind")
)

// Invariant violations.
var (
	ErrSystemMismatch  = errors.New("framework: context belongs to a different system")
	ErrOwnerReleased   = errors.New("framework: owner no longer exists")
	ErrIndexOutOfRange = errors.New("framework: index out of range")
	ErrShapeFrozen     = errors.New("framework: system shape is frozen")
	ErrCompositeState  = errors.New("framework: operation requires a leaf continuous state")
)

// Error is the panic value raised by this package.
type Error struct {
	Op     string
	System string
	Err    error
}

func (e *Error) Error() string {
	if e.System == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.System, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(op, system string, sentinel error, format string, args ...any) {
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	}
	panic(&Error{Op: op, System: system, Err: err})
}
