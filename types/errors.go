package types

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a session, script, or asset does not exist (or is
// not visible to the requesting user).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// PreconditionError indicates a stage was invoked out of order, repeated, or
// its prerequisite assets are not approved. Session state is never mutated
// when this is returned.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// ExternalServiceError wraps a failed stage-executor call
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPrecondition reports whether err is a PreconditionError
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
