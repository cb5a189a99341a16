package certificate

import (
	"errors"
	"fmt"
)

// FailureKind is the machine-readable discriminant for every expected
// verification failure. The rendering layer maps kinds to prose; this
// package only emits the discriminant.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureInvalidFormat      FailureKind = "invalid_format"
	FailureDecodeFailed       FailureKind = "decode_failed"
	FailureSourceNotFound     FailureKind = "source_not_found"
	FailureInvalidSourceType  FailureKind = "invalid_source_type"
	FailureRecipientNotFound  FailureKind = "recipient_not_found"
	FailureTemplateNotFound   FailureKind = "certificate_not_found"
	FailureAssignmentMismatch FailureKind = "certificate_mismatch"
	FailureNotCompleted       FailureKind = "not_completed"
)

// Message returns a short human-readable description of the failure.
func (k FailureKind) Message() string {
	switch k {
	case FailureInvalidFormat:
		return "invalid certificate id format"
	case FailureDecodeFailed:
		return "could not decode certificate id"
	case FailureSourceNotFound:
		return "certificate source not found"
	case FailureInvalidSourceType:
		return "invalid certificate source type"
	case FailureRecipientNotFound:
		return "certificate recipient not found"
	case FailureTemplateNotFound:
		return "certificate template not found"
	case FailureAssignmentMismatch:
		return "certificate is not assigned to this source"
	case FailureNotCompleted:
		return "recipient has not completed this source"
	default:
		return ""
	}
}

// ErrCannotEncode signals that a record cannot be created because one of the
// three identifiers is zero and no CSUID can exist for it.
var ErrCannotEncode = errors.New("certificate: cannot encode csuid")

// ServiceError carries a dotted operation.reason code alongside the
// underlying cause. It marks infrastructure failures, never expected
// verification outcomes.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
