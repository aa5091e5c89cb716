package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Editorial workflow error codes. All of these are recoverable: the operation
// was rejected, nothing was mutated, and the caller may retry after fixing
// the stated condition.
const (
	ErrInvalidTransition         = "INVALID_TRANSITION"
	ErrInvalidStageOrder         = "INVALID_STAGE_ORDER"
	ErrDuplicateActiveAssignment = "DUPLICATE_ACTIVE_ASSIGNMENT"
	ErrStaleVersionConflict      = "STALE_VERSION_CONFLICT"
	ErrImmutableState            = "IMMUTABLE_STATE"
	ErrPreconditionFailed        = "PRECONDITION_FAILED"
)

// ErrorEnvelope is the standard error response envelope returned by the
// engine. It implements the error interface. Current/Required carry enough
// state context for the caller to retry correctly.
type ErrorEnvelope struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Current  string       `json:"current_state,omitempty"`
	Required string       `json:"required_state,omitempty"`
	Details  []FieldError `json:"details,omitempty"`
	TraceID  string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error describing
// the state the record is in and the state the operation requires.
func NewInvalidTransitionError(msg, current, required string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:     ErrInvalidTransition,
		Message:  msg,
		Current:  current,
		Required: required,
	}
}

// NewInvalidStageOrderError returns an INVALID_STAGE_ORDER error: a stage was
// opened before its predecessor completed.
func NewInvalidStageOrderError(msg, current, required string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:     ErrInvalidStageOrder,
		Message:  msg,
		Current:  current,
		Required: required,
	}
}

// NewDuplicateActiveAssignmentError returns a DUPLICATE_ACTIVE_ASSIGNMENT
// error: a non-terminal assignment already exists for the stage.
func NewDuplicateActiveAssignmentError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDuplicateActiveAssignment, Message: msg}
}

// NewStaleVersionConflictError returns a STALE_VERSION_CONFLICT error for an
// optimistic save whose base version is no longer current.
func NewStaleVersionConflictError(base, head int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:     ErrStaleVersionConflict,
		Message:  fmt.Sprintf("save based on version %d but current version is %d; reload and retry", base, head),
		Current:  fmt.Sprintf("version %d", head),
		Required: fmt.Sprintf("base version %d", head),
	}
}

// NewImmutableStateError returns an IMMUTABLE_STATE error: a mutation was
// attempted on a terminal or published record.
func NewImmutableStateError(msg, current string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrImmutableState, Message: msg, Current: current}
}

// NewPreconditionFailedError returns a PRECONDITION_FAILED error for a
// stage-specific completion precondition that does not hold.
func NewPreconditionFailedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrPreconditionFailed, Message: msg}
}
