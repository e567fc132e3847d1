package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeAlreadyMember  = "ALREADY_MEMBER"
	CodeTransient      = "TRANSIENT_STORE_ERROR"
	CodePartialCascade = "PARTIAL_CASCADE"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details string   `json:"details,omitempty"`
	Pending []string `json:"pending,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// NewAlreadyMemberError is the conflict raised when a membership link already exists.
func NewAlreadyMemberError(communityID, userID string) *AppError {
	return &AppError{
		Code:    CodeAlreadyMember,
		Message: fmt.Sprintf("user %s is already a member of community %s", userID, communityID),
	}
}

// NewTransientError wraps a store failure the caller may retry.
func NewTransientError(op string, err error) *AppError {
	return &AppError{
		Code:    CodeTransient,
		Message: fmt.Sprintf("store temporarily unavailable during %s", op),
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// PartialCascadeFailure reports a cascade whose primary deletion committed
// but whose follow-up cleanup did not fully complete. Pending lists the
// cleanup steps still outstanding; repairing them is idempotent.
type PartialCascadeFailure struct {
	Deleted []uint
	Pending []string
	Err     error
}

func (e *PartialCascadeFailure) Error() string {
	msg := fmt.Sprintf("cascade deleted %d threads but left %d cleanup steps pending", len(e.Deleted), len(e.Pending))
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialCascadeFailure) Unwrap() error {
	return e.Err
}

// CodeOf returns the AppError code carried anywhere in err's chain.
func CodeOf(err error) string {
	var partial *PartialCascadeFailure
	if errors.As(err, &partial) {
		return CodePartialCascade
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsConflict matches both generic conflicts and duplicate memberships.
func IsConflict(err error) bool {
	code := CodeOf(err)
	return code == CodeConflict || code == CodeAlreadyMember
}

func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsRetryable reports whether the operation may succeed if attempted again.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeTransient
}

// StatusFor maps an error to the HTTP status used when responding with it.
func StatusFor(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeConflict, CodeAlreadyMember:
		return fiber.StatusConflict
	case CodeTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var partial *PartialCascadeFailure
	var appErr *AppError
	switch {
	case errors.As(err, &partial):
		response = ErrorResponse{
			Error:   "deletion committed but cleanup is incomplete",
			Code:    CodePartialCascade,
			Pending: partial.Pending,
		}
		if partial.Err != nil {
			response.Details = partial.Err.Error()
		}
	case errors.As(err, &appErr):
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// internal causes are logged, not echoed to clients
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
		if appErr.Code == CodeTransient {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
	default:
		response = ErrorResponse{
			Error: strings.TrimSpace(err.Error()),
		}
	}

	return c.Status(status).JSON(response)
}

// RespondWithAppError picks the status from the error itself.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, StatusFor(err), err)
}
