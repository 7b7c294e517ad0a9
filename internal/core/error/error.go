package errx

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SQLiteErrorMessage describes SQLite related failures.
	SQLiteErrorMessage = "sqlite operation failed"
	// SQLiteBusyMessage describes a locked SQLite database.
	SQLiteBusyMessage = "database busy, retry later"
	// ValidationMessage prefixes validation failures.
	ValidationMessage = "validation failed"
	// SubmissionFailedMessage is shown to the visitor when a lead could not be delivered.
	SubmissionFailedMessage = "Une erreur est survenue. Veuillez réessayer."
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return e.Err != nil && errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if e.Err != nil && errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Conversation rejections. They never mutate state and map to 4xx statuses.
var (
	ErrAwaitingReply   = New(nil, http.StatusConflict, "a reply is already pending")
	ErrFormOpen        = New(nil, http.StatusConflict, "the lead form is open")
	ErrFormClosed      = New(nil, http.StatusConflict, "the lead form is not open")
	ErrSubmitting      = New(nil, http.StatusConflict, "a lead submission is in progress")
	ErrUnknownAction   = New(nil, http.StatusBadRequest, "unknown action")
	ErrClosed          = New(nil, http.StatusGone, "conversation closed")
	ErrSessionNotFound = New(nil, http.StatusNotFound, "conversation not found")
)

// NewSubmissionFailed wraps a lead delivery failure with the message shown to the visitor.
func NewSubmissionFailed(err error) *AppError {
	return New(err, http.StatusBadGateway, SubmissionFailedMessage)
}

// ErrBlankUtterance rejects chat input that is empty after trimming.
var ErrBlankUtterance = NewValidation("text", "message must not be blank")

// ValidationError reports missing or malformed fields from the chat input or the lead form.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation creates a ValidationError holding a single field problem.
func NewValidation(field, problem string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, problem)
	return v
}

// Add records a problem for field. The first problem recorded for a field wins.
func (v *ValidationError) Add(field, problem string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	if _, exists := v.Fields[field]; !exists {
		v.Fields[field] = problem
	}
}

// OrNil returns v as an error when it holds at least one field, nil otherwise.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// Error implements the error interface with fields in a stable order.
func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return ValidationMessage + ": " + strings.Join(parts, ", ")
}

// StatusOf maps any error to the HTTP status the API should answer with.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var ae *AppError
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the message that is safe to show to a visitor.
func MessageOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ValidationMessage
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return SystemErrorMessage
}

// FieldsOf returns the field problems carried by a ValidationError in err's chain.
func FieldsOf(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
