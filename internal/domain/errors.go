package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated signals a request with no established caller identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrKBNotFound signals an inaccessible or nonexistent knowledge base.
	// The two cases are deliberately indistinguishable to the caller.
	ErrKBNotFound = errors.New("knowledge base not found or access denied")
	// ErrValidation signals a malformed search request.
	ErrValidation = errors.New("validation failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError wraps ErrValidation with field-level detail.
// Failures are accumulated during validation and reported together.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation creates a validation error from field-level failures.
func NewValidation(fields ...FieldError) error {
	return &ValidationError{Fields: fields}
}

// AccessError wraps ErrKBNotFound with the ids the caller may not read.
// A partially authorized multi-KB request fails as a whole.
type AccessError struct {
	InaccessibleIDs []string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s", ErrKBNotFound.Error(), strings.Join(e.InaccessibleIDs, ", "))
}

func (e *AccessError) Unwrap() error { return ErrKBNotFound }

// NewAccessError creates an access error naming the inaccessible ids.
func NewAccessError(ids []string) error {
	return &AccessError{InaccessibleIDs: ids}
}
