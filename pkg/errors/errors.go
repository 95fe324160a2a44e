package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents input rejected before any store call
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeVector represents vector index errors
	ErrorTypeVector ErrorType = "vector"
	// ErrorTypeExtraction represents fact-extraction collaborator errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeEmbedding represents embedding collaborator errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeTenant represents tenant resolution errors
	ErrorTypeTenant ErrorType = "tenant"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// errorType reports the category. Promoted through embedding, so every
// typed error answers it.
func (e *BaseError) errorType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrInvalidIdentifier is returned when an identifier type or value is malformed
type ErrInvalidIdentifier struct {
	*BaseError
	IdentifierType  string
	IdentifierValue string
}

func NewInvalidIdentifier(idType, value, reason string) *ErrInvalidIdentifier {
	return &ErrInvalidIdentifier{
		BaseError:       NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid identifier %s:%s - %s", idType, value, reason), nil),
		IdentifierType:  idType,
		IdentifierValue: value,
	}
}

// ErrEmptySourceContent is returned when source content is empty after trimming
var ErrEmptySourceContent = NewBaseError(ErrorTypeValidation, "source content cannot be empty", nil)

// ErrIdentifierConflict is returned when an identifier value is already owned
// by a different entity
type ErrIdentifierConflict struct {
	*BaseError
	Value    string
	OwnerID  string
	EntityID string
}

func NewIdentifierConflict(value, ownerID, entityID string) *ErrIdentifierConflict {
	return &ErrIdentifierConflict{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("identifier %s already belongs to entity %s", value, ownerID), nil),
		Value:     value,
		OwnerID:   ownerID,
		EntityID:  entityID,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the graph store connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to graph store: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Operation string
}

func NewGraphQueryFailed(operation string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("graph operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Vector Errors

// ErrVectorWriteFailed is returned when a vector upsert or delete fails.
// Callers on the assimilation path log it and continue; the graph remains
// the source of truth and the relationship key allows a later replay.
type ErrVectorWriteFailed struct {
	*BaseError
	RelationshipKey string
}

func NewVectorWriteFailed(relationshipKey string, err error) *ErrVectorWriteFailed {
	return &ErrVectorWriteFailed{
		BaseError:       NewBaseError(ErrorTypeVector, fmt.Sprintf("vector write failed: %s", relationshipKey), err),
		RelationshipKey: relationshipKey,
	}
}

// ErrVectorSearchFailed is returned when a semantic search fails
type ErrVectorSearchFailed struct {
	*BaseError
	Collection string
}

func NewVectorSearchFailed(collection string, err error) *ErrVectorSearchFailed {
	return &ErrVectorSearchFailed{
		BaseError:  NewBaseError(ErrorTypeVector, fmt.Sprintf("vector search failed in collection %s", collection), err),
		Collection: collection,
	}
}

// Tenant Errors

// ErrTenantNotResolved is returned when a caller cannot be mapped to a tenant
type ErrTenantNotResolved struct {
	*BaseError
}

func NewTenantNotResolved(err error) *ErrTenantNotResolved {
	return &ErrTenantNotResolved{
		BaseError: NewBaseError(ErrorTypeTenant, "caller could not be resolved to a tenant", err),
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrDimensionMismatch is returned at startup when the embedding dimension
// does not match the vector collection configuration. This is fatal.
type ErrDimensionMismatch struct {
	*BaseError
	Configured int
	Collection int
}

func NewDimensionMismatch(configured, collection int) *ErrDimensionMismatch {
	return &ErrDimensionMismatch{
		BaseError:  NewBaseError(ErrorTypeConfig, fmt.Sprintf("embedding dimension %d does not match collection dimension %d", configured, collection), nil),
		Configured: configured,
		Collection: collection,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if typed, ok := err.(interface{ errorType() ErrorType }); ok {
			return typed.errorType() == errType
		}
		wrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = wrapper.Unwrap()
	}
	return false
}

// IsRetryable checks if an error is retryable. Store connectivity and
// timeout failures are; validation and tenant resolution failures are not.
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeValidation) || IsErrorType(err, ErrorTypeTenant) || IsErrorType(err, ErrorTypeConfig) {
		return false
	}
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	if IsErrorType(err, ErrorTypeGraph) || IsErrorType(err, ErrorTypeVector) {
		return true
	}
	return false
}
