package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType(t *testing.T) {
	// Embedding types report their category even when nothing is wrapped.
	assert.True(t, IsErrorType(NewIdentifierConflict("a@b.c", "owner", "other"), ErrorTypeValidation))
	assert.True(t, IsErrorType(NewGraphQueryFailed("create entity", fmt.Errorf("boom")), ErrorTypeGraph))
	assert.True(t, IsErrorType(NewVectorWriteFailed("t|e|v|f", fmt.Errorf("boom")), ErrorTypeVector))
	assert.True(t, IsErrorType(NewTenantNotResolved(nil), ErrorTypeTenant))
	assert.True(t, IsErrorType(NewConfigMissingRequired("NEO4J_URI"), ErrorTypeConfig))
	assert.True(t, IsErrorType(NewGraphConnectionFailed("bolt://localhost:7687", fmt.Errorf("refused")), ErrorTypeGraph))

	// A typed error keeps its category through fmt.Errorf wrapping.
	wrapped := fmt.Errorf("assimilate: %w", NewGraphQueryFailed("add fact", fmt.Errorf("boom")))
	assert.True(t, IsErrorType(wrapped, ErrorTypeGraph))
	assert.False(t, IsErrorType(wrapped, ErrorTypeVector))

	assert.False(t, IsErrorType(fmt.Errorf("plain"), ErrorTypeGraph))
	assert.False(t, IsErrorType(nil, ErrorTypeGraph))
}

func TestIsRetryable(t *testing.T) {
	// Store failures are retryable.
	assert.True(t, IsRetryable(NewGraphQueryFailed("find entity", fmt.Errorf("boom"))))
	assert.True(t, IsRetryable(NewGraphConnectionFailed("bolt://localhost:7687", fmt.Errorf("refused"))))
	assert.True(t, IsRetryable(NewVectorSearchFailed("semantic_memory", fmt.Errorf("boom"))))
	assert.True(t, IsRetryable(NewVectorWriteFailed("t|e|v|f", fmt.Errorf("boom"))))

	// Caller mistakes and deployment mistakes are not.
	assert.False(t, IsRetryable(NewInvalidIdentifier("email", "", "value is required")))
	assert.False(t, IsRetryable(NewIdentifierConflict("a@b.c", "owner", "other")))
	assert.False(t, IsRetryable(NewTenantNotResolved(nil)))
	assert.False(t, IsRetryable(NewConfigMissingRequired("QDRANT_HOST")))
	assert.False(t, IsRetryable(NewDimensionMismatch(1536, 768)))

	// Cancellation means the caller gave up; retrying on their behalf is wrong.
	assert.False(t, IsRetryable(NewBaseError(ErrorTypeContext, "extraction cancelled", context.Canceled)))

	assert.False(t, IsRetryable(NewBaseError(ErrorTypeExtraction, "extraction failed", fmt.Errorf("boom"))))
	assert.False(t, IsRetryable(NewBaseError(ErrorTypeEmbedding, "embedding request failed", fmt.Errorf("boom"))))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(nil))
}
