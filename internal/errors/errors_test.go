package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Lead not found")
		assert.Equal(t, "NOT_FOUND: Lead not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "visitorId", "reason": "empty"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"NotFound", func() *AppError { return NotFound("Lead") }, ErrCodeNotFound},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("visitorId", "empty") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("text") }, ErrCodeMissingRequired},
		{"SequenceConflict", func() *AppError { return SequenceConflict("sess-1", 4) }, ErrCodeSequenceConflict},
		{"ExtractionUnavailable", func() *AppError { return ExtractionUnavailable(errors.New("timeout")) }, ErrCodeExtractionUnavailable},
		{"CredentialsUnavailable", func() *AppError { return CredentialsUnavailable(errors.New("refresh failed")) }, ErrCodeCredentialsUnavailable},
		{"SyncFailed", func() *AppError { return SyncFailed("v-1", errors.New("503")) }, ErrCodeSyncFailed},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestHasCode(t *testing.T) {
	t.Run("matches direct AppError", func(t *testing.T) {
		err := SequenceConflict("sess-1", 2)
		assert.True(t, HasCode(err, ErrCodeSequenceConflict))
		assert.False(t, HasCode(err, ErrCodeSyncFailed))
	})

	t.Run("matches wrapped AppError", func(t *testing.T) {
		err := fmt.Errorf("handle turn: %w", ExtractionUnavailable(errors.New("timeout")))
		assert.True(t, HasCode(err, ErrCodeExtractionUnavailable))
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), ErrCodeInternal))
	})
}

func TestDatabase(t *testing.T) {
	t.Run("wraps database error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)
		assert.Equal(t, ErrCodeDatabase, err.Code)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("503 service unavailable")
		err := External("crm", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Error(), "crm")
		assert.Equal(t, cause, err.Unwrap())
	})
}
