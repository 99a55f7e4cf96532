package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := &AppError{Code: ErrCodeNotFound, Message: "notification not found"}
		assert.Equal(t, "notification not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		err := &AppError{
			Code:    ErrCodeInternal,
			Message: "dispatch failed",
			Cause:   errors.New("connection reset"),
		}
		assert.Equal(t, "dispatch failed: connection reset", err.Error())
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, ErrCodeInternal, "dispatch failed")
	assert.ErrorIs(t, err, cause)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"NotFound", NotFound("missing"), ErrCodeNotFound},
		{"Conflict", Conflict("duplicate"), ErrCodeConflict},
		{"Validation", Validation("bad input"), ErrCodeValidation},
		{"ForeignKey", ForeignKey("in use"), ErrCodeForeignKey},
		{"Internal", Internal("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("recipient", "recipient is required")
	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Equal(t, "recipient", err.Field)
	assert.Equal(t, "recipient is required", err.Message)
}

func TestWrap_NilStaysNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name string
		pred func(error) bool
		err  error
		want bool
	}{
		{"IsNotFound matches", IsNotFound, NotFound("missing"), true},
		{"IsNotFound rejects other kind", IsNotFound, Conflict("duplicate"), false},
		{"IsConflict matches", IsConflict, Conflict("duplicate"), true},
		{"IsConflict rejects plain error", IsConflict, errors.New("plain"), false},
		{"IsValidation matches field variant", IsValidation, ValidationField("channel", "bad"), true},
		{"IsForeignKey matches", IsForeignKey, ForeignKey("in use"), true},
		{"IsInternal matches", IsInternal, Internal("boom"), true},
		{"IsTimeout matches", IsTimeout, &AppError{Code: ErrCodeTimeout, Message: "slow"}, true},
		{"IsCanceled matches", IsCanceled, &AppError{Code: ErrCodeCanceled, Message: "gone"}, true},
		{"nil error", IsNotFound, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.err))
		})
	}
}

func TestKindPredicates_SeeThroughWrapping(t *testing.T) {
	// Repositories wrap mapped errors with operation context; classification
	// must survive the extra layer.
	wrapped := fmt.Errorf("upsert template: %w", Conflict("duplicate"))
	assert.True(t, IsConflict(wrapped))
	assert.Equal(t, ErrCodeConflict, GetCode(wrapped))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, GetCode(NotFound("missing")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
}

func TestGetField(t *testing.T) {
	assert.Equal(t, "job_id", GetField(ValidationField("job_id", "required")))
	assert.Equal(t, "", GetField(NotFound("missing")))
	assert.Equal(t, "", GetField(nil))
}
