package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrMissingInput, "prompt is empty")
	assert.Equal(t, "[MISSING_INPUT] prompt is empty", err.Error())

	cause := errors.New("boom")
	err = ProviderFailure("gemini", "call failed", cause)
	assert.Equal(t, "[PROVIDER_ERROR] call failed: boom", err.Error())
	assert.Equal(t, "gemini", err.Provider)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf_Wrapped(t *testing.T) {
	inner := UnsupportedFormat("not an image")
	wrapped := fmt.Errorf("upload: %w", inner)

	assert.Equal(t, ErrUnsupportedFormat, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))

	got, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Same(t, inner, got)
}

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrMissingCredential, http.StatusBadRequest},
		{ErrMissingInput, http.StatusBadRequest},
		{ErrUnsupportedFormat, http.StatusBadRequest},
		{ErrUnsupportedProvider, http.StatusBadRequest},
		{ErrProviderError, http.StatusInternalServerError},
		{ErrStorageError, http.StatusInternalServerError},
		{ErrGenerationInProgress, http.StatusConflict},
		{ErrInvalidState, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{ErrRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusFor(tt.code))
		})
	}
}

func TestErrorCode_IsValidation(t *testing.T) {
	assert.True(t, ErrMissingCredential.IsValidation())
	assert.True(t, ErrUnsupportedProvider.IsValidation())
	assert.False(t, ErrProviderError.IsValidation())
	assert.False(t, ErrStorageError.IsValidation())
}

func TestProviderID_Valid(t *testing.T) {
	assert.True(t, ProviderPollinations.Valid())
	assert.True(t, ProviderGemini.Valid())
	assert.False(t, ProviderID("dalle").Valid())
	assert.False(t, ProviderID("").Valid())
}
