package errors

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "SUB", ErrCodeInvalidTransition.Module())
	assert.Equal(t, "COMMON", ErrCodeNotFound.Module())
}

func TestErrorCode_Format(t *testing.T) {
	re := regexp.MustCompile(`^(COMMON|SUB)_\d{3}$`)
	for code := range codeKind {
		assert.Regexp(t, re, string(code))
	}
}

func TestKindOfCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		kind Kind
	}{
		{ErrCodeSubmissionNotFound, KindNotFound},
		{ErrCodeInvalidTransition, KindInvalidTransition},
		{ErrCodeNotReadyForFiling, KindValidationFailed},
		{ErrCodeUnauthorized, KindUnauthorized},
		{ErrCodeReasoningUnavailable, KindExternalServiceError},
		{ErrCodeVersionConflict, KindConflict},
		{ErrorCode("NOPE_999"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOfCode(tt.code), string(tt.code))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeSubmissionNotFound, http.StatusNotFound},
		{ErrCodeInvalidTransition, http.StatusConflict},
		{ErrCodeNotReadyForFiling, http.StatusUnprocessableEntity},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeExternalService, http.StatusBadGateway},
		{ErrorCode("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatus(tt.code), string(tt.code))
	}
}
