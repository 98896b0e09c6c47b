package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Module returns the module prefix of the code ("COMMON", "SUB", ...).
func (c ErrorCode) Module() string {
	s := string(c)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Submission Module Error Codes
const (
	ErrCodeSubmissionNotFound    ErrorCode = "SUB_001"
	ErrCodeInvalidTransition     ErrorCode = "SUB_002"
	ErrCodeNotReadyForFiling     ErrorCode = "SUB_003"
	ErrCodeVersionConflict       ErrorCode = "SUB_004"
	ErrCodeTemplateNotFound      ErrorCode = "SUB_005"
	ErrCodeDocumentGeneration    ErrorCode = "SUB_006"
	ErrCodeSubmissionLocked      ErrorCode = "SUB_007"
	ErrCodeInvalidFormData       ErrorCode = "SUB_008"
	ErrCodeReasoningUnavailable  ErrorCode = "SUB_009"
	ErrCodeNotificationFailed    ErrorCode = "SUB_010"
	ErrCodeDocumentArchiveFailed ErrorCode = "SUB_011"
	ErrCodeDeadlineDefinitionBad ErrorCode = "SUB_012"
	ErrCodeRuleRegistryInvalid   ErrorCode = "SUB_013"
)

// Aliases used across layers.
const (
	CodeInternal      = ErrCodeInternal
	CodeInvalidParam  = ErrCodeBadRequest
	CodeUnauthorized  = ErrCodeUnauthorized
	CodeForbidden     = ErrCodeForbidden
	CodeNotFound      = ErrCodeNotFound
	CodeConflict      = ErrCodeConflict
	CodeOK            = ErrorCode("OK")
	CodeUnknown       = ErrorCode("")
	CodeDatabaseError = ErrCodeDatabaseError
	CodeCacheError    = ErrCodeCacheError
	CodeStorageError  = ErrCodeExternalService
	CodeMessageQueue  = ErrCodeExternalService
)

// ─────────────────────────────────────────────────────────────────────────────
// Kind: caller-facing error taxonomy
// ─────────────────────────────────────────────────────────────────────────────

// Kind is the coarse error category reported to callers in {kind, message}
// responses. Many codes share one kind.
type Kind string

const (
	KindNotFound             Kind = "NotFound"
	KindInvalidTransition    Kind = "InvalidTransition"
	KindValidationFailed     Kind = "ValidationFailed"
	KindUnauthorized         Kind = "Unauthorized"
	KindExternalServiceError Kind = "ExternalServiceError"
	KindInvalidParam         Kind = "InvalidParam"
	KindConflict             Kind = "Conflict"
	KindInternal             Kind = "Internal"
)

var codeKind = map[ErrorCode]Kind{
	ErrCodeInternal:           KindInternal,
	ErrCodeBadRequest:         KindInvalidParam,
	ErrCodeUnauthorized:       KindUnauthorized,
	ErrCodeForbidden:          KindUnauthorized,
	ErrCodeNotFound:           KindNotFound,
	ErrCodeConflict:           KindConflict,
	ErrCodeServiceUnavailable: KindExternalServiceError,
	ErrCodeTimeout:            KindExternalServiceError,
	ErrCodeValidation:         KindValidationFailed,
	ErrCodeSerialization:      KindInternal,
	ErrCodeDatabaseError:      KindInternal,
	ErrCodeCacheError:         KindInternal,
	ErrCodeExternalService:    KindExternalServiceError,

	ErrCodeSubmissionNotFound:    KindNotFound,
	ErrCodeInvalidTransition:     KindInvalidTransition,
	ErrCodeNotReadyForFiling:     KindValidationFailed,
	ErrCodeVersionConflict:       KindConflict,
	ErrCodeTemplateNotFound:      KindNotFound,
	ErrCodeDocumentGeneration:    KindInternal,
	ErrCodeSubmissionLocked:      KindConflict,
	ErrCodeInvalidFormData:       KindInvalidParam,
	ErrCodeReasoningUnavailable:  KindExternalServiceError,
	ErrCodeNotificationFailed:    KindExternalServiceError,
	ErrCodeDocumentArchiveFailed: KindExternalServiceError,
	ErrCodeDeadlineDefinitionBad: KindInvalidParam,
	ErrCodeRuleRegistryInvalid:   KindInvalidParam,
}

// KindOfCode returns the taxonomy kind for a code, KindInternal when unmapped.
func KindOfCode(code ErrorCode) Kind {
	if k, ok := codeKind[code]; ok {
		return k
	}
	return KindInternal
}

var kindHTTPStatus = map[Kind]int{
	KindNotFound:             http.StatusNotFound,
	KindInvalidTransition:    http.StatusConflict,
	KindValidationFailed:     http.StatusUnprocessableEntity,
	KindUnauthorized:         http.StatusUnauthorized,
	KindExternalServiceError: http.StatusBadGateway,
	KindInvalidParam:         http.StatusBadRequest,
	KindConflict:             http.StatusConflict,
	KindInternal:             http.StatusInternalServerError,
}

// HTTPStatus maps a code to the HTTP status used by the REST layer.
func HTTPStatus(code ErrorCode) int {
	if code == ErrCodeForbidden {
		return http.StatusForbidden
	}
	return kindHTTPStatus[KindOfCode(code)]
}
