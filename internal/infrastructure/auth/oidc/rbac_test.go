package oidc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method, path string
		want         Permission
	}{
		{http.MethodGet, "/api/v1/submissions", PermSubmissionRead},
		{http.MethodGet, "/api/v1/submissions/abc/audit", PermSubmissionRead},
		{http.MethodPost, "/api/v1/submissions", PermSubmissionWrite},
		{http.MethodPost, "/api/v1/submissions/abc/transitions", PermSubmissionWrite},
		{http.MethodGet, "/api/v1/health/filing", PermReportRead},
		{http.MethodGet, "/api/v1/deadlines", PermReportRead},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, RequiredPermission(r), tt.method+" "+tt.path)
	}
}

func TestEnforcer_HasPermission(t *testing.T) {
	e := NewEnforcer(nil, nil)
	assert.True(t, e.HasPermission([]string{"taxflow-viewer"}, PermReportRead))
	assert.False(t, e.HasPermission([]string{"taxflow-viewer"}, PermSubmissionWrite))
	assert.True(t, e.HasPermission([]string{"offline_access", "taxflow-preparer"}, PermSubmissionWrite))
	assert.False(t, e.HasPermission(nil, PermSubmissionRead))
}

func TestEnforcer_Middleware(t *testing.T) {
	e := NewEnforcer(nil, nil)
	h := e.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(method string, claims *middleware.Claims) *httptest.ResponseRecorder {
		r := httptest.NewRequest(method, "/api/v1/submissions", nil)
		if claims != nil {
			r = r.WithContext(middleware.WithClaims(r.Context(), claims))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusNoContent, call(http.MethodGet, &middleware.Claims{Roles: []string{"taxflow-viewer"}}).Code)
	assert.Equal(t, http.StatusNoContent, call(http.MethodPost, &middleware.Claims{Roles: []string{"taxflow-admin"}}).Code)

	w := call(http.MethodPost, &middleware.Claims{Roles: []string{"taxflow-viewer"}})
	require.Equal(t, http.StatusForbidden, w.Code)
	var body errors.Payload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(errors.ErrCodeForbidden), string(body.Code))

	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, nil).Code)
}
