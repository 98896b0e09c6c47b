package oidc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type Permission string

const (
	PermSubmissionRead  Permission = "submission:read"
	PermSubmissionWrite Permission = "submission:write"
	PermReportRead      Permission = "report:read"
)

type Role string

const (
	RoleViewer   Role = "taxflow-viewer"
	RolePreparer Role = "taxflow-preparer"
	RoleAdmin    Role = "taxflow-admin"
)

// RolePermissionMapping grants permissions per role.
type RolePermissionMapping map[Role][]Permission

func DefaultRolePermissionMapping() RolePermissionMapping {
	return RolePermissionMapping{
		RoleViewer:   {PermSubmissionRead, PermReportRead},
		RolePreparer: {PermSubmissionRead, PermSubmissionWrite, PermReportRead},
		RoleAdmin:    {PermSubmissionRead, PermSubmissionWrite, PermReportRead},
	}
}

// Enforcer checks the roles carried by authenticated requests.
type Enforcer struct {
	mapping RolePermissionMapping
	logger  logging.Logger
}

func NewEnforcer(mapping RolePermissionMapping, logger logging.Logger) *Enforcer {
	if mapping == nil {
		mapping = DefaultRolePermissionMapping()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Enforcer{mapping: mapping, logger: logger}
}

// HasPermission reports whether any of roles grants p.
func (e *Enforcer) HasPermission(roles []string, p Permission) bool {
	for _, r := range roles {
		for _, granted := range e.mapping[Role(r)] {
			if granted == p {
				return true
			}
		}
	}
	return false
}

// RequiredPermission derives the permission an API request needs from its
// method and path.
func RequiredPermission(r *http.Request) Permission {
	path := r.URL.Path
	if strings.Contains(path, "/health/") || strings.HasSuffix(path, "/deadlines") {
		return PermReportRead
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return PermSubmissionRead
	}
	return PermSubmissionWrite
}

// Middleware rejects authenticated requests whose roles lack the required
// permission. It must run after the authentication middleware.
func (e *Enforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ContextGetClaims(r.Context())
		need := RequiredPermission(r)
		if claims == nil || !e.HasPermission(claims.Roles, need) {
			subject := ""
			if claims != nil {
				subject = claims.Subject
			}
			e.logger.Warn("Permission denied",
				logging.String("subject", subject),
				logging.String("permission", string(need)),
				logging.String("path", r.URL.Path))
			err := errors.Forbidden("missing permission").WithDetail(string(need))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(errors.ToPayload(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}
