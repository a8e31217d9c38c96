package ratelimit

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fixflowhq/fixflow/internal/auth"
)

// exemptPaths skip the limiter entirely: health probes and documentation are
// cheap, and gating them only breaks orchestration.
var exemptPaths = map[string]struct{}{
	"/healthz": {},
	"/ping":    {},
	"/docs":    {},
}

// Classifier maps method+path to a route class and extracts the client
// identity the budget is charged against. JWTSecret lets it validate bearer
// tokens itself: the gateway runs before the JWT middleware, so the request
// context carries no parsed token yet.
type Classifier struct {
	JWTSecret string
}

// Classify decides the route class from method and path alone.
func (Classifier) Classify(method, path string) Class {
	path = normalizePath(path)
	if _, ok := exemptPaths[path]; ok {
		return ClassExempt
	}
	switch {
	case strings.HasPrefix(path, "/webhooks/"):
		return ClassWebhook
	case strings.HasPrefix(path, "/api/auth/"):
		return ClassAuth
	case strings.HasPrefix(path, "/api/"):
		if method == http.MethodGet || method == http.MethodHead {
			return ClassRead
		}
		return ClassWrite
	default:
		// Static assets and pages bypass the gateway.
		return ClassExempt
	}
}

// Identity resolves who the budget is charged to: webhooks per tenant,
// authenticated calls per user, everything else per source IP. An invalid or
// absent bearer token falls back to the IP; rejecting it is the JWT
// middleware's job, not the limiter's.
func (cl Classifier) Identity(c echo.Context, class Class) string {
	switch class {
	case ClassWebhook:
		if tenantID := c.Param("tenant_id"); tenantID != "" {
			return "tenant:" + tenantID
		}
	case ClassRead, ClassWrite:
		authorization := c.Request().Header.Get(echo.HeaderAuthorization)
		if userID, err := auth.UserIDFromBearer(authorization, cl.JWTSecret); err == nil && userID != "" {
			return "user:" + userID
		}
	}
	return "ip:" + c.RealIP()
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
