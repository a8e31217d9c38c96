package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixflowhq/fixflow/internal/auth"
)

const testJWTSecret = "classifier-test-secret"

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		path   string
		want   Class
	}{
		{http.MethodGet, "/healthz", ClassExempt},
		{http.MethodGet, "/ping", ClassExempt},
		{http.MethodGet, "/docs", ClassExempt},
		{http.MethodGet, "/docs/", ClassExempt},
		{http.MethodPost, "/webhooks/messaging/t-1", ClassWebhook},
		{http.MethodPost, "/api/auth/login", ClassAuth},
		{http.MethodPost, "/api/auth/refresh", ClassAuth},
		{http.MethodGet, "/api/tenants/t-1/conversations", ClassRead},
		{http.MethodHead, "/api/tenants/t-1/conversations", ClassRead},
		{http.MethodPut, "/api/tenants/t-1/messaging-config", ClassWrite},
		{http.MethodPost, "/api/conversations/c-1/close", ClassWrite},
		{http.MethodDelete, "/api/conversations/c-1", ClassWrite},
		{http.MethodGet, "/", ClassExempt},
		{http.MethodGet, "/assets/app.js", ClassExempt},
	}

	var classifier Classifier
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifier.Classify(tt.method, tt.path),
			"%s %s", tt.method, tt.path)
	}
}

func TestIdentity_WebhookChargesTenant(t *testing.T) {
	t.Parallel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging/t-1", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("tenant_id")
	c.SetParamValues("t-1")

	var classifier Classifier
	assert.Equal(t, "tenant:t-1", classifier.Identity(c, ClassWebhook))
}

func TestIdentity_BearerTokenChargesUser(t *testing.T) {
	t.Parallel()

	token, _, err := auth.GenerateToken("user-7", testJWTSecret, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tenants/t-1/conversations", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.RemoteAddr = "10.1.2.3:51000"
	c := e.NewContext(req, httptest.NewRecorder())

	classifier := Classifier{JWTSecret: testJWTSecret}
	assert.Equal(t, "user:user-7", classifier.Identity(c, ClassRead))
}

func TestIdentity_InvalidBearerFallsBackToIP(t *testing.T) {
	t.Parallel()

	// Signed with a different secret: the limiter must not trust it.
	token, _, err := auth.GenerateToken("user-7", "some-other-secret", time.Hour)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tenants/t-1/conversations", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.RemoteAddr = "10.1.2.3:51000"
	c := e.NewContext(req, httptest.NewRecorder())

	classifier := Classifier{JWTSecret: testJWTSecret}
	assert.Equal(t, "ip:10.1.2.3", classifier.Identity(c, ClassRead))
}

func TestIdentity_FallsBackToIP(t *testing.T) {
	t.Parallel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:51000"
	c := e.NewContext(req, httptest.NewRecorder())

	var classifier Classifier
	assert.Equal(t, "ip:10.1.2.3", classifier.Identity(c, ClassAuth))
	// Unauthenticated API traffic is charged per source address too.
	assert.Equal(t, "ip:10.1.2.3", classifier.Identity(c, ClassWrite))
}
