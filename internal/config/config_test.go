package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, 60, cfg.RateLimit.Read.Limit)
	assert.Equal(t, 30, cfg.RateLimit.Write.Limit)
	assert.Equal(t, 5, cfg.RateLimit.Auth.Limit)
	assert.Equal(t, 100, cfg.RateLimit.Webhook.Limit)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.StoreTimeoutDuration())
	assert.Equal(t, 20*time.Second, cfg.AutoReply.Timeout())
	assert.Equal(t, "@every 1h", cfg.Webhook.SyncSchedule)
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"
public_base_url = "https://gw.example.com"

[auth]
jwt_secret = "super-secret"
admin_email = "ops@example.com"

[postgres]
host = "db.internal"
port = 5433
user = "fixflow"
password = "pw"
database = "fixflow"

[rate_limit]
store_timeout = "250ms"

[rate_limit.read]
limit = 120
window_seconds = 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://gw.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 120, cfg.RateLimit.Read.Limit)
	assert.Equal(t, 30, cfg.RateLimit.Read.WindowSeconds)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.StoreTimeoutDuration())

	// Untouched sections keep their defaults.
	assert.Equal(t, 30, cfg.RateLimit.Write.Limit)
	assert.Equal(t, "postgres://fixflow:pw@db.internal:5433/fixflow?sslmode=disable", cfg.Postgres.DSN())
}

func TestStoreTimeoutDuration_Invalid(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{StoreTimeout: "soon"}
	assert.Equal(t, 500*time.Millisecond, cfg.StoreTimeoutDuration())
}
