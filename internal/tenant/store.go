package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixflowhq/fixflow/internal/db"
	"github.com/fixflowhq/fixflow/internal/provider"
)

// Store provides tenant and messaging-config persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the tenant by id.
func (s *Store) Get(ctx context.Context, tenantID string) (Tenant, error) {
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return Tenant{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	var t Tenant
	err = s.pool.QueryRow(ctx, `
		SELECT id::text, name, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// Create inserts a tenant and returns it.
func (s *Store) Create(ctx context.Context, name string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("tenant name is required")
	}
	var t Tenant
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (name) VALUES ($1)
		RETURNING id::text, name, created_at, updated_at
	`, name).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// GetMessagingConfig returns the tenant's messaging provider binding.
// ErrNotConfigured when the tenant exists without a config.
func (s *Store) GetMessagingConfig(ctx context.Context, tenantID string) (MessagingConfig, error) {
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return MessagingConfig{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	var (
		cfg          MessagingConfig
		providerName string
		sessionID    *string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT tenant_id::text, provider, provider_api_base_url, provider_api_key,
		       provider_session_id, webhook_shared_secret, updated_at
		FROM tenant_messaging_configs
		WHERE tenant_id = $1
	`, id).Scan(&cfg.TenantID, &providerName, &cfg.APIBaseURL, &cfg.APIKey,
		&sessionID, &cfg.WebhookSharedSecret, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MessagingConfig{}, ErrNotConfigured
	}
	if err != nil {
		return MessagingConfig{}, err
	}
	cfg.Provider = provider.Provider(providerName)
	if sessionID != nil {
		cfg.SessionID = *sessionID
	}
	return cfg, nil
}

// UpsertMessagingConfig creates or replaces the tenant's messaging config.
func (s *Store) UpsertMessagingConfig(ctx context.Context, tenantID string, req UpsertConfigRequest) (MessagingConfig, error) {
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return MessagingConfig{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	var sessionID *string
	if trimmed := strings.TrimSpace(req.SessionID); trimmed != "" {
		sessionID = &trimmed
	}
	var (
		cfg          MessagingConfig
		providerName string
		storedSess   *string
	)
	err = s.pool.QueryRow(ctx, `
		INSERT INTO tenant_messaging_configs
		    (tenant_id, provider, provider_api_base_url, provider_api_key,
		     provider_session_id, webhook_shared_secret)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
		    provider = EXCLUDED.provider,
		    provider_api_base_url = EXCLUDED.provider_api_base_url,
		    provider_api_key = EXCLUDED.provider_api_key,
		    provider_session_id = EXCLUDED.provider_session_id,
		    webhook_shared_secret = EXCLUDED.webhook_shared_secret,
		    updated_at = now()
		RETURNING tenant_id::text, provider, provider_api_base_url, provider_api_key,
		          provider_session_id, webhook_shared_secret, updated_at
	`, id, strings.ToLower(strings.TrimSpace(req.Provider)), strings.TrimSpace(req.APIBaseURL),
		strings.TrimSpace(req.APIKey), sessionID, strings.TrimSpace(req.WebhookSharedSecret),
	).Scan(&cfg.TenantID, &providerName, &cfg.APIBaseURL, &cfg.APIKey,
		&storedSess, &cfg.WebhookSharedSecret, &cfg.UpdatedAt)
	if err != nil {
		return MessagingConfig{}, err
	}
	cfg.Provider = provider.Provider(providerName)
	if storedSess != nil {
		cfg.SessionID = *storedSess
	}
	return cfg, nil
}

// ListMessagingConfigs returns every tenant messaging config. Used by the
// webhook-registration sync job.
func (s *Store) ListMessagingConfigs(ctx context.Context) ([]MessagingConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id::text, provider, provider_api_base_url, provider_api_key,
		       provider_session_id, webhook_shared_secret, updated_at
		FROM tenant_messaging_configs
		ORDER BY tenant_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []MessagingConfig
	for rows.Next() {
		var (
			cfg          MessagingConfig
			providerName string
			sessionID    *string
		)
		if err := rows.Scan(&cfg.TenantID, &providerName, &cfg.APIBaseURL, &cfg.APIKey,
			&sessionID, &cfg.WebhookSharedSecret, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		cfg.Provider = provider.Provider(providerName)
		if sessionID != nil {
			cfg.SessionID = *sessionID
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// TenantBySession returns the tenant id owning the given provider session.
func (s *Store) TenantBySession(ctx context.Context, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrSessionNotFound
	}
	var tenantID string
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id::text
		FROM tenant_messaging_configs
		WHERE provider_session_id = $1
	`, sessionID).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	return tenantID, nil
}
