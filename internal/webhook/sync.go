package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/tenant"
)

// ConfigLister enumerates every tenant messaging configuration.
type ConfigLister interface {
	ListMessagingConfigs(ctx context.Context) ([]tenant.MessagingConfig, error)
}

// Syncer periodically re-asserts each tenant's provider webhook registration,
// keeping it pointed at this deployment's public URL. Providers occasionally
// lose or overwrite registrations; re-registering is idempotent.
type Syncer struct {
	configs       ConfigLister
	registry      *provider.Registry
	publicBaseURL string
	schedule      string
	cron          *cron.Cron
	log           *slog.Logger
}

// NewSyncer wires a Syncer. schedule is a cron expression; empty disables
// the job.
func NewSyncer(configs ConfigLister, registry *provider.Registry, publicBaseURL, schedule string, log *slog.Logger) *Syncer {
	return &Syncer{
		configs:       configs,
		registry:      registry,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		schedule:      schedule,
		log:           log.With(slog.String("component", "webhook-sync")),
	}
}

// Start schedules the periodic sync and runs one pass immediately.
func (s *Syncer) Start() error {
	if s.schedule == "" || s.publicBaseURL == "" {
		s.log.Info("webhook sync disabled")
		return nil
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.SyncAll(ctx)
	}); err != nil {
		return fmt.Errorf("schedule webhook sync: %w", err)
	}
	s.cron.Start()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.SyncAll(ctx)
	}()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Syncer) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// SyncAll re-registers the webhook for every configured tenant. Per-tenant
// failures are logged and do not stop the pass.
func (s *Syncer) SyncAll(ctx context.Context) {
	configs, err := s.configs.ListMessagingConfigs(ctx)
	if err != nil {
		s.log.Error("webhook sync: list configs failed", slog.String("error", err.Error()))
		return
	}

	var synced int
	for _, cfg := range configs {
		registrar, ok := s.registry.GetWebhookRegistrar(cfg.Provider)
		if !ok {
			continue
		}
		target := s.TargetURL(cfg.TenantID, cfg.Provider)
		if err := registrar.RegisterWebhook(ctx, cfg.SendConfig(), target, cfg.TenantID); err != nil {
			s.log.Warn("webhook registration failed",
				slog.String("tenant_id", cfg.TenantID),
				slog.String("provider", cfg.Provider.String()),
				slog.String("error", err.Error()))
			continue
		}
		synced++
	}
	s.log.Info("webhook sync pass complete",
		slog.Int("configured", len(configs)),
		slog.Int("synced", synced))
}

// TargetURL is the public delivery URL registered for a tenant.
func (s *Syncer) TargetURL(tenantID string, p provider.Provider) string {
	return fmt.Sprintf("%s/webhooks/messaging/%s/%s", s.publicBaseURL, tenantID, p)
}
