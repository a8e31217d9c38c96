package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/fixflowhq/fixflow/internal/autoreply"
	"github.com/fixflowhq/fixflow/internal/config"
	"github.com/fixflowhq/fixflow/internal/conversation"
	"github.com/fixflowhq/fixflow/internal/db"
	"github.com/fixflowhq/fixflow/internal/handlers"
	"github.com/fixflowhq/fixflow/internal/logger"
	"github.com/fixflowhq/fixflow/internal/provider"
	"github.com/fixflowhq/fixflow/internal/provider/adapters/telegram"
	"github.com/fixflowhq/fixflow/internal/provider/adapters/twilio"
	"github.com/fixflowhq/fixflow/internal/provider/adapters/wppconnect"
	"github.com/fixflowhq/fixflow/internal/ratelimit"
	"github.com/fixflowhq/fixflow/internal/server"
	"github.com/fixflowhq/fixflow/internal/tenant"
	"github.com/fixflowhq/fixflow/internal/webhook"
)

func runServe(cfgPath string) {
	fx.New(
		fx.Supply(configPath(cfgPath)),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideRedis,
			provideRegistry,
			provideCounterStore,
			provideLimiter,
			tenant.NewStore,
			provideResolver,
			conversation.NewStore,
			provideEngine,
			provideDispatcher,
			provideSyncer,
			providePingHandler,
			provideAuthHandler,
			provideWebhookHandler,
			provideTenantsHandler,
			provideConversationsHandler,
			provideServer,
		),
		fx.Invoke(
			startSyncer,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

type configPath string

func provideConfig(path configPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideRedis(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	return client
}

func provideRegistry(log *slog.Logger) *provider.Registry {
	registry := provider.NewRegistry()
	registry.MustRegister(wppconnect.NewAdapter(log, provider.NewClientCache(0, 0, nil)))
	registry.MustRegister(twilio.NewAdapter(log))
	registry.MustRegister(telegram.NewAdapter(log))
	return registry
}

func provideCounterStore(client *redis.Client) ratelimit.CounterStore {
	return ratelimit.NewRedisStore(client, nil)
}

func provideLimiter(store ratelimit.CounterStore, cfg config.Config, log *slog.Logger) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store, ratelimit.PoliciesFromConfig(cfg.RateLimit), cfg.RateLimit.StoreTimeoutDuration(), nil, log)
}

func provideResolver(store *tenant.Store) *tenant.Resolver {
	return tenant.NewResolver(store)
}

func provideEngine(store *conversation.Store, registry *provider.Registry, tenants *tenant.Store, cfg config.Config, log *slog.Logger) *conversation.Engine {
	// A nil generator disables automated replies without disabling ingestion.
	var replies autoreply.Generator
	if cfg.AutoReply.BaseURL != "" {
		replies = autoreply.NewHTTPGenerator(log, cfg.AutoReply.BaseURL, cfg.AutoReply.APIKey, cfg.AutoReply.Timeout())
	}
	return conversation.NewEngine(store, registry, tenants, replies, log)
}

func provideDispatcher(tenants *tenant.Store, resolver *tenant.Resolver, registry *provider.Registry, engine *conversation.Engine, log *slog.Logger) *webhook.Dispatcher {
	return webhook.NewDispatcher(tenants, resolver, registry, engine, log)
}

func provideSyncer(tenants *tenant.Store, registry *provider.Registry, cfg config.Config, log *slog.Logger) *webhook.Syncer {
	return webhook.NewSyncer(tenants, registry, cfg.Server.PublicBaseURL, cfg.Webhook.SyncSchedule, log)
}

func providePingHandler(log *slog.Logger, conn *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, conn)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, cfg.Auth)
}

func provideWebhookHandler(log *slog.Logger, dispatcher *webhook.Dispatcher) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, dispatcher)
}

func provideTenantsHandler(log *slog.Logger, store *tenant.Store, registry *provider.Registry) *handlers.TenantsHandler {
	return handlers.NewTenantsHandler(log, store, registry)
}

func provideConversationsHandler(log *slog.Logger, store *conversation.Store) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, store)
}

func provideServer(cfg config.Config, limiter *ratelimit.Limiter, log *slog.Logger,
	pingHandler *handlers.PingHandler,
	authHandler *handlers.AuthHandler,
	webhookHandler *handlers.WebhookHandler,
	tenantsHandler *handlers.TenantsHandler,
	conversationsHandler *handlers.ConversationsHandler,
) *server.Server {
	return server.NewServer(cfg.Server.Addr, cfg.Auth.JWTSecret, limiter, log,
		pingHandler, authHandler, webhookHandler, tenantsHandler, conversationsHandler)
}

func startSyncer(lc fx.Lifecycle, syncer *webhook.Syncer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return syncer.Start() },
		OnStop:  func(ctx context.Context) error { syncer.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.Migrate(cfg.Postgres); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			go func() {
				log.Info("http server listening", slog.String("addr", cfg.Server.Addr))
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(stopCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
