package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/miraassistant/mira/internal/authstate"
	"github.com/miraassistant/mira/internal/calendar"
	"github.com/miraassistant/mira/internal/config"
	"github.com/miraassistant/mira/internal/google"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/identity/mongostore"
	"github.com/miraassistant/mira/internal/identity/sqlstore"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/linking"
	"github.com/miraassistant/mira/internal/logging"
	"github.com/miraassistant/mira/internal/server"
	"github.com/miraassistant/mira/internal/tokens"
	"github.com/miraassistant/mira/internal/trigger"
)

// newLogger builds the process logger. Logs always go to stderr so the
// stdio MCP transport keeps stdout to itself.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}
	return logger, nil
}

// openStore connects the configured identity backend. SQL stores migrate and
// the Mongo store creates its indexes as part of opening.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identity.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using the in-memory identity store; linked accounts are lost on restart")
		return identity.NewMemoryStore(logger), nil
	case config.BackendSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.Store.SQLitePath, logger)
	case config.BackendPostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Store.PostgresDSN, logger)
	case config.BackendMongo:
		return mongostore.Open(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// openStateStore returns the OAuth state store, or nil when the state check
// is disabled. The returned redis client, if any, must be closed.
func openStateStore(ctx context.Context, cfg *config.Config) (authstate.Store, *redis.Client, error) {
	switch cfg.State.Backend {
	case config.StateNone:
		return nil, nil, nil
	case config.StateMemory:
		return authstate.NewMemoryStore(cfg.State.TTL), nil, nil
	case config.StateRedis:
		client, err := authstate.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return authstate.NewRedisStore(client, cfg.State.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown oauth state backend %q", cfg.State.Backend)
	}
}

// app is the wired process: every long-lived component plus the
// instrumentation provider that must be flushed on exit.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	oauth    *google.OAuth
	sc       *server.ServerContext
}

// bootstrap wires the store, token manager, linking service, calendar
// gateway and trigger evaluator into a ServerContext. Callers run
// app.close when done.
func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	oauth, err := google.NewOAuth(cfg.GoogleOAuth())
	if err != nil {
		return nil, err
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("creating instrumentation provider: %w", err)
	}
	metrics := provider.Metrics()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("opening identity store: %w", err)
	}

	states, redisClient, err := openStateStore(ctx, cfg)
	if err != nil {
		_ = store.Close()
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("opening oauth state store: %w", err)
	}

	components := server.Components{
		Store:        store,
		Metrics:      metrics,
		Logger:       logger,
		Audit:        instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
		Dependencies: map[string]server.Pinger{},
	}
	if rs, ok := states.(*authstate.RedisStore); ok {
		components.Dependencies["redis"] = rs
	}
	if redisClient != nil {
		components.Closers = append(components.Closers, redisClient.Close)
	}

	components.Tokens = tokens.NewManager(oauth.Config(), store,
		tokens.WithLogger(logger),
		tokens.WithMetrics(metrics))

	linkOpts := []linking.Option{linking.WithLogger(logger), linking.WithMetrics(metrics)}
	if states != nil {
		linkOpts = append(linkOpts, linking.WithStateStore(states))
	}
	components.Linking = linking.NewService(store, components.Tokens, oauth, linkOpts...)

	components.Calendar = calendar.NewGateway(store, components.Tokens, nil,
		calendar.WithLogger(logger),
		calendar.WithMetrics(metrics))
	components.Trigger = trigger.NewEvaluator(components.Calendar,
		trigger.WithLogger(logger),
		trigger.WithMetrics(metrics))

	sc, err := server.NewServerContext(ctx, components)
	if err != nil {
		for _, closeFn := range components.Closers {
			_ = closeFn()
		}
		_ = store.Close()
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		oauth:    oauth,
		sc:       sc,
	}, nil
}

// close releases the components and flushes telemetry.
func (a *app) close(ctx context.Context) {
	if err := a.sc.Shutdown(); err != nil {
		a.logger.Error("error during server context shutdown", logging.Err(err))
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Error("error during instrumentation shutdown", logging.Err(err))
	}
}
