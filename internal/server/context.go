package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/miraassistant/mira/internal/calendar"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/linking"
	"github.com/miraassistant/mira/internal/tokens"
	"github.com/miraassistant/mira/internal/trigger"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Components are the wired services a ServerContext hands to transports.
type Components struct {
	Store    identity.Store
	Tokens   *tokens.Manager
	Linking  *linking.Service
	Calendar *calendar.Gateway
	Trigger  *trigger.Evaluator

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger

	// Dependencies are pinged by the readiness probe, keyed by name.
	Dependencies map[string]Pinger
	// Closers run on Shutdown in order. The store is always closed last.
	Closers []func() error
}

// ServerContext holds the components shared by the HTTP API and the MCP
// tools, plus the lifecycle of the process that serves them.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	c      Components

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context. Store, Linking, Calendar and
// Trigger are required.
func NewServerContext(ctx context.Context, c Components) (*ServerContext, error) {
	switch {
	case c.Store == nil:
		return nil, fmt.Errorf("identity store is required")
	case c.Linking == nil:
		return nil, fmt.Errorf("linking service is required")
	case c.Calendar == nil:
		return nil, fmt.Errorf("calendar gateway is required")
	case c.Trigger == nil:
		return nil, fmt.Errorf("trigger evaluator is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Audit == nil {
		c.Audit = instrumentation.NewAuditLogger(c.Logger)
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		c:      c,
	}, nil
}

// Context returns the server context; it is cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Store returns the identity store.
func (sc *ServerContext) Store() identity.Store { return sc.c.Store }

func (sc *ServerContext) Tokens() *tokens.Manager { return sc.c.Tokens }

func (sc *ServerContext) Linking() *linking.Service { return sc.c.Linking }

func (sc *ServerContext) Calendar() *calendar.Gateway { return sc.c.Calendar }

func (sc *ServerContext) Trigger() *trigger.Evaluator { return sc.c.Trigger }

// Metrics may be nil; its methods are nil-safe.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.c.Metrics }

func (sc *ServerContext) Audit() *instrumentation.AuditLogger { return sc.c.Audit }

func (sc *ServerContext) Logger() *slog.Logger { return sc.c.Logger }

// CheckDependencies pings the store and every registered dependency and
// returns the failures keyed by name.
func (sc *ServerContext) CheckDependencies(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	if err := sc.c.Store.Ping(ctx); err != nil {
		failed["store"] = err
	}
	for name, dep := range sc.c.Dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context and releases the components. It is safe to
// call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()

	var errs []error
	for _, closeFn := range sc.c.Closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := sc.c.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing identity store: %w", err))
	}
	return errors.Join(errs...)
}
