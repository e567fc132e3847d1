// Package bootstrap wires the process-wide runtime shared by the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"agora/internal/cache"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/notifications"
	"agora/internal/observability"
	"agora/internal/seed"
	"agora/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs the configured schema policy on connect.
	ApplySchema bool
	// Seed runs a seed plan after connecting. SeedPlan is a YAML file; empty
	// means the default plan.
	Seed     bool
	SeedPlan string
	// ServiceName labels traces.
	ServiceName string
}

// Runtime holds the shared connections.
type Runtime struct {
	Config *config.Config
	Handle *database.Handle
	DB     *gorm.DB
	Redis  *redis.Client

	stopTracing func(context.Context) error
}

// InitRuntime starts tracing, connects to the database and Redis, and
// optionally seeds. Redis is optional: an unreachable server leaves Redis nil.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	name := opts.ServiceName
	if name == "" {
		name = "agora-api"
	}
	stop, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    name,
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	handle := database.NewHandle(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	db, err := handle.DB()
	if err != nil {
		_ = stop(ctx)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	rt := &Runtime{
		Config:      cfg,
		Handle:      handle,
		DB:          db,
		Redis:       cache.GetClient(),
		stopTracing: stop,
	}

	if opts.Seed {
		if _, err := rt.Seed(ctx, opts.SeedPlan); err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
	}
	return rt, nil
}

// Deps builds the service collaborators over the runtime's connections.
func (r *Runtime) Deps() service.Deps {
	var store *cache.Store
	if r.Config.CacheEnabled {
		store = cache.New(r.Redis)
	}
	return service.NewDeps(r.DB, r.Config, store, notifications.NewNotifier(r.Redis))
}

// Seed runs the plan at path, or the default plan when path is empty.
func (r *Runtime) Seed(ctx context.Context, path string) (seed.Report, error) {
	plan := seed.DefaultPlan()
	if path != "" {
		var err error
		if plan, err = seed.LoadPlan(path); err != nil {
			return seed.Report{}, err
		}
	}
	rep, err := seed.NewSeeder(r.Deps(), plan).Run(ctx)
	if err != nil {
		return rep, fmt.Errorf("seed: %w", err)
	}
	return rep, nil
}

// Close releases Redis, the database pool and the tracer, in that order.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	errs = append(errs, r.Handle.Close())
	if r.stopTracing != nil {
		errs = append(errs, r.stopTracing(ctx))
	}
	err := errors.Join(errs...)
	if err != nil {
		middleware.Logger.Warn("runtime shutdown incomplete", slog.String("error", err.Error()))
	}
	return err
}
