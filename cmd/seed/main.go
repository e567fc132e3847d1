// Command seed fills the database with demo users, communities and threads.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/middleware"
	"agora/internal/seed"
)

func main() {
	planPath := flag.String("plan", "", "YAML seed plan; defaults to a small demo graph")
	clean := flag.Bool("clean", false, "delete every graph row before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		middleware.Logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true, ServiceName: "agora-seed"})
	if err != nil {
		middleware.Logger.Error("failed to initialize runtime", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rt.Close(ctx)

	plan := seed.DefaultPlan()
	if *planPath != "" {
		if plan, err = seed.LoadPlan(*planPath); err != nil {
			middleware.Logger.Error("invalid seed plan", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if *clean {
		plan.Clean = true
	}

	if _, err := seed.NewSeeder(rt.Deps(), plan).Run(ctx); err != nil {
		middleware.Logger.Error("seeding failed", slog.String("error", err.Error()))
		_ = rt.Close(ctx)
		os.Exit(1)
	}
}
