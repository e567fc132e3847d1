// Command repair removes dangling references and restores missing
// back-references. Running it again on a repaired store changes nothing.
//
// With -pending it instead invalidates the cache keys a partially failed
// cascade reported, e.g. -pending thread:7,user:42:threads.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"agora/internal/bootstrap"
	"agora/internal/cascade"
	"agora/internal/config"
	"agora/internal/middleware"
	"agora/internal/models"
)

type repairer interface {
	Sweep(ctx context.Context) (cascade.SweepReport, error)
	Repair(ctx context.Context, failure *models.PartialCascadeFailure) error
}

type pendingReport struct {
	Invalidated []string `json:"invalidated"`
}

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "abort the sweep after this long")
	pending := flag.String("pending", "", "comma-separated cache keys left stale by a partial cascade; skips the sweep")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		middleware.Logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ServiceName: "agora-repair"})
	if err != nil {
		middleware.Logger.Error("failed to initialize runtime", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rt.Close(context.Background())

	if err := run(ctx, rt.Deps().Cascade, parsePending(*pending), os.Stdout); err != nil {
		middleware.Logger.Error("repair failed", slog.String("error", err.Error()))
		_ = rt.Close(context.Background())
		os.Exit(1)
	}
}

// run invalidates pending when it is non-empty and sweeps otherwise,
// writing the outcome to w as JSON.
func run(ctx context.Context, r repairer, pending []string, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if len(pending) > 0 {
		if err := r.Repair(ctx, &models.PartialCascadeFailure{Pending: pending}); err != nil {
			return err
		}
		return enc.Encode(pendingReport{Invalidated: pending})
	}

	report, err := r.Sweep(ctx)
	if err != nil {
		return err
	}
	return enc.Encode(report)
}

func parsePending(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
