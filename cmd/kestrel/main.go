// Kestrel - risk and collections decisions for lending platforms.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/telemetry"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration (file from KESTREL_CONFIG, overridden by KESTREL_* env vars)
	cfg, err := config.Load(os.Getenv("KESTREL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"custom_rules", len(cfg.Engine.Fraud.CustomRules),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, os.Stderr)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	store, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		if cb, ok := busImpl.(*bus.ChannelBus); ok {
			m.WatchBusDrops(cb.Dropped)
		}
	}

	orch, err := decision.New(cfg.Engine,
		decision.WithRepository(repo),
		decision.WithEventBus(busImpl),
		decision.WithSessionStore(store),
		decision.WithVelocity(velocity.NewService(repo, store, velocity.DefaultWindow)),
		decision.WithMetrics(m),
	)
	if err != nil {
		slog.Error("failed to initialize decision engines", "error", err)
		os.Exit(1)
	}
	slog.Info("decision engines initialized")

	// Collection case worker (Pro tier, or opt-in)
	var caseWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		caseWorker = worker.NewWorker(busImpl, orch)

		workerCfg := worker.Config{TenantIDs: parseTenants(os.Getenv("KESTREL_TENANTS"))}
		if err := caseWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start collection worker", "error", err)
		} else {
			slog.Info("collection worker started", "tenant_count", len(workerCfg.TenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, orch, repo, store, busImpl, m, Version)
	if m != nil {
		srv.MountMetrics(cfg.Metrics.Path, m.Handler())
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop consuming before the server and ports close
	if caseWorker != nil {
		if err := caseWorker.Stop(); err != nil {
			slog.Error("failed to stop collection worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// parseTenants splits a comma-separated tenant list, dropping blanks.
func parseTenants(s string) []string {
	var tenants []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Risk & Collections Decision Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /fraud/check                  - Score a transaction and its session")
	fmt.Println("    GET  /fraud/checks/{id}            - Get a fraud check")
	fmt.Println("    GET  /fraud/alerts                 - List fraud alerts")
	fmt.Println("    GET  /fraud/alerts/{id}            - Get a fraud alert")
	fmt.Println("    POST /behavior/events              - Track session events")
	fmt.Println("    POST /behavior/analyze             - Score a session")
	fmt.Println("    POST /loans/emi                    - Quote an EMI and schedule")
	fmt.Println("    POST /collections/strategy         - Plan a collection case")
	fmt.Println("    GET  /collections/{loanId}/plan    - Latest plan for a loan")
	fmt.Println("    POST /collections/{loanId}/outcomes - Record a contact outcome")
	fmt.Println("    GET  /collections/{loanId}/outcomes - Contact history")
	fmt.Println("    GET  /health                       - Health check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-30s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
