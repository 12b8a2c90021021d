package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coordinator/pkg/actor"
	"coordinator/pkg/config"
	"coordinator/pkg/eventlog"
	"coordinator/pkg/gateway"
	"coordinator/pkg/ingress"
	"coordinator/pkg/logx"
	"coordinator/pkg/metrics"
	"coordinator/pkg/persistence"
	"coordinator/pkg/proto"
	"coordinator/pkg/review"
	"coordinator/pkg/sandbox"
	syncmachine "coordinator/pkg/sync"
)

const shutdownGrace = 10 * time.Second

// runtimeHandle breaks the construction cycle between the runtime and the
// collaborators that post back into it (gateway scheduler, session
// launcher). The runtime is assigned before any server starts accepting
// traffic.
type runtimeHandle struct {
	rt *actor.Runtime
}

func (h *runtimeHandle) Post(key proto.EntityKey, ev proto.Event) {
	h.rt.Post(key, ev)
}

func (h *runtimeHandle) Schedule(delay time.Duration, key proto.EntityKey, ev proto.Event) {
	h.rt.Schedule(delay, key, ev)
}

// run wires the whole system and serves until a termination signal.
// It returns the process exit code so main's defers still run.
func run(logger *logx.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.GetConfig()
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	if err := persistence.Initialize(config.ResolvePath(cfg.Database.Path)); err != nil {
		logger.Error("database init failed: %v", err)
		return 1
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Warn("database close: %v", err)
		}
	}()

	resolver, err := config.NewResolver()
	if err != nil {
		logger.Error("resolver init failed: %v", err)
		return 1
	}

	var audit *eventlog.Writer
	if cfg.EventLog.Dir != "" {
		audit, err = eventlog.NewWriter(config.ResolvePath(cfg.EventLog.Dir))
		if err != nil {
			logger.Error("event log init failed: %v", err)
			return 1
		}
		defer func() {
			if err := audit.Close(); err != nil {
				logger.Warn("event log close: %v", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	rtMetrics := metrics.NewRuntimeMetrics(reg)

	handle := &runtimeHandle{}
	gateways := gateway.NewFactory(resolver, handle, cfg.Gateway.RequestsPerSecond)

	launcher, err := buildLauncher(cfg, handle)
	if err != nil {
		logger.Error("sandbox init failed: %v", err)
		return 1
	}

	rt := actor.NewRuntime(persistence.Snapshots(), actor.Services{
		Gateways:      gateways,
		Sessions:      launcher,
		Installations: resolver,
		Local:         syncmachine.NewDirStore(config.ResolvePath(cfg.Sync.ItemsDir)),
		Outcomes:      persistence.Outcomes(),
		Journal:       persistence.SyncEvents(),
	}, actor.Options{
		Audit:   audit,
		Metrics: rtMetrics,
	})
	handle.rt = rt

	rt.Register(review.NewMachine(resolver, review.Policy{
		RestartOnFix: cfg.Review.RestartOnFix,
		MergeMethod:  cfg.Review.MergeMethod,
	}))
	rt.Register(syncmachine.NewMachine(resolver, syncmachine.Policy{
		Conflict: cfg.Sync.ConflictPolicy,
		Retry:    cfg.Sync.RetryPolicy(),
	}))

	mux := http.NewServeMux()
	mux.Handle("/webhooks", ingress.NewRouter(rt, resolver, &prFileSource{
		gateways: gateways,
		resolver: resolver,
	}))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/sessions/tail", handleSessionTail(launcher))
	registerAdmin(mux, rt)
	mux.HandleFunc("/admin/sync/journal", handleSyncJournal(persistence.SyncEvents()))

	var statsQuery *metrics.QueryService
	if cfg.Server.PrometheusURL != "" {
		statsQuery, err = metrics.NewQueryService(cfg.Server.PrometheusURL)
		if err != nil {
			logger.Error("stats query init failed: %v", err)
			return 1
		}
	}
	mux.HandleFunc("/admin/stats", handleEntityStats(statsQuery))

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mm := http.NewServeMux()
		mm.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mm,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening on %s", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening on %s", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: %v", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown: %v", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown: %v", err)
		}
	}

	logger.Info("coordinator stopped")
	return 0
}

// prFileSource resolves a scoped gateway and lists the files a pull request
// touches, for the webhook router's review-config events.
type prFileSource struct {
	gateways *gateway.Factory
	resolver *config.Resolver
}

func (s *prFileSource) PRFiles(ctx context.Context, repoPath string, number int) ([]string, error) {
	installation, err := s.resolver.InstallationFor(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving installation for %s: %w", repoPath, err)
	}
	gw, err := s.gateways.For(ctx, repoPath, installation)
	if err != nil {
		return nil, fmt.Errorf("resolving gateway for %s: %w", repoPath, err)
	}
	return gw.ListPRFiles(ctx, number)
}

// buildLauncher assembles the session launcher from the sandbox section.
func buildLauncher(cfg config.Config, poster sandbox.Poster) (*sandbox.Launcher, error) {
	var executor sandbox.Executor
	switch cfg.Sandbox.Executor {
	case "docker":
		d := sandbox.NewDockerExec(cfg.Sandbox.Image)
		if !d.Available() {
			return nil, fmt.Errorf("docker executor configured but docker is unavailable")
		}
		executor = d
	case "local":
		executor = sandbox.NewLocalExec()
	default:
		return nil, fmt.Errorf("unknown sandbox executor %q", cfg.Sandbox.Executor)
	}

	opts := sandbox.DefaultOpts()
	opts.Timeout = cfg.Sandbox.Timeout
	opts.ResourceLimits = &sandbox.ResourceLimits{
		CPUs:   cfg.Sandbox.CPUs,
		Memory: cfg.Sandbox.Memory,
		PIDs:   int64(cfg.Sandbox.PIDs),
	}

	return sandbox.NewLauncher(executor, poster, sandbox.Config{
		Command:  cfg.Sandbox.Command,
		Opts:     opts,
		WorkRoot: config.ResolvePath(cfg.Sandbox.WorkRoot),
	}), nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !persistence.IsInitialized() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "version": version})
}
