package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/catalog"
	"github.com/certscope/certscope/internal/config"
	"github.com/certscope/certscope/internal/metrics"
	"github.com/certscope/certscope/internal/schedule"
	"github.com/certscope/certscope/internal/store"
	"github.com/certscope/certscope/internal/telemetry"
	"github.com/certscope/certscope/internal/verify"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduled scans as a long-lived service with /metrics",
	Long: `Start certscope as a long-running service. Every schedule from the
config file fires its job on its cron frequency; after each scan pass
the stored chains are re-verified against the trust store. Scan
outcomes are exported on the Prometheus endpoint.

Endpoints:
  /metrics   Prometheus scrape endpoint
  /healthz   Liveness probe`,
	Example: `  # Run with a config file
  certscope run --config /etc/certscope/config.yaml

  # Override the listen address, trace to a local collector
  certscope run --config certscope.yaml --listen :9090 --otel-endpoint localhost:4317`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("config", "", "Path to config file")
	runCmd.Flags().String("listen", "", "Listen address (overrides config)")
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" { //nolint:errcheck // flag registered above
		cfg.ListenAddr = listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no schedules configured, nothing to run")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otlpEndpoint, _ := cmd.Flags().GetString("otel-endpoint") //nolint:errcheck // flag registered on root
	tel, err := telemetry.Setup(ctx, otlpEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown", "err", err)
		}
	}()

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close() //nolint:errcheck // service shutdown

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sched := schedule.New()
	if err := registerSchedules(sched, cat, cfg, collector, tel); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck // liveness response
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("certscope run listening", "version", version, "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		return err
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-schedDone

	slog.Info("shutdown complete")
	return nil
}

// registerSchedules wires every configured schedule into the scheduler
// and records it in the catalog. A bad cron expression disables that one
// schedule; the rest keep running.
func registerSchedules(sched *schedule.Scheduler, cat *catalog.Catalog, cfg *config.Config, collector *metrics.Collector, tel *telemetry.Telemetry) error {
	for _, sc := range cfg.Schedules {
		job := cfg.Job(sc.Job)
		jobID, err := cat.UpsertJob(job.ToStore())
		if err != nil {
			return fmt.Errorf("registering job %q: %w", job.Name, err)
		}
		if _, err := cat.UpsertSchedule(store.Schedule{
			JobID:         jobID,
			Name:          sc.Name,
			Frequency:     sc.Frequency,
			FullScan:      sc.FullScan,
			Rescan:        sc.Rescan,
			SinceLastScan: sc.SinceLastScan.String(),
		}); err != nil {
			return fmt.Errorf("recording schedule %q: %w", sc.Name, err)
		}

		fn := scheduleCallback(cat, cfg, *job, sc, collector, tel)
		if err := sched.Add(sc.Name, sc.Frequency, fn); err != nil {
			slog.Error("disabling schedule", "name", sc.Name, "err", err)
		}
	}
	if sched.Len() == 0 {
		return fmt.Errorf("no schedule could be registered")
	}
	return nil
}

// scheduleCallback builds the function one schedule fire executes: the
// configured scan passes, then a verification pass over whatever the
// scans brought in.
func scheduleCallback(cat *catalog.Catalog, cfg *config.Config, job config.JobConfig, sc config.ScheduleConfig, collector *metrics.Collector, tel *telemetry.Telemetry) func(context.Context) {
	return func(ctx context.Context) {
		if sc.FullScan {
			scanCtx, span := tel.StartScan(ctx, job.Name)
			stats, err := scanJob(scanCtx, cat, cfg, job, false, 0)
			span.End()
			if err != nil {
				slog.Error("scheduled scan failed", "schedule", sc.Name, "err", err)
				return
			}
			collector.ScanCompleted(job.Name, stats)
		}
		if sc.Rescan {
			scanCtx, span := tel.StartScan(ctx, job.Name)
			stats, err := scanJob(scanCtx, cat, cfg, job, true, sc.SinceLastScan)
			span.End()
			if err != nil {
				slog.Error("scheduled rescan failed", "schedule", sc.Name, "err", err)
				return
			}
			collector.ScanCompleted(job.Name, stats)
		}

		verifyCtx, span := tel.StartVerify(ctx)
		examined, err := verify.New(cat).Run(verifyCtx)
		span.End()
		switch {
		case errors.Is(err, verify.ErrEmptyTrustStore):
			slog.Debug("skipping verification, trust store is empty")
		case err != nil:
			slog.Error("verification failed", "schedule", sc.Name, "err", err)
		default:
			collector.VerifyCompleted(examined, time.Now())
		}
	}
}
