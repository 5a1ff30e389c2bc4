package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/kebairia/budgetease/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Restore if needed, then run scheduled backups and cleanup",
	Long: `serve restores the newest snapshot when the live data store is missing,
then runs the backup and cleanup loops until SIGINT or SIGTERM.
Backup failures are logged and never stop the process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	om, err := newManager(cmd, m)
	if err != nil {
		return err
	}

	// must happen before anything opens the live data store
	if _, err := om.Restore(ctx); err != nil {
		log.Error("startup restore failed", "error", err.Error())
	}

	sched, err := om.Scheduler()
	if err != nil {
		return err
	}

	if addr := cfg.Metrics.Listen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           newRouter(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "addr", addr, "error", err.Error())
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics endpoint listening", "addr", addr, "path", "/metrics")
	}

	log.Info("service started",
		"database", om.Service().Database().GetPath(),
		"backup_dir", om.Store().Dir(),
		"retention_days", cfg.Backup.RetentionDays,
	)
	notify(daemon.SdNotifyReady)

	err = sched.Run(ctx)

	notify(daemon.SdNotifyStopping)
	log.Info("service stopped")
	return err
}

// newRouter serves the prometheus registry and a liveness probe.
func newRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// notify reports state to systemd when running as a Type=notify unit.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("failed to notify systemd", "state", state, "error", err.Error())
		return
	}
	if sent {
		log.Debug("notified systemd", "state", state)
	}
}
