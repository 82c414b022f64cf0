package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/alerts"
	"feederconsole/app/internal/auth"
	"feederconsole/app/internal/database"
	"feederconsole/app/internal/feedconfig"
	"feederconsole/app/internal/handlers"
	"feederconsole/app/internal/metrics"
	"feederconsole/app/internal/monitor"
	"feederconsole/app/internal/ratelimit"
	"feederconsole/app/internal/selector"
	"feederconsole/app/internal/stats"
)

// keptLogRows bounds system_logs.
const keptLogRows = 10000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console HTTP API and background status polling",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.cfg.ValidateAuth(); err != nil {
		return err
	}
	if err := database.Init(c.cfg.DBPath); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.prepareStore(); err != nil {
		return err
	}

	collector := metrics.New(c.manager)
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	notifier := alerts.New(alerts.Config{
		WebhookURL:    c.cfg.AlertWebhookURL,
		WebhookSecret: c.cfg.AlertWebhookSecret,
		DiscordURL:    c.cfg.AlertDiscordURL,
	}, nil, c.log.Named("alerts"))
	go notifier.Run(ctx)

	uptime := stats.NewCalculator(30 * time.Second)
	obs := &statusObserver{
		log:      c.log.Named("observer"),
		metrics:  collector,
		tracker:  monitor.NewTracker(c.cfg.AlertAfterChecks),
		notifier: notifier,
		uptime:   uptime,
	}
	c.manager.SetObserver(obs.observe)
	decisions := &decisionRecorder{log: c.log.Named("decisions"), metrics: collector, now: time.Now}

	plan, err := feedconfig.Rebuild(ctx, c.store, c.selector, c.registry, c.log)
	if err != nil {
		c.log.Error("initial feed config rebuild failed", zap.Error(err))
	} else {
		decisions.record(plan.Decision, selector.ReadSettings(c.store))
	}

	loginLimiter := ratelimit.New(ratelimit.Config{
		TokensPerMinute: c.cfg.LoginPerMinute,
		ErrorMessage:    "Too many login attempts. Try again in a minute.",
	})
	apiLimiter := ratelimit.New(ratelimit.Config{TokensPerMinute: c.cfg.APIPerMinute})

	deps := &handlers.Deps{
		Auth:         auth.NewAuth(c.cfg.AuthUser, c.cfg.AuthHash, c.cfg.HmacSecret, c.cfg.InsecureDev, c.cfg.SessionMaxAgeS),
		Manager:      c.manager,
		Registry:     c.registry,
		Store:        c.store,
		Selector:     c.selector,
		Log:          c.log.Named("http"),
		Uptime:       uptime,
		Gatherer:     promReg,
		LoginLimiter: loginLimiter,
		APILimiter:   apiLimiter,
		TrustProxy:   c.cfg.TrustProxy,
		OnDecision:   decisions.record,
	}

	go runMaintenance(ctx, c, uptime, loginLimiter, apiLimiter)

	srv := &http.Server{
		Addr:              ":" + c.cfg.Port,
		Handler:           handlers.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info("server starting", zap.String("addr", srv.Addr), zap.Int("aggregators", len(c.manager.Names())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	c.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMaintenance polls aggregator status so alerts fire without a browser
// open. Hourly it prunes old rows and drops idle limiter buckets and
// expired uptime figures.
func runMaintenance(ctx context.Context, c *console, uptime *stats.Calculator, limiters ...*ratelimit.Limiter) {
	every := c.cfg.StatusTTL
	if every <= 0 {
		every = aggstatus.DefaultTTL
	}
	poll := time.NewTicker(every)
	defer poll.Stop()
	hourly := time.NewTicker(time.Hour)
	defer hourly.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			c.manager.CheckAll(ctx, false)
		case <-hourly.C:
			for _, l := range limiters {
				l.Sweep(10 * time.Minute)
			}
			uptime.Sweep()
			prune(c)
		}
	}
}

func prune(c *console) {
	cutoff := time.Now().AddDate(0, 0, -c.cfg.HistoryRetainDays)
	n, err := database.PruneStatusHistory(cutoff)
	if err != nil {
		c.log.Warn("prune status history", zap.Error(err))
	} else if n > 0 {
		c.log.Info("pruned status history", zap.Int64("rows", n))
	}
	if err := database.PruneLogs(keptLogRows); err != nil {
		c.log.Warn("prune logs", zap.Error(err))
	}
}
