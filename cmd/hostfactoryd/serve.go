package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hostfactory/aws-provider/pkg/application/commands"
	"github.com/hostfactory/aws-provider/pkg/application/queries"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "run the provisioning poll loop until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context(), globalOpts)
	},
}

func init() {
	rootCmd.AddCommand(cmdServe)
}

// serve wires the full dependency graph once and then drives every
// pending request through ProcessRequest on a fixed poll interval,
// until the process receives SIGINT/SIGTERM.
func serve(ctx context.Context, globalOpts GlobalOptions) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	logger := logging.DefaultLogger(globalOpts.Verbose)

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
	}

	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("hostfactoryd starting", "poll_interval", interval.String(), "storage_strategy", cfg.Storage.Strategy)

	pollOnce(ctx, app, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("hostfactoryd shutting down")
			return nil
		case <-ticker.C:
			pollOnce(ctx, app, logger)
		}
	}
}

// pollOnce queries every pending request and dispatches ProcessRequest
// for each; one request's failure doesn't stop the others in this tick.
func pollOnce(ctx context.Context, app *App, logger logging.Port) {
	result, err := app.Queries.Execute(ctx, queries.ListRequests{Status: string(request.StatusPending)})
	if err != nil {
		logger.Error("poll: listing pending requests failed", "error", err)
		return
	}
	pending, _ := result.([]any)
	for _, r := range pending {
		req, ok := r.(*request.Request)
		if !ok {
			continue
		}
		if _, err := app.Commands.Execute(ctx, commands.ProcessRequest{RequestID: req.RequestID}); err != nil {
			logger.Error("poll: processing request failed", "request_id", req.RequestID, "error", err)
		}
	}
}
