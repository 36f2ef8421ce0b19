package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/metrics"
)

const historyCleanupInterval = time.Hour

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Evaluate the window on every trigger interval and run the payload when optimal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			s, err := newStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			klog.InfoS("Starting carbon window trigger",
				"region", cfg.Window.Region,
				"providerURL", s.client.GetURL(),
				"interval", cfg.Trigger.Interval,
				"windowSizeHours", cfg.Window.WindowSizeHours,
				"estimatedExecutionDuration", cfg.Window.EstimatedExecutionDuration,
				"hasCommand", cfg.Trigger.Command != "")

			if cfg.Observability.MetricsEnabled {
				server := newMetricsServer(fmt.Sprintf(":%d", cfg.Observability.MetricsPort))
				go func() {
					klog.V(1).InfoS("Starting metrics server", "addr", server.Addr)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						klog.ErrorS(err, "Metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					server.Shutdown(shutdownCtx)
				}()
			}

			if s.store != nil {
				go wait.UntilWithContext(ctx, func(ctx context.Context) {
					if _, err := s.store.Cleanup(ctx, cfg.History.Retention); err != nil {
						klog.ErrorS(err, "Failed to clean up decision history")
					}
				}, historyCleanupInterval)
			}

			wait.UntilWithContext(ctx, func(ctx context.Context) {
				fire(ctx, s, cfg.Trigger.Command)
			}, cfg.Trigger.Interval)

			klog.InfoS("Shutting down carbon window trigger")
			return nil
		},
	}
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// fire makes one decision and runs the payload when it approves execution
func fire(ctx context.Context, s *stack, command string) {
	resp, err := s.facade.Decide(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to evaluate optimal window, skipping run")
		metrics.PayloadRuns.WithLabelValues("skipped").Inc()
		return
	}

	if !resp.IsOptimalWindowNow {
		klog.InfoS("Not an optimal window, skipping run",
			"region", resp.Region,
			"reason", resp.Reason,
			"optimalWindow", resp.OptimalWindow)
		metrics.PayloadRuns.WithLabelValues("skipped").Inc()
		return
	}

	if err := runPayload(ctx, command); err != nil {
		klog.ErrorS(err, "Payload failed", "region", resp.Region)
		metrics.PayloadRuns.WithLabelValues("error").Inc()
		return
	}
	metrics.PayloadRuns.WithLabelValues("success").Inc()
}

// runPayload runs command through the shell. An empty command only logs the
// approval.
func runPayload(ctx context.Context, command string) error {
	if command == "" {
		klog.InfoS("Optimal window reached, no payload command configured")
		return nil
	}

	klog.InfoS("Optimal window reached, running payload", "command", command)
	start := time.Now()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("payload command failed: %w", err)
	}

	klog.V(2).InfoS("Payload finished", "duration", time.Since(start))
	return nil
}
