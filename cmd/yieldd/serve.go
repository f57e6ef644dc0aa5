package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yieldledger/native/accrual"
	"yieldledger/observability"
	"yieldledger/observability/logging"
	telemetry "yieldledger/observability/otel"
	"yieldledger/rpc"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the ledger settled and serve the reporting API",
		Long: `serve settles every completed hour on Ledger.AccrualInterval and serves
the read-only reporting API on RPC.ListenAddress.

serve holds the LevelDB lock on DataDir for as long as it runs, so deposit,
split, redeem and the other mutating commands cannot open the ledger until
it stops. The API does not accept mutations.

With caller tokens enabled, the settle loop runs as the subject of the token
given at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return flags.withNode(cmd, serve)
		},
	}
}

func serve(ctx context.Context, n *node) error {
	otelCfg := n.cfg.Telemetry.OTel(serviceName, version, n.cfg.Environment)
	shutdown, err := telemetry.Init(ctx, otelCfg)
	if err != nil {
		return err
	}
	if otelCfg.Traces || otelCfg.Metrics {
		n.logger.Info("telemetry exporting",
			"endpoint", otelCfg.Endpoint,
			"traces", otelCfg.Traces,
			"metrics", otelCfg.Metrics,
			logging.MaskHeaders("headers", otelCfg.Headers),
		)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			n.logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	interval, err := n.cfg.Ledger.Interval()
	if err != nil {
		return err
	}
	srv, err := rpc.New(rpc.Config{
		Ledger:  n.engine,
		Events:  n.buffer,
		Metrics: observability.HTTP(),
		Logger:  n.logger,
		Limit:   rpc.RateLimit{RequestsPerMinute: n.cfg.RPC.RequestsPerMinute, Burst: n.cfg.RPC.Burst},
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              n.cfg.RPC.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       n.cfg.RPC.ReadTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		n.logger.Info("reporting API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	settle(ctx, n)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(stopCtx)
		case err, ok := <-errCh:
			if ok {
				return err
			}
			return nil
		case <-ticker.C:
			settle(ctx, n)
		}
	}
}

// settle distributes every completed hour and audits the supply. Failures
// are logged; the engine halts itself on invariant violations.
func settle(ctx context.Context, n *node) {
	summary, err := n.engine.Settle(ctx)
	switch {
	case err == nil:
		if summary.Hours > 0 {
			n.logger.Info("ledger settled", "through", summary.ThroughHour, "watermark", summary.Watermark)
		}
	case errors.Is(err, accrual.ErrSaleNotStarted), errors.Is(err, accrual.ErrHalted):
		n.logger.Debug("settle skipped", "reason", err)
		return
	default:
		n.logger.Error("settle failed", "error", err)
		return
	}
	if err := n.engine.CheckSupply(); err != nil {
		n.logger.Error("supply check failed", "error", err)
	}
}
