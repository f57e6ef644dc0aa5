package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"yieldledger/config"
	"yieldledger/core/events"
	"yieldledger/integrations/webhooks"
	"yieldledger/native/accrual"
	"yieldledger/native/bank"
	"yieldledger/native/reserve"
	"yieldledger/observability"
	"yieldledger/observability/logging"
	"yieldledger/observability/metrics"
	"yieldledger/storage"
)

// node bundles the engine with the collaborators it was wired to.
type node struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.LevelDB
	engine  *accrual.Engine
	vault   *bank.Vault
	pool    *reserve.Pool
	buffer  *events.Buffer
	webhook *webhooks.Dispatcher
	logs    io.Closer
}

func openNode(cfg *config.Config) (*node, error) {
	logger, logs := logging.SetupWithOptions(logging.Options{
		Service:     serviceName,
		Environment: cfg.Environment,
		Level:       logging.ParseLevel(cfg.LogLevel),
		File:        cfg.LogFile,
		MaxSizeMB:   64,
		MaxBackups:  5,
		MaxAgeDays:  30,
		Compress:    true,
	})

	curve, err := cfg.Curve.Build()
	if err != nil {
		logs.Close()
		return nil, err
	}
	db, err := storage.NewLevelDB(cfg.DatabasePath())
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	engine, err := accrual.NewEngine(db, curve)
	if err != nil {
		db.Close()
		logs.Close()
		return nil, err
	}

	n := &node{
		cfg:    cfg,
		logger: logger,
		db:     db,
		engine: engine,
		vault:  bank.NewVault(),
		pool:   reserve.NewPool(),
		buffer: events.NewBuffer(cfg.RPC.EventBuffer),
		logs:   logs,
	}
	emitters := events.Fanout{
		events.LogEmitter{Logger: logger},
		observability.Events(),
		n.buffer,
	}
	if cfg.Webhook.Enabled() {
		secret, err := cfg.Webhook.Secret()
		if err != nil {
			n.Close()
			return nil, err
		}
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, secret,
			webhooks.WithEventTypes(cfg.Webhook.Events...),
			webhooks.WithLogger(logger),
		)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.webhook = dispatcher
		logger.Info("webhook dispatcher enabled",
			"endpoint", cfg.Webhook.Endpoint,
			logging.MaskField("secret", string(secret)),
		)
		emitters = append(emitters, dispatcher)
	}

	engine.SetLogger(logger)
	engine.SetMetrics(metrics.Accrual())
	engine.SetEmitter(emitters)
	engine.SetAssets(n.vault)
	engine.SetReserve(n.pool)
	engine.SetIDPolicy(cfg.Ledger.Policy())
	engine.SetPauses(cfg.Ledger.Pauses())
	engine.SetAccessControl(cfg.Access.Controller())
	engine.SetMaxSplitChildren(cfg.Ledger.MaxSplitChildren)
	return n, nil
}

// ensureSale starts the sale from configuration when one is configured and
// the ledger has not started yet.
func (n *node) ensureSale(ctx context.Context) error {
	start, ok, err := n.cfg.Ledger.Start()
	if err != nil || !ok {
		return err
	}
	if _, err := n.engine.SaleStart(); err == nil {
		return nil
	}
	err = n.engine.StartSale(ctx, start, n.cfg.Vesting.Plan())
	if errors.Is(err, accrual.ErrSaleStarted) {
		return nil
	}
	return err
}

// Close releases the database and flushes the log file.
func (n *node) Close() error {
	if n == nil {
		return nil
	}
	if n.webhook != nil {
		n.webhook.Close()
	}
	n.db.Close()
	return n.logs.Close()
}
