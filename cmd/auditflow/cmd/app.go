package cmd

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mohit-ambani/auditflow-sub000/cmd/auditflow/config"
	"github.com/mohit-ambani/auditflow-sub000/internal/metrics"
	"github.com/mohit-ambani/auditflow-sub000/internal/oracle"
	"github.com/mohit-ambani/auditflow-sub000/internal/reconciler"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	"github.com/mohit-ambani/auditflow-sub000/internal/store/gormstore"
	"github.com/mohit-ambani/auditflow-sub000/internal/store/memory"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// app holds what one command run needs
type app struct {
	cfg      *config.Config
	store    store.Store
	service  *reconciler.Service
	registry *prometheus.Registry
	logger   logger.Logger
	closers  []io.Closer
}

// runWithApp loads the configuration, opens the store, runs fn and then
// writes metrics and closes everything
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.RequireOrg(); err != nil {
		return err
	}
	if err := cfg.RequireSource(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(log)

	a := &app{cfg: cfg, logger: log.WithComponent("cli"), registry: prometheus.NewRegistry()}

	a.store, err = openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder(a.registry, metrics.Config{Environment: cfg.Metrics.Environment})
	opts := []reconciler.Option{reconciler.WithMetrics(recorder)}
	if o := a.oracle(ctx, log); o != nil {
		opts = append(opts, reconciler.WithOracle(o))
	}

	a.service, err = reconciler.NewService(cfg.Reconciler, a.store, log, opts...)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

// openStore opens the configured database, or an in-memory store, and
// seeds it from the fixtures file when one is given
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Source.Kind() {
	case "postgres":
		st, err = gormstore.OpenPostgres(ctx, cfg.Source.DatabaseURL, log)
	case "sqlite":
		st, err = gormstore.OpenSQLite(ctx, cfg.Source.SQLite, log)
	default:
		st = memory.New()
	}
	if err != nil {
		return nil, err
	}

	if cfg.Source.Fixtures != "" {
		fixtures, err := store.LoadFixturesFile(cfg.Source.Fixtures)
		if err == nil {
			err = store.Seed(ctx, st, fixtures)
		}
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		log.WithFields(logger.Fields{
			"fixtures":        cfg.Source.Fixtures,
			"store":           cfg.Source.Kind(),
			"purchase_orders": len(fixtures.PurchaseOrders),
			"invoices":        len(fixtures.Invoices),
		}).Debug("Fixtures loaded")
	}
	return st, nil
}

// oracle builds the completion client, behind the redis cache when one is
// reachable. It returns nil when no endpoint is configured.
func (a *app) oracle(ctx context.Context, log logger.Logger) sku.Oracle {
	if !a.cfg.Oracle.Enabled() {
		return nil
	}
	var o sku.Oracle = oracle.NewClient(a.cfg.Oracle, log)
	if !a.cfg.Oracle.CacheEnabled() {
		return o
	}

	kv, err := oracle.DialRedis(ctx, a.cfg.Oracle)
	if err != nil {
		a.logger.WithError(err).WithField("redis", a.cfg.Oracle.RedisAddr).
			Warn("Oracle cache unavailable, calling the oracle directly")
		return o
	}
	a.closers = append(a.closers, kv)
	return oracle.NewCachedOracle(o, kv, a.cfg.Oracle, log)
}

// render writes report to the configured output
func (a *app) render(cmd *cobra.Command, report *reporter.Report) error {
	return renderReport(cmd, a.cfg, a.logger, report)
}

func renderReport(cmd *cobra.Command, cfg *config.Config, log logger.Logger, report *reporter.Report) error {
	generator, err := reporter.NewSafeReportGenerator(cfg.Report, log)
	if err != nil {
		return err
	}
	if cfg.Output == "" {
		return generator.GenerateReportSafely(report, cmd.OutOrStdout())
	}
	written, err := generator.WriteFile(report, cfg.Output)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		cmd.PrintErrf("Report written to %s\n", written)
	}
	return nil
}

// close writes the metrics file and releases the store and caches
func (a *app) close() error {
	var firstErr error
	if a.cfg.Metrics.File != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.File, a.registry); err != nil {
			a.logger.WithError(err).Warn("Failed to write metrics file")
			firstErr = err
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
