package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"nse-history/internal/alerting"
	"nse-history/internal/batch"
	"nse-history/internal/config"
	"nse-history/internal/dataset"
	"nse-history/internal/fetcher"
	"nse-history/internal/scheduler"
	"nse-history/internal/service"
	"nse-history/internal/storage"
	"nse-history/internal/symbols"
	"nse-history/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human readable command output.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// DownloadOptions override configuration for a single download.
type DownloadOptions struct {
	Symbols string
	File    string
	Days    int
	Workers int
	OutDir  string
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	Path string
}

// PlotOptions configure the plot command.
type PlotOptions struct {
	Path      string
	Symbol    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// RunsOptions configure the runs command.
type RunsOptions struct {
	Limit int
	// PruneOlderThan deletes ledger rows started before now minus this duration.
	PruneOlderThan time.Duration
}

func (a *App) newFetcher() *fetcher.Fetcher {
	userAgent := a.Config.Provider.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	client := func(baseURL string) fetcher.ClientOptions {
		return fetcher.ClientOptions{
			BaseURL:   baseURL,
			Timeout:   a.Config.Provider.RequestTimeout,
			UserAgent: userAgent,
			Proxy:     a.Config.Provider.Proxy,
		}
	}

	return fetcher.New(fetcher.Options{
		Suffix:  a.Config.Symbols.Suffix,
		MinRows: a.Config.Download.MinRows,
	}, a.Logger,
		fetcher.NewChart(client(a.Config.Provider.ChartURL), a.Logger),
		fetcher.NewHistory(client(a.Config.Provider.HistoryURL), a.Logger),
	)
}

func (a *App) newService(store *storage.Store, opts DownloadOptions) *service.Service {
	coordinator := batch.New(a.newFetcher(), batch.Options{
		Workers:     a.Config.ResolveWorkers(opts.Workers),
		MaxAttempts: a.Config.Download.MaxAttempts,
		BaseBackoff: a.Config.Download.BaseBackoff,
	}, a.Logger)

	dir := a.Config.Export.Dir
	if opts.OutDir != "" {
		dir = opts.OutDir
	}
	exporter := dataset.NewExporter(dataset.ExportOptions{
		Dir:         dir,
		Prefix:      a.Config.Export.Prefix,
		Compression: a.Config.Export.Compression,
		Dedupe:      a.Config.Export.Dedupe,
	}, a.Logger)

	var runs storage.RunStore
	if store != nil {
		runs = store
	}

	return service.New(coordinator, exporter, runs, service.Options{
		Days:            a.Config.ResolveDays(opts.Days),
		BatchTimeout:    a.Config.Download.BatchTimeout,
		AdvisoryLockKey: a.Config.Schedule.AdvisoryLockKey,
		Notifier:        a.newNotifier(),
		NotifyOnSuccess: a.Config.Alerting.OnSuccess,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// openLedger opens the run ledger, logging and continuing without it on failure.
func (a *App) openLedger(ctx context.Context) (*storage.Store, func()) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("run ledger unavailable; continuing without it")
		return nil, func() {}
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; run ledger disabled")
		return nil, func() {}
	}
	return store, closeStore
}

// symbolSource resolves symbols from the --symbols list or the configured CSV file.
func (a *App) symbolSource(opts DownloadOptions) service.SymbolSource {
	return func(context.Context) ([]string, error) {
		if opts.Symbols != "" {
			return symbols.FromList(opts.Symbols)
		}
		path := a.Config.Symbols.File
		if opts.File != "" {
			path = opts.File
		}
		return symbols.Load(path, a.Config.Symbols.Column)
	}
}

// Download performs one batch run and reports the summary.
func (a *App) Download(ctx context.Context, opts DownloadOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	list, err := a.symbolSource(opts)(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}

	store, closeStore := a.openLedger(ctx)
	defer closeStore()

	report, err := a.newService(store, opts).Download(ctx, list)
	if report != nil && report.Attempted > 0 {
		fmt.Fprintf(a.Out, "attempted: %d  succeeded: %d  failed: %d\n", report.Attempted, report.Succeeded, report.Failed)
		if len(report.FailedSymbols) > 0 {
			fmt.Fprintf(a.Out, "failed symbols: %s\n", joinLimited(report.FailedSymbols, 20))
		}
	}
	if err != nil {
		return err
	}

	art := report.Artifact
	fmt.Fprintf(a.Out, "wrote %s (%d rows, %d symbols, %d bytes)\n", art.Path, art.RowCount, art.SymbolCount, art.ByteSize)
	return nil
}

// Serve runs scheduled downloads until interrupted.
func (a *App) Serve(ctx context.Context, opts DownloadOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore := a.openLedger(ctx)
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Spec:       a.Config.Schedule.Cron,
		Timezone:   a.Config.Schedule.Timezone,
		RunOnStart: a.Config.Schedule.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := a.newService(store, opts)

	a.Logger.Info().Msg("starting download service")
	err = svc.Serve(ctx, sched, a.symbolSource(opts))
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("download service stopped")
	return nil
}

func joinLimited(items []string, limit int) string {
	if len(items) <= limit {
		return fmt.Sprint(items)
	}
	return fmt.Sprintf("%v ... (+%d more)", items[:limit], len(items)-limit)
}
