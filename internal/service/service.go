package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nse-history/internal/alerting"
	"nse-history/internal/batch"
	"nse-history/internal/model"
	"nse-history/internal/scheduler"
	"nse-history/internal/storage"
)

// ErrNoData reports a batch in which no symbol succeeded; no artifact is written.
var ErrNoData = errors.New("no symbol returned data")

// BatchRunner fetches every symbol over a window.
type BatchRunner interface {
	Run(ctx context.Context, symbols []string, window model.Window) ([]model.SymbolResult, error)
}

// Exporter merges results into the output artifact.
type Exporter interface {
	Export(results []model.SymbolResult) (*model.OutputArtifact, error)
}

// SymbolSource yields the symbols for a run.
type SymbolSource func(ctx context.Context) ([]string, error)

// Options tune a Service.
type Options struct {
	Days int
	// BatchTimeout bounds a whole batch; zero disables it.
	BatchTimeout    time.Duration
	AdvisoryLockKey int64
	// Notifier, when set, receives a summary of every failed run, and of successful
	// runs too when NotifyOnSuccess is set.
	Notifier        alerting.Notifier
	NotifyOnSuccess bool
	// Now anchors the download window; defaults to time.Now.
	Now func() time.Time
}

// Report summarises one download run.
type Report struct {
	Window        model.Window
	Results       []model.SymbolResult
	Attempted     int
	Succeeded     int
	Failed        int
	FailedSymbols []string
	Artifact      *model.OutputArtifact
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Service orchestrates batch download, export and the run ledger.
type Service struct {
	batch    BatchRunner
	exporter Exporter
	runs     storage.RunStore
	locker   storage.AdvisoryLocker
	opts     Options
	logger   zerolog.Logger
}

// New constructs the download service. runs may be nil when no ledger is configured.
func New(runner BatchRunner, exporter Exporter, runs storage.RunStore, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var locker storage.AdvisoryLocker
	if l, ok := runs.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		batch:    runner,
		exporter: exporter,
		runs:     runs,
		locker:   locker,
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Download runs one batch over the trailing window and exports the merged dataset.
// It returns ErrNoData, alongside the report, when every symbol failed.
func (s *Service) Download(ctx context.Context, symbols []string) (*Report, error) {
	report := &Report{
		StartedAt: s.opts.Now(),
	}
	report.Window = model.LastDays(report.StartedAt, s.opts.Days)

	runErr := s.download(ctx, symbols, report)
	report.FinishedAt = s.opts.Now()
	s.record(ctx, report, runErr)
	s.notify(ctx, report, runErr)
	return report, runErr
}

func (s *Service) download(ctx context.Context, symbols []string, report *Report) error {
	batchCtx := ctx
	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	s.logger.Info().Int("symbols", len(symbols)).
		Str("start", report.Window.Start.Format(model.DateLayout)).
		Str("end", report.Window.End.Format(model.DateLayout)).
		Msg("starting download")

	results, err := s.batch.Run(batchCtx, symbols, report.Window)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	report.Results = results
	report.Attempted, report.Succeeded, report.Failed = batch.Tally(results)
	report.FailedSymbols = batch.FailedSymbols(results)

	s.logger.Info().Int("attempted", report.Attempted).Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).Msg("batch finished")
	if report.Failed > 0 {
		s.logger.Warn().Strs("failed_symbols", report.FailedSymbols).Msg("symbols without data")
	}

	artifact, err := s.exporter.Export(results)
	if err != nil {
		return fmt.Errorf("export dataset: %w", err)
	}
	if artifact == nil {
		return ErrNoData
	}
	report.Artifact = artifact
	return nil
}

// record writes the run to the ledger. Ledger failures are logged only.
func (s *Service) record(ctx context.Context, report *Report, runErr error) {
	if s.runs == nil {
		return
	}

	run := storage.RunRecord{
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Status:        storage.StatusSucceeded,
		Attempted:     report.Attempted,
		Succeeded:     report.Succeeded,
		Failed:        report.Failed,
		FailedSymbols: report.FailedSymbols,
	}
	switch {
	case errors.Is(runErr, ErrNoData):
		run.Status = storage.StatusNoData
	case runErr != nil:
		run.Status = storage.StatusFailed
	}
	if runErr != nil {
		msg := model.Truncate(runErr.Error(), 500)
		run.Error = &msg
	}
	if a := report.Artifact; a != nil {
		path := a.Path
		run.ArtifactPath = &path
		run.RowCount = a.RowCount
		run.SymbolCount = a.SymbolCount
		run.ByteSize = a.ByteSize
	}

	// the run context may already be cancelled; the ledger write gets its own deadline
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	saved, err := s.runs.RecordRun(recordCtx, run)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to record run")
		return
	}
	s.logger.Debug().Int64("run_id", saved.ID).Str("status", saved.Status).Msg("run recorded")
}

// notify sends the run summary. Delivery failures are logged only.
func (s *Service) notify(ctx context.Context, report *Report, runErr error) {
	if s.opts.Notifier == nil || (runErr == nil && !s.opts.NotifyOnSuccess) {
		return
	}

	note := alerting.Notification{
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Attempted:     report.Attempted,
		Succeeded:     report.Succeeded,
		Failed:        report.Failed,
		FailedSymbols: report.FailedSymbols,
		Err:           runErr,
	}
	if a := report.Artifact; a != nil {
		note.ArtifactPath = a.Path
		note.RowCount = a.RowCount
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.opts.Notifier.Notify(notifyCtx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch run summary")
	}
}

// Serve downloads on every scheduler trigger until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, sched *scheduler.Scheduler, source SymbolSource) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		return s.Trigger(ctx, at, source)
	})
}

// Trigger performs one scheduled download, skipping it when another instance holds the
// advisory lock.
func (s *Service) Trigger(ctx context.Context, at time.Time, source SymbolSource) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Info().Time("at", at).Msg("skip trigger because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	list, err := source(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}

	report, err := s.Download(ctx, list)
	if err != nil {
		return err
	}
	s.logger.Info().Str("path", report.Artifact.Path).Int("rows", report.Artifact.RowCount).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).Msg("scheduled download complete")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
