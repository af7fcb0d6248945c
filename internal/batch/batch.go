package batch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nse-history/internal/fetcher"
	"nse-history/internal/model"
	"nse-history/internal/retry"
)

// DefaultWorkers bounds in-flight fetches when Options.Workers is unset.
const DefaultWorkers = 10

// ErrNoSymbols rejects an empty batch before anything is scheduled.
var ErrNoSymbols = errors.New("no symbols to download")

// Progress is emitted once per finished symbol, in completion order.
type Progress struct {
	Completed int
	Total     int
	Result    model.SymbolResult
}

// Options tune the coordinator.
type Options struct {
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	// OnProgress is invoked from the single reporter goroutine.
	OnProgress func(Progress)
}

// Coordinator runs fetch+retry for every symbol under a concurrency cap.
type Coordinator struct {
	fetcher fetcher.PriceFetcher
	opts    Options
	logger  zerolog.Logger
}

// New constructs a Coordinator.
func New(f fetcher.PriceFetcher, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = retry.DefaultMaxAttempts
	}
	return &Coordinator{
		fetcher: f,
		opts:    opts,
		logger:  logger.With().Str("component", "batch").Logger(),
	}
}

// Run fetches every symbol and returns exactly one result per input symbol, in input
// order. Individual failures never abort the batch.
func (c *Coordinator) Run(ctx context.Context, symbols []string, window model.Window) ([]model.SymbolResult, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	total := len(symbols)
	results := make([]model.SymbolResult, total)
	progress := make(chan model.SymbolResult, total)
	reported := make(chan struct{})

	go func() {
		defer close(reported)
		completed := 0
		for res := range progress {
			completed++
			c.logger.Info().Int("completed", completed).Int("total", total).Msg("progress")
			if c.opts.OnProgress != nil {
				c.opts.OnProgress(Progress{Completed: completed, Total: total, Result: res})
			}
		}
	}()

	c.logger.Info().Int("symbols", total).Int("workers", c.opts.Workers).
		Str("from", window.Start.Format(model.DateLayout)).
		Str("to", window.End.Format(model.DateLayout)).
		Msg("downloading")

	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, symbol := range symbols {
		g.Go(func() error {
			res := c.fetchOne(ctx, model.SymbolRequest{Symbol: symbol, Window: window})
			results[i] = res
			progress <- res
			return nil
		})
	}
	_ = g.Wait()
	close(progress)
	<-reported

	return results, nil
}

type fetched struct {
	rows   []model.PriceRow
	source string
}

func (c *Coordinator) fetchOne(ctx context.Context, req model.SymbolRequest) model.SymbolResult {
	policy := retry.Policy{
		MaxAttempts: c.opts.MaxAttempts,
		BaseBackoff: c.opts.BaseBackoff,
		Notify: func(attempt int, err error, wait time.Duration) {
			c.logger.Debug().Str("symbol", req.Symbol).Int("attempt", attempt).
				Dur("backoff", wait).Err(err).Msg("attempt failed")
		},
	}

	out, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (fetched, error) {
		rows, source, err := c.fetcher.Fetch(ctx, req)
		return fetched{rows: rows, source: source}, err
	})

	res := model.SymbolResult{Symbol: req.Symbol, Attempts: attempts, Err: err}
	if err != nil {
		c.logger.Warn().Str("symbol", req.Symbol).Int("attempts", attempts).
			Str("reason", res.Reason()).Msg("all attempts failed")
		return res
	}

	res.Rows = out.rows
	res.Source = out.source
	c.logger.Info().Str("symbol", req.Symbol).Int("rows", res.Count()).
		Int("attempts", attempts).Str("source", out.source).Msg("downloaded")
	return res
}

// Tally counts attempted, succeeded and failed symbols.
func Tally(results []model.SymbolResult) (attempted, succeeded, failed int) {
	for _, r := range results {
		attempted++
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return attempted, succeeded, failed
}

// FailedSymbols lists the symbols whose fetch ultimately failed.
func FailedSymbols(results []model.SymbolResult) []string {
	var out []string
	for _, r := range results {
		if !r.Succeeded() {
			out = append(out, r.Symbol)
		}
	}
	return out
}
