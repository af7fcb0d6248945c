package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"nse-history/internal/model"
)

// DefaultMinRows is the smallest response treated as a real history.
const DefaultMinRows = 10

// PriceFetcher retrieves one symbol's normalized daily history. It performs a single
// attempt; retries belong to the caller.
type PriceFetcher interface {
	Fetch(ctx context.Context, req model.SymbolRequest) ([]model.PriceRow, string, error)
}

// Source is one provider response shape.
type Source interface {
	Name() string
	Fetch(ctx context.Context, ticker string, window model.Window) (Frame, error)
}

// Options parameterise the Fetcher.
type Options struct {
	// Suffix is the market suffix appended to symbols that lack it, e.g. ".NS".
	Suffix  string
	MinRows int
}

// Fetcher tries each response shape in order until one yields rows.
type Fetcher struct {
	opts    Options
	sources []Source
	logger  zerolog.Logger
}

// New constructs a Fetcher. Sources are tried in the given order.
func New(opts Options, logger zerolog.Logger, sources ...Source) *Fetcher {
	if opts.MinRows <= 0 {
		opts.MinRows = DefaultMinRows
	}
	return &Fetcher{
		opts:    opts,
		sources: sources,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch runs one attempt for req.
func (f *Fetcher) Fetch(ctx context.Context, req model.SymbolRequest) ([]model.PriceRow, string, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return nil, "", errors.New("symbol is required")
	}
	if len(f.sources) == 0 {
		return nil, "", errors.New("no response sources configured")
	}

	ticker := NormalizeSymbol(req.Symbol, f.opts.Suffix)

	var lastErr error
	for _, src := range f.sources {
		frame, err := src.Fetch(ctx, ticker, req.Window)
		if err == nil {
			var rows []model.PriceRow
			rows, err = Normalize(frame, req.Symbol, req.Window, f.logger)
			if err == nil {
				if len(rows) < f.opts.MinRows {
					return nil, src.Name(), &InsufficientRowsError{Rows: len(rows), Min: f.opts.MinRows}
				}
				return rows, src.Name(), nil
			}
		}
		if !fallbackEligible(err) {
			return nil, src.Name(), err
		}

		f.logger.Debug().Str("symbol", req.Symbol).Str("source", src.Name()).Err(err).Msg("response unusable, trying next shape")
		lastErr = err
	}

	if errors.Is(lastErr, ErrMalformedResponse) {
		return nil, "", lastErr
	}
	return nil, "", fmt.Errorf("%s: %w", ticker, ErrNoData)
}

// NormalizeSymbol appends suffix to symbol unless it already ends with it (case-insensitive).
func NormalizeSymbol(symbol, suffix string) string {
	symbol = strings.TrimSpace(symbol)
	if suffix == "" || strings.HasSuffix(strings.ToUpper(symbol), strings.ToUpper(suffix)) {
		return symbol
	}
	return symbol + suffix
}

var _ PriceFetcher = (*Fetcher)(nil)
