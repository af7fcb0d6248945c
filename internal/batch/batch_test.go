package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nse-history/internal/model"
)

var testWindow = model.Window{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
}

// scriptedFetcher fails each symbol failures[symbol] times, then returns rows[symbol] bars.
type scriptedFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	rows     map[string]int
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScripted() *scriptedFetcher {
	return &scriptedFetcher{calls: map[string]int{}, failures: map[string]int{}, rows: map[string]int{}}
}

func (s *scriptedFetcher) Fetch(ctx context.Context, req model.SymbolRequest) ([]model.PriceRow, string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.calls[req.Symbol]++
	call := s.calls[req.Symbol]
	fail := s.failures[req.Symbol]
	count := s.rows[req.Symbol]
	s.mu.Unlock()

	if fail < 0 || call <= fail {
		return nil, "", fmt.Errorf("simulated failure %d for %s", call, req.Symbol)
	}
	return makeRows(req.Symbol, count), "chart", nil
}

func (s *scriptedFetcher) callsFor(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[symbol]
}

func makeRows(symbol string, n int) []model.PriceRow {
	rows := make([]model.PriceRow, n)
	for i := range rows {
		rows[i] = model.PriceRow{
			Date:   testWindow.Start.AddDate(0, 0, i).Format(model.DateLayout),
			Open:   decimal.NewFromInt(1),
			High:   decimal.NewFromInt(1),
			Low:    decimal.NewFromInt(1),
			Close:  decimal.NewFromInt(1),
			Volume: 1,
			Symbol: symbol,
		}
	}
	return rows
}

func newCoordinator(f *scriptedFetcher, opts Options) *Coordinator {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	return New(f, opts, zerolog.Nop())
}

func TestRunEmptyInput(t *testing.T) {
	f := newScripted()
	c := newCoordinator(f, Options{})

	results, err := c.Run(context.Background(), nil, testWindow)
	if !errors.Is(err, ErrNoSymbols) {
		t.Fatalf("expected ErrNoSymbols, got %v", err)
	}
	if results != nil {
		t.Fatalf("no results expected, got %d", len(results))
	}
	if len(f.calls) != 0 {
		t.Fatalf("no fetch attempts expected, got %v", f.calls)
	}
}

func TestRunOneResultPerSymbol(t *testing.T) {
	f := newScripted()
	f.rows["TCS"] = 250
	f.rows["INFY.NS"] = 260
	f.failures["BAD"] = -1

	var events []Progress
	c := newCoordinator(f, Options{Workers: 2, OnProgress: func(p Progress) { events = append(events, p) }})

	symbols := []string{"TCS", "INFY.NS", "BAD"}
	results, err := c.Run(context.Background(), symbols, testWindow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != len(symbols) {
		t.Fatalf("expected %d results, got %d", len(symbols), len(results))
	}
	for i, sym := range symbols {
		if results[i].Symbol != sym {
			t.Fatalf("result %d is for %s, want %s", i, results[i].Symbol, sym)
		}
	}
	if results[0].Count() != 250 || results[1].Count() != 260 {
		t.Fatalf("unexpected counts %d/%d", results[0].Count(), results[1].Count())
	}
	if results[2].Succeeded() || results[2].Attempts != 3 {
		t.Fatalf("BAD should fail after 3 attempts: %+v", results[2])
	}

	attempted, succeeded, failed := Tally(results)
	if attempted != 3 || succeeded != 2 || failed != 1 {
		t.Fatalf("tally mismatch: %d/%d/%d", attempted, succeeded, failed)
	}
	if fs := FailedSymbols(results); len(fs) != 1 || fs[0] != "BAD" {
		t.Fatalf("unexpected failed symbols %v", fs)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Completed != i+1 || ev.Total != 3 {
			t.Fatalf("progress %d out of order: %+v", i, ev)
		}
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	for k := 0; k < 3; k++ {
		f := newScripted()
		f.failures["TCS"] = k
		f.rows["TCS"] = 12

		results, err := newCoordinator(f, Options{}).Run(context.Background(), []string{"TCS"}, testWindow)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !results[0].Succeeded() {
			t.Fatalf("k=%d: expected success, got %v", k, results[0].Err)
		}
		if results[0].Attempts != k+1 || f.callsFor("TCS") != k+1 {
			t.Fatalf("k=%d: expected %d attempts, got result=%d mock=%d", k, k+1, results[0].Attempts, f.callsFor("TCS"))
		}
	}
}

func TestRunAllFail(t *testing.T) {
	f := newScripted()
	symbols := []string{"A", "B", "C", "D"}
	for _, s := range symbols {
		f.failures[s] = -1
	}

	results, err := newCoordinator(f, Options{Workers: 3}).Run(context.Background(), symbols, testWindow)
	if err != nil {
		t.Fatalf("a batch with zero successes is still a valid outcome: %v", err)
	}
	for _, r := range results {
		if r.Succeeded() || r.Attempts != 3 || r.Reason() == "" {
			t.Fatalf("expected failure with 3 attempts: %+v", r)
		}
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	f := newScripted()
	f.delay = 5 * time.Millisecond
	symbols := make([]string, 25)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
		f.rows[symbols[i]] = 1
	}

	results, err := newCoordinator(f, Options{Workers: 4}).Run(context.Background(), symbols, testWindow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 25 {
		t.Fatalf("expected 25 results, got %d", len(results))
	}
	if got := f.maxInFlight.Load(); got > 4 {
		t.Fatalf("concurrency cap exceeded: %d in flight", got)
	}
}
