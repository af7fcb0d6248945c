package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nse-history/internal/model"
)

var testWindow = model.Window{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// chartPayload builds a chart response with n daily bars starting at the window start,
// stamped at 09:15 IST.
func chartPayload(n int, withAdj bool) map[string]any {
	ts := make([]int64, n)
	open := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]int64, n)
	for i := 0; i < n; i++ {
		ts[i] = testWindow.Start.Add(time.Duration(i)*24*time.Hour + 3*time.Hour + 45*time.Minute).Unix()
		open[i] = 100 + float64(i)
		closes[i] = 101 + float64(i)
		volume[i] = int64(1000 * (i + 1))
	}
	indicators := map[string]any{
		"quote": []map[string]any{{
			"open": open, "high": closes, "low": open, "close": closes, "volume": volume,
		}},
	}
	if withAdj {
		indicators["adjclose"] = []map[string]any{{"adjclose": closes}}
	}
	return map[string]any{
		"chart": map[string]any{
			"result": []map[string]any{{
				"meta":       map[string]any{"symbol": "TCS.NS", "gmtoffset": 19800},
				"timestamp":  ts,
				"indicators": indicators,
			}},
			"error": nil,
		},
	}
}

func historyCSV(n int) string {
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Adj Close,Volume\n")
	for i := 0; i < n; i++ {
		day := testWindow.Start.AddDate(0, 0, i).Format(model.DateLayout)
		fmt.Fprintf(&b, "%s,10.5,11,10,10.75,10.70,%d\n", day, 500+i)
	}
	return b.String()
}

type fakeProvider struct {
	chart        http.HandlerFunc
	history      http.HandlerFunc
	chartCalls   atomic.Int32
	historyCalls atomic.Int32
}

func (p *fakeProvider) start(t *testing.T) *Fetcher {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chart/", func(w http.ResponseWriter, r *http.Request) {
		p.chartCalls.Add(1)
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("chart request must ask for daily interval, got %q", r.URL.RawQuery)
		}
		p.chart(w, r)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		p.historyCalls.Add(1)
		p.history(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts := ClientOptions{Timeout: time.Second, UserAgent: "test"}
	chartOpts, historyOpts := opts, opts
	chartOpts.BaseURL = srv.URL + "/chart"
	historyOpts.BaseURL = srv.URL + "/history"

	return New(Options{Suffix: ".NS", MinRows: 10}, noopLogger(),
		NewChart(chartOpts, noopLogger()),
		NewHistory(historyOpts, noopLogger()),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchPrimarySuccess(t *testing.T) {
	p := &fakeProvider{
		chart: func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/TCS.NS") {
				t.Errorf("symbol should carry the market suffix, path %s", r.URL.Path)
			}
			writeJSON(w, chartPayload(12, true))
		},
		history: func(w http.ResponseWriter, r *http.Request) {
			t.Error("history must not be called when chart succeeds")
		},
	}
	f := p.start(t)

	rows, source, err := f.Fetch(context.Background(), model.SymbolRequest{Symbol: "TCS", Window: testWindow})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if source != SourceChart {
		t.Fatalf("expected chart source, got %s", source)
	}
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.Date != "2024-01-01" || first.Symbol != "TCS" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.Volume != 1000 {
		t.Fatalf("unexpected volume %d", first.Volume)
	}
	if adj, ok := first.AdjClose(); !ok || adj.String() != "101" {
		t.Fatalf("adj close missing or wrong: %v %v", adj, ok)
	}
}

func TestFetchFallsBackOnMultipleResults(t *testing.T) {
	p := &fakeProvider{
		chart: func(w http.ResponseWriter, r *http.Request) {
			payload := chartPayload(12, false)
			res := payload["chart"].(map[string]any)["result"].([]map[string]any)
			payload["chart"].(map[string]any)["result"] = append(res, res[0])
			writeJSON(w, payload)
		},
		history: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(historyCSV(15)))
		},
	}
	f := p.start(t)

	rows, source, err := f.Fetch(context.Background(), model.SymbolRequest{Symbol: "infy.ns", Window: testWindow})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if source != SourceHistory {
		t.Fatalf("expected history fallback, got %s", source)
	}
	if len(rows) != 15 || rows[0].Symbol != "infy.ns" {
		t.Fatalf("unexpected rows: %d %+v", len(rows), rows[0])
	}
	if p.historyCalls.Load() != 1 {
		t.Fatalf("expected one history call, got %d", p.historyCalls.Load())
	}
}

func TestFetchFallsBackOnEmptyChart(t *testing.T) {
	p := &fakeProvider{
		chart: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"chart": map[string]any{"result": nil, "error": map[string]string{"code": "Not Found"}}})
		},
		history: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(historyCSV(20)))
		},
	}
	f := p.start(t)

	rows, source, err := f.Fetch(context.Background(), model.SymbolRequest{Symbol: "TCS", Window: testWindow})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if source != SourceHistory || len(rows) != 20 {
		t.Fatalf("expected 20 history rows, got %d from %s", len(rows), source)
	}
}

func TestFetchNoData(t *testing.T) {
	p := &fakeProvider{
		chart: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"chart": map[string]any{"result": []any{}}})
		},
		history: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("Date,Open,High,Low,Close,Adj Close,Volume\n"))
		},
	}
	f := p.start(t)

	_, _, err := f.Fetch(context.Background(), model.SymbolRequest{Symbol: "TCS", Window: testWindow})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestFetchInsufficientRows(t *testing.T) {
	p := &fakeProvider{
		chart: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, chartPayload(4, false))
		},
		history: func(w http.ResponseWriter, r *http.Request) {
			t.Error("thin responses are attempt failures, not fallback triggers")
		},
	}
	f := p.start(t)

	_, _, err := f.Fetch(context.Background(), model.SymbolRequest{Symbol: "TCS", Window: testWindow})
	var thin *InsufficientRowsError
	if !errors.As(err, &thin) {
		t.Fatalf("expected InsufficientRowsError, got %v", err)
	}
	if thin.Rows != 4 || thin.Min != 10 {
		t.Fatalf("unexpected error detail: %+v", thin)
	}
}

func TestFetchTransportErrorDoesNotFallBack(t *testing.T) {
	p := &fakeProvider{
		chart: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		},
		history: func(w http.ResponseWriter, r *http.Request) {
			t.Error("history must not be called on transport failure")
		},
	}
	f := p.start(t)

	_, _, err := f.Fetch(context.Background(), model.SymbolRequest{Symbol: "TCS", Window: testWindow})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Status != http.StatusBadGateway || te.Source != SourceChart {
		t.Fatalf("unexpected transport error: %+v", te)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"TCS":     "TCS.NS",
		"INFY.NS": "INFY.NS",
		"infy.ns": "infy.ns",
		" RELI ":  "RELI.NS",
		"M&M":     "M&M.NS",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in, ".NS"); got != want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
	if got := NormalizeSymbol("AAPL", ""); got != "AAPL" {
		t.Fatalf("empty suffix should leave symbol unchanged, got %q", got)
	}
}
