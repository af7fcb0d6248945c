package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSymbolResultReasonTruncates(t *testing.T) {
	long := strings.Repeat("x", 250) + "\nsecond line"
	r := SymbolResult{Symbol: "TCS", Attempts: 3, Err: errors.New(long)}
	if r.Succeeded() {
		t.Fatal("result with error must not succeed")
	}
	if got := len(r.Reason()); got != maxReasonLen {
		t.Fatalf("expected reason of %d chars, got %d", maxReasonLen, got)
	}

	r = SymbolResult{Symbol: "TCS", Err: errors.New("a\nb")}
	if r.Reason() != "a b" {
		t.Fatalf("newlines should be flattened, got %q", r.Reason())
	}
}

func TestLastDaysWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 45, 0, 0, time.UTC)
	w := LastDays(now, 365)

	if !w.End.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", w.End)
	}
	if !w.Start.Equal(time.Date(2023, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", w.Start)
	}
	if w.Contains(now) {
		t.Fatal("end day must be excluded")
	}
	if !w.Contains(w.Start.Add(3 * time.Hour)) {
		t.Fatal("start day must be included")
	}
}
