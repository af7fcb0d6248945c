package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleNotification() Notification {
	start := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	return Notification{
		StartedAt:     start,
		FinishedAt:    start.Add(95 * time.Second),
		Attempted:     3,
		Succeeded:     2,
		Failed:        1,
		FailedSymbols: []string{"BAD"},
		ArtifactPath:  "/data/nse_data_20240315.parquet",
		RowCount:      510,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "2 ok / 1 failed / 3 total") {
		t.Fatalf("unexpected text: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("ok=false should be an error")
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	notifier = NewTelegramNotifier("token", "chat", failing.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("non-2xx should be an error")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(sampleNotification())
	for _, want := range []string{"download finished", "Took: 1m35s", "nse_data_20240315.parquet (510 rows)", "Failed: BAD"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}

	note := sampleNotification()
	note.Err = errors.New("no symbol returned data")
	note.ArtifactPath = ""
	note.FailedSymbols = nil
	for i := 0; i < 20; i++ {
		note.FailedSymbols = append(note.FailedSymbols, fmt.Sprintf("S%d", i))
	}
	msg = RenderMessage(note)
	if !strings.Contains(msg, "FAILED") || !strings.Contains(msg, "(+5 more)") || strings.Contains(msg, "Artifact") {
		t.Fatalf("unexpected failure message:\n%s", msg)
	}
}
