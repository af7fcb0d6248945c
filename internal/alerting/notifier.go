package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxListedSymbols caps the failed symbols spelled out in one message.
const maxListedSymbols = 15

// Notification summarises a finished download run.
type Notification struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	Attempted     int
	Succeeded     int
	Failed        int
	FailedSymbols []string
	ArtifactPath  string
	RowCount      int
	Err           error
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().Time("started_at", note.StartedAt).Int("failed", note.Failed).Msg("run summary sent")
	return nil
}

// RenderMessage formats a run summary as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	if note.Err != nil {
		builder.WriteString("[nsedl] download FAILED\n")
	} else {
		builder.WriteString("[nsedl] download finished\n")
	}
	builder.WriteString(fmt.Sprintf("Started: %s\n", note.StartedAt.Format(time.RFC3339)))
	if !note.FinishedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Took: %s\n", note.FinishedAt.Sub(note.StartedAt).Round(time.Second)))
	}
	builder.WriteString(fmt.Sprintf("Symbols: %d ok / %d failed / %d total\n", note.Succeeded, note.Failed, note.Attempted))
	if note.ArtifactPath != "" {
		builder.WriteString(fmt.Sprintf("Artifact: %s (%d rows)\n", note.ArtifactPath, note.RowCount))
	}
	if len(note.FailedSymbols) > 0 {
		listed := note.FailedSymbols
		if len(listed) > maxListedSymbols {
			listed = listed[:maxListedSymbols]
		}
		builder.WriteString("Failed: " + strings.Join(listed, ", "))
		if extra := len(note.FailedSymbols) - len(listed); extra > 0 {
			builder.WriteString(fmt.Sprintf(" (+%d more)", extra))
		}
		builder.WriteString("\n")
	}
	if note.Err != nil {
		builder.WriteString("Error: " + note.Err.Error() + "\n")
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
