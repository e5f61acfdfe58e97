package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/trahn-swap/internal/httputil"
	"github.com/kjannette/trahn-swap/internal/models"
)

// Sender posts notices to a Slack or Discord webhook and echoes them to stdout.
type Sender struct {
	webhookURL string
	appName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewSender(webhookURL, appName string) *Sender {
	if appName == "" {
		appName = "TrahnSwap"
	}
	return &Sender{
		webhookURL: webhookURL,
		appName:    appName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.appName, msg)
	fmt.Printf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		fmt.Printf("[NOTIFY ERROR] marshal: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		fmt.Printf("[NOTIFY ERROR] Failed to send notification after retries: %v\n", err)
		return
	}
	resp.Body.Close()
}

// SwapFinished renders a terminal attempt as one line.
func (s *Sender) SwapFinished(ctx context.Context, ev models.SwapEvent) {
	s.Send(ctx, FormatSwap(ev))
}

// FormatSwap renders ev for chat.
func FormatSwap(ev models.SwapEvent) string {
	prefix := ""
	if ev.DryRun {
		prefix = "DRY RUN "
	}
	switch ev.State {
	case models.StateConfirmed:
		msg := fmt.Sprintf("%sswap confirmed on %s: %s -> %s", prefix, ev.Venue, ev.AmountIn, ev.AmountOut)
		if ev.TxHash != "" {
			msg += " tx " + ev.TxHash
		}
		return msg
	default:
		return fmt.Sprintf("%sswap %s on %s (%s): %s", prefix, ev.State, ev.Venue, ev.AmountIn, ev.Error)
	}
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.appName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.appName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
