package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/httpx"
	"github.com/bakkerme/free-game-notifier/internal/outputs/discord"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// maxRetryAfter caps how long a single rate limit wait may block a cycle.
const maxRetryAfter = 30 * time.Second

// Sender executes Discord webhooks over HTTPS.
type Sender struct {
	client *resty.Client
	logger *slog.Logger
}

func NewSender(client *resty.Client, logger *slog.Logger) *Sender {
	if client == nil {
		client = resty.New().SetTimeout(30 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{client: client, logger: logger}
}

// Send posts message to webhookURL. A 429 response is waited out once using
// its Retry-After hint; every other non-2xx status is an error.
func (s *Sender) Send(ctx context.Context, webhookURL string, message discord.Message) error {
	if strings.TrimSpace(webhookURL) == "" {
		return fmt.Errorf("webhook url is required")
	}

	resp, err := s.post(ctx, webhookURL, message)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		wait := retryAfter(resp)
		s.logger.Warn("discord rate limited, waiting once", "retry_after", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		resp, err = s.post(ctx, webhookURL, message)
		if err != nil {
			return err
		}
	}
	if resp.IsError() {
		return fmt.Errorf("discord webhook: status %d: %s", resp.StatusCode(), httpx.Truncate(resp.String(), 300))
	}
	return nil
}

func (s *Sender) post(ctx context.Context, webhookURL string, message discord.Message) (*resty.Response, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("discord webhook: %w", err)
	}
	return resp, nil
}

// retryAfter reads the Retry-After header (seconds) or the retry_after field of
// the JSON body, defaulting to one second.
func retryAfter(resp *resty.Response) time.Duration {
	wait := time.Second
	if raw := resp.Header().Get("Retry-After"); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			wait = time.Duration(secs * float64(time.Second))
		}
	} else if v := gjson.GetBytes(resp.Body(), "retry_after"); v.Exists() {
		wait = time.Duration(v.Float() * float64(time.Second))
	}
	if wait < 0 {
		wait = 0
	}
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait
}
