package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxMessageRunes is the Bot API limit for one sendMessage text.
const maxMessageRunes = 4096

// Notifier delivers a text message somewhere a human will read it.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// NoopNotifier drops messages; used when Telegram is not configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(_ context.Context, _ string) error { return nil }

// permanentError marks a Bot API rejection that a retry cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// TelegramNotifier posts run reports and transitions to one Telegram chat.
// Long reports are split on line boundaries; each part is rate limited and
// retried with exponential backoff on 429, 5xx and transport errors.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Retries  int
	Backoff  time.Duration
	Limiter  *rate.Limiter
	Client   *http.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  "https://api.telegram.org",
		Retries:  3,
		Backoff:  time.Second,
		// Telegram allows roughly one message per second into a single chat.
		Limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		Client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

// Send delivers text, split into as many messages as the API limit requires.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	parts := splitMessage(text, maxMessageRunes)
	for i, part := range parts {
		if err := t.sendPart(ctx, part); err != nil {
			return fmt.Errorf("telegram part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

func (t *TelegramNotifier) sendPart(ctx context.Context, text string) error {
	base := t.Backoff
	if base <= 0 {
		base = time.Second
	}
	var lastErr error
	for attempt := 0; attempt <= t.Retries; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := t.post(ctx, text)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == t.Retries {
			break
		}
		wait := base << uint(attempt)
		zap.S().Warnf("telegram send failed (attempt %d/%d): %v, retrying in %v", attempt+1, t.Retries+1, err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", t.Retries+1, lastErr)
}

func (t *TelegramNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return permanentError{fmt.Errorf("marshal payload: %w", err)}
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return permanentError{err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	apiErr := fmt.Errorf("telegram API status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return apiErr
	}
	return permanentError{apiErr}
}

// splitMessage cuts text into parts of at most limit runes, preferring to
// break after a newline. A single over-long line is hard-split.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		for ln > limit {
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return parts
}
