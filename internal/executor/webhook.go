package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// WebhookConfig controls the outbound HTTP executor.
type WebhookConfig struct {
	Timeout    time.Duration // per-request timeout (default 15s)
	RatePerSec int           // outbound request rate limit; 0 disables limiting
	Burst      int
}

// Webhook delivers command params to an HTTP endpoint. Outbound calls
// go through a rate limiter so a burst of due tasks cannot hammer the
// receiving CRM endpoint.
type Webhook struct {
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewWebhook(cfg WebhookConfig, log logx.Logger) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.RatePerSec
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Webhook{
		client:  &http.Client{Timeout: timeout},
		limiter: lim,
		log:     log,
	}
}

func (w *Webhook) Execute(ctx context.Context, cmd task.Command) error {
	var p task.WebhookParams
	if err := cmd.Decode(&p); err != nil {
		return err
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit wait: %w", err)
		}
	}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if len(p.Body) > 0 {
		body = bytes.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL, body)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", method, p.URL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	w.log.Debug("webhook delivered",
		logx.String("url", p.URL),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s %s: status %d", method, p.URL, resp.StatusCode)
	}
	return nil
}
