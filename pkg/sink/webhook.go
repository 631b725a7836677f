package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	// URL receives a POST per applied price.
	URL string

	// Timeout bounds each attempt. Default 10s.
	Timeout time.Duration

	// Headers are sent with every request, e.g. an Authorization token.
	Headers map[string]string

	// Retries is the number of extra attempts on transport errors, 429 and
	// 5xx responses.
	Retries int

	// RetryWait is the initial backoff. Default 500ms.
	RetryWait time.Duration
}

// PriceUpdate is the webhook body.
type PriceUpdate struct {
	ProductID string          `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangePct decimal.Decimal `json:"change_pct"`
	ChangedAt time.Time       `json:"changed_at"`
}

// WebhookError is returned when the storefront answers with a non-2xx status.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("price webhook returned %d", e.StatusCode)
	}
	return fmt.Sprintf("price webhook returned %d: %s", e.StatusCode, e.Body)
}

// WebhookSink is a decision.PriceSink that POSTs price updates.
type WebhookSink struct {
	client *resty.Client
	url    string
	now    func() time.Time
	logger *slog.Logger
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig, logger *slog.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10 * cfg.RetryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &WebhookSink{
		client: client,
		url:    cfg.URL,
		now:    time.Now,
		logger: logger.With("component", "sink.webhook"),
	}, nil
}

// UpdatePrice implements decision.PriceSink.
func (s *WebhookSink) UpdatePrice(ctx context.Context, productID string, oldPrice, newPrice float64) error {
	oldDec := decimal.NewFromFloat(oldPrice)
	newDec := decimal.NewFromFloat(newPrice)
	body := PriceUpdate{
		ProductID: productID,
		OldPrice:  oldDec,
		NewPrice:  newDec,
		ChangePct: newDec.Sub(oldDec).Div(oldDec).Round(6),
		ChangedAt: s.now().UTC(),
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post price update for %s: %w", productID, err)
	}
	if resp.IsError() {
		return &WebhookError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}

	s.logger.Debug("price update delivered",
		"product_id", productID,
		"old_price", oldPrice,
		"new_price", newPrice,
		"status", resp.StatusCode(),
		"attempts", resp.Request.Attempt,
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
