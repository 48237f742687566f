// internal/analysisjob/client.go
package analysisjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotConfigured = errors.New("analysis job URL not configured")

// Request é o corpo enviado ao serviço externo de análise de presença.
type Request struct {
	LessonID      string `json:"lesson_id"`
	CorrelationID string `json:"correlation_id"`
}

// Result é devolvido como veio do serviço externo, mais status e duração.
type Result struct {
	StatusCode int                    `json:"status_code"`
	DurationMs int64                  `json:"duration_ms"`
	Body       map[string]interface{} `json:"body,omitempty"`
}

// Client dispara o job de análise. O lock da aula é responsabilidade de quem chama.
type Client struct {
	http *resty.Client
	url  string
	log  *slog.Logger
}

func New(url string, timeout time.Duration) *Client {
	r := resty.New()
	r.SetTimeout(timeout)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	return &Client{
		http: r,
		url:  strings.TrimSpace(url),
		log:  slog.With("component", "analysisjob"),
	}
}

func (c *Client) Enabled() bool { return c.url != "" }

func (c *Client) Run(ctx context.Context, req Request) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	body := map[string]interface{}{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Correlation-ID", req.CorrelationID).
		SetBody(req).
		SetResult(&body).
		SetError(&body).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("analysis job request: %w", err)
	}

	res := &Result{
		StatusCode: resp.StatusCode(),
		DurationMs: time.Since(start).Milliseconds(),
		Body:       body,
	}
	c.log.Info("analysis job finished",
		"lesson_id", req.LessonID,
		"correlation_id", req.CorrelationID,
		"status", res.StatusCode,
		"duration_ms", res.DurationMs,
	)
	if resp.IsError() {
		return res, fmt.Errorf("analysis job failed: HTTP %d", res.StatusCode)
	}
	return res, nil
}
