// Package relay posts submissions to the external form relay.
//
// The relay accepts one URL-encoded field, json, holding
// {key, sheet, form, role?, subject, data} and answers {ok, error?}.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fishtank/internal/forms/models"
	dErrors "fishtank/pkg/domain-errors"
	"fishtank/pkg/platform/circuit"
	"fishtank/pkg/platform/sanitize"
	"fishtank/pkg/platform/tracer"
	"fishtank/pkg/requestcontext"
)

const (
	contentType = "application/x-www-form-urlencoded;charset=UTF-8"

	// DefaultRejection is shown when the relay says ok=false without a reason.
	DefaultRejection = "Submission failed"

	maxResponseBytes = 64 * 1024
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client. URL and APIKey may be empty; Dispatch then
// fails with a configuration error before any network call.
type Config struct {
	URL        string
	APIKey     string
	Sheets     map[models.FormName]string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Breaker    *circuit.Breaker
	Tracer     tracer.Tracer
	Metrics    *Metrics
	Logger     *slog.Logger
}

type Client struct {
	url     string
	apiKey  string
	sheets  map[models.FormName]string
	timeout time.Duration
	http    HTTPDoer
	breaker *circuit.Breaker
	tracer  tracer.Tracer
	metrics *Metrics
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuit.New("relay")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:     strings.TrimSpace(cfg.URL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		sheets:  cfg.Sheets,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		breaker: cfg.Breaker,
		tracer:  cfg.Tracer,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Configured reports whether an endpoint and key are set.
func (c *Client) Configured() bool {
	return c.url != "" && c.apiKey != ""
}

// Ready is a readiness check for the health handler.
func (c *Client) Ready(context.Context) error {
	if !c.Configured() {
		return errors.New("relay endpoint not configured")
	}
	if c.breaker.State() == circuit.StateOpen {
		return errors.New("relay circuit open")
	}
	return nil
}

type payload struct {
	Key     string        `json:"key"`
	Sheet   string        `json:"sheet"`
	Form    string        `json:"form"`
	Role    string        `json:"role,omitempty"`
	Subject string        `json:"subject"`
	Data    models.Values `json:"data"`
}

type response struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

// Dispatch performs exactly one POST. It returns nil on ok=true and a domain
// error otherwise: CodeConfigMissing, CodeRelayRejected (message is the
// relay's reason) or CodeRelayUnavailable. Nothing is retried.
func (c *Client) Dispatch(ctx context.Context, d models.Dispatch) (err error) {
	if !c.Configured() {
		return dErrors.New(dErrors.CodeConfigMissing, "relay endpoint or api key not configured")
	}

	ctx, span := c.tracer.Start(ctx, tracer.SpanRelayDispatch,
		tracer.String(tracer.AttrForm, d.Form.String()),
		tracer.String(tracer.AttrRole, d.Role.String()),
	)
	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrRelayResult, result))
		span.End(err)
		c.metrics.ObserveDispatch(d.Form.String(), result, time.Since(start).Seconds())
	}()

	if !c.breaker.Allow() {
		result = "circuit_open"
		span.SetAttributes(tracer.String(tracer.AttrBreaker, c.breaker.State().String()))
		return dErrors.New(dErrors.CodeRelayUnavailable, "relay circuit open")
	}

	resp, err := c.post(ctx, d)
	if err != nil {
		c.recordFailure(ctx, span)
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		return err
	}
	c.recordSuccess(ctx, span)

	if !*resp.OK {
		result = "rejected"
		reason := sanitize.Text(resp.Error)
		if reason == "" {
			reason = DefaultRejection
		}
		return dErrors.New(dErrors.CodeRelayRejected, reason)
	}
	result = "ok"
	return nil
}

// post sends the request and decodes a well-formed relay answer. Every
// error it returns carries CodeRelayUnavailable.
func (c *Client) post(ctx context.Context, d models.Dispatch) (*response, error) {
	raw, err := json.Marshal(payload{
		Key:     c.apiKey,
		Sheet:   c.sheets[d.Form],
		Form:    d.Form.String(),
		Role:    d.Role.String(),
		Subject: d.Subject,
		Data:    d.Values,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRelayUnavailable, "encode relay payload")
	}
	body := url.Values{"json": {string(raw)}}.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRelayUnavailable, "build relay request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(fmt.Errorf("%w: %w", context.DeadlineExceeded, err), dErrors.CodeRelayUnavailable, "relay request timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRelayUnavailable, "relay request failed")
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRelayUnavailable, "read relay response")
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, dErrors.New(dErrors.CodeRelayUnavailable, fmt.Sprintf("relay answered status %d", httpResp.StatusCode))
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRelayUnavailable, "parse relay response")
	}
	if out.OK == nil {
		return nil, dErrors.New(dErrors.CodeRelayUnavailable, "relay response has no ok field")
	}
	return &out, nil
}

func (c *Client) recordFailure(ctx context.Context, span tracer.Span) {
	if change := c.breaker.RecordFailure(); change.Opened {
		span.AddEvent(tracer.EventBreakerOpened)
		c.logger.WarnContext(ctx, "relay circuit opened",
			"breaker", c.breaker.Name(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (c *Client) recordSuccess(ctx context.Context, span tracer.Span) {
	if change := c.breaker.RecordSuccess(); change.Closed {
		span.AddEvent(tracer.EventBreakerClosed)
		c.logger.InfoContext(ctx, "relay circuit closed",
			"breaker", c.breaker.Name(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
