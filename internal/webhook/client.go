// Package webhook talks to the two automation endpoints: one accepting new
// fill-ups and one serving the history.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"fueltrack/internal/core"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
)

const (
	maxSubmitBody  = 64 << 10
	maxHistoryBody = 8 << 20

	// DefaultTimeout bounds a whole round trip when Config.Timeout is zero.
	DefaultTimeout = 15 * time.Second
)

// Config carries the endpoint URLs.
type Config struct {
	SubmitURL  string
	HistoryURL string
	Timeout    time.Duration
}

// Validate checks both URLs are absolute http(s) URLs.
func (c Config) Validate() error {
	var errs []error
	for _, ep := range [...]struct{ name, raw string }{
		{"submit", c.SubmitURL},
		{"history", c.HistoryURL},
	} {
		name, raw := ep.name, ep.raw
		if raw == "" {
			errs = append(errs, fmt.Errorf("%s url: %w", name, ErrNotConfigured))
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s url %q is not an absolute http(s) url", name, raw))
		}
	}
	return errors.Join(errs...)
}

// Client performs the submit and history calls.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *log.Logger
	now    func() time.Time
	// historyLimit caps the history body size.
	historyLimit int64

	lastBust atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now for payload dates and cache busting.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentWebhook) }
}

// WithMaxHistoryBytes overrides the history body cap.
func WithMaxHistoryBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// New returns a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   newHTTPClient(cfg.Timeout),
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentWebhook),
		now:    time.Now,

		historyLimit: maxHistoryBody,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Submit posts one fill-up. Success is decided by the status code alone; the
// response body is only logged.
func (c *Client) Submit(ctx context.Context, e core.FuelEntry) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveWebhook(metrics.EndpointSubmit, metrics.Result(err), time.Since(start))
	}()

	if c.cfg.SubmitURL == "" {
		return ErrNotConfigured
	}
	payload := NewPayload(e, c.now())
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SubmitURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "Sending fill-up", log.FieldEndpoint, c.cfg.SubmitURL, "payload", string(body))

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(metrics.EndpointSubmit, err)
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxSubmitBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "Submit webhook rejected fill-up",
			log.FieldStatusCode, resp.StatusCode, "body", string(text))
		return &StatusError{Endpoint: metrics.EndpointSubmit, StatusCode: resp.StatusCode, Body: string(text)}
	}

	c.logger.InfoContext(ctx, "Submit webhook answered",
		log.FieldStatusCode, resp.StatusCode,
		log.FieldBodyBytes, len(text),
		"body", string(text),
	)
	return nil
}

// FetchHistory returns the history body unexamined apart from checking that
// it is JSON.
func (c *Client) FetchHistory(ctx context.Context) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveWebhook(metrics.EndpointHistory, metrics.Result(err), time.Since(start))
	}()

	if c.cfg.HistoryURL == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(c.cfg.HistoryURL)
	if err != nil {
		return nil, fmt.Errorf("parse history url: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.cacheBuster(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr(metrics.EndpointHistory, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.historyLimit+1))
	if err != nil {
		return nil, transportErr(metrics.EndpointHistory, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if int64(len(body)) > c.historyLimit {
			body = body[:c.historyLimit]
		}
		return nil, &StatusError{Endpoint: metrics.EndpointHistory, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if int64(len(body)) > c.historyLimit {
		return nil, transportErr(metrics.EndpointHistory,
			fmt.Errorf("%w: more than %d bytes", ErrHistoryTooLarge, c.historyLimit))
	}
	if !json.Valid(body) {
		return nil, transportErr(metrics.EndpointHistory, errors.New("response is not valid JSON"))
	}

	c.logger.DebugContext(ctx, "History fetched", log.FieldBodyBytes, len(body))
	return json.RawMessage(body), nil
}

// cacheBuster returns the current unix milliseconds, bumped so that two
// calls never share a value.
func (c *Client) cacheBuster() int64 {
	for {
		now := c.now().UnixMilli()
		last := c.lastBust.Load()
		if now <= last {
			now = last + 1
		}
		if c.lastBust.CompareAndSwap(last, now) {
			return now
		}
	}
}
