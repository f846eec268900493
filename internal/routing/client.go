// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the directions client.
type ClientError struct {
	Type    ErrorType
	Message string
	Status  int
	Cause   error

	// RetryAfter is the server's requested back-off, if it sent one.
	RetryAfter time.Duration
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same Type, so responses can be checked
// against the sentinels with errors.Is.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeRateLimited
	ErrTypeUnauthorized
	ErrTypeBadRequest
	ErrTypeNoRoute
	ErrTypeServer
	ErrTypeInvalidResponse
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeRateLimited:
		return "rate limited"
	case ErrTypeUnauthorized:
		return "unauthorized"
	case ErrTypeBadRequest:
		return "bad request"
	case ErrTypeNoRoute:
		return "no route"
	case ErrTypeServer:
		return "server error"
	case ErrTypeInvalidResponse:
		return "invalid response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrTimeout      = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrRateLimited  = &ClientError{Type: ErrTypeRateLimited, Message: "rate limited by routing service"}
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized, Message: "routing service rejected the API key"}
	ErrNoRoute      = &ClientError{Type: ErrTypeNoRoute, Message: "no route found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the directions client.
type ClientConfig struct {
	// BaseURL of the routing service (default: https://api.openrouteservice.org)
	BaseURL string

	// APIKey sent in the Authorization header. Self-hosted services
	// usually need none.
	APIKey string

	// Profile used for requests that do not name one (default: driving-car)
	Profile string

	// Timeout per HTTP request (default: 30s)
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// RetryDelay before the first retry; later retries back off linearly (default: 1s)
	RetryDelay time.Duration

	// RequestsPerSecond caps the request rate across all goroutines
	// sharing the client. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once (default: 1)
	Burst int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "https://api.openrouteservice.org",
		Profile:           DefaultProfile,
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryDelay:        1 * time.Second,
		RequestsPerSecond: 0,
		Burst:             1,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Router computes single routes. Client is the production implementation.
type Router interface {
	Route(ctx context.Context, req Request) (Route, error)
}

// Client talks to the directions endpoint of the routing service.
//
// The Client is safe for concurrent use; its rate limiter is shared by all
// callers.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewClient creates a client. Zero values in config are replaced with
// defaults. A nil logger discards log output.
func NewClient(config *ClientConfig, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// Fill in defaults for any zero values
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openrouteservice.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		config:     &cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		log:        logger,
	}
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() ClientConfig {
	return *c.config
}

// =============================================================================
// RETRY HOOK
// =============================================================================

// RetryFunc is called before each retry of a request.
type RetryFunc func(attempt int, err error)

type retryHookKey struct{}

// WithRetryHook returns a context that makes Client.Route report retries
// to fn.
func WithRetryHook(ctx context.Context, fn RetryFunc) context.Context {
	return context.WithValue(ctx, retryHookKey{}, fn)
}

func retryHook(ctx context.Context) RetryFunc {
	fn, _ := ctx.Value(retryHookKey{}).(RetryFunc)
	return fn
}

// =============================================================================
// DIRECTIONS
// =============================================================================

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Type     string `json:"type"`
	Features []struct {
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates []Coordinate `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

type serviceError struct {
	Error json.RawMessage `json:"error"`
}

// Route computes the route for req, retrying transient failures.
func (c *Client) Route(ctx context.Context, req Request) (Route, error) {
	hook := retryHook(ctx)

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Route{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		route, err := c.route(ctx, req)
		if err == nil {
			return route, nil
		}
		if ctx.Err() != nil {
			return Route{}, ctx.Err()
		}
		if !IsRetryable(err) || attempt >= c.config.MaxRetries {
			return Route{}, err
		}

		delay := c.config.RetryDelay * time.Duration(attempt+1)
		var clientErr *ClientError
		if errors.As(err, &clientErr) && clientErr.RetryAfter > delay {
			delay = clientErr.RetryAfter
		}

		c.log.Debug("retrying route request",
			"request", req.ID, "attempt", attempt+1, "delay", delay, "error", err)
		if hook != nil {
			hook(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Route{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// route performs a single request.
func (c *Client) route(ctx context.Context, req Request) (Route, error) {
	profile := req.Profile
	if profile == "" {
		profile = c.config.Profile
	}

	body, err := json.Marshal(directionsRequest{
		Coordinates: [][2]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
	})
	if err != nil {
		return Route{}, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	url := c.config.BaseURL + "/v2/directions/" + profile + "/geojson"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Route{}, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json, application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
			return Route{}, ErrTimeout
		}
		return Route{}, &ClientError{Type: ErrTypeConnection, Message: "failed to reach routing service", Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Route{}, statusError(resp)
	}

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return Route{}, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if len(dr.Features) == 0 {
		return Route{}, ErrNoRoute
	}

	f := dr.Features[0]
	return Route{
		RequestID: req.ID,
		Label:     req.Label,
		Profile:   profile,
		Distance:  f.Properties.Summary.Distance,
		Duration:  f.Properties.Summary.Duration,
		Geometry:  f.Geometry.Coordinates,
	}, nil
}

// statusError maps a non-200 response to a ClientError.
func statusError(resp *http.Response) error {
	msg := serviceMessage(resp.Body)
	if msg == "" {
		msg = resp.Status
	}

	e := &ClientError{Status: resp.StatusCode, Message: "routing service: " + msg}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Type = ErrTypeRateLimited
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Type = ErrTypeUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		e.Type = ErrTypeNoRoute
	case resp.StatusCode >= 500:
		e.Type = ErrTypeServer
	case resp.StatusCode >= 400:
		e.Type = ErrTypeBadRequest
	default:
		e.Type = ErrTypeInvalidResponse
	}
	return e
}

// serviceMessage extracts the message from an error body. The service
// sends either {"error": "text"} or {"error": {"code": n, "message": "text"}}.
func serviceMessage(body io.Reader) string {
	var se serviceError
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&se); err != nil || len(se.Error) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(se.Error, &text); err == nil {
		return text
	}
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(se.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return ""
}

func isNetTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	switch clientErr.Type {
	case ErrTypeConnection, ErrTypeTimeout, ErrTypeRateLimited, ErrTypeServer:
		return true
	}
	return false
}

// IsNoRoute checks if an error means the service could not connect the points.
func IsNoRoute(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNoRoute
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
