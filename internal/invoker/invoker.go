// Package invoker issues single HTTP requests on a shared pooled transport
// and classifies the outcome. A received response is never an error here, no
// matter the status code; errors are reserved for transport-level failures.
// The invoker never retries — the execution driver owns the retry loop.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind classifies an attempt that produced no usable response.
type ErrorKind string

const (
	// NoResponse means the connection failed before any response arrived.
	NoResponse ErrorKind = "NO_RESPONSE"
	// Timeout means the per-attempt deadline elapsed.
	Timeout ErrorKind = "TIMEOUT"
	// RequestInvalid means the request could not be constructed at all.
	RequestInvalid ErrorKind = "REQUEST_INVALID"
)

// InvokeError is a transport-level failure of one attempt.
type InvokeError struct {
	Kind ErrorKind
	Err  error
}

func (e *InvokeError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// Request is the HTTP envelope for one attempt.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    *string

	// Timeout is the per-attempt deadline.
	Timeout time.Duration
}

// Response is whatever the target answered, status inspected by nobody here.
type Response struct {
	StatusCode int
	Body       string
}

// Config tunes the shared transport.
type Config struct {
	// MaxSocketsPerHost caps open connections per target host (default 50).
	MaxSocketsPerHost int
	// MaxIdlePerHost caps idle keep-alive connections retained (default 10).
	MaxIdlePerHost int
	// TargetRatePerMinute enables per-host token-bucket throttling when > 0.
	TargetRatePerMinute int
}

// maxBodyBytes caps how much of a response body is read (1 MiB). Prevents a
// misbehaving target from ballooning execution rows.
const maxBodyBytes = 1 << 20

// Invoker is the single per-process HTTP caller.
type Invoker struct {
	client  *http.Client
	limiter *hostLimiter
}

// New creates the invoker with a pooled transport.
func New(cfg Config) *Invoker {
	if cfg.MaxSocketsPerHost <= 0 {
		cfg.MaxSocketsPerHost = 50
	}
	if cfg.MaxIdlePerHost <= 0 {
		cfg.MaxIdlePerHost = 10
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.MaxSocketsPerHost,
		MaxIdleConnsPerHost: cfg.MaxIdlePerHost,
		MaxIdleConns:        cfg.MaxIdlePerHost * 10,
		IdleConnTimeout:     90 * time.Second,
	}

	var limiter *hostLimiter
	if cfg.TargetRatePerMinute > 0 {
		limiter = newHostLimiter(cfg.TargetRatePerMinute, cfg.TargetRatePerMinute)
	}

	return &Invoker{
		client:  &http.Client{Transport: transport},
		limiter: limiter,
	}
}

// Invoke performs one HTTP call with the request's deadline. Any received
// response is returned as-is; a nil response always comes with an
// *InvokeError.
func (iv *Invoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, &InvokeError{Kind: RequestInvalid, Err: err}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if iv.limiter != nil {
		if err := iv.limiter.Wait(ctx, target.Host); err != nil {
			return nil, classifyTransport(err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = strings.NewReader(*req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, &InvokeError{Kind: RequestInvalid, Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := iv.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: string(data)}, nil
}

func buildURL(raw string, query map[string]string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func classifyTransport(err error) *InvokeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &InvokeError{Kind: Timeout, Err: err}
	}
	return &InvokeError{Kind: NoResponse, Err: err}
}
