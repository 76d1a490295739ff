package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/circuitbreaker"
	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
	"github.com/maltehedderich/toolgate-go/internal/middleware"
	"github.com/maltehedderich/toolgate-go/internal/rpc"
)

// Proxy forwards tool API requests to the single upstream backend.
type Proxy struct {
	client   *http.Client
	upstream *url.URL
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logger.ComponentLogger
	config   *Config
}

// Config contains proxy configuration
type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
}

// DefaultConfig returns default proxy configuration
func DefaultConfig() *Config {
	return &Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		RetryDelay:          100 * time.Millisecond,
	}
}

// New creates a proxy for the given upstream URL.
func New(upstreamURL string, config *Config) (*Proxy, error) {
	if config == nil {
		config = DefaultConfig()
	}

	upstream, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %s", upstreamURL)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		// Don't follow redirects - let the client handle them
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Proxy{
		client:   client,
		upstream: upstream,
		breaker:  circuitbreaker.New("upstream", circuitbreaker.DefaultConfig()),
		logger:   logger.Get().WithComponent("proxy"),
		config:   config,
	}, nil
}

// Handler returns an http.Handler that forwards requests to the upstream.
// Rate limiting has already happened by the time a request reaches here.
func (p *Proxy) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.Forward(w, r); err != nil {
			correlationID := logger.GetCorrelationID(r.Context())
			p.logger.Error("forwarding failed", logger.Fields{
				"correlation_id": correlationID,
				"error":          err.Error(),
			})

			status := http.StatusBadGateway
			if err == circuitbreaker.ErrCircuitOpen {
				status = http.StatusServiceUnavailable
			}
			_ = rpc.WriteError(w, status, nil, rpc.CodeInternal, "Internal error", nil)
		}
	})
}

// Forward forwards a request to the upstream backend.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request) error {
	targetURL := p.buildTargetURL(r)

	backendReq, err := p.createBackendRequest(r, targetURL)
	if err != nil {
		return fmt.Errorf("failed to create backend request: %w", err)
	}

	start := time.Now()

	var resp *http.Response
	err = p.breaker.Execute(func() error {
		var execErr error
		resp, execErr = p.forwardWithRetry(backendReq)
		return execErr
	})

	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen {
			metrics.RecordBackendError("circuit_open")
			return err
		}
		metrics.RecordBackendError("request")
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordBackendRequest(strconv.Itoa(resp.StatusCode), time.Since(start))

	correlationID := logger.GetCorrelationID(r.Context())
	p.logger.Debug("backend response received", logger.Fields{
		"correlation_id": correlationID,
		"backend_url":    targetURL.String(),
		"status":         resp.StatusCode,
		"content_length": resp.ContentLength,
	})

	p.copyResponseHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn("error streaming response", logger.Fields{
			"correlation_id": correlationID,
			"error":          err.Error(),
		})
	}

	return nil
}

// BreakerState exposes the circuit breaker state for health reporting.
func (p *Proxy) BreakerState() circuitbreaker.State {
	return p.breaker.GetState()
}

// buildTargetURL maps the incoming request path onto the upstream URL.
func (p *Proxy) buildTargetURL(r *http.Request) *url.URL {
	targetURL := &url.URL{
		Scheme: p.upstream.Scheme,
		Host:   p.upstream.Host,
	}

	if p.upstream.Path != "" && p.upstream.Path != "/" {
		targetURL.Path = p.upstream.Path
	} else {
		targetURL.Path = r.URL.Path
	}

	targetURL.RawQuery = r.URL.RawQuery

	return targetURL
}

// createBackendRequest creates a new HTTP request for the upstream
func (p *Proxy) createBackendRequest(r *http.Request, targetURL *url.URL) (*http.Request, error) {
	backendReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL.String(), r.Body)
	if err != nil {
		return nil, err
	}

	p.copyRequestHeaders(backendReq, r)
	p.addForwardedHeaders(backendReq, r)

	correlationID := logger.GetCorrelationID(r.Context())
	if correlationID != "" {
		backendReq.Header.Set("X-Correlation-ID", correlationID)
	}

	backendReq.Header.Add("Via", "1.1 toolgate")
	backendReq.Host = targetURL.Host

	return backendReq, nil
}

// hopHeaders are connection-scoped headers that must not be forwarded.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// copyRequestHeaders copies request headers, excluding hop-by-hop headers
func (p *Proxy) copyRequestHeaders(dst, src *http.Request) {
	for key, values := range src.Header {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			dst.Header.Add(key, value)
		}
	}
}

// addForwardedHeaders adds X-Forwarded-* headers
func (p *Proxy) addForwardedHeaders(backendReq, originalReq *http.Request) {
	clientIP := middleware.ClientIP(originalReq)
	if prior := originalReq.Header.Get("X-Forwarded-For"); prior != "" {
		clientIP = prior + ", " + clientIP
	}
	backendReq.Header.Set("X-Forwarded-For", clientIP)

	proto := "http"
	if originalReq.TLS != nil {
		proto = "https"
	}
	backendReq.Header.Set("X-Forwarded-Proto", proto)

	backendReq.Header.Set("X-Forwarded-Host", originalReq.Host)

	if originalReq.Header.Get("X-Real-IP") == "" {
		backendReq.Header.Set("X-Real-IP", middleware.ClientIP(originalReq))
	}
}

// copyResponseHeaders copies response headers, excluding hop-by-hop headers
func (p *Proxy) copyResponseHeaders(dst http.ResponseWriter, src *http.Response) {
	for key, values := range src.Header {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			dst.Header().Add(key, value)
		}
	}
}

// forwardWithRetry forwards the request with retry logic
func (p *Proxy) forwardWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff between attempts
			delay := p.config.RetryDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)

			p.logger.Debug("retrying backend request", logger.Fields{
				"attempt": attempt,
				"url":     req.URL.String(),
				"delay":   delay.String(),
			})
		}

		resp, err = p.client.Do(req)

		if err == nil {
			// Don't retry on successful responses (even 4xx/5xx)
			return resp, nil
		}

		if !p.isRetryable(err) {
			return nil, err
		}

		correlationID := logger.GetCorrelationID(req.Context())
		p.logger.Warn("backend request failed, will retry", logger.Fields{
			"correlation_id": correlationID,
			"attempt":        attempt,
			"error":          err.Error(),
		})
	}

	return nil, fmt.Errorf("max retries exceeded: %w", err)
}

// isRetryable checks if an error is retryable
func (p *Proxy) isRetryable(err error) bool {
	if _, ok := err.(net.Error); ok {
		return true
	}

	if err == context.DeadlineExceeded {
		return true
	}

	if strings.Contains(err.Error(), "connection refused") {
		return true
	}

	if strings.Contains(err.Error(), "no such host") {
		return true
	}

	return false
}
