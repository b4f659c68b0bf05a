package http

import (
	"net"
	"net/http"
	"time"
)

// ClientOption configures the outbound HTTP client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout         time.Duration
	dialTimeout     time.Duration
	maxIdlePerHost  int
	idleConnTimeout time.Duration
}

// NewClient builds the *http.Client shared by the outbound data source
// adapters. Each adapter also bounds every call with its own context.
func NewClient(opts ...ClientOption) *http.Client {
	cfg := &clientConfig{
		timeout:         30 * time.Second,
		dialTimeout:     5 * time.Second,
		maxIdlePerHost:  8,
		idleConnTimeout: 90 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: cfg.dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConnsPerHost: cfg.maxIdlePerHost,
		IdleConnTimeout:     cfg.idleConnTimeout,
		TLSHandshakeTimeout: cfg.dialTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Timeout: cfg.timeout, Transport: transport}
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithMaxIdlePerHost bounds pooled keep-alive connections per host.
func WithMaxIdlePerHost(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxIdlePerHost = n
	}
}
