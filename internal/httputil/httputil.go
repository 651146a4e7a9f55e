// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages: client
// construction and classification of responses into the retry taxonomy.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// defaultRetryAfter is assumed when a 429 carries no usable Retry-After.
const defaultRetryAfter = 5 * time.Second

// NewClient builds an HTTP client from shared config. An unparsable proxy
// URL is a configuration error and aborts before any network call.
func NewClient(cfg types.HTTPConfig, proxy string) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil || proxyURL.Scheme == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", proxy)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		client.Transport = transport
	}
	return client, nil
}

// CheckStatus classifies a non-2xx response: 429 becomes a rate-limit error
// carrying the server's Retry-After hint, 5xx is transient, anything else is
// permanent. The body is drained and closed for failed responses so the
// connection can be reused; callers own the body on success.
func CheckStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		drain(resp)
		return &lookup.RateLimitedError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode >= 500:
		drain(resp)
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, resp.Request.URL.Host)

	default:
		drain(resp)
		return lookup.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, resp.Request.URL.Host))
	}
}

// retryAfter parses the Retry-After header, accepting both delta-seconds
// and HTTP-date forms.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
