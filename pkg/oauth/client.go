package oauth

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const initialRetryInterval = 100 * time.Millisecond

// newHTTPClient creates the client used for every provider call. Transient
// failures are retried by the transport; callers above it never retry.
func newHTTPClient(cfg *Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	customTLS := cfg.TLSConfig
	if customTLS == nil {
		customTLS = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	} else {
		customTLS = customTLS.Clone()
	}
	if cfg.InsecureSkipVerify {
		customTLS.InsecureSkipVerify = true
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       customTLS,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: cfg.MaxRetries,
			logger:     cfg.Logger,
		},
	}
}

// retryTransport wraps an http.RoundTripper with exponential backoff for
// transient failures: transport errors, 429 and 5xx responses.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	logger     *zerolog.Logger
}

type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.status)
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tries := max(t.maxRetries, 1)
	attempt := 0

	operation := func() (*http.Response, error) {
		attempt++
		r := req
		if attempt > 1 {
			if req.Body != nil && req.Body != http.NoBody {
				if req.GetBody == nil {
					return nil, backoff.Permanent(fmt.Errorf("oauth: request body cannot be replayed"))
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				r = req.Clone(req.Context())
				r.Body = body
			}
		}

		resp, err := t.base.RoundTrip(r)
		if err != nil {
			return nil, err
		}

		if !shouldRetry(resp) || attempt >= tries {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &retryableStatusError{status: resp.StatusCode}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialRetryInterval

	return backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if t.logger != nil {
				t.logger.Debug().
					Err(err).
					Str("url", req.URL.Redacted()).
					Dur("wait", wait).
					Msg("retrying provider request")
			}
		}),
	)
}

// shouldRetry determines if an HTTP response indicates a transient failure.
func shouldRetry(resp *http.Response) bool {
	if resp == nil {
		return true
	}

	// Retry on server errors (5xx) and rate limiting (429)
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}
