package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type httpStatusError struct {
	Code int
	Body string
}

func (o *ORSClient) newRequest(
	ctx context.Context,
	method string,
	url string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json, application/geo+json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (o *ORSClient) do(req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429 and 5xx responses)
// using exponential backoff while respecting context cancellation.
func (o *ORSClient) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	const maxAttempts = 4
	backoff := o.initialBackoff

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}
