package resilience

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from a marketplace (10MB)
const maxResponseSize = 10 * 1024 * 1024

// StatusError is a non-retryable 4xx response
type StatusError struct {
	Endpoint   string
	Method     string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("integration: %s %s returned HTTP %d", e.Method, e.Endpoint, e.StatusCode)
}

// Is matches ErrPlatformAuthFailed for 401/403 and ErrPlatformRequestFailed otherwise
func (e *StatusError) Is(target error) bool {
	switch target {
	case integration.ErrPlatformAuthFailed:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case integration.ErrPlatformRequestFailed:
		return true
	}
	return false
}

// RequestBuilder creates a fresh request for each attempt
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// DoHTTP sends the built request through Execute
func (e *Engine) DoHTTP(ctx context.Context, client *http.Client, call Call, build RequestBuilder) (*Response, error) {
	return e.Execute(ctx, call, func(ctx context.Context) (*Response, error) {
		return Send(ctx, client, call, build)
	})
}

// Send performs a single attempt and classifies the outcome.
// Network faults and 5xx become *integration.TransientHTTPError, other 4xx become *StatusError.
func Send(ctx context.Context, client *http.Client, call Call, build RequestBuilder) (*Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("integration: failed to create request for %s: %w", call.Endpoint, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &integration.TransientHTTPError{Endpoint: call.Endpoint, Method: call.Method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &integration.TransientHTTPError{
			Endpoint:   call.Endpoint,
			Method:     call.Method,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &integration.TransientHTTPError{Endpoint: call.Endpoint, Method: call.Method, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Endpoint: call.Endpoint, Method: call.Method, StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
