// Package upload drains a feature's finalized batches and submits them to
// the intake: one serial loop per feature, a single pending delayed tick,
// response-driven adaptive pacing.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Request is one intake submission produced by a feature's RequestBuilder.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is what the transport returns. Classification uses the status
// code only; the Date header additionally feeds the server-time offset.
type Response struct {
	StatusCode int
	Header     http.Header
}

// HTTPClient is the outbound transport contract. A transport error (as
// opposed to an HTTP error status) is reported through err and treated as
// retryable.
type HTTPClient interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// NetHTTPClient is the default HTTPClient on net/http.
type NetHTTPClient struct {
	client *http.Client
}

// NewNetHTTPClient creates a transport with the given per-request timeout.
func NewNetHTTPClient(timeout time.Duration) *NetHTTPClient {
	return &NetHTTPClient{client: &http.Client{Timeout: timeout}}
}

// Send POSTs the request body to the intake.
func (c *NetHTTPClient) Send(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("build intake request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	return Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// Outcome is the coarse classification of one upload attempt.
type Outcome int

const (
	// OutcomeSuccess deletes the batch and speeds the loop up.
	OutcomeSuccess Outcome = iota

	// OutcomeClientError deletes the batch (retrying cannot help) and
	// keeps the current pace.
	OutcomeClientError

	// OutcomeRetryable keeps the batch and slows the loop down.
	OutcomeRetryable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeClientError:
		return "client_error"
	default:
		return "retryable"
	}
}

// classify maps a status code to an outcome: 2xx succeed, 408/429 and 5xx
// are retryable, every other status condemns the batch.
func classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return OutcomeRetryable
	case status >= 500:
		return OutcomeRetryable
	default:
		return OutcomeClientError
	}
}
