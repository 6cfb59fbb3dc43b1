// Package upload posts telemetry payloads to the remote collector and
// classifies every outcome as data. Nothing in this package panics or
// returns an unclassified failure to the caller.
package upload

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
	"time"

	"github.com/linesights/powermon/internal/payload"
)

const (
	// requestTimeout bounds the whole request, connect included.
	requestTimeout = 10 * time.Second

	// maxDetailLen truncates diagnostic strings carried in outcomes.
	maxDetailLen = 50
)

// Status classifies one upload attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusTimeout
	StatusConnectionFailed
	StatusHTTPError
	StatusError
)

// Outcome is the classified result of one upload attempt.
type Outcome struct {
	Status     Status
	HTTPStatus int    // set for StatusHTTPError
	Detail     string // truncated diagnostic, set for StatusError
}

// OK reports whether the remote accepted the payload.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return "Success"
	case StatusTimeout:
		return "Timeout"
	case StatusConnectionFailed:
		return "Connection failed"
	case StatusHTTPError:
		return fmt.Sprintf("HTTP %d", o.HTTPStatus)
	default:
		return fmt.Sprintf("Error: %s", o.Detail)
	}
}

// Client posts payloads to a fixed collector endpoint.
type Client struct {
	url    string
	client *http.Client
}

// New returns a client for the given endpoint URL.
func New(serverURL string) *Client {
	return NewWithTimeout(serverURL, requestTimeout)
}

// NewWithTimeout returns a client with a custom request timeout.
func NewWithTimeout(serverURL string, timeout time.Duration) *Client {
	return &Client{
		url: serverURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send uploads one payload. Failures are never retried here: the next
// cycle's upload is an independent attempt, which is the agent's named
// retry policy.
func (c *Client) Send(ctx context.Context, p payload.Payload) Outcome {
	body, err := json.Marshal(p)
	if err != nil {
		return errorOutcome(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errorOutcome(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{Status: StatusHTTPError, HTTPStatus: resp.StatusCode}
	}

	return Outcome{Status: StatusSuccess}
}

func classifyTransportError(err error) Outcome {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return Outcome{Status: StatusTimeout}
		}
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return Outcome{Status: StatusConnectionFailed}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Status: StatusTimeout}
	}

	return errorOutcome(err)
}

func errorOutcome(err error) Outcome {
	detail := err.Error()
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen]
	}
	return Outcome{Status: StatusError, Detail: detail}
}
