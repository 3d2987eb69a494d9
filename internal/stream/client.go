package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/models"
)

// Client posts chat requests to a generation endpoint and returns a Decoder
// over the streamed response.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the transport. The client is copied so later
// options do not mutate the caller's value.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.httpClient = &cp
		}
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds a whole call, including reading the body. Zero means no
// limit.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Stream dispatches req and returns a Decoder owning the response body. A
// non-success status or a missing body fails the call with a
// *TransportError before any delta is produced.
func (c *Client) Stream(ctx context.Context, req models.ChatRequest) (*Decoder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.Body != nil {
			resp.Body.Close()
		}
		c.logger.Error("generation endpoint returned error status",
			zap.String("endpoint", c.endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &TransportError{Err: ErrNoBody}
	}

	return NewDecoder(resp.Body, c.logger), nil
}
