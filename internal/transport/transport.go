package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/pkg/utils"
)

// ErrTransport marks a failed round trip: timeout, refused connection, DNS
// failure or an unreadable body. Callers treat it as a negative result.
var ErrTransport = errors.New("transport failure")

// Response is the part of an HTTP response the exploitation pipeline needs
type Response struct {
	StatusCode int
	Body       string
}

// OK reports whether the response carries the success status
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Transport issues a single blocking GET
type Transport interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error)
}

// Client is the resty-backed Transport sharing one connection pool and
// cookie jar across the session
type Client struct {
	http        *http.Client
	resty       *resty.Client
	log         logger.Logger
	maxBodySize int64
}

// New creates a new session client
func New(cfg *config.Config, log logger.Logger) (*Client, error) {
	httpClient, err := utils.NewHTTPClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP client: %w", err)
	}

	restyClient := resty.NewWithClient(httpClient).
		SetTimeout(cfg.RequestTimeout()).
		SetHeader("User-Agent", cfg.Exploit.DefaultUserAgent).
		SetHeaders(map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"Connection":      "keep-alive",
		})

	return &Client{
		http:        httpClient,
		resty:       restyClient,
		log:         log,
		maxBodySize: int64(cfg.Transport.MaxBodySize),
	}, nil
}

// Get performs a GET request. Per-request headers override the session defaults.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	req := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}

	resp, err := req.Get(rawURL)
	if err != nil {
		c.log.Debug("Request failed", "url", rawURL, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	body, err := c.readLimitedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	c.log.Debug("Request completed",
		"url", rawURL,
		"status", resp.StatusCode(),
		"bytes", len(body))

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       string(body),
	}, nil
}

// Close releases idle connections held by the session
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) readLimitedBody(resp *resty.Response) ([]byte, error) {
	bodyReader := resp.RawBody()
	if bodyReader == nil {
		return nil, nil
	}
	defer bodyReader.Close()

	if c.maxBodySize <= 0 {
		return io.ReadAll(bodyReader)
	}
	return io.ReadAll(io.LimitReader(bodyReader, c.maxBodySize))
}
