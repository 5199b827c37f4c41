package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-booking/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// Client talks to a spreadsheet web-app endpoint: GET returns every row as a
// 2-D JSON array, POST appends one form-encoded row.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sheets",
			MaxFailures: 5,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		})
	}
	return c
}

// status is the object envelope the web app uses for errors and acks.
type status struct {
	Status  string `json:"status"`
	Result  string `json:"result"`
	Message string `json:"message"`
}

func (s status) failed() bool {
	return strings.EqualFold(s.Status, "error") || strings.EqualFold(s.Result, "error")
}

// Rows fetches the sheet. The first row is the header.
func (c *Client) Rows(ctx context.Context) ([][]string, error) {
	var rows [][]string
	err := c.breaker.Execute(func() error {
		body, err := c.do(ctx, http.MethodGet, nil)
		if err != nil {
			return err
		}
		rows, err = decodeRows(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Append posts one row as form fields.
func (c *Client) Append(ctx context.Context, fields url.Values) error {
	return c.breaker.Execute(func() error {
		body, err := c.do(ctx, http.MethodPost, fields)
		if err != nil {
			return err
		}

		var ack status
		if err := json.Unmarshal(body, &ack); err != nil {
			return fmt.Errorf("sheets: decode append response: %w", err)
		}
		if ack.failed() {
			return fmt.Errorf("sheets: append rejected: %s", ack.Message)
		}
		return nil
	})
}

func (c *Client) State() string {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, method string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("sheets: create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("sheets: read response: %w", err)
	}
	c.logger.Debug("sheets request", "method", method, "status", resp.StatusCode, "latency", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sheets: unexpected status %d", resp.StatusCode)
	}
	return payload, nil
}

// decodeRows accepts a 2-D array of scalar cells, or an error envelope.
func decodeRows(body []byte) ([][]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("sheets: empty response")
	}

	if trimmed[0] == '{' {
		var st status
		if err := json.Unmarshal(trimmed, &st); err != nil {
			return nil, fmt.Errorf("sheets: decode response: %w", err)
		}
		if st.failed() {
			return nil, fmt.Errorf("sheets: fetch rejected: %s", st.Message)
		}
		return nil, fmt.Errorf("sheets: unexpected object response")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw [][]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("sheets: decode rows: %w", err)
	}

	rows := make([][]string, len(raw))
	for i, r := range raw {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = cellString(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}
