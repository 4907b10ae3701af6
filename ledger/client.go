// Package ledger is a read-only JSON-RPC 2.0 client for ledger nodes.
//
// The ledger is treated as an opaque oracle: this package only knows how to make calls and
// classify failures, not what the methods mean.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/pkg/robusthttp"

	"golang.org/x/time/rate"
)

// Node could not be reached, timed out, or returned an HTTP server error.
var ErrTransport = errors.New("ledger node unreachable")

// Node responded, but not with a well-formed JSON-RPC 2.0 response.
var ErrProtocol = errors.New("malformed ledger response")

// Error object returned by the node for a specific call. Match with errors.As.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger RPC error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type Client struct {
	// Full URL of the node JSON-RPC endpoint, eg "https://api.testnet.iota.cafe"
	Host       string
	HTTPClient *http.Client
	// Client-side rate limit on outbound calls. May be nil.
	Limiter   *rate.Limiter
	UserAgent string
	Logger    *slog.Logger

	nextID atomic.Uint64
}

// Maximum size of a node response body
const maxResponseBytes = 4 * 1024 * 1024

// Creates a client with no retries. Timeouts are expected to come from the caller context.
func NewClient(host string) *Client {
	return &Client{
		Host:       host,
		HTTPClient: robusthttp.NewClient(robusthttp.WithMaxRetries(0), robusthttp.WithTimeout(30*time.Second)),
		UserAgent:  "wotid",
		Logger:     slog.Default().With("component", "ledger"),
	}
}

// Invokes a JSON-RPC method and returns the raw "result" value, which may be the JSON literal `null`.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %w", ErrTransport, err)
		}
	}

	id := c.nextID.Add(1)
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("constructing %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	status := metrics.StatusError
	defer func() {
		ledgerCalls.WithLabelValues(method, status).Inc()
		ledgerCallDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s: HTTP status %d", ErrTransport, method, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP status %d", ErrProtocol, method, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrTransport, method, err)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, method, err)
	}
	if out.JSONRPC != "2.0" {
		return nil, fmt.Errorf("%w: %s: unexpected jsonrpc version %q", ErrProtocol, method, out.JSONRPC)
	}
	if out.ID != id {
		return nil, fmt.Errorf("%w: %s: response id %d does not match request id %d", ErrProtocol, method, out.ID, id)
	}
	if out.Error != nil {
		status = "rpc_error"
		return nil, out.Error
	}
	if out.Result == nil {
		return nil, fmt.Errorf("%w: %s: response has neither result nor error", ErrProtocol, method)
	}

	status = metrics.StatusOK
	c.logger().Debug("ledger call", "method", method, "duration", time.Since(start))
	return out.Result, nil
}

// Like Call, but decodes the result into out.
func (c *Client) CallInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decoding result: %w", ErrProtocol, method, err)
	}
	return nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
