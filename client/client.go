// Package client calls the wotid HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wot-id/identity/health"
	"github.com/wot-id/identity/pkg/robusthttp"

	"github.com/carlmjohnson/versioninfo"
)

// Returned for any non-success API response.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("wotid API: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("wotid API: HTTP %d: %s: %s", e.StatusCode, e.Name, e.Message)
}

type Client struct {
	HTTPClient *http.Client
	// Includes schema, hostname, and port, but no path or trailing slash. Eg: "http://localhost:8081"
	Host      string
	UserAgent string
}

// The returned client never retries: a repeated verify request would find its challenge already consumed.
func NewClient(host string) *Client {
	return &Client{
		HTTPClient: robusthttp.NewClient(robusthttp.WithMaxRetries(0)),
		Host:       strings.TrimSuffix(host, "/"),
		UserAgent:  "wotid-client/" + versioninfo.Short(),
	}
}

func (c *Client) InitiateChallenge(ctx context.Context, email string) (*InitiateChallengeResponse, error) {
	var out InitiateChallengeResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/identity/initiate-challenge", InitiateChallengeRequest{Email: email}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifySignature(ctx context.Context, did, challenge, signature string) (*VerifySignatureResponse, error) {
	var out VerifySignatureResponse
	req := VerifySignatureRequest{DID: did, Challenge: challenge, Signature: signature}
	if err := c.do(ctx, http.MethodPost, "/api/v1/identity/verify-signature", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetches the health report. An unhealthy service answers 503 with a report body; that is returned without error.
func (c *Client) Health(ctx context.Context) (*health.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, readError(resp)
	}
	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decoding health report: %w", err)
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Host+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("constructing HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wotid API request: %w", err)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body ErrorBody
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(b, &body) == nil {
		apiErr.Name = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}
