package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wot-id/identity/ledger"
)

// Reports on this process itself. It is always ok while the process can run the check at all, and is critical.
func SelfCheck(name, version string) Check {
	return Check{
		Name:     name,
		Critical: true,
		Probe: func(ctx context.Context) (Status, string) {
			return StatusOK, "version " + version
		},
	}
}

// Polls `GET <baseURL>/health` of an upstream service. A JSON body with a "status" field of "degraded" (or "DEGRADED") is passed through; "UP" counts as ok.
func HTTPCheck(name, baseURL string, client *http.Client) Check {
	u := strings.TrimSuffix(baseURL, "/") + "/health"
	return Check{
		Name: name,
		Probe: func(ctx context.Context) (Status, string) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return StatusError, err.Error()
			}
			resp, err := client.Do(req)
			if err != nil {
				return StatusError, "unreachable"
			}
			defer resp.Body.Close()

			var body struct {
				Status string `json:"status"`
			}
			_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)

			if resp.StatusCode != http.StatusOK {
				return StatusError, fmt.Sprintf("HTTP status %d", resp.StatusCode)
			}
			switch strings.ToLower(body.Status) {
			case "degraded":
				return StatusDegraded, "upstream reports degraded"
			case "error", "down":
				return StatusError, "upstream reports " + strings.ToLower(body.Status)
			default:
				return StatusOK, ""
			}
		},
	}
}

// Probes a ledger node with the `rpc.discover` JSON-RPC method.
func LedgerCheck(name string, client *ledger.Client) Check {
	return Check{
		Name: name,
		Probe: func(ctx context.Context) (Status, string) {
			d, err := client.Discover(ctx)
			if err != nil {
				return StatusError, "rpc.discover failed"
			}
			if d.Info.Version != "" {
				return StatusOK, "version " + d.Info.Version
			}
			return StatusOK, ""
		},
	}
}

// Wraps a simple connectivity check, such as a Redis PING.
func PingCheck(name string, ping func(ctx context.Context) error) Check {
	return Check{
		Name: name,
		Probe: func(ctx context.Context) (Status, string) {
			if err := ping(ctx); err != nil {
				return StatusError, "ping failed"
			}
			return StatusOK, ""
		},
	}
}
