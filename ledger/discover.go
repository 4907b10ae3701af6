package ledger

import (
	"context"
)

// Subset of the OpenRPC document returned by `rpc.discover`.
type Discovery struct {
	OpenRPC string `json:"openrpc"`
	Info    struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"info"`
}

// Calls `rpc.discover`, which nodes serve without any state access. Used as a liveness probe.
func (c *Client) Discover(ctx context.Context) (*Discovery, error) {
	var d Discovery
	if err := c.CallInto(ctx, &d, "rpc.discover"); err != nil {
		return nil, err
	}
	return &d, nil
}
