package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wot-id/identity/ledger"

	"github.com/stretchr/testify/assert"
)

func staticCheck(name string, s Status) Check {
	return Check{Name: name, Probe: func(ctx context.Context) (Status, string) { return s, "" }}
}

func TestAggregateStatus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	a := Aggregator{Daemon: "wotid", Version: "test", Checks: []Check{staticCheck("a", StatusOK), staticCheck("b", StatusOK)}}
	r := a.Run(ctx)
	assert.Equal(StatusOK, r.Status)
	assert.Equal("wotid", r.Daemon)
	assert.Len(r.Components, 2)

	a.Checks = []Check{staticCheck("a", StatusOK), staticCheck("b", StatusError)}
	assert.Equal(StatusDegraded, a.Run(ctx).Status)

	a.Checks = []Check{staticCheck("a", StatusOK), staticCheck("b", StatusDegraded)}
	assert.Equal(StatusDegraded, a.Run(ctx).Status)

	// dependency failures alone never make the service itself unhealthy
	a.Checks = []Check{staticCheck("a", StatusError), staticCheck("b", StatusError)}
	assert.Equal(StatusDegraded, a.Run(ctx).Status)

	a.Checks = []Check{SelfCheck("wotid", "test"), staticCheck("ledger", StatusError)}
	r = a.Run(ctx)
	assert.Equal(StatusDegraded, r.Status)
	assert.Equal(StatusOK, r.Components["wotid"].Status)
	assert.Equal("version test", r.Components["wotid"].Message)

	store := staticCheck("redis", StatusError)
	store.Critical = true
	a.Checks = []Check{SelfCheck("wotid", "test"), store}
	assert.Equal(StatusError, a.Run(ctx).Status)

	store = staticCheck("redis", StatusDegraded)
	store.Critical = true
	a.Checks = []Check{SelfCheck("wotid", "test"), store}
	assert.Equal(StatusDegraded, a.Run(ctx).Status)

	a.Checks = nil
	assert.Equal(StatusOK, a.Run(ctx).Status)
}

func TestCheckTimeout(t *testing.T) {
	assert := assert.New(t)

	slow := Check{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Probe: func(ctx context.Context) (Status, string) {
			<-ctx.Done()
			return StatusError, ""
		},
	}
	a := Aggregator{Checks: []Check{slow, staticCheck("fast", StatusOK)}}

	start := time.Now()
	r := a.Run(context.Background())
	assert.Less(time.Since(start), time.Second)
	assert.Equal(StatusDegraded, r.Status)
	assert.Equal(StatusError, r.Components["slow"].Status)
	assert.Contains(r.Components["slow"].Message, "timed out")
}

func TestHTTPCheck(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/up/health":
			_, _ = w.Write([]byte(`{"status": "UP"}`))
		case "/degraded/health":
			_, _ = w.Write([]byte(`{"status": "degraded"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s, _ := HTTPCheck("up", srv.URL+"/up", srv.Client()).Probe(ctx)
	assert.Equal(StatusOK, s)
	s, _ = HTTPCheck("degraded", srv.URL+"/degraded/", srv.Client()).Probe(ctx)
	assert.Equal(StatusDegraded, s)
	s, msg := HTTPCheck("down", srv.URL+"/down", srv.Client()).Probe(ctx)
	assert.Equal(StatusError, s)
	assert.Equal("HTTP status 503", msg)
}

func TestLedgerCheck(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID uint64 `json:"id"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"openrpc": "1.2.6", "info": map[string]string{"version": "1.1.0"}},
		})
	}))
	defer srv.Close()

	s, msg := LedgerCheck("ledger", ledger.NewClient(srv.URL)).Probe(context.Background())
	assert.Equal(StatusOK, s)
	assert.Equal("version 1.1.0", msg)

	srv.Close()
	s, _ = LedgerCheck("ledger", ledger.NewClient(srv.URL)).Probe(context.Background())
	assert.Equal(StatusError, s)
}

func TestPingCheck(t *testing.T) {
	assert := assert.New(t)
	s, _ := PingCheck("redis", func(ctx context.Context) error { return nil }).Probe(context.Background())
	assert.Equal(StatusOK, s)
	s, _ = PingCheck("redis", func(ctx context.Context) error { return errors.New("refused") }).Probe(context.Background())
	assert.Equal(StatusError, s)
}
