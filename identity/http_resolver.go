package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wot-id/identity/pkg/robusthttp"
	"github.com/wot-id/identity/syntax"

	"go.opentelemetry.io/otel/attribute"
)

// Resolves DIDs through a universal-resolver style HTTP endpoint: `GET <BaseURL>/1.0/identifiers/<did>`.
type HTTPResolver struct {
	// URL method, hostname, and optional port. No trailing slash.
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

var _ Resolver = (*HTTPResolver)(nil)

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: robusthttp.NewClient(robusthttp.WithMaxRetries(0)),
		UserAgent:  "wotid",
	}
}

func (r *HTTPResolver) ResolveDID(ctx context.Context, did syntax.DID) (*Document, error) {
	ctx, span := tracer.Start(ctx, "HTTPResolver.ResolveDID")
	defer span.End()
	span.SetAttributes(attribute.String("did", did.String()))

	start := time.Now()
	doc, err := r.resolve(ctx, did)
	status := errorStatus(err)
	span.SetAttributes(attribute.String("status", status))
	didResolution.WithLabelValues("http", status).Inc()
	didResolutionDuration.WithLabelValues("http", status).Observe(time.Since(start).Seconds())
	return doc, err
}

func (r *HTTPResolver) resolve(ctx context.Context, did syntax.DID) (*Document, error) {
	u := r.BaseURL + "/1.0/identifiers/" + url.PathEscape(did.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing DID resolution request: %w", err)
	}
	req.Header.Set("Accept", `application/ld+json;profile="https://w3id.org/did-resolution", application/did+ld+json, application/json`)
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrDIDNotFound
	case resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: DID deactivated", ErrDIDNotFound)
	case resp.StatusCode == http.StatusNotImplemented:
		return nil, ErrMethodNotSupported
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP status %d", ErrResolutionTransport, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP status %d", ErrResolutionProtocol, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrResolutionTransport, err)
	}
	return parseResolution(did, body)
}
