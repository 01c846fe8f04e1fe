// Package backend provides the real, network-backed implementations of the
// fetch/transform/store ports.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/swifty/pixpro-worker/internal/observability"
)

// MaxImageBytes bounds how much of a response body HTTPFetcher will read,
// guarding against a misbehaving or malicious origin handing back an
// unbounded stream.
const MaxImageBytes = 32 << 20 // 32MiB

// HTTPFetcher is the "Fetch" stage collaborator: it downloads the bytes at
// originalImageUrl, honoring ctx cancellation and the deadline-bounded
// executor that wraps every pipeline run.
type HTTPFetcher struct {
	client  *http.Client
	observe *observability.IntegratedObservableClient
}

// NewHTTPFetcher builds an HTTPFetcher whose transport is instrumented with
// OpenTelemetry spans and whose calls are wrapped in an adaptive timeout,
// connection metrics, and a circuit breaker shared by every origin this
// fetcher calls.
func NewHTTPFetcher(serviceName string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		observe: observability.NewIntegratedObservableClient(
			observability.ConnectionTypeHTTP,
			observability.OperationTypeFetch,
			"image-origin",
			serviceName,
			timeout, timeout/4, timeout*2,
		),
	}
}

// Fetch downloads url's body, capped at MaxImageBytes.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.observe.ExecuteWithMetrics(ctx, "fetch", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		limited := io.LimitReader(resp.Body, MaxImageBytes+1)
		b, err := io.ReadAll(limited)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if len(b) > MaxImageBytes {
			return fmt.Errorf("response body exceeds %d bytes", MaxImageBytes)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=backend.HTTPFetcher.Fetch url=%s: %w", url, err)
	}
	return body, nil
}
