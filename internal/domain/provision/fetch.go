package provision

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Fetcher downloads provisioning documents
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchJSON(ctx context.Context, url string, v any) error
}

// HTTPFetcher fetches over HTTP. It never retries on its own; the
// provisioner owns the retry schedule.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher on the pooled retryablehttp transport
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	pooled := retryablehttp.NewClient()
	pooled.Logger = nil

	client := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTransport(pooled.HTTPClient.Transport)

	return &HTTPFetcher{client: client}
}

// FetchText returns the body of url
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: %s", url, resp.Status())
	}
	// raw body; ParseManifest trims each line
	return string(resp.Body()), nil
}

// FetchJSON decodes the JSON body of url into v
func (f *HTTPFetcher) FetchJSON(ctx context.Context, url string, v any) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch %s: %s", url, resp.Status())
	}
	if err := sonic.Unmarshal(resp.Body(), v); err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}
	return nil
}
