package ipfetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/piggyclaim/piggyclaim/pkg/proxy"
)

const DefaultEndpoint = "https://icanhazip.com"

// GetIP returns the public IP as seen by endpoint when requesting through
// client. Pass a proxied client to learn the proxy's egress IP.
func GetIP(ctx context.Context, client *http.Client, endpoint string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

// ThroughProxy returns the egress IP of p. A nil p reports the direct IP.
func ThroughProxy(ctx context.Context, p *proxy.Proxy) (string, error) {
	client, err := p.HTTPClient(15 * time.Second)
	if err != nil {
		return "", err
	}
	return GetIP(ctx, client, DefaultEndpoint)
}
