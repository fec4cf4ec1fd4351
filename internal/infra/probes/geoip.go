package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/pkg/common"
)

var _ interface {
	ServiceType() lookup.ServiceType
	Run(ctx context.Context, target lookup.Target) (map[string]any, error)
} = (*GeoIPProbe)(nil)

// GeoIPProbe looks a target up against an HTTP geolocation provider. Calls
// are rate limited since public providers throttle aggressively and a worker
// fleet can otherwise burn through the quota in seconds.
type GeoIPProbe struct {
	client   *http.Client
	endpoint string
	limiter  *common.RateLimiter
}

// NewGeoIPProbe builds the probe from its config. A nil client falls back to
// http.DefaultClient; per-call deadlines come from the execution template's
// context.
func NewGeoIPProbe(client *http.Client, cfg GeoIPConfig) *GeoIPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeoIPProbe{
		client:   client,
		endpoint: cfg.Endpoint,
		limiter:  common.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}
}

func (p *GeoIPProbe) ServiceType() lookup.ServiceType { return lookup.ServiceTypeGeoIP }

// Run queries the provider and returns its decoded JSON document.
func (p *GeoIPProbe) Run(ctx context.Context, target lookup.Target) (map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf(p.endpoint, target.Value())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building geoip request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		p.limiter.Recovered()
	case http.StatusTooManyRequests:
		p.limiter.Throttled()
		return nil, fmt.Errorf("geoip lookup: provider throttled the request")
	default:
		return nil, fmt.Errorf("geoip lookup: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding geoip response: %w", err)
	}

	// ip-api reports lookup failures inside a 200 response.
	if status, ok := payload["status"].(string); ok && status == "fail" {
		msg, _ := payload["message"].(string)
		return nil, fmt.Errorf("geoip lookup failed: %s", msg)
	}
	return payload, nil
}
