package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/pkg/common"
)

// RDAPProbe fetches registration data for a target from the RDAP registry
// responsible for it, located through the IANA bootstrap cache.
type RDAPProbe struct {
	client    *http.Client
	bootstrap *BootstrapCache
	limiter   *common.RateLimiter
}

// NewRDAPProbe builds the probe around a shared bootstrap cache. The cache
// is injected rather than owned so every worker in the process shares one
// registry copy and one refresh.
func NewRDAPProbe(client *http.Client, bootstrap *BootstrapCache, cfg RDAPConfig) *RDAPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &RDAPProbe{
		client:    client,
		bootstrap: bootstrap,
		limiter:   common.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}
}

func (p *RDAPProbe) ServiceType() lookup.ServiceType { return lookup.ServiceTypeRDAP }

// Run resolves the registry endpoint for the target and queries it,
// returning the decoded RDAP document.
func (p *RDAPProbe) Run(ctx context.Context, target lookup.Target) (map[string]any, error) {
	var base string
	var path string
	var err error
	if target.IsIP() {
		base, err = p.bootstrap.EndpointForIP(ctx, target.Value())
		path = "ip/" + target.Value()
	} else {
		base, err = p.bootstrap.EndpointForDomain(ctx, target.Value())
		path = "domain/" + target.Value()
	}
	if err != nil {
		return nil, fmt.Errorf("rdap bootstrap: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	url := strings.TrimSuffix(base, "/") + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building rdap request: %w", err)
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rdap lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		p.limiter.Recovered()
	case http.StatusNotFound:
		return nil, fmt.Errorf("rdap lookup: no registration data for %s", target.Value())
	case http.StatusTooManyRequests:
		p.limiter.Throttled()
		return nil, fmt.Errorf("rdap lookup: registry throttled the request")
	default:
		return nil, fmt.Errorf("rdap lookup: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding rdap response: %w", err)
	}
	return payload, nil
}
