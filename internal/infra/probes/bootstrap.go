package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// bootstrapDocument is the IANA RDAP bootstrap file shape: each service
// entry pairs a list of keys (TLDs or CIDR prefixes) with the base URLs of
// the registry serving them.
type bootstrapDocument struct {
	Version  string       `json:"version"`
	Services [][][]string `json:"services"`
}

type ipv4Entry struct {
	prefix *net.IPNet
	base   string
}

// BootstrapCache maps lookup targets to the RDAP service responsible for
// them, backed by the IANA bootstrap registries. Fetched registries are
// served from memory until the TTL lapses; the refresh is guarded by
// singleflight so concurrent workers hitting an expired cache trigger
// exactly one fetch.
type BootstrapCache struct {
	client  *http.Client
	dnsURL  string
	ipv4URL string
	ttl     time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	dns       map[string]string
	ipv4      []ipv4Entry
	fetchedAt time.Time

	// now is replaceable for TTL tests.
	now func() time.Time
}

// NewBootstrapCache builds an empty cache; the first lookup populates it.
func NewBootstrapCache(client *http.Client, cfg RDAPConfig) *BootstrapCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &BootstrapCache{
		client:  client,
		dnsURL:  cfg.BootstrapDNSURL,
		ipv4URL: cfg.BootstrapIPv4URL,
		ttl:     cfg.BootstrapTTL,
		now:     time.Now,
	}
}

// EndpointForDomain returns the RDAP base URL serving the domain's TLD.
func (c *BootstrapCache) EndpointForDomain(ctx context.Context, domain string) (string, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return "", err
	}

	labels := strings.Split(strings.TrimSuffix(strings.ToLower(domain), "."), ".")
	tld := labels[len(labels)-1]

	c.mu.RLock()
	base, ok := c.dns[tld]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no RDAP service registered for TLD %q", tld)
	}
	return base, nil
}

// EndpointForIP returns the RDAP base URL serving the address's allocation.
func (c *BootstrapCache) EndpointForIP(ctx context.Context, addr string) (string, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("not an IP address: %q", addr)
	}
	if err := c.ensureFresh(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entry := range c.ipv4 {
		if entry.prefix.Contains(ip) {
			return entry.base, nil
		}
	}
	return "", fmt.Errorf("no RDAP service registered for address %s", addr)
}

// ensureFresh refreshes the registries when the cache is empty or the TTL
// has lapsed. A stale cache keeps serving while a refresh attempt fails,
// since slightly outdated bootstrap data beats an unavailable probe.
func (c *BootstrapCache) ensureFresh(ctx context.Context) error {
	c.mu.RLock()
	fetchedAt := c.fetchedAt
	populated := c.dns != nil
	c.mu.RUnlock()

	fresh := populated && c.now().Sub(fetchedAt) < c.ttl
	if fresh {
		return nil
	}

	_, err, _ := c.group.Do("bootstrap", func() (any, error) {
		// Another caller may have refreshed while this one waited on the
		// singleflight lock.
		c.mu.RLock()
		refreshed := c.dns != nil && c.now().Sub(c.fetchedAt) < c.ttl
		c.mu.RUnlock()
		if refreshed {
			return nil, nil
		}
		return nil, c.refresh(ctx)
	})
	if err != nil && populated {
		return nil
	}
	return err
}

func (c *BootstrapCache) refresh(ctx context.Context) error {
	dns, err := c.fetchDocument(ctx, c.dnsURL)
	if err != nil {
		return fmt.Errorf("fetching RDAP DNS bootstrap: %w", err)
	}
	ipv4Doc, err := c.fetchDocument(ctx, c.ipv4URL)
	if err != nil {
		return fmt.Errorf("fetching RDAP IPv4 bootstrap: %w", err)
	}

	dnsMap := make(map[string]string)
	for _, svc := range dns.Services {
		if len(svc) < 2 || len(svc[1]) == 0 {
			continue
		}
		base := svc[1][0]
		for _, tld := range svc[0] {
			dnsMap[strings.ToLower(tld)] = base
		}
	}

	var ipv4Entries []ipv4Entry
	for _, svc := range ipv4Doc.Services {
		if len(svc) < 2 || len(svc[1]) == 0 {
			continue
		}
		base := svc[1][0]
		for _, cidr := range svc[0] {
			_, prefix, err := net.ParseCIDR(cidr)
			if err != nil {
				continue
			}
			ipv4Entries = append(ipv4Entries, ipv4Entry{prefix: prefix, base: base})
		}
	}

	c.mu.Lock()
	c.dns = dnsMap
	c.ipv4 = ipv4Entries
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

func (c *BootstrapCache) fetchDocument(ctx context.Context, url string) (*bootstrapDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var doc bootstrapDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding bootstrap document: %w", err)
	}
	return &doc, nil
}
