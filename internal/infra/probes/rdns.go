package probes

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

// ReverseDNSProbe resolves the PTR records for a target. Domain targets are
// resolved to their first address and that address's PTR records are
// returned, so the probe always answers "what name does this address map
// back to".
type ReverseDNSProbe struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewReverseDNSProbe builds the probe; a nil resolver uses the system one.
func NewReverseDNSProbe(resolver *net.Resolver, cfg RDNSConfig) *ReverseDNSProbe {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &ReverseDNSProbe{resolver: resolver, timeout: cfg.Timeout}
}

func (p *ReverseDNSProbe) ServiceType() lookup.ServiceType { return lookup.ServiceTypeReverseDNS }

func (p *ReverseDNSProbe) Run(ctx context.Context, target lookup.Target) (map[string]any, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	addr := target.Value()
	if !target.IsIP() {
		addrs, err := p.resolver.LookupHost(ctx, target.Value())
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", target.Value(), err)
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no addresses for %s", target.Value())
		}
		addr = addrs[0]
	}

	names, err := p.resolver.LookupAddr(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("reverse lookup of %s: %w", addr, err)
	}

	payload := map[string]any{"address": addr, "names": names}
	if !target.IsIP() {
		payload["resolvedFrom"] = target.Value()
	}
	return payload, nil
}
