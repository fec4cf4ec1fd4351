package probes

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

// PingProbe measures reachability by timing a TCP connection to the target.
// ICMP echo needs raw sockets and therefore privileges the worker fleet does
// not have, so a TCP dial against a small set of common ports stands in; the
// connect round trip approximates the network RTT.
type PingProbe struct {
	dialer      *net.Dialer
	ports       []string
	dialTimeout time.Duration
}

// NewPingProbe builds the probe from its config.
func NewPingProbe(cfg PingConfig) *PingProbe {
	return &PingProbe{
		dialer:      &net.Dialer{},
		ports:       cfg.Ports,
		dialTimeout: cfg.DialTimeout,
	}
}

func (p *PingProbe) ServiceType() lookup.ServiceType { return lookup.ServiceTypePing }

// Run tries each configured port in order and reports the first successful
// connection's RTT. A target that accepts no connection is a successful
// probe with reachable=false: unreachability is the measurement, not an
// execution failure.
func (p *PingProbe) Run(ctx context.Context, target lookup.Target) (map[string]any, error) {
	if len(p.ports) == 0 {
		return nil, fmt.Errorf("ping probe has no ports configured")
	}

	var lastErr error
	for _, port := range p.ports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dialCtx := ctx
		if p.dialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, p.dialTimeout)
			defer cancel()
		}

		start := time.Now()
		conn, err := p.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(target.Value(), port))
		rtt := time.Since(start)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()

		return map[string]any{
			"reachable": true,
			"port":      port,
			"rttMs":     float64(rtt.Microseconds()) / 1000.0,
		}, nil
	}

	// Context cancellation is an execution failure, not a measurement.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload := map[string]any{"reachable": false}
	if lastErr != nil {
		payload["lastError"] = lastErr.Error()
	}
	return payload, nil
}
