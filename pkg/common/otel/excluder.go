package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// endpointExcluder stops certain endpoints (health and readiness probes)
// from being sampled so they don't pollute the trace backend.
type endpointExcluder struct {
	endpoints   map[string]struct{}
	probability float64
	sampler     sdktrace.Sampler
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{
		endpoints:   endpoints,
		probability: probability,
		sampler:     sdktrace.TraceIDRatioBased(probability),
	}
}

// ShouldSample implements the sdktrace.Sampler interface. It excludes the
// configured endpoints and applies ratio sampling to everything else.
func (e endpointExcluder) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for i := range params.Attributes {
		if params.Attributes[i].Key == "http.target" {
			if _, exists := e.endpoints[params.Attributes[i].Value.AsString()]; exists {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}

	return e.sampler.ShouldSample(params)
}

// Description implements the sdktrace.Sampler interface.
func (e endpointExcluder) Description() string {
	return "customSampler"
}
