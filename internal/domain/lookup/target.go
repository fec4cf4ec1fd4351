package lookup

import (
	"fmt"
	"net"
	"strings"
)

// TargetKind distinguishes the two forms a lookup target can take.
type TargetKind string

const (
	// TargetKindIP marks a literal IPv4 or IPv6 address.
	TargetKindIP TargetKind = "IP"

	// TargetKindDomain marks a DNS domain name.
	TargetKindDomain TargetKind = "DOMAIN"
)

func (k TargetKind) String() string { return string(k) }

// ParseTargetKind converts a string to a TargetKind.
func ParseTargetKind(s string) (TargetKind, error) {
	switch TargetKind(strings.ToUpper(s)) {
	case TargetKindIP:
		return TargetKindIP, nil
	case TargetKindDomain:
		return TargetKindDomain, nil
	default:
		return "", fmt.Errorf("unknown target kind: %q", s)
	}
}

// Target is the validated subject of a lookup job: an IP literal or a
// domain name, together with which of the two it is.
type Target struct {
	value string
	kind  TargetKind
}

// NewTarget validates the raw target string, classifies it as an IP literal
// or domain name, and returns the resulting Target. Malformed targets are
// rejected here, before any job is created.
func NewTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("target cannot be empty")
	}

	if ip := net.ParseIP(raw); ip != nil {
		return Target{value: raw, kind: TargetKindIP}, nil
	}

	if err := validateDomain(raw); err != nil {
		return Target{}, fmt.Errorf("target %q is neither an IP literal nor a valid domain: %w", raw, err)
	}
	return Target{value: strings.ToLower(raw), kind: TargetKindDomain}, nil
}

// ReconstructTarget creates a Target from stored fields, bypassing
// validation. This should only be used when loading from a store or
// deserializing a message that was validated at submission.
func ReconstructTarget(value string, kind TargetKind) Target {
	return Target{value: value, kind: kind}
}

// Value returns the raw target string.
func (t Target) Value() string { return t.value }

// Kind returns whether the target is an IP literal or a domain name.
func (t Target) Kind() TargetKind { return t.kind }

// IsIP reports whether the target is an IP literal.
func (t Target) IsIP() bool { return t.kind == TargetKindIP }

func validateDomain(s string) error {
	if len(s) > 253 {
		return fmt.Errorf("domain exceeds 253 characters")
	}
	labels := strings.Split(strings.TrimSuffix(s, "."), ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain needs at least two labels")
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("label %q length out of range", label)
		}
		for i, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '-':
				if i == 0 || i == len(label)-1 {
					return fmt.Errorf("label %q cannot start or end with a hyphen", label)
				}
			default:
				return fmt.Errorf("label %q contains invalid character %q", label, r)
			}
		}
	}
	return nil
}
