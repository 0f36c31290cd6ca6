package models

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// TargetType represents the type of target
type TargetType string

const (
	TargetTypeIP     TargetType = "ip"
	TargetTypeDomain TargetType = "domain"
)

// Target is a validated scan target: an IPv4 address or a domain name.
// Immutable once resolved.
type Target struct {
	Value string     `json:"value" yaml:"value"`
	Type  TargetType `json:"type" yaml:"type"`
}

func (t Target) String() string {
	return t.Value
}

// IsZero reports whether the target is unset.
func (t Target) IsZero() bool {
	return t.Value == ""
}

var (
	// ipv4Pattern matches dotted-quad tokens embedded in free text.
	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// domainPattern matches bare hostnames like scanme.example.com.
	// Requires at least one dot so single words are not mistaken for hosts.
	domainPattern = regexp.MustCompile(`\b[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)+\b`)

	domainExact = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)+$`)
)

// ParseTarget validates a single token as an IPv4 address or domain name.
func ParseTarget(input string) (Target, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Target{}, fmt.Errorf("empty target")
	}

	// Strip protocol and path if a URL was pasted
	if idx := strings.Index(input, "://"); idx != -1 {
		input = input[idx+3:]
	}
	if idx := strings.IndexAny(input, "/?"); idx != -1 {
		input = input[:idx]
	}
	// Strip port
	if host, _, err := net.SplitHostPort(input); err == nil {
		input = host
	}

	if ip := net.ParseIP(input); ip != nil {
		if ip.To4() == nil {
			return Target{}, fmt.Errorf("only IPv4 addresses are supported: %s", input)
		}
		return Target{Value: input, Type: TargetTypeIP}, nil
	}

	if domainExact.MatchString(input) {
		return Target{Value: strings.ToLower(input), Type: TargetTypeDomain}, nil
	}

	return Target{}, fmt.Errorf("not a valid IPv4 address or domain: %s", input)
}

// FindTargets extracts every IPv4/domain token from free text, in scan order.
// IPv4 matches win over domain matches covering the same span, and a token is
// reported once even if mentioned twice.
func FindTargets(text string) []Target {
	type span struct {
		start int
		value string
		typ   TargetType
	}

	var spans []span
	for _, loc := range ipv4Pattern.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		if ip := net.ParseIP(token); ip != nil && ip.To4() != nil {
			spans = append(spans, span{start: loc[0], value: token, typ: TargetTypeIP})
		}
	}

	covered := func(start, end int) bool {
		for _, s := range spans {
			if start >= s.start && end <= s.start+len(s.value) {
				return true
			}
		}
		return false
	}

	for _, loc := range domainPattern.FindAllStringIndex(text, -1) {
		if covered(loc[0], loc[1]) {
			continue
		}
		token := strings.ToLower(text[loc[0]:loc[1]])
		// Version strings like 1.2.3 match the domain pattern; require at
		// least one letter before accepting a token as a hostname.
		hasLetter := false
		for _, r := range token {
			if r >= 'a' && r <= 'z' {
				hasLetter = true
				break
			}
		}
		if !hasLetter {
			continue
		}
		spans = append(spans, span{start: loc[0], value: token, typ: TargetTypeDomain})
	}

	// Restore scan order across both pattern passes
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}

	seen := make(map[string]bool)
	var targets []Target
	for _, s := range spans {
		if seen[s.value] {
			continue
		}
		seen[s.value] = true
		targets = append(targets, Target{Value: s.value, Type: s.typ})
	}
	return targets
}

// FirstTarget returns the first IPv4/domain token in scan order, if any.
func FirstTarget(text string) (Target, bool) {
	targets := FindTargets(text)
	if len(targets) == 0 {
		return Target{}, false
	}
	return targets[0], true
}
