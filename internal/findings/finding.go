package findings

import "strings"

// Severity levels, ordered from most to least urgent.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

var severityRank = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// SeverityRank returns the sort rank of a severity (critical first).
// Unknown severities rank last.
func SeverityRank(severity string) int {
	if r, ok := severityRank[strings.ToLower(severity)]; ok {
		return r
	}
	return len(severityRank)
}

// NormalizeSeverity lowercases a severity signal and maps unknown values to
// info so malformed tool output never produces an unclassifiable finding.
func NormalizeSeverity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := severityRank[s]; ok {
		return s
	}
	return SeverityInfo
}

// Finding is one normalized security observation extracted from a scan
// stage's raw output. Owned by exactly one execution; immutable once created.
type Finding struct {
	SourceTool  string `json:"source_tool"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Endpoint    string `json:"endpoint"`
	VulnID      string `json:"vuln_id,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}
