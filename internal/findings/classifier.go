package findings

import "sort"

// RankedReport groups findings by remediation priority. Within a severity
// tier findings keep their discovery order from the parser; the grouping is
// deterministic so the same input always renders the same report.
type RankedReport struct {
	// ImmediateAction holds critical findings
	ImmediateAction []Finding `json:"immediate_action"`
	// ScheduledRemediation holds high findings
	ScheduledRemediation []Finding `json:"scheduled_remediation"`
	// Informational holds everything else, severity-descending
	Informational []Finding `json:"informational"`

	CountsBySeverity map[string]int `json:"counts_by_severity"`
	Total            int            `json:"total"`
}

// remediationPolicy fills guidance for findings whose parser supplied none.
var remediationPolicy = map[string]string{
	SeverityCritical: "Take the affected service offline or restrict access immediately, then patch before re-exposing.",
	SeverityHigh:     "Schedule remediation within the current patch cycle and verify with a rescan.",
	SeverityMedium:   "Review the exposure and harden configuration where the service must stay reachable.",
	SeverityLow:      "No immediate action required; track during routine maintenance.",
	SeverityInfo:     "Informational only.",
}

// Classify ranks findings by severity and attaches remediation guidance.
// The input slice is not mutated; re-running on the same list yields the same
// report.
func Classify(in []Finding) RankedReport {
	report := RankedReport{
		CountsBySeverity: make(map[string]int),
		Total:            len(in),
	}

	ordered := make([]Finding, len(in))
	copy(ordered, in)
	for i := range ordered {
		ordered[i].Severity = NormalizeSeverity(ordered[i].Severity)
		if ordered[i].Remediation == "" {
			ordered[i].Remediation = remediationPolicy[ordered[i].Severity]
		}
	}

	// Stable: ties keep parser discovery order, no secondary re-ranking.
	sort.SliceStable(ordered, func(i, j int) bool {
		return SeverityRank(ordered[i].Severity) < SeverityRank(ordered[j].Severity)
	})

	for _, f := range ordered {
		report.CountsBySeverity[f.Severity]++
		switch f.Severity {
		case SeverityCritical:
			report.ImmediateAction = append(report.ImmediateAction, f)
		case SeverityHigh:
			report.ScheduledRemediation = append(report.ScheduledRemediation, f)
		default:
			report.Informational = append(report.Informational, f)
		}
	}
	return report
}

// HighestSeverity returns the most urgent severity present, or info for an
// empty list.
func HighestSeverity(in []Finding) string {
	best := SeverityInfo
	for _, f := range in {
		if SeverityRank(f.Severity) < SeverityRank(best) {
			best = NormalizeSeverity(f.Severity)
		}
	}
	return best
}
