package findings

import (
	"bufio"
	"regexp"
	"strings"
)

// PingParser reads the output of a bounded liveness probe. A dead host is a
// finding in its own right, not a parse failure.
type PingParser struct{}

func (p *PingParser) Tool() string { return "ping" }

var (
	pingHeader = regexp.MustCompile(`^PING\s+(\S+)\s+\(([\d.]+)\)`)
	pingLoss   = regexp.MustCompile(`(\d+(?:\.\d+)?)% packet loss`)
	pingRTT    = regexp.MustCompile(`= [\d.]+/([\d.]+)/[\d.]+`)
)

func (p *PingParser) Parse(stdout, stderr string) []Finding {
	host := ""
	ip := ""
	loss := ""
	rtt := ""
	replies := 0

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := pingHeader.FindStringSubmatch(line); m != nil {
			host = m[1]
			ip = m[2]
		}
		if strings.Contains(line, "bytes from") {
			replies++
		}
		if m := pingLoss.FindStringSubmatch(line); m != nil {
			loss = m[1]
		}
		if m := pingRTT.FindStringSubmatch(line); m != nil {
			rtt = m[1]
		}
	}

	endpoint := host
	if endpoint == "" {
		endpoint = ip
	}
	if endpoint == "" {
		// Pure noise or empty output: treat as no reply with no locus.
		if strings.TrimSpace(stdout) == "" && strings.TrimSpace(stderr) == "" {
			return nil
		}
		endpoint = "unknown"
	}

	if replies > 0 {
		evidence := "host replied to ICMP echo"
		if rtt != "" {
			evidence += ", avg rtt " + rtt + "ms"
		}
		if loss != "" && loss != "0" {
			evidence += ", " + loss + "% packet loss"
		}
		return []Finding{{
			SourceTool: "ping",
			Severity:   SeverityInfo,
			Title:      "Host is alive",
			Endpoint:   endpoint,
			Evidence:   evidence,
		}}
	}

	evidence := "no ICMP echo reply"
	if loss != "" {
		evidence += " (" + loss + "% packet loss)"
	}
	return []Finding{{
		SourceTool:  "ping",
		Severity:    SeverityMedium,
		Title:       "Host did not respond to liveness probe",
		Endpoint:    endpoint,
		Evidence:    evidence,
		Remediation: "Confirm the host is reachable and that ICMP is not filtered before relying on deeper scan results.",
	}}
}
