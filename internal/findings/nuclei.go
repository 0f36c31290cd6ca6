package findings

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"
)

// NucleiParser reads full-scan output. Nuclei emits one JSON object per
// matched template when run with -jsonl; banner and progress lines are
// interleaved on real runs, so every line is tried independently and
// non-JSON lines fall through to the bracketed text format.
type NucleiParser struct{}

func (n *NucleiParser) Tool() string { return "nuclei" }

type nucleiRecord struct {
	TemplateID string `json:"template-id"`
	MatchedAt  string `json:"matched-at"`
	Host       string `json:"host"`
	Info       struct {
		Name           string `json:"name"`
		Severity       string `json:"severity"`
		Description    string `json:"description"`
		Remediation    string `json:"remediation"`
		Classification struct {
			CVEID interface{} `json:"cve-id"`
		} `json:"classification"`
	} `json:"info"`
}

// textLine matches nuclei's default output: [template-id] [protocol] [severity] target
var textLine = regexp.MustCompile(`^\[([^\]]+)\]\s+\[([^\]]+)\]\s+\[([^\]]+)\]\s+(\S+)(?:\s+(.*))?$`)

func (n *NucleiParser) Parse(stdout, stderr string) []Finding {
	var out []Finding

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "{") {
			if f, ok := parseNucleiJSON(line); ok {
				out = append(out, f)
			}
			continue
		}

		if f, ok := parseNucleiText(line); ok {
			out = append(out, f)
		}
	}
	return out
}

func parseNucleiJSON(line string) (Finding, bool) {
	var rec nucleiRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return Finding{}, false
	}
	if rec.TemplateID == "" {
		return Finding{}, false
	}

	endpoint := rec.MatchedAt
	if endpoint == "" {
		endpoint = rec.Host
	}

	title := rec.Info.Name
	if title == "" {
		title = rec.TemplateID
	}

	return Finding{
		SourceTool:  "nuclei",
		Severity:    NormalizeSeverity(rec.Info.Severity),
		Title:       title,
		Endpoint:    endpoint,
		VulnID:      vulnID(rec),
		Evidence:    rec.Info.Description,
		Remediation: rec.Info.Remediation,
	}, true
}

// vulnID extracts a known-vulnerability identifier. The classification field
// is a string or a list depending on the template; the template id itself is
// used when it already names a CVE.
func vulnID(rec nucleiRecord) string {
	switch v := rec.Info.Classification.CVEID.(type) {
	case string:
		return strings.ToUpper(v)
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return strings.ToUpper(s)
			}
		}
	}
	if strings.HasPrefix(strings.ToLower(rec.TemplateID), "cve-") {
		return strings.ToUpper(rec.TemplateID)
	}
	return ""
}

func parseNucleiText(line string) (Finding, bool) {
	m := textLine.FindStringSubmatch(line)
	if m == nil {
		return Finding{}, false
	}

	templateID := m[1]
	id := ""
	if strings.HasPrefix(strings.ToLower(templateID), "cve-") {
		id = strings.ToUpper(templateID)
	}

	return Finding{
		SourceTool: "nuclei",
		Severity:   NormalizeSeverity(m[3]),
		Title:      templateID,
		Endpoint:   m[4],
		VulnID:     id,
		Evidence:   strings.TrimSpace(m[5]),
	}, true
}
