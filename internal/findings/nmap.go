package findings

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// NmapParser reads quick-scan output. Nmap is asked for XML on stdout; when
// the XML is missing or truncated the parser falls back to the human-readable
// port table, since partial output from a timed-out scan is still useful.
type NmapParser struct{}

func (n *NmapParser) Tool() string { return "nmap" }

// XML structures for -oX output
type nmapRun struct {
	Hosts []nmapHost `xml:"host"`
}
type nmapHost struct {
	Addresses []nmapAddress `xml:"address"`
	Ports     nmapPorts     `xml:"ports"`
}
type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}
type nmapPorts struct {
	Ports []nmapPort `xml:"port"`
}
type nmapPort struct {
	PortID   string      `xml:"portid,attr"`
	Protocol string      `xml:"protocol,attr"`
	State    nmapState   `xml:"state"`
	Service  nmapService `xml:"service"`
}
type nmapState struct {
	State string `xml:"state,attr"`
}
type nmapService struct {
	Name    string `xml:"name,attr"`
	Product string `xml:"product,attr"`
	Version string `xml:"version,attr"`
}

func (n *NmapParser) Parse(stdout, stderr string) []Finding {
	if fs := n.parseXML(stdout); len(fs) > 0 {
		return fs
	}
	return n.parseText(stdout)
}

func (n *NmapParser) parseXML(stdout string) []Finding {
	start := strings.Index(stdout, "<nmaprun")
	if start == -1 {
		return nil
	}

	var run nmapRun
	if err := xml.Unmarshal([]byte(stdout[start:]), &run); err != nil {
		return nil
	}

	var out []Finding
	for _, host := range run.Hosts {
		addr := ""
		for _, a := range host.Addresses {
			if a.AddrType == "ipv4" {
				addr = a.Addr
				break
			}
		}
		if addr == "" && len(host.Addresses) > 0 {
			addr = host.Addresses[0].Addr
		}

		for _, port := range host.Ports.Ports {
			if port.State.State != "open" {
				continue
			}
			service := port.Service.Name
			if port.Service.Product != "" {
				service += " (" + strings.TrimSpace(port.Service.Product+" "+port.Service.Version) + ")"
			}
			out = append(out, openPortFinding(addr, port.PortID, port.Protocol, service))
		}
	}
	return out
}

// portLine matches the text port table, e.g. "22/tcp open ssh OpenSSH 8.9".
var portLine = regexp.MustCompile(`^(\d+)/(tcp|udp)\s+open\s+(\S+)(?:\s+(.*))?$`)

func (n *NmapParser) parseText(stdout string) []Finding {
	host := ""
	hostLine := regexp.MustCompile(`Nmap scan report for (\S+)`)

	var out []Finding
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := hostLine.FindStringSubmatch(line); m != nil {
			host = strings.Trim(m[1], "()")
			continue
		}
		if m := portLine.FindStringSubmatch(line); m != nil {
			service := m[3]
			if m[4] != "" {
				service += " (" + strings.TrimSpace(m[4]) + ")"
			}
			out = append(out, openPortFinding(host, m[1], m[2], service))
		}
	}
	return out
}

// Ports whose exposure is itself a risk signal, not just an observation.
var riskyPorts = map[string]string{
	"21":   SeverityHigh,   // ftp
	"23":   SeverityHigh,   // telnet
	"445":  SeverityHigh,   // smb
	"3389": SeverityHigh,   // rdp
	"22":   SeverityMedium, // ssh
	"3306": SeverityMedium, // mysql
	"5432": SeverityMedium, // postgres
	"6379": SeverityMedium, // redis
}

func openPortFinding(host, port, proto, service string) Finding {
	severity := SeverityLow
	if s, ok := riskyPorts[port]; ok {
		severity = s
	}
	endpoint := host
	if endpoint == "" {
		endpoint = "unknown"
	}
	return Finding{
		SourceTool:  "nmap",
		Severity:    severity,
		Title:       fmt.Sprintf("Open port %s/%s (%s)", port, proto, service),
		Endpoint:    fmt.Sprintf("%s:%s", endpoint, port),
		Evidence:    fmt.Sprintf("Port %s/%s is open, service: %s", port, proto, service),
		Remediation: fmt.Sprintf("Verify port %s needs to be exposed; restrict access with firewall rules otherwise.", port),
	}
}
