package models

import "testing"

func TestParseTarget(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantTyp TargetType
		wantErr bool
	}{
		{"203.0.113.5", "203.0.113.5", TargetTypeIP, false},
		{"  203.0.113.5  ", "203.0.113.5", TargetTypeIP, false},
		{"scanme.example.com", "scanme.example.com", TargetTypeDomain, false},
		{"Scanme.Example.COM", "scanme.example.com", TargetTypeDomain, false},
		{"http://scanme.example.com/path?q=1", "scanme.example.com", TargetTypeDomain, false},
		{"198.51.100.7:8080", "198.51.100.7", TargetTypeIP, false},
		{"", "", "", true},
		{"not a target", "", "", true},
		{"2001:db8::1", "", "", true}, // IPv6 unsupported
		{"999.1.1.1", "", "", true},
	}

	for _, tc := range tests {
		got, err := ParseTarget(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTarget(%q): expected error, got %v", tc.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTarget(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got.Value != tc.want || got.Type != tc.wantTyp {
			t.Errorf("ParseTarget(%q) = %v/%v, want %v/%v", tc.input, got.Value, got.Type, tc.want, tc.wantTyp)
		}
	}
}

func TestFindTargetsScanOrder(t *testing.T) {
	targets := FindTargets("please scan 203.0.113.5 and also app.example.com then 198.51.100.7")
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d: %v", len(targets), targets)
	}
	want := []string{"203.0.113.5", "app.example.com", "198.51.100.7"}
	for i, w := range want {
		if targets[i].Value != w {
			t.Errorf("target[%d] = %s, want %s", i, targets[i].Value, w)
		}
	}
}

func TestFindTargetsIgnoresVersionStrings(t *testing.T) {
	targets := FindTargets("running nginx 1.2.3 on the box")
	if len(targets) != 0 {
		t.Errorf("expected no targets in version string, got %v", targets)
	}
}

func TestFindTargetsDeduplicates(t *testing.T) {
	targets := FindTargets("scan 203.0.113.5, yes 203.0.113.5 again")
	if len(targets) != 1 {
		t.Errorf("expected 1 target after dedup, got %v", targets)
	}
}

func TestFirstTarget(t *testing.T) {
	if _, ok := FirstTarget("nothing here"); ok {
		t.Error("expected no target in plain text")
	}

	target, ok := FirstTarget("check web.example.org and 203.0.113.5")
	if !ok || target.Value != "web.example.org" {
		t.Errorf("expected first-in-scan-order web.example.org, got %v (ok=%v)", target, ok)
	}
}
