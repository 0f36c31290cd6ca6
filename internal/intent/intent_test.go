package intent

import (
	"errors"
	"testing"

	"scanwarden/internal/config"
)

func newTestResolver() *Resolver {
	return NewResolver(config.NewConfig())
}

func TestResolveExplicitTarget(t *testing.T) {
	r := newTestResolver()

	res, err := r.Resolve("scan 203.0.113.5", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Target.Value != "203.0.113.5" {
		t.Errorf("target = %s, want 203.0.113.5", res.Target.Value)
	}
	if res.Action != ActionScan {
		t.Errorf("action = %s, want scan", res.Action)
	}
	if res.FromHistory {
		t.Error("explicit target should not be marked FromHistory")
	}
}

func TestResolveRescanFollowUp(t *testing.T) {
	r := newTestResolver()
	history := []Message{
		{Role: "user", Text: "scan 198.51.100.7"},
		{Role: "assistant", Text: "Started scan of 198.51.100.7"},
	}

	res, err := r.Resolve("rescan it", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Target.Value != "198.51.100.7" {
		t.Errorf("target = %s, want 198.51.100.7", res.Target.Value)
	}
	if !res.FromHistory {
		t.Error("follow-up target should be marked FromHistory")
	}
}

func TestResolveLastMentionWins(t *testing.T) {
	r := newTestResolver()
	history := []Message{
		{Role: "user", Text: "scan 192.0.2.10"},
		{Role: "assistant", Text: "done"},
		{Role: "user", Text: "now scan 198.51.100.7"},
		{Role: "assistant", Text: "done"},
	}

	res, err := r.Resolve("scan it again", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Target.Value != "198.51.100.7" {
		t.Errorf("target = %s, want most recent 198.51.100.7", res.Target.Value)
	}
}

func TestResolveFirstMatchTieBreak(t *testing.T) {
	r := newTestResolver()
	history := []Message{
		{Role: "user", Text: "compare 192.0.2.10 and 192.0.2.20"},
	}

	res, err := r.Resolve("rescan", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// First pattern match in scan order, a documented tie-break.
	if res.Target.Value != "192.0.2.10" {
		t.Errorf("target = %s, want 192.0.2.10", res.Target.Value)
	}
}

func TestResolveNeedsClarification(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve("scan something for me", nil)
	if !errors.Is(err, ErrNeedsClarification) {
		t.Errorf("expected ErrNeedsClarification, got %v", err)
	}

	// A rescan cue with target-free history still cannot resolve.
	history := []Message{{Role: "user", Text: "hello"}}
	_, err = r.Resolve("rescan it", history)
	if !errors.Is(err, ErrNeedsClarification) {
		t.Errorf("expected ErrNeedsClarification with empty history, got %v", err)
	}
}

func TestResolveNonEnglishCue(t *testing.T) {
	r := newTestResolver()
	history := []Message{{Role: "user", Text: "scan 198.51.100.7"}}

	res, err := r.Resolve("tekrar tara", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Target.Value != "198.51.100.7" {
		t.Errorf("target = %s, want 198.51.100.7", res.Target.Value)
	}
}

func TestResolveReportAction(t *testing.T) {
	r := newTestResolver()
	history := []Message{{Role: "user", Text: "scan 203.0.113.5"}}

	res, err := r.Resolve("show me the findings", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != ActionReport {
		t.Errorf("action = %s, want report", res.Action)
	}
	if res.Target.Value != "203.0.113.5" {
		t.Errorf("target = %s, want 203.0.113.5", res.Target.Value)
	}
}

func TestResolveCustomLexicon(t *testing.T) {
	cfg := config.NewConfig()
	cfg.RescanLexicon = []string{"do it once more"}
	r := NewResolver(cfg)

	history := []Message{{Role: "user", Text: "scan 192.0.2.44"}}
	res, err := r.Resolve("do it once more", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Target.Value != "192.0.2.44" {
		t.Errorf("target = %s, want 192.0.2.44", res.Target.Value)
	}

	// The default cue is gone once the lexicon is replaced.
	if _, err := r.Resolve("rescan it", history); !errors.Is(err, ErrNeedsClarification) {
		t.Errorf("expected ErrNeedsClarification for cue outside lexicon, got %v", err)
	}
}
