package intent

import (
	"errors"
	"strings"

	"scanwarden/internal/config"
	"scanwarden/pkg/models"
)

// ErrNeedsClarification is returned when no target can be resolved from the
// request or history. The caller surfaces this as a question to the
// requester rather than guessing.
var ErrNeedsClarification = errors.New("cannot determine scan target, clarification needed")

// Action is what the requester wants done.
type Action string

const (
	ActionScan   Action = "scan"
	ActionReport Action = "report"
)

// Message is one prior conversation turn. The resolver does not care which
// chat surface produced it.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Resolution binds a request to an action and a target.
type Resolution struct {
	Action Action
	Target models.Target
	// FromHistory is set when the target came from a prior turn rather than
	// the request text.
	FromHistory bool
}

// Resolver turns free-form requests, including anaphoric follow-ups like
// "rescan it", into a bound target and action. Pure function over its inputs
// plus the configured lexicons.
type Resolver struct {
	rescanCues []string
	reportCues []string
}

// NewResolver builds a resolver from the configured lexicons.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{
		rescanCues: lowerAll(cfg.RescanLexicon),
		reportCues: lowerAll(cfg.ReportLexicon),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Resolve binds requestText (plus prior turns, newest last) to an action and
// target. Returns ErrNeedsClarification when the action needs a target and
// none can be found.
func (r *Resolver) Resolve(requestText string, history []Message) (Resolution, error) {
	action := r.detectAction(requestText)

	// An explicit token in the request always wins.
	if target, ok := models.FirstTarget(requestText); ok {
		return Resolution{Action: action, Target: target}, nil
	}

	// A repeat cue resolves the target from history: walk newest-first and
	// stop at the first message mentioning one. Within a message the first
	// token in scan order is used; this is a documented tie-break, not a
	// smart one.
	if r.matchesAny(requestText, r.rescanCues) || action == ActionReport {
		for i := len(history) - 1; i >= 0; i-- {
			if target, ok := models.FirstTarget(history[i].Text); ok {
				return Resolution{Action: action, Target: target, FromHistory: true}, nil
			}
		}
	}

	return Resolution{}, ErrNeedsClarification
}

func (r *Resolver) detectAction(text string) Action {
	if r.matchesAny(text, r.reportCues) && !r.matchesAny(text, r.rescanCues) {
		return ActionReport
	}
	return ActionScan
}

func (r *Resolver) matchesAny(text string, cues []string) bool {
	lower := strings.ToLower(text)
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
