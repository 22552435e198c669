package policy

import (
	"fmt"
	"regexp"
	"strings"

	"promptbridge/internal/promptdetect"
)

// Mode controls how aggressively prompts are answered without a human.
type Mode string

const (
	ModeOff      Mode = "off"
	ModeSafe     Mode = "safe"
	ModeBalanced Mode = "balanced"
	ModeYolo     Mode = "yolo"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeOff:
		return ModeOff, nil
	case ModeSafe:
		return ModeSafe, nil
	case ModeBalanced:
		return ModeBalanced, nil
	case ModeYolo:
		return ModeYolo, nil
	default:
		return "", fmt.Errorf("unknown risk mode %q", raw)
	}
}

// Decision is the outcome of consulting the policy table. When Respond is
// false the prompt must go to a manual responder.
type Decision struct {
	Respond  bool
	Response string
}

var deferToManual = Decision{}

// riskTerms are whole-word markers of destructive or sensitive intent.
// A balanced-mode confirm containing any of them is never auto-approved.
var riskTerms = []string{
	"delete",
	"drop",
	"destroy",
	"wipe",
	"truncate",
	"purge",
	"force",
	"force-push",
	"hard reset",
	"production",
	"database",
	"db",
	"credential",
	"credentials",
	"secret",
	"secrets",
	"token",
	"sudo",
	"root",
}

var riskTermRe = regexp.MustCompile(`(?i)\b(` + strings.Join(riskTerms, "|") + `)\b`)

// Decide maps (mode, prompt) to an auto response, or defers to a manual
// responder. Pure decision table, no side effects.
func Decide(mode Mode, match promptdetect.Match) Decision {
	switch mode {
	case ModeSafe:
		if match.Kind == promptdetect.KindPressEnter {
			return Decision{Respond: true, Response: match.SafeResponse}
		}
		return deferToManual
	case ModeBalanced:
		switch match.Kind {
		case promptdetect.KindPressEnter:
			return Decision{Respond: true, Response: match.SafeResponse}
		case promptdetect.KindConfirm:
			if IsHighRisk(match.Text) {
				return deferToManual
			}
			return Decision{Respond: true, Response: "y"}
		default:
			return deferToManual
		}
	case ModeYolo:
		switch match.Kind {
		case promptdetect.KindPressEnter:
			return Decision{Respond: true, Response: match.SafeResponse}
		case promptdetect.KindConfirm:
			return Decision{Respond: true, Response: "y"}
		case promptdetect.KindChoice:
			return Decision{Respond: true, Response: "1"}
		}
		return deferToManual
	default:
		// off, or anything unrecognized
		return deferToManual
	}
}

// IsHighRisk reports whether prompt text names a destructive or sensitive
// operation per the risk lexicon.
func IsHighRisk(text string) bool {
	return riskTermRe.MatchString(text)
}
