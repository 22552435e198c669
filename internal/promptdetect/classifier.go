package promptdetect

import (
	"regexp"
	"strings"
)

// windowLines is how many trailing non-empty lines of the detection tail
// form the classification window.
const windowLines = 4

var ansiSeqRe = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)?|[@-Z\\-_])`)

// Classify inspects the rolling detection tail and reports the first
// prompt shape it recognizes. Pure: the same tail always yields the same
// result.
func Classify(tail string) (Match, bool) {
	window, lastLine := detectionWindow(tail)
	if window == "" {
		return Match{}, false
	}
	display := lastLine
	if display == "" {
		display = window
	}
	for _, r := range rules {
		if r.match(window) {
			return Match{
				Kind:            r.kind,
				Text:            display,
				SafeResponse:    r.safeResponse,
				HasSafeResponse: r.hasSafeResponse,
			}, true
		}
	}
	return Match{}, false
}

// detectionWindow strips control sequences, normalizes carriage returns
// to line breaks and joins the last windowLines non-empty trimmed lines
// with single spaces.
func detectionWindow(tail string) (window, lastLine string) {
	text := ansiSeqRe.ReplaceAllString(tail, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := make([]string, 0, windowLines)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "", ""
	}
	if len(lines) > windowLines {
		lines = lines[len(lines)-windowLines:]
	}
	return strings.Join(lines, " "), lines[len(lines)-1]
}

func matchPressEnter(window string) bool {
	return pressEnterRe.MatchString(window)
}

func matchConfirm(window string) bool {
	loc := confirmVerbRe.FindStringIndex(window)
	if loc == nil {
		return false
	}
	if confirmIndicatorRe.MatchString(window[loc[1]:]) {
		return true
	}
	trimmed := strings.TrimSpace(window)
	return strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, ":")
}

func matchChoice(window string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(window))
	for _, cue := range choiceCues {
		if strings.HasSuffix(trimmed, cue) {
			return true
		}
	}
	return false
}
