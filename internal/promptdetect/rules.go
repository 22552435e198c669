package promptdetect

import "regexp"

// rule is one ordered classification check over the detection window.
// First match wins.
type rule struct {
	kind            Kind
	match           func(window string) bool
	safeResponse    string
	hasSafeResponse bool
}

var (
	pressEnterRe = regexp.MustCompile(`(?i)press\s+(enter|return)\s+to\s+continue`)

	confirmVerbRe = regexp.MustCompile(`(?i)\b(proceed|continue|approve|confirm|are you sure|allow|execute)\b`)

	// Bracketed yes/no indicator such as (y/N), [yes/no] or (Y/n).
	confirmIndicatorRe = regexp.MustCompile(`(?i)[\[(]\s*(y(es)?\s*/\s*n(o)?|n(o)?\s*/\s*y(es)?)\s*[\])]`)
)

var choiceCues = []string{
	"enter choice",
	"select option",
	"choose option",
	"choice:",
	"choice>",
}

var rules = []rule{
	{
		kind:            KindPressEnter,
		match:           matchPressEnter,
		safeResponse:    "",
		hasSafeResponse: true,
	},
	{
		kind:  KindConfirm,
		match: matchConfirm,
	},
	{
		kind:  KindChoice,
		match: matchChoice,
	},
}
