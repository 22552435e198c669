package bridge

import (
	"regexp"
	"strings"
)

// CSI/OSC/single-char escape sequences. OSC payloads end with BEL or ST.
var controlSeqRe = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)?|[@-Z\\-_])`)

// sanitizeChunk strips terminal control noise from a raw output chunk
// while preserving meaningful text. Carriage returns become line breaks
// so overwritten progress lines still land in the transcript.
func sanitizeChunk(raw string) string {
	s := controlSeqRe.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
