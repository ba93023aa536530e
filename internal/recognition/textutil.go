package recognition

import "strings"

// cleanTranscript normalises engine output: trims whitespace and drops the
// blank-audio marker some models emit for silence.
func cleanTranscript(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "[BLANK_AUDIO]") {
		return ""
	}
	return trimmed
}
