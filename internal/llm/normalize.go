package llm

import (
	"regexp"
	"strings"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

var (
	reFence        = regexp.MustCompile("```json|```")
	reSpaces       = regexp.MustCompile(`\s+`)
	reMissingComma = regexp.MustCompile(`([}\]])\s*([{\[])`)
)

// CleanOutput normalizes raw model output before JSON parsing: code fences
// go, escaped and real newlines go, whitespace runs collapse to one space,
// orphan backslashes are escaped and adjacent objects or arrays get the
// comma the model forgot. Applying it to its own output changes nothing.
func CleanOutput(s string) string {
	s = reFence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `\n`, "")
	s = strings.ReplaceAll(s, "\n", "")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, `\t`, " ")
	s = escapeOrphanBackslashes(s)
	s = reMissingComma.ReplaceAllString(s, "${1},${2}")
	return strings.TrimSpace(s)
}

// IsRefusal reports whether cleaned output is the model's "nothing to extract" answer.
func IsRefusal(cleaned string) bool {
	return strings.Contains(cleaned, constants.RefusalPhrase)
}

// escapeOrphanBackslashes doubles every backslash that does not start a
// valid JSON escape. Pairs are consumed left to right so an already escaped
// backslash is never touched twice.
func escapeOrphanBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		if strings.IndexByte(`"\/bfnrtu`, next) >= 0 {
			b.WriteByte(c)
			b.WriteByte(next)
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}
