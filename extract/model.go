package extract

import (
	"regexp"
	"strings"
)

// Matched on the original string for the same offset-safety reason as the
// output trigger.
var modelOverrideRe = regexp.MustCompile(`(?i)\bmodel\s+(\S+)`)

// ModelOverride pulls a "model <name>" phrase out of a prompt, returning
// the requested model and the prompt with the phrase removed. When no
// override is present the prompt comes back unchanged with model == "".
func ModelOverride(prompt string) (model, cleaned string) {
	m := modelOverrideRe.FindStringSubmatchIndex(prompt)
	if m == nil {
		return "", prompt
	}
	model = strings.ToLower(prompt[m[2]:m[3]])

	cleaned = strings.TrimSpace(prompt[:m[0]] + prompt[m[3]:])
	for strings.Contains(cleaned, "  ") {
		cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	}
	return model, cleaned
}
