// Package extract pulls local file references out of natural-language
// prompts: files to upload, files the user asked to delete, and the
// output path a response should be written to.
//
// This is a best-effort lexical scanner, not a parser. It prefers missing
// a file over referencing an unintended one, which is why candidates are
// checked against the filesystem and the output target is excluded.
package extract

import (
	"os"
	"regexp"
	"strings"
)

// Role tags a FileReference with how the prompt used it.
type Role int

const (
	Input Role = iota
	Output
	Delete
)

// FileReference is an ephemeral extraction result.
type FileReference struct {
	Path string
	Role Role
}

var (
	addTrigRe = regexp.MustCompile(`(?i)\b(?:file|files|analyze|load)\b`)
	delTrigRe = regexp.MustCompile(`(?i)\b(?:delete|remove|rm)\b(?:\s+(?:file|files))?`)

	// Quoted substrings are atomic tokens; plain tokens stop at
	// whitespace and clause punctuation.
	tokenRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'|([^\s,;:!?()]+)`)

	// Matched case-insensitively on the original string; lowercasing first
	// would shift byte offsets for some non-ASCII runes.
	outputTrigRe = regexp.MustCompile(`(?i)\b(?:output|write) to\b`)
)

var outputSkipWords = map[string]bool{"file": true, "the": true, "a": true}

var refSkipWords = map[string]bool{
	"the": true, "a": true, "an": true,
	"file": true, "files": true, "and": true, "or": true,
}

// ResolveOutput scans prompt for an "output to" / "write to" clause and
// returns the resolved output path, or "" when the prompt names none.
func ResolveOutput(prompt string) string {
	loc := outputTrigRe.FindStringIndex(prompt)
	if loc == nil {
		return ""
	}
	after := strings.TrimSpace(prompt[loc[1]:])
	cleaned := strings.NewReplacer(",", " ", ";", " ", ":", " ").Replace(after)
	for _, token := range strings.Fields(cleaned) {
		if outputSkipWords[strings.ToLower(token)] {
			continue
		}
		tmp := strings.TrimRight(token, ",;:!?()[]{}")
		quoted := len(tmp) >= 2 && tmp[0] == tmp[len(tmp)-1] &&
			(tmp[0] == '\'' || tmp[0] == '"')

		// A trailing sentence period is only stripped from unquoted
		// tokens, so literal names like "report." survive quoting.
		var candidate string
		if quoted {
			candidate = tmp[1 : len(tmp)-1]
		} else {
			candidate = strings.TrimRight(token, `.,;:!?)]}'"`)
			candidate = strings.Trim(candidate, `,;:!?()[]{}'"`)
			candidate = strings.TrimSuffix(candidate, ".")
		}
		if candidate != "" {
			return ExpandPath(candidate)
		}
	}
	return ""
}

// ExtractRefs scans prompt for file references. inputs are files to make
// available to the backend, deletes are files the user asked to remove.
// Both lists are de-duplicated with first-seen order preserved. When
// mustExist is set, candidates that do not name an existing regular file
// are silently dropped.
func ExtractRefs(prompt, outputPath string, mustExist bool) (inputs, deletes []string) {
	outExpanded := ""
	if outputPath != "" {
		outExpanded = ExpandPath(outputPath)
	}

	delSpans := delTrigRe.FindAllStringIndex(prompt, -1)

	type span struct {
		start, end int
		del        bool
	}
	var spans []span

	// An add trigger inside a delete trigger's span is the delete
	// phrasing's own "file"/"files" word; delete intent shadows it.
	for _, m := range addTrigRe.FindAllStringIndex(prompt, -1) {
		shadowed := false
		for _, d := range delSpans {
			if d[0] <= m[0] && m[0] < d[1] {
				shadowed = true
				break
			}
		}
		if !shadowed {
			spans = append(spans, span{m[0], m[1], false})
		}
	}
	for _, d := range delSpans {
		spans = append(spans, span{d[0], d[1], true})
	}
	if len(spans) == 0 {
		return nil, nil
	}

	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}

	seen := map[string]bool{}
	delSeen := map[string]bool{}

	for i, sp := range spans {
		segEnd := len(prompt)
		if i+1 < len(spans) {
			segEnd = spans[i+1].start
		}
		segment := firstSentence(strings.TrimLeft(prompt[sp.end:segEnd], " \t\n"))

		for _, m := range tokenRe.FindAllStringSubmatch(segment, -1) {
			quoted := m[1] != "" || m[2] != ""
			candidate := m[1]
			if candidate == "" {
				candidate = m[2]
			}
			if candidate == "" {
				candidate = m[3]
			}

			candidate = strings.TrimRight(candidate, `,;:!?)]}'"`)
			if !quoted {
				candidate = strings.TrimSuffix(candidate, ".")
			}
			if candidate == "" || refSkipWords[strings.ToLower(strings.TrimSpace(candidate))] {
				continue
			}

			expanded := ExpandPath(candidate)
			if outExpanded != "" && expanded == outExpanded {
				continue
			}
			if mustExist && !isRegularFile(expanded) {
				continue
			}

			if sp.del {
				if !delSeen[expanded] {
					delSeen[expanded] = true
					deletes = append(deletes, expanded)
				}
			} else if !seen[expanded] {
				seen[expanded] = true
				inputs = append(inputs, expanded)
			}
		}
	}
	return inputs, deletes
}

// firstSentence truncates s at the first sentence terminator that is
// followed by whitespace.
func firstSentence(s string) string {
	for i := 0; i < len(s)-1; i++ {
		if (s[i] == '.' || s[i] == '!' || s[i] == '?') &&
			(s[i+1] == ' ' || s[i+1] == '\t' || s[i+1] == '\n') {
			return s[:i+1]
		}
	}
	return s
}

// ExpandPath expands a leading ~ and any environment references.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + p[1:]
		}
	}
	return os.ExpandEnv(p)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
