// Package classify decides whether an input line is an OS command or a
// natural-language request for the AI backend. Classification is lexical
// and deterministic; it never errors and never touches the session.
package classify

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Classification is the routing decision for one input line.
type Classification int

const (
	// ShellCommand routes the line to the OS shell.
	ShellCommand Classification = iota
	// AIRequest routes the line to the AI provider.
	AIRequest
)

func (c Classification) String() string {
	if c == AIRequest {
		return "ai"
	}
	return "shell"
}

const tokenPunct = ".,;:!?\"'()[]{}"

// Classify routes a raw line. isExecutable reports whether a name resolves
// to an executable on PATH; it is consulted fresh on every call so the
// answer cannot go stale mid-session.
func (v *Vocabulary) Classify(line string, isExecutable func(string) bool) Classification {
	tokens := tokenize(line)
	if len(tokens) == 0 {
		return ShellCommand
	}
	first := tokens[0]

	// PATH-executable short circuit: ordinary commands win outright unless
	// the word doubles as a natural-language verb.
	if isExecutable(first) && !v.ambiguous[first] {
		return ShellCommand
	}

	// An ambiguous verb in command position defers to the shape-based
	// tie-break below even when it doubles as a trigger word.
	for i, t := range tokens {
		if i == 0 && v.ambiguous[t] {
			continue
		}
		if v.triggers[t] {
			return AIRequest
		}
	}

	lower := strings.ToLower(line)
	for _, re := range v.phraseRes {
		if re.MatchString(lower) {
			return AIRequest
		}
	}

	if v.ambiguous[first] {
		second := ""
		if len(tokens) > 1 {
			second = tokens[1]
		}
		if v.leading[second] {
			return AIRequest
		}
		if looksLikeFlag(second) || looksLikePath(second) ||
			looksLikeGlob(second) || looksLikeFilename(second) {
			return ShellCommand
		}
		return AIRequest
	}

	return ShellCommand
}

// tokenize splits on whitespace, strips surrounding punctuation, and
// lowercases each token for matching.
func tokenize(line string) []string {
	fields := strings.Fields(strings.ToLower(line))
	tokens := fields[:0]
	for _, f := range fields {
		if t := strings.Trim(f, tokenPunct); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func looksLikeFlag(tok string) bool {
	return strings.HasPrefix(tok, "-")
}

func looksLikePath(tok string) bool {
	return strings.HasPrefix(tok, "/") ||
		strings.HasPrefix(tok, "./") ||
		strings.HasPrefix(tok, "../")
}

func looksLikeGlob(tok string) bool {
	if !strings.ContainsAny(tok, "*?[") {
		return false
	}
	return doublestar.ValidatePattern(tok)
}

func looksLikeFilename(tok string) bool {
	return strings.Contains(tok, ".") && !strings.HasPrefix(tok, ".")
}
