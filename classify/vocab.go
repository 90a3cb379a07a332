package classify

import (
	"os"
	"regexp"
	"strings"

	"github.com/blackmesalabs/ash/errors"
	"gopkg.in/yaml.v3"
)

// Vocabulary holds the heuristic word tables the classifier matches
// against. The tables are data, not code: sites can replace any of them
// from ASH_DIR/vocab.yaml without touching the algorithm.
type Vocabulary struct {
	Triggers       []string `yaml:"triggers"`
	TriggerPhrases []string `yaml:"trigger_phrases"`
	Ambiguous      []string `yaml:"ambiguous"`
	NaturalLeading []string `yaml:"natural_leading"`

	triggers  map[string]bool
	ambiguous map[string]bool
	leading   map[string]bool
	phraseRes []*regexp.Regexp
}

// defaultVocabulary mirrors the tuned word lists the assistant ships with.
var defaultVocabulary = Vocabulary{
	Triggers: []string{
		"how", "why", "what", "when", "where", "who",
		"that", "is", "can", "will", "does", "at",
		"explain", "describe", "tell", "show", "help",
		"analyze", "interpret", "summarize", "compare",
		"count", "find", "identify", "measure", "detect",
		"decode", "please", "could", "would",
		"create", "generate", "calculate",
		"examine", "determine", "are", "you", "ash",
	},
	TriggerPhrases: []string{
		"delete file", "remove file",
		"delete files", "remove files",
		"output to", "output to file", "output to files",
		"write to", "write to file", "write to files",
		"save to", "save to file", "save as", "create file", "create files", "make file",
		"compare files", "compare file",
		"analyze file", "analyze files",
		"summarize file", "summarize files",
		"how many", "how much", "what is", "what's",
	},
	Ambiguous: []string{
		"locate", "find", "which", "compare",
		"sort", "split", "join", "write", "diff", "search",
	},
	NaturalLeading: []string{
		"the", "a", "an", "this", "that", "these", "those",
		"my", "your", "our", "their",
	},
}

// Default returns the built-in vocabulary, compiled and ready to use.
func Default() *Vocabulary {
	v := defaultVocabulary
	v.compile()
	return &v
}

// LoadVocabulary reads vocab.yaml from path, using the built-in tables for
// any section the file omits. A missing file yields the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "could not read vocabulary file %s", path)
	}

	v := defaultVocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrapf(err, "could not parse vocabulary file %s", path)
	}
	v.compile()
	return &v, nil
}

func (v *Vocabulary) compile() {
	v.triggers = toSet(v.Triggers)
	v.ambiguous = toSet(v.Ambiguous)
	v.leading = toSet(v.NaturalLeading)
	v.phraseRes = v.phraseRes[:0]
	for _, phrase := range v.TriggerPhrases {
		// Whitespace-tolerant word-boundary match on the lowered line.
		words := strings.Fields(strings.ToLower(phrase))
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		pat := `\b` + strings.Join(words, `\s+`) + `\b`
		if re, err := regexp.Compile(pat); err == nil {
			v.phraseRes = append(v.phraseRes, re)
		}
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
