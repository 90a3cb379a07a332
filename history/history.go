// Package history keeps the bounded log of submitted input lines and
// resolves bang-style back-references against it.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blackmesalabs/ash/errors"
)

// DefaultLimit bounds how many entries are retained and persisted.
const DefaultLimit = 5000

// History is an ordered, capacity-bounded list of literal input lines.
// Indices are 1-based; the oldest entries are evicted past the limit.
type History struct {
	entries []string
	limit   int
}

// New returns an empty history holding at most limit entries.
// A non-positive limit falls back to DefaultLimit.
func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{limit: limit}
}

// Add records a submitted line. Blank lines are not recorded.
func (h *History) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the retained lines, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Expand resolves a bang back-reference against the history:
//
//	!!       most recent entry
//	!-N      Nth most recent entry
//	!N       absolute 1-based index
//	!prefix  most recent entry starting with prefix
//
// A line with no leading `!` is returned unchanged. Expansion against an
// empty history always fails.
func (h *History) Expand(line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "!") || len(trimmed) < 2 {
		return line, nil
	}
	tok := strings.TrimSpace(trimmed[1:])

	if len(h.entries) == 0 {
		return "", fmt.Errorf("%w: history is empty", errors.ErrEventNotFound)
	}

	if tok == "!" {
		return h.entries[len(h.entries)-1], nil
	}

	if strings.HasPrefix(tok, "-") {
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n <= 0 || n > len(h.entries) {
			return "", fmt.Errorf("%w: !%s", errors.ErrBadEventSpec, tok)
		}
		return h.entries[len(h.entries)-n], nil
	}

	if idx, err := strconv.Atoi(tok); err == nil {
		if idx <= 0 || idx > len(h.entries) {
			return "", fmt.Errorf("%w: !%s", errors.ErrEventNotFound, tok)
		}
		return h.entries[idx-1], nil
	}

	for i := len(h.entries) - 1; i >= 0; i-- {
		if strings.HasPrefix(h.entries[i], tok) {
			return h.entries[i], nil
		}
	}
	return "", fmt.Errorf("%w: !%s", errors.ErrEventNotFound, tok)
}

// Load reads persisted history from path, dropping anything beyond the
// capacity. A missing file leaves the history empty.
func (h *History) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "could not read history file %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		h.Add(sc.Text())
	}
	return sc.Err()
}

// Save writes the retained entries to path, one per line.
func (h *History) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "could not create history directory")
		}
	}
	var sb strings.Builder
	for _, e := range h.entries {
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
