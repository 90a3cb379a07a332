// Package session owns the conversational session: the provider handle,
// the cumulative token counters with their escalating threshold policy,
// and the set of files the session has shared with the backend.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
	"github.com/blackmesalabs/ash/extract"
	"github.com/blackmesalabs/ash/provider"
	"github.com/blackmesalabs/ash/usagelog"
	"github.com/bmatcuk/doublestar/v4"
)

// Cumulative per-session token thresholds.
const (
	TokenWarn       = 2_500_000
	TokenStrongWarn = 4_000_000
	TokenLimit      = 5_000_000
)

// State is the escalating warning stage derived from cumulative usage.
// Transitions only move forward within a session; only a full session
// reset returns to StateNormal.
type State int

const (
	StateNormal State = iota
	StateWarned
	StateStronglyWarned
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateWarned:
		return "warned"
	case StateStronglyWarned:
		return "strongly-warned"
	case StateTerminated:
		return "terminated"
	default:
		return "normal"
	}
}

// Counters is the session's token accounting. Total always equals
// Upload + Download.
type Counters struct {
	Upload   int64
	Download int64
	Total    int64
}

// Factory builds a fresh provider adapter for each opened session.
type Factory func() provider.Provider

// Manager orchestrates one conversational session end to end.
type Manager struct {
	cfg     *config.Config
	factory Factory

	prov         provider.Provider
	counters     Counters
	state        State
	files        []string
	start        time.Time
	lastResponse time.Duration
}

// New returns a manager with no open session.
func New(cfg *config.Config, factory Factory) *Manager {
	return &Manager{cfg: cfg, factory: factory}
}

// Active reports whether a session is open.
func (m *Manager) Active() bool { return m.prov != nil }

// Counters returns the current token accounting.
func (m *Manager) Counters() Counters { return m.counters }

// ThresholdState returns the current warning stage.
func (m *Manager) ThresholdState() State { return m.state }

// LastResponse returns the wall-clock duration of the most recent
// provider round-trip.
func (m *Manager) LastResponse() time.Duration { return m.lastResponse }

// Open starts a fresh session: new provider, zeroed counters, empty file
// set, state back to normal.
func (m *Manager) Open(ctx context.Context) error {
	prov := m.factory()
	if err := prov.Open(ctx); err != nil {
		return errors.Wrapf(err, "could not open AI session")
	}
	m.prov = prov
	m.reset()
	m.start = time.Now()
	return nil
}

// Close ends the session: usage is logged, the provider is detached, and
// all session state is reset. The returned string is the estimated cost
// report, "" when the site publishes no rates.
func (m *Manager) Close(ctx context.Context) (string, error) {
	if m.prov == nil {
		return "", nil
	}

	identity := m.cfg.Identity()
	engine := m.cfg.Provider + ":" + m.cfg.Model
	queryLog := filepath.Join(m.cfg.LogDir, "usage_queries.log")
	totalsLog := filepath.Join(m.cfg.LogDir, "usage_totals.log")
	if err := usagelog.AppendQuery(queryLog, identity, engine, m.cfg.APIKey,
		m.counters.Upload, m.counters.Download); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := usagelog.UpdateTotals(totalsLog, identity, engine, m.cfg.APIKey,
		m.counters.Upload, m.counters.Download); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cost := usagelog.SessionCost(m.cfg.Dir, m.cfg.Model, m.counters.Upload, m.counters.Download)

	err := m.prov.Close(ctx)
	m.prov = nil
	m.reset()
	return cost, err
}

// Restart closes any open session and opens a new one.
func (m *Manager) Restart(ctx context.Context) error {
	if _, err := m.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error closing previous session: %v\n", err)
	}
	return m.Open(ctx)
}

func (m *Manager) reset() {
	m.counters = Counters{}
	m.state = StateNormal
	m.files = nil
	m.lastResponse = 0
}

// Ask routes one natural-language request through the provider and
// applies the token threshold policy to the result. It returns the
// user-visible text and any threshold warnings. The only blocking errors
// are an output-path collision and an unopened session; provider failures
// come back as text with zero usage.
func (m *Manager) Ask(ctx context.Context, prompt string) (string, []string, error) {
	if m.prov == nil {
		return "", nil, errors.New("AI provider not initialized; use 'restart' to open a session")
	}

	outputPath := extract.ResolveOutput(prompt)
	if outputPath != "" {
		if _, err := os.Stat(outputPath); err == nil {
			return "", nil, fmt.Errorf("%w: '%s'. I'm not allowed to delete user files, you'll need to do that yourself",
				errors.ErrOutputExists, outputPath)
		}
	}

	inputs, deletes := extract.ExtractRefs(prompt, outputPath, true)

	custom := prompt
	if model, cleaned := extract.ModelOverride(custom); model != "" {
		if ov, ok := m.prov.(provider.ModelOverrider); ok {
			ov.SetModel(model)
			custom = cleaned
		}
	}
	if m.cfg.UserPrompt != "" {
		custom = m.cfg.UserPrompt + "\n" + custom
	}
	// Advisory counter-prompt: the extractor already routed these paths to
	// the delete list; tell the backend not to act on the phrasing too.
	var ignore strings.Builder
	for _, path := range deletes {
		fmt.Fprintf(&ignore, "Ignore the request to delete file %s .\n", path)
	}
	custom = ignore.String() + custom

	began := time.Now()
	res := m.prov.SendMessage(ctx, custom, m.cfg.SitePrompt(), inputs, deletes)
	m.lastResponse = time.Since(began)

	m.dropFiles(deletes)
	if res.Err == nil {
		m.trackFiles(inputs)
	}

	// Backends may report a grand total that disagrees with the parts
	// (reasoning tokens and the like); the session invariant is
	// Total == Upload + Download, so derive it.
	m.counters.Upload += res.Usage.Upload
	m.counters.Download += res.Usage.Download
	m.counters.Total = m.counters.Upload + m.counters.Download

	warnings := m.applyThresholds()
	if m.state == StateTerminated {
		if cost, err := m.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing session: %v\n", err)
		} else if cost != "" {
			fmt.Println(cost)
		}
		text := res.Text
		if text != "" {
			text += "\n"
		}
		text += "AI session terminated due to excessive token usage. Please use 'restart' for a new session."
		return text, warnings, nil
	}

	if outputPath != "" && res.Err == nil {
		created, err := m.writeOutput(outputPath, res.Text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to %s: %v\n", outputPath, err)
			return res.Text, warnings, nil
		}
		return created, warnings, nil
	}
	return res.Text, warnings, nil
}

// applyThresholds advances the warning state machine after a round-trip.
// The state never regresses; re-crossing a threshold re-emits its warning.
func (m *Manager) applyThresholds() []string {
	total := m.counters.Total
	switch {
	case total >= TokenLimit:
		m.state = StateTerminated
		return []string{
			fmt.Sprintf("CRITICAL: Total token usage (%s) has exceeded the absolute limit (%s).",
				groupThousands(total), groupThousands(TokenLimit)),
			"The AI session will be automatically closed to prevent runaway costs/instability.",
			"Please consider using 'flush' or 'restart' to start a new session.",
		}
	case total >= TokenStrongWarn:
		if m.state < StateStronglyWarned {
			m.state = StateStronglyWarned
		}
		return []string{
			fmt.Sprintf("STRONG WARNING: Total token usage (%s) is approaching the limit (%s).",
				groupThousands(total), groupThousands(TokenLimit)),
			"Consider using 'flush' or 'restart' to clear the session history and start fresh.",
		}
	case total >= TokenWarn:
		if m.state < StateWarned {
			m.state = StateWarned
		}
		return []string{
			fmt.Sprintf("WARNING: Total token usage (%s) is moderately high.", groupThousands(total)),
			"Long conversation histories may degrade performance or incur higher costs. Use 'flush' to clear.",
		}
	}
	return nil
}

// writeOutput writes the response to path, refusing to overwrite.
func (m *Manager) writeOutput(path, text string) (string, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %q", errors.ErrOutputExists, path)
		}
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(text + "\n"); err != nil {
		return "", err
	}

	size := "unknown size"
	if info, err := os.Stat(path); err == nil {
		size = fmt.Sprintf("%.1f MB", float64(info.Size())/(1024*1024))
	}
	return fmt.Sprintf("Created %s (%s)", path, size), nil
}

func (m *Manager) trackFiles(paths []string) {
	for _, p := range paths {
		found := false
		for _, f := range m.files {
			if f == p {
				found = true
				break
			}
		}
		if !found {
			m.files = append(m.files, p)
		}
	}
}

func (m *Manager) dropFiles(paths []string) {
	if len(paths) == 0 {
		return
	}
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}
	kept := m.files[:0]
	for _, f := range m.files {
		if !drop[f] {
			kept = append(kept, f)
		}
	}
	m.files = kept
}

// Files returns the tracked session file paths in first-tracked order.
func (m *Manager) Files() []string {
	out := make([]string, len(m.files))
	copy(out, m.files)
	return out
}

// MatchFiles returns the tracked files matching pattern: "*" or "" match
// everything, otherwise a glob match against the basename or a suffix
// match against the full path.
func (m *Manager) MatchFiles(pattern string) []string {
	if pattern == "" || pattern == "*" {
		return m.Files()
	}
	var out []string
	for _, f := range m.files {
		if ok, err := doublestar.Match(pattern, filepath.Base(f)); err == nil && ok {
			out = append(out, f)
			continue
		}
		if strings.HasSuffix(f, pattern) {
			out = append(out, f)
		}
	}
	return out
}

// DeleteFile removes a tracked file from the session and asks the
// provider to drop its remote counterpart.
func (m *Manager) DeleteFile(ctx context.Context, localPath string) error {
	m.dropFiles([]string{localPath})
	if m.prov == nil {
		return nil
	}
	return m.prov.DeleteFile(ctx, localPath)
}

// Status renders the one-line session status.
func (m *Manager) Status() string {
	var totalSize int64
	for _, f := range m.files {
		if info, err := os.Stat(f); err == nil {
			totalSize += info.Size()
		}
	}
	respTime := "N/A"
	if m.lastResponse > 0 {
		respTime = fmt.Sprintf("%.2fs", m.lastResponse.Seconds())
	}
	return fmt.Sprintf("[status] Tokens: %s | Files: %d (%s) | Time: %s",
		formatCount(m.counters.Total, ""), len(m.files), formatCount(totalSize, "B"), respTime)
}

// formatCount folds a count into K/M/G/T/P units.
func formatCount(value int64, unit string) string {
	if value == 0 {
		return "0" + unit
	}
	units := []string{"", "K", "M", "G", "T", "P"}
	v := float64(value)
	idx := 0
	for v >= 1000 && idx < len(units)-1 {
		v /= 1000
		idx++
	}
	return fmt.Sprintf("%d%s%s", int64(v), units[idx], unit)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
