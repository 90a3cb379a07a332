// Package term runs the interactive loop: builtins, bang expansion,
// shell-vs-AI routing, and delegation to the session manager.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/blackmesalabs/ash/classify"
	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
	"github.com/blackmesalabs/ash/history"
	"github.com/blackmesalabs/ash/session"
)

// Term drives one interactive conversation.
type Term struct {
	cfg    *config.Config
	mgr    *session.Manager
	vocab  *classify.Vocabulary
	hist   *history.History
	runner Runner

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// New wires a terminal over stdin/stdout/stderr.
func New(cfg *config.Config, mgr *session.Manager, vocab *classify.Vocabulary, hist *history.History, runner Runner) *Term {
	return &Term{
		cfg:    cfg,
		mgr:    mgr,
		vocab:  vocab,
		hist:   hist,
		runner: runner,
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

var restartWords = map[string]bool{
	"restart": true, "restart session": true, "new session": true,
	"reset": true, "flush": true,
}

// Run reads lines until exit/quit or EOF. It returns once the loop ends;
// the open session, if any, is closed on the way out.
func (t *Term) Run(ctx context.Context) error {
	fmt.Fprintln(t.out, "-------------------------------------------------------------------------------")
	fmt.Fprintln(t.out, "Hi, I'm Ash, your cloud AI electrical-engineering assistant.")
	fmt.Fprintln(t.out, "Within your own shell, I interpret plain-English and analyze your EDA files.")
	fmt.Fprintln(t.out, "-------------------------------------------------------------------------------")

	if t.cfg.APIKey == "" && t.cfg.UserToken == "" &&
		t.cfg.Provider != "mock" && t.cfg.Provider != "bedrock" {
		fmt.Fprintln(t.errOut, "Warning: no API key configured; AI requests will likely fail.")
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprintf(t.out, "[ash]:%s%% ", truncateLeft(cwd(), 30))
		if !scanner.Scan() {
			fmt.Fprintln(t.out)
			break
		}
		line := scanner.Text()
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if stripped == "exit" || stripped == "quit" {
			break
		}

		// Bang expansion runs before the line is recorded, so a reference
		// can never resolve to itself.
		expanded, err := t.hist.Expand(line)
		if err != nil {
			fmt.Fprintln(t.errOut, err)
			continue
		}
		if expanded != line {
			fmt.Fprintln(t.out, expanded)
			line = expanded
			stripped = strings.TrimSpace(line)
		}
		t.hist.Add(line)

		if restartWords[stripped] {
			if err := t.mgr.Restart(ctx); err != nil {
				fmt.Fprintf(t.errOut, "Failed to restart AI session: %v\n", err)
			} else {
				fmt.Fprintln(t.out, "AI session restarted.")
			}
			continue
		}

		if stripped == "history" {
			for i, entry := range t.hist.Entries() {
				fmt.Fprintf(t.out, "%5d  %s\n", i+1, entry)
			}
			continue
		}

		if stripped == "status" {
			if !t.mgr.Active() {
				fmt.Fprintln(t.out, "AI provider not initialized. Use 'restart' to open a session.")
				continue
			}
			fmt.Fprintln(t.out, t.mgr.Status())
			continue
		}

		if strings.HasPrefix(stripped, "cd") && (stripped == "cd" || stripped[2] == ' ' || stripped[2] == '\t') {
			t.handleCd(strings.TrimSpace(stripped[2:]))
			continue
		}

		if t.handleFileCommand(ctx, stripped) {
			continue
		}

		if t.vocab.Classify(line, isExecutable) == classify.AIRequest {
			if !t.processAIRequest(ctx, line) {
				break
			}
			continue
		}

		t.runner.Run(ctx, line)
	}

	if t.mgr.Active() {
		if cost, err := t.mgr.Close(ctx); err != nil {
			fmt.Fprintf(t.errOut, "Warning: error closing session: %v\n", err)
		} else if cost != "" {
			fmt.Fprintln(t.out, cost)
		}
	}
	fmt.Fprintln(t.out, "Bye.")
	return scanner.Err()
}

// processAIRequest asks the session manager and reports the outcome.
// It returns false when the session hit the hard token limit and the
// loop should end.
func (t *Term) processAIRequest(ctx context.Context, line string) bool {
	if !t.mgr.Active() {
		if err := t.mgr.Open(ctx); err != nil {
			fmt.Fprintf(t.errOut, "AI session is not active. Cannot process AI request: %v\n", err)
			return true
		}
	}

	text, warnings, err := t.mgr.Ask(ctx, line)
	if err != nil {
		if errors.Is(err, errors.ErrOutputExists) {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		} else {
			fmt.Fprintf(t.errOut, "Error: %v\n", err)
		}
		return true
	}

	fmt.Fprintln(t.out, text)
	for _, w := range warnings {
		fmt.Fprintf(t.out, "[warning] %s\n", w)
	}
	if !t.mgr.Active() {
		// Hard limit reached; the manager already closed the session.
		return false
	}
	fmt.Fprintln(t.out, t.mgr.Status())
	return true
}

// handleFileCommand processes the list/delete session-file builtins.
// It returns true when the line was consumed.
func (t *Term) handleFileCommand(ctx context.Context, line string) bool {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false
	}

	switch strings.ToLower(tokens[0]) {
	case "delete":
		if len(tokens) < 2 {
			return false
		}
		target := tokens[1]
		if target == "file" {
			if len(tokens) < 3 {
				fmt.Fprintln(t.out, "Usage: delete file <name>")
				return true
			}
			target = tokens[2]
		}
		if target == "*" {
			files := t.mgr.Files()
			if len(files) == 0 {
				fmt.Fprintln(t.out, "No session files to delete.")
				return true
			}
			for _, f := range files {
				t.deleteSessionFile(ctx, f)
			}
			fmt.Fprintln(t.out, "Deleted all session files.")
			return true
		}
		matches := t.mgr.MatchFiles(target)
		if len(matches) == 0 {
			fmt.Fprintf(t.out, "No such file in session: %s\n", target)
			return true
		}
		for _, f := range matches {
			t.deleteSessionFile(ctx, f)
		}
		return true

	case "list":
		pattern := ""
		if len(tokens) > 1 {
			pattern = tokens[1]
			if pattern == "files" {
				pattern = "*"
			}
		}
		matches := t.mgr.MatchFiles(pattern)
		if len(matches) == 0 {
			if pattern == "" || pattern == "*" {
				fmt.Fprintln(t.out, "No session files.")
			} else {
				fmt.Fprintf(t.out, "No such file in session: %s\n", pattern)
			}
			return true
		}
		for _, f := range matches {
			fmt.Fprintln(t.out, f)
		}
		return true
	}
	return false
}

func (t *Term) deleteSessionFile(ctx context.Context, path string) {
	if err := t.mgr.DeleteFile(ctx, path); err != nil {
		fmt.Fprintf(t.errOut, "Warning: could not delete cloud file %s: %v\n", path, err)
	}
	fmt.Fprintf(t.out, "Deleted %s\n", path)
}

// handleCd changes the wrapper's own working directory so subsequent
// shell commands inherit it.
func (t *Term) handleCd(arg string) {
	// Anything after a shell separator is not part of the target.
	for _, sep := range []string{";", "&&", "||", "|", ">", "<"} {
		if i := strings.Index(arg, sep); i != -1 {
			arg = strings.TrimSpace(arg[:i])
		}
	}
	if fields := strings.Fields(arg); len(fields) > 0 {
		arg = strings.Trim(fields[0], `"'`)
	} else {
		arg = ""
	}
	target := arg
	if target == "" {
		target = "~"
	}
	target = expandPath(target)
	if err := os.Chdir(target); err != nil {
		fmt.Fprintf(t.errOut, "cd: %v\n", err)
	}
}

func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + p[1:]
		}
	}
	return os.ExpandEnv(p)
}

func cwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "?"
	}
	return wd
}

func truncateLeft(s string, max int) string {
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}

// isExecutable reports whether name resolves on PATH. Queried fresh per
// classification so the answer cannot go stale.
func isExecutable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
