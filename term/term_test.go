package term

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackmesalabs/ash/classify"
	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/history"
	"github.com/blackmesalabs/ash/provider"
	"github.com/blackmesalabs/ash/session"
)

// recordingRunner captures classified shell commands instead of spawning.
type recordingRunner struct {
	commands []string
}

func (r *recordingRunner) Run(ctx context.Context, command string) int {
	r.commands = append(r.commands, command)
	return 0
}

type termFixture struct {
	term   *Term
	mock   *provider.Mock
	runner *recordingRunner
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newFixture(t *testing.T, script ...string) *termFixture {
	t.Helper()
	mock := &provider.Mock{Reply: "mock answer"}
	cfg := &config.Config{
		Dir:         t.TempDir(),
		Provider:    "mock",
		Model:       "mock-model",
		LogDir:      t.TempDir(),
		LogIdentity: "username",
	}
	mgr := session.New(cfg, func() provider.Provider { return mock })
	runner := &recordingRunner{}
	tm := New(cfg, mgr, classify.Default(), history.New(0), runner)
	tm.in = strings.NewReader(strings.Join(script, "\n") + "\n")
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	tm.out = out
	tm.errOut = errOut
	return &termFixture{term: tm, mock: mock, runner: runner, out: out, errOut: errOut}
}

func TestRunRouting(t *testing.T) {
	f := newFixture(t,
		"ls -la",
		"how many lines are in the report",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.runner.commands) != 1 || f.runner.commands[0] != "ls -la" {
		t.Errorf("shell commands = %v", f.runner.commands)
	}
	out := f.out.String()
	if !strings.Contains(out, "mock answer") {
		t.Errorf("AI answer missing from output:\n%s", out)
	}
	if !strings.Contains(out, "[status] Tokens:") {
		t.Errorf("status line missing after AI answer:\n%s", out)
	}
	if !strings.Contains(out, "Bye.") {
		t.Errorf("farewell missing:\n%s", out)
	}
}

func TestRunBangExpansion(t *testing.T) {
	f := newFixture(t,
		"ls -la",
		"!!",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.runner.commands) != 2 || f.runner.commands[1] != "ls -la" {
		t.Errorf("bang expansion should re-run the command, got %v", f.runner.commands)
	}
	// The expansion is echoed before execution.
	if !strings.Contains(f.out.String(), "ls -la\n") {
		t.Errorf("expansion not echoed:\n%s", f.out.String())
	}
}

func TestRunBangErrorNotRecorded(t *testing.T) {
	f := newFixture(t,
		"!z",
		"ls",
		"!!",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.errOut.Len() == 0 {
		t.Error("failed expansion should report an error")
	}
	// The failed reference was never recorded, so !! resolves to "ls".
	if len(f.runner.commands) != 2 || f.runner.commands[1] != "ls" {
		t.Errorf("commands = %v", f.runner.commands)
	}
}

func TestRunRestartBuiltin(t *testing.T) {
	f := newFixture(t,
		"restart",
		"flush",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Count(f.out.String(), "AI session restarted."); got != 2 {
		t.Errorf("restart confirmations = %d, want 2:\n%s", got, f.out.String())
	}
}

func TestRunHistoryBuiltin(t *testing.T) {
	f := newFixture(t,
		"ls -la",
		"history",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := f.out.String()
	if !strings.Contains(out, "1  ls -la") {
		t.Errorf("history listing missing:\n%s", out)
	}
	// The history builtin records itself.
	if !strings.Contains(out, "2  history") {
		t.Errorf("history should include the builtin line:\n%s", out)
	}
}

func TestRunStatusBuiltin(t *testing.T) {
	f := newFixture(t,
		"status",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := f.out.String()
	if !strings.Contains(out, "AI provider not initialized.") {
		t.Errorf("status before any session should say so:\n%s", out)
	}
	if strings.Contains(out, "[status]") {
		t.Errorf("no status line should print without an open session:\n%s", out)
	}
}

func TestRunFileBuiltins(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.vcd")
	if err := os.WriteFile(a, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := newFixture(t,
		"analyze file "+a,
		"list files",
		"delete file "+a,
		"list",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := f.out.String()
	if !strings.Contains(out, a+"\n") {
		t.Errorf("list should show the tracked file:\n%s", out)
	}
	if !strings.Contains(out, "Deleted "+a) {
		t.Errorf("delete confirmation missing:\n%s", out)
	}
	if !strings.Contains(out, "No session files.") {
		t.Errorf("final list should be empty:\n%s", out)
	}
}

func TestRunCd(t *testing.T) {
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	f := newFixture(t,
		"cd "+dir,
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("cwd = %q, want %q", got, dir)
	}
}

func TestRunClosesSessionOnExit(t *testing.T) {
	f := newFixture(t,
		"tell me something",
		"exit",
	)
	if err := f.term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.term.mgr.Active() {
		t.Error("session should be closed when the loop ends")
	}
}

func TestTruncateLeft(t *testing.T) {
	got := truncateLeft("/a/very/long/working/directory/path", 10)
	if len(got) != 10 || !strings.HasSuffix("/a/very/long/working/directory/path", got) {
		t.Errorf("truncateLeft = %q", got)
	}
	if got := truncateLeft("/short", 30); got != "/short" {
		t.Errorf("truncateLeft should pass short strings through, got %q", got)
	}
}
