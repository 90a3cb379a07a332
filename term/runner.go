package term

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes a classified shell command. Process spawning lives
// behind this interface so the loop can be exercised without a shell.
type Runner interface {
	Run(ctx context.Context, command string) int
}

// ShellRunner delegates to the user's login shell.
type ShellRunner struct {
	shellPath string
}

// NewShellRunner picks the shell from $SHELL, falling back to bash.
func NewShellRunner() *ShellRunner {
	shell := os.Getenv("SHELL")
	if shell == "" {
		if path, err := exec.LookPath("bash"); err == nil {
			shell = path
		} else {
			shell = "/bin/sh"
		}
	}
	return &ShellRunner{shellPath: shell}
}

// Run executes command through the shell and returns its exit code.
func (r *ShellRunner) Run(ctx context.Context, command string) int {
	shellName := filepath.Base(r.shellPath)

	var argv []string
	switch shellName {
	case "bash", "zsh", "sh":
		// Source the user's aliases so interactive habits keep working.
		wrapped := strings.Join([]string{
			"shopt -s expand_aliases 2>/dev/null",
			"[ -f ~/.bashrc ] && source ~/.bashrc",
			"[ -f ~/.bash_aliases ] && source ~/.bash_aliases",
			command,
		}, "; ")
		argv = []string{r.shellPath, "-c", wrapped}
	default:
		argv = []string{r.shellPath, "-c", command}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		return 127
	}
	return 0
}
