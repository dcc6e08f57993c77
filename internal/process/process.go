// Package process runs external test runner commands and captures their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Command describes one runner invocation.
type Command struct {
	Executable string
	Args       []string
	Dir        string
	Env        map[string]string
}

// Output is the captured result of a finished process.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Empty reports whether the process wrote nothing at all.
func (o Output) Empty() bool {
	return o.Stdout == "" && o.Stderr == ""
}

// ExitError is returned when the process ran but exited non-zero. The output
// is still available so callers can decide the verdict from it.
type ExitError struct {
	Output Output
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Output.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// OutputOf returns the output carried by err, if any.
func OutputOf(err error) (Output, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Output, true
	}
	return Output{}, false
}

// Line renders the command as a single shell command line.
func (c Command) Line() string {
	quote := quotePOSIX
	prefix := ""
	if runtime.GOOS == "windows" {
		quote = quotePowerShell
		// PowerShell needs the call operator to run a quoted path.
		prefix = "& "
	}

	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Executable))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return prefix + strings.Join(parts, " ")
}

// Run executes the command through the platform shell, buffering stdout and
// stderr until it exits. Output is not streamed.
func Run(ctx context.Context, c Command) (Output, error) {
	if c.Executable == "" {
		return Output{}, errors.New("no executable configured")
	}

	cmd := buildShellCommand(ctx, c.Line())
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(os.Environ(), c.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, &ExitError{Output: out, Err: err}
	}
	return out, fmt.Errorf("failed to start %s: %w", c.Executable, err)
}

// buildEnv layers extra variables over the inherited environment. Later
// entries win, so extras are appended in sorted order for stable results.
func buildEnv(environ []string, extra map[string]string) []string {
	env := make([]string, 0, len(environ)+len(extra))
	env = append(env, environ...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func buildShellCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return buildWindowsShellCommand(ctx, cmdStr)
	}
	return exec.CommandContext(ctx, "sh", "-c", cmdStr)
}

// buildWindowsShellCommand uses the full PowerShell path so a shim on PATH
// cannot intercept it.
func buildWindowsShellCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	systemRoot := os.Getenv("SYSTEMROOT")
	if systemRoot == "" {
		systemRoot = `C:\Windows`
	}
	powershellPath := filepath.Join(systemRoot, "System32", "WindowsPowerShell", "v1.0", "powershell.exe")
	return exec.CommandContext(ctx, powershellPath, "-NoProfile", "-NonInteractive", "-Command", cmdStr)
}

func quotePOSIX(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quotePowerShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./:=+,@%", r):
		return false
	default:
		return true
	}
}
