package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ExitError reports a git invocation that exited non-zero. Callers decide
// which exit codes mean "empty result" (a missing note, an unknown ref)
// and which are real failures.
type ExitError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no stderr output"
	}
	return fmt.Sprintf("git %s exited with code %d: %s", strings.Join(e.Args, " "), e.Code, msg)
}

// ExitCode returns the git exit code carried by err, or -1 when err is not
// an ExitError.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// Run executes git with the given arguments in the repository and returns
// trimmed stdout. The subprocess inherits the environment; cancellation of
// ctx kills it.
func (r *Repo) Run(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, nil, args...)
}

// RunStdin is Run with the given bytes piped to the subprocess stdin. Used
// for note writes (content on stdin) and cat-file --batch feeds.
func (r *Repo) RunStdin(ctx context.Context, stdin []byte, args ...string) (string, error) {
	return r.run(ctx, bytes.NewReader(stdin), args...)
}

func (r *Repo) run(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	dir := r.workDir
	if dir == "" {
		dir = r.gitDir
	}

	cmd := exec.CommandContext(ctx, r.gitCmd, append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	err := cmd.Run()
	r.log.Debug("git", "args", strings.Join(args, " "), "err", err)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{Args: args, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("failed to run git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// runIn is the bootstrap runner used before the Repo is fully constructed.
func (r *Repo) runIn(dir string, args ...string) (string, error) {
	cmd := exec.Command(r.gitCmd, append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{Args: args, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("failed to run git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}
