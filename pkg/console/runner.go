package console

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures one finished process invocation. A nonzero exit code is a
// result, not an error; Run returns an error only when the process could not
// be started at all.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs external processes synchronously. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, path string, args []string) (Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner is the os/exec backed Runner used outside tests.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, path string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, err
	}
	return result, nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
