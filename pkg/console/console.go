// Package console runs remote commands on devices through the flightctl
// CLI: a login step with a freshly minted token, then a console execution
// addressing device/<name>.
package console

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/errors"
	"github.com/flightctl/flightctl-mcp/pkg/metrics"
)

// TokenSource mints the bearer token handed to the CLI login step.
// *auth.TokenManager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Actor() string
}

// Bridge drives the flightctl CLI against a device console. The two steps
// are strictly ordered: the command never runs unless login succeeded.
type Bridge struct {
	cfg     *config.Client
	tokens  TokenSource
	runner  Runner
	auditor *audit.Manager
	log     *zap.SugaredLogger
}

// NewBridge builds a Bridge. A nil runner falls back to the os/exec one.
func NewBridge(cfg *config.Client, tokens TokenSource, runner Runner, auditor *audit.Manager, log *zap.SugaredLogger) *Bridge {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Bridge{cfg: cfg, tokens: tokens, runner: runner, auditor: auditor, log: log}
}

// RunCommand executes command on the named device and returns its trimmed
// stdout. The command is split on whitespace before being passed as discrete
// arguments, so quoted arguments with embedded spaces are not preserved.
func (b *Bridge) RunCommand(ctx context.Context, cliPath, deviceName, command string) (string, error) {
	if strings.TrimSpace(deviceName) == "" {
		return "", errors.NewValidationError("device_name", "device name cannot be empty")
	}
	if strings.TrimSpace(command) == "" {
		return "", errors.NewValidationError("command", "command cannot be empty")
	}

	resolved, err := b.runner.LookPath(cliPath)
	if err != nil {
		return "", errors.NewConsoleErrorWithCause("", "",
			"flightctl CLI not found, ensure it is installed and in PATH", err)
	}

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	b.log.Infow("running console command", "device", deviceName, "command", command)

	if err := b.login(ctx, resolved, deviceName, token); err != nil {
		metrics.ConsoleCommands.WithLabelValues("failure").Inc()
		return "", err
	}
	stdout, err := b.execute(ctx, resolved, deviceName, command)
	if err != nil {
		metrics.ConsoleCommands.WithLabelValues("failure").Inc()
		return "", err
	}
	metrics.ConsoleCommands.WithLabelValues("success").Inc()
	return stdout, nil
}

func (b *Bridge) login(ctx context.Context, cliPath, deviceName, token string) error {
	args := []string{"login"}
	if b.cfg.InsecureSkipVerify {
		args = append(args, "--insecure-skip-tls-verify")
	}
	args = append(args, "--token", token)

	// Token in argv: never log these arguments.
	b.log.Debugw("logging in to flightctl console", "device", deviceName)

	result, runErr := b.runner.Run(ctx, cliPath, args)
	loginErr := b.stepError(errors.ConsoleStageLogin, deviceName,
		"failed to login to flightctl console", result, runErr)
	b.auditor.ConsoleLogin(ctx, b.tokens.Actor(), deviceName, audit.CorrelationIDFrom(ctx), loginErr)
	return loginErr
}

func (b *Bridge) execute(ctx context.Context, cliPath, deviceName, command string) (string, error) {
	args := []string{"console", "device/" + deviceName}
	if b.cfg.InsecureSkipVerify {
		args = append(args, "--insecure-skip-tls-verify")
	}
	args = append(args, "--")
	args = append(args, strings.Fields(command)...)

	b.log.Debugw("executing console command", "device", deviceName, "args", args)

	result, runErr := b.runner.Run(ctx, cliPath, args)
	execErr := b.stepError(errors.ConsoleStageExecute, deviceName,
		"console command failed", result, runErr)
	b.auditor.ConsoleCommand(ctx, b.tokens.Actor(), deviceName, command, audit.CorrelationIDFrom(ctx), execErr)
	if execErr != nil {
		return "", execErr
	}
	b.log.Infow("console command completed", "device", deviceName)
	return strings.TrimSpace(result.Stdout), nil
}

// stepError turns a step outcome into a ConsoleError, or nil on success.
func (b *Bridge) stepError(stage, device, message string, result Result, runErr error) error {
	if runErr != nil {
		b.log.Errorw("console step could not start",
			"stage", stage, "device", device, "error", runErr)
		return errors.NewConsoleErrorWithCause(stage, device, message, runErr)
	}
	if result.ExitCode != 0 {
		b.log.Errorw("console step failed",
			"stage", stage, "device", device, "exitCode", result.ExitCode, "stderr", result.Stderr)
		return errors.NewConsoleError(stage, device, strings.TrimSpace(result.Stderr), message)
	}
	return nil
}
