package console

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/errors"
)

type stubTokens struct {
	token string
	err   error
	actor string
	calls atomic.Int32
}

func (s *stubTokens) Token(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

func (s *stubTokens) Actor() string { return s.actor }

// fakeRunner replays canned results in invocation order and records every
// call it sees.
type fakeRunner struct {
	mu      sync.Mutex
	paths   []string
	calls   [][]string
	results []Result
	errs    []error

	lookPathErr error
}

func (f *fakeRunner) Run(ctx context.Context, path string, args []string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.paths = append(f.paths, path)
	f.calls = append(f.calls, args)

	var result Result
	if i < len(f.results) {
		result = f.results[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return result, err
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookPathErr != nil {
		return "", f.lookPathErr
	}
	return name, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestBridge(t *testing.T, runner Runner, tokens TokenSource, insecure bool, auditor *audit.Manager) *Bridge {
	t.Helper()
	cfg := &config.Client{
		APIBaseURL:         "https://api.flightctl.example.com",
		OIDCTokenURL:       "https://auth.example.com/realms/flightctl/protocol/openid-connect/token",
		ClientID:           config.DefaultClientID,
		RefreshToken:       "refresh-token-1",
		InsecureSkipVerify: insecure,
	}
	return NewBridge(cfg, tokens, runner, auditor, zaptest.NewLogger(t).Sugar())
}

func TestRunCommandSuccess(t *testing.T) {
	runner := &fakeRunner{results: []Result{
		{ExitCode: 0},
		{ExitCode: 0, Stdout: "  total 4\ndrwxr-xr-x  \n"},
	}}
	b := newTestBridge(t, runner, &stubTokens{token: "tok-1"}, false, nil)

	out, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "ls -la")
	require.NoError(t, err)
	require.Equal(t, "total 4\ndrwxr-xr-x", out)

	require.Equal(t, 2, runner.callCount())
	assert.Equal(t, []string{"login", "--token", "tok-1"}, runner.calls[0])
	assert.Equal(t, []string{"console", "device/dev-1", "--", "ls", "-la"}, runner.calls[1])
	assert.Equal(t, "flightctl", runner.paths[0])
}

func TestRunCommandInsecureFlag(t *testing.T) {
	runner := &fakeRunner{results: []Result{{}, {Stdout: "ok"}}}
	b := newTestBridge(t, runner, &stubTokens{token: "tok-1"}, true, nil)

	_, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "uptime")
	require.NoError(t, err)

	assert.Equal(t, []string{"login", "--insecure-skip-tls-verify", "--token", "tok-1"}, runner.calls[0])
	assert.Equal(t, []string{"console", "device/dev-1", "--insecure-skip-tls-verify", "--", "uptime"}, runner.calls[1])
}

func TestRunCommandLoginFailureStopsExecution(t *testing.T) {
	runner := &fakeRunner{results: []Result{
		{ExitCode: 1, Stderr: "invalid token\n"},
	}}
	b := newTestBridge(t, runner, &stubTokens{token: "tok-1"}, false, nil)

	_, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "uptime")
	require.Error(t, err)
	require.True(t, errors.IsConsole(err))

	var consoleErr *errors.ConsoleError
	require.ErrorAs(t, err, &consoleErr)
	assert.Equal(t, errors.ConsoleStageLogin, consoleErr.Stage)
	assert.Equal(t, "invalid token", consoleErr.Stderr)

	// The execute step never ran.
	require.Equal(t, 1, runner.callCount())
}

func TestRunCommandExecuteFailure(t *testing.T) {
	runner := &fakeRunner{results: []Result{
		{ExitCode: 0},
		{ExitCode: 127, Stderr: "sh: nope: command not found\n"},
	}}
	b := newTestBridge(t, runner, &stubTokens{token: "tok-1"}, false, nil)

	_, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "nope")
	require.Error(t, err)

	var consoleErr *errors.ConsoleError
	require.ErrorAs(t, err, &consoleErr)
	assert.Equal(t, errors.ConsoleStageExecute, consoleErr.Stage)
	assert.Equal(t, "dev-1", consoleErr.Device)
	assert.Contains(t, consoleErr.Stderr, "command not found")
}

func TestRunCommandSpawnFailure(t *testing.T) {
	runner := &fakeRunner{
		results: []Result{{}, {}},
		errs:    []error{nil, fmt.Errorf("fork/exec: resource temporarily unavailable")},
	}
	b := newTestBridge(t, runner, &stubTokens{token: "tok-1"}, false, nil)

	_, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "uptime")
	require.Error(t, err)
	require.True(t, errors.IsConsole(err))

	var consoleErr *errors.ConsoleError
	require.ErrorAs(t, err, &consoleErr)
	require.ErrorContains(t, consoleErr.Err, "fork/exec")
}

func TestRunCommandValidation(t *testing.T) {
	tests := []struct {
		name    string
		device  string
		command string
		field   string
	}{
		{"empty device", "", "uptime", "device_name"},
		{"whitespace device", "   ", "uptime", "device_name"},
		{"empty command", "dev-1", "", "command"},
		{"whitespace command", "dev-1", " \t ", "command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			tokens := &stubTokens{token: "tok-1"}
			b := newTestBridge(t, runner, tokens, false, nil)

			_, err := b.RunCommand(context.Background(), "flightctl", tt.device, tt.command)
			require.Error(t, err)
			require.True(t, errors.IsValidation(err))
			require.Contains(t, err.Error(), tt.field)

			// Rejected before any token fetch or process activity.
			require.Zero(t, tokens.calls.Load())
			require.Zero(t, runner.callCount())
		})
	}
}

func TestRunCommandCLIMissing(t *testing.T) {
	runner := &fakeRunner{lookPathErr: fmt.Errorf("exec: \"flightctl\": executable file not found in $PATH")}
	tokens := &stubTokens{token: "tok-1"}
	b := newTestBridge(t, runner, tokens, false, nil)

	_, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "uptime")
	require.Error(t, err)
	require.True(t, errors.IsConsole(err))
	require.Contains(t, err.Error(), "not found")
	require.Zero(t, tokens.calls.Load())
	require.Zero(t, runner.callCount())
}

func TestRunCommandTokenFailure(t *testing.T) {
	runner := &fakeRunner{}
	tokens := &stubTokens{err: errors.NewAuthenticationError("failed to refresh access token", nil)}
	b := newTestBridge(t, runner, tokens, false, nil)

	_, err := b.RunCommand(context.Background(), "flightctl", "dev-1", "uptime")
	require.Error(t, err)
	require.True(t, errors.IsAuthentication(err))
	require.Zero(t, runner.callCount())
}

type captureSink struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (s *captureSink) Write(ctx context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error { return nil }
func (s *captureSink) Name() string { return "capture" }

func TestRunCommandEmitsAuditTrail(t *testing.T) {
	sink := &captureSink{}
	auditor := audit.NewManager(sink, audit.DefaultManagerConfig(), zaptest.NewLogger(t))

	runner := &fakeRunner{results: []Result{{}, {Stdout: "ok"}}}
	b := newTestBridge(t, runner, &stubTokens{token: "tok-1", actor: "admin"}, false, auditor)

	ctx := audit.WithCorrelationID(context.Background(), "req-9")
	_, err := b.RunCommand(ctx, "flightctl", "dev-1", "systemctl status")
	require.NoError(t, err)
	require.NoError(t, auditor.Close())

	require.Len(t, sink.events, 2)

	login := sink.events[0]
	assert.Equal(t, audit.EventConsoleLogin, login.Type)
	assert.Equal(t, audit.SeverityInfo, login.Severity)
	assert.Equal(t, "dev-1", login.Target.Name)
	assert.Equal(t, "req-9", login.RequestContext.CorrelationID)

	command := sink.events[1]
	assert.Equal(t, audit.EventConsoleCommand, command.Type)
	assert.Equal(t, audit.SeverityWarning, command.Severity)
	assert.Equal(t, "admin", command.Actor.User)
	assert.Equal(t, "systemctl status", command.Details["command"])
}

func TestExecRunner(t *testing.T) {
	runner := ExecRunner{}
	shell, err := runner.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	result, err := runner.Run(context.Background(), shell, []string{"-c", "echo out; echo err 1>&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestExecRunnerSpawnError(t *testing.T) {
	runner := ExecRunner{}
	_, err := runner.Run(context.Background(), "/nonexistent/definitely-not-a-binary", nil)
	require.Error(t, err)
}
