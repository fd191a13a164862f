// Package mcp exposes the Flight Control query engine and console bridge as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/client"
	"github.com/flightctl/flightctl-mcp/pkg/metrics"
	"github.com/flightctl/flightctl-mcp/pkg/version"
)

const serverName = "flightctl-mcp"

const instructions = `Flight Control fleet management bridge. Query edge devices, fleets,
events, enrollment requests, repositories and resource syncs with label and
field selectors, or run diagnostic commands on a device console. Query tools
return Flight Control API resources as pretty-printed JSON.`

// ResourceQuerier lists Flight Control resources. *client.Client implements it.
type ResourceQuerier interface {
	Query(ctx context.Context, spec client.QuerySpec) ([]json.RawMessage, error)
}

// CommandRunner executes a command on a device console. *console.Bridge
// implements it.
type CommandRunner interface {
	RunCommand(ctx context.Context, cliPath, deviceName, command string) (string, error)
}

// CLILocator resolves the flightctl binary. *cli.Manager implements it.
type CLILocator interface {
	EnsureInstalled(ctx context.Context) (string, error)
}

// ActorSource reports the identity behind the service credentials for audit
// records. *auth.TokenManager implements it.
type ActorSource interface {
	Actor() string
}

// Server wires the MCP tool surface to the query engine and console bridge.
type Server struct {
	mcp     *server.MCPServer
	querier ResourceQuerier
	runner  CommandRunner
	cli     CLILocator
	actors  ActorSource
	auditor *audit.Manager
	log     *zap.SugaredLogger
}

// NewServer builds the MCP server and registers every tool.
func NewServer(querier ResourceQuerier, runner CommandRunner, cliManager CLILocator, actors ActorSource, auditor *audit.Manager, log *zap.SugaredLogger) *Server {
	s := &Server{
		querier: querier,
		runner:  runner,
		cli:     cliManager,
		actors:  actors,
		auditor: auditor,
		log:     log,
	}
	s.mcp = server.NewMCPServer(serverName, version.Get().Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server for transport hosting.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over stdin/stdout until the context is cancelled or
// stdin closes. Nothing else may write to stdout while this runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log.Desugar()))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

type toolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// instrumented wraps a tool handler with correlation, metrics, audit and
// logging. Domain failures become tool-level error results rather than
// protocol errors so the calling agent sees the classified message.
func (s *Server) instrumented(tool string, handler toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		correlationID := uuid.New().String()
		ctx = audit.WithCorrelationID(ctx, correlationID)

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.ToolCalls.WithLabelValues(tool, outcome).Inc()
		metrics.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
		s.auditor.ToolCall(ctx, s.actors.Actor(), tool, correlationID, duration, err)

		logger := s.log.With(
			"tool", tool,
			"correlationID", correlationID,
			"durationMs", duration.Milliseconds())
		if err != nil {
			logger.Warnw("tool call failed", "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		logger.Infow("tool call completed")
		return result, nil
	}
}
