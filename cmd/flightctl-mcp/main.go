package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/api"
	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/auth"
	"github.com/flightctl/flightctl-mcp/pkg/cli"
	"github.com/flightctl/flightctl-mcp/pkg/client"
	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/console"
	"github.com/flightctl/flightctl-mcp/pkg/mcp"
	"github.com/flightctl/flightctl-mcp/pkg/version"
)

type serveOptions struct {
	configPath       string
	clientConfigPath string
	transport        string
	host             string
	port             int
	path             string
	debug            bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &serveOptions{}

	root := &cobra.Command{
		Use:   "flightctl-mcp",
		Short: "Model Context Protocol bridge for Flight Control",
		Long: `flightctl-mcp exposes a Flight Control fleet management service to MCP
clients: read-only resource queries with label and field selectors, plus
remote command execution on device consoles through the flightctl CLI.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Bridge config file path")
	flags.StringVar(&opts.clientConfigPath, "client-config", "", "flightctl client.yaml path")
	flags.StringVar(&opts.transport, "transport", "", "MCP transport: stdio, sse or streamable-http")
	flags.StringVar(&opts.host, "host", "", "Bind host for the HTTP transports")
	flags.IntVar(&opts.port, "port", 0, "Bind port for the HTTP transports")
	flags.StringVar(&opts.path, "path", "", "Mount path for the HTTP transports")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newVersionCommand())

	return root
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	// The real logger needs the logging config, so config loading runs
	// under a stderr-only bootstrap logger.
	bootstrap := setupLogger(opts.debug, config.Logging{Level: "info", File: "-"})
	serverCfg, err := config.LoadServer(opts.configPath, bootstrap.Sugar())
	_ = bootstrap.Sync()
	if err != nil {
		return err
	}

	logger := setupLogger(opts.debug, serverCfg.Logging)
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	flags := cmd.Flags()
	if flags.Changed("transport") {
		serverCfg.Transport.Type = config.NormalizeTransport(opts.transport, log)
	}
	if flags.Changed("host") {
		serverCfg.Transport.Host = opts.host
	}
	if flags.Changed("port") {
		serverCfg.Transport.Port = opts.port
	}
	if flags.Changed("path") {
		serverCfg.Transport.Path = opts.path
	}

	log.Infow("starting flightctl-mcp",
		"version", version.Get().Version,
		"transport", serverCfg.Transport.Type)

	clientCfg := config.LoadClient(opts.clientConfigPath, log)

	auditor, err := audit.NewManagerFromConfig(serverCfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("building audit pipeline: %w", err)
	}
	defer func() { _ = auditor.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokenManager(ctx, clientCfg, auditor, log)
	if err != nil {
		return err
	}

	engine, err := client.New(clientCfg, tokens, auditor, log)
	if err != nil {
		return err
	}

	cliManager, err := cli.NewManager(clientCfg, serverCfg.CLI, log)
	if err != nil {
		return err
	}

	bridge := console.NewBridge(clientCfg, tokens, nil, auditor, log)

	srv := mcp.NewServer(engine, bridge, cliManager, tokens, auditor, log)

	auditor.SystemStartup(ctx, version.Get().Version, serverCfg.Transport.Type)
	defer auditor.SystemShutdown(context.Background())

	return serveTransport(ctx, srv, serverCfg, opts.debug, logger, auditor)
}

func serveTransport(ctx context.Context, srv *mcp.Server, cfg config.Server, debug bool, logger *zap.Logger, auditor *audit.Manager) error {
	log := logger.Sugar()

	switch cfg.Transport.Type {
	case config.TransportSSE, config.TransportStreamableHTTP:
		host := api.NewServer(logger, cfg, debug, auditor.Ready)
		defer host.Close()
		host.Mount(cfg.Transport.Path, transportHandler(srv, cfg))
		log.Infow("serving MCP over http",
			"transport", cfg.Transport.Type,
			"addr", cfg.Transport.Addr(),
			"path", cfg.Transport.Path)
		return host.Run(ctx)
	default:
		log.Infow("serving MCP over stdio")
		if err := srv.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func transportHandler(srv *mcp.Server, cfg config.Server) http.Handler {
	if cfg.Transport.Type == config.TransportSSE {
		return mcpserver.NewSSEServer(srv.MCPServer(),
			mcpserver.WithStaticBasePath(cfg.Transport.Path))
	}
	return mcpserver.NewStreamableHTTPServer(srv.MCPServer(),
		mcpserver.WithEndpointPath(cfg.Transport.Path))
}
