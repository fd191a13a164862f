// Package client queries the Flight Control resource API on behalf of MCP
// tools: bearer-authenticated list requests with transparent pagination.
package client

import (
	"context"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/auth"
	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/errors"
	"github.com/flightctl/flightctl-mcp/pkg/version"
)

// TokenSource mints the bearer token for outbound API calls and reports the
// identity behind it. *auth.TokenManager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Actor() string
}

// Client lists Flight Control resources over the REST API.
type Client struct {
	http    *resty.Client
	tokens  TokenSource
	auditor *audit.Manager
	log     *zap.SugaredLogger
}

// New builds a Client from the shared service configuration. The underlying
// HTTP client carries the same trust settings as every other outbound
// connection the bridge makes.
func New(cfg *config.Client, tokens TokenSource, auditor *audit.Manager, log *zap.SugaredLogger) (*Client, error) {
	httpClient, err := auth.NewHTTPClient(cfg.CACertPath, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, errors.NewConfigurationError("ca_cert_path", err.Error())
	}

	rc := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.APIBaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		log.Debugw("api request", "method", req.Method, "url", req.URL)
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debugw("api response",
			"method", resp.Request.Method,
			"url", resp.Request.URL,
			"status", resp.StatusCode(),
			"duration", resp.Time())
		return nil
	})

	return &Client{http: rc, tokens: tokens, auditor: auditor, log: log}, nil
}
