package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/errors"
	"github.com/flightctl/flightctl-mcp/pkg/metrics"
)

const (
	// expiryMargin is how long before the recorded expiry a cached token
	// stops being handed out. Refreshing a minute early keeps a token from
	// expiring mid-request.
	expiryMargin = 60 * time.Second

	// defaultTokenLifetime is assumed when the provider omits expires_in.
	defaultTokenLifetime = time.Hour
)

// TokenManager exchanges a long-lived refresh token for short-lived access
// tokens and caches the result. All API calls share one manager so a burst
// of tool calls costs at most one round-trip to the token endpoint.
type TokenManager struct {
	cfg        *config.Client
	tokenURL   string
	httpClient *http.Client
	auditor    *audit.Manager
	log        *zap.SugaredLogger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	user        string

	now func() time.Time
}

// NewTokenManager validates the client configuration, builds the TLS-aware
// HTTP client used for all token exchanges, and resolves the configured
// OIDC URL to a concrete token endpoint.
func NewTokenManager(ctx context.Context, cfg *config.Client, auditor *audit.Manager, log *zap.SugaredLogger) (*TokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient, err := NewHTTPClient(cfg.CACertPath, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, errors.NewConfigurationError("ca_cert_path", err.Error())
	}

	m := &TokenManager{
		cfg:        cfg,
		tokenURL:   ResolveTokenEndpoint(ctx, httpClient, cfg.OIDCTokenURL, log),
		httpClient: httpClient,
		auditor:    auditor,
		log:        log,
		now:        time.Now,
	}
	m.log.Debugw("token manager initialized", "tokenEndpoint", m.tokenURL)
	return m, nil
}

// Token returns a valid access token, refreshing it first if the cached one
// is missing or within a minute of expiring. Concurrent callers serialize on
// the manager's lock, so only one refresh is ever in flight; the rest wait
// and reuse its result.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && m.now().Before(m.tokenExpiry.Add(-expiryMargin)) {
		return m.accessToken, nil
	}
	return m.refreshLocked(ctx)
}

// Actor returns the username extracted from the most recently minted access
// token, or "" if no token has been minted yet. It never triggers a refresh.
func (m *TokenManager) Actor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// refreshLocked performs the refresh-token grant. The caller must hold m.mu.
// On failure the cached token is left untouched so a still-valid token is
// not discarded because of a transient provider error.
func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	oauthCfg := &oauth2.Config{
		ClientID: m.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: m.cfg.RefreshToken}).Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		m.auditor.TokenRefresh(ctx, m.user, err)
		m.log.Warnw("token refresh failed", "tokenEndpoint", m.tokenURL, "error", err)
		return "", errors.NewAuthenticationError("failed to refresh access token", err)
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = m.now().Add(defaultTokenLifetime)
	}

	m.accessToken = token.AccessToken
	m.tokenExpiry = expiry
	m.user = UserFromToken(token.AccessToken)

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	m.auditor.TokenRefresh(ctx, m.user, nil)
	m.log.Debugw("access token refreshed", "user", m.user, "expiry", expiry.UTC().Format(time.RFC3339))
	return m.accessToken, nil
}
