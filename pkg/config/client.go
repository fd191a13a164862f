package config

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/flightctl/flightctl-mcp/pkg/errors"
)

// DefaultClientID is used when neither client.yaml nor the environment
// names an OIDC client.
const DefaultClientID = "flightctl"

// Client holds the resolved connection settings for a Flight Control
// service: where the API lives, how to mint access tokens, and how to
// verify TLS. Values come from the flightctl CLI's client.yaml with
// environment variables taking precedence.
type Client struct {
	// APIBaseURL is the Flight Control API endpoint, without a trailing slash.
	APIBaseURL string
	// OIDCTokenURL is the authentication server URL as configured. It may be
	// an issuer URL rather than a token endpoint; resolution happens later.
	OIDCTokenURL string
	// ClientID is the OIDC client used for refresh grants.
	ClientID string
	// RefreshToken is the long-lived token minted at flightctl login time.
	RefreshToken string
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// CACertPath points to a PEM bundle for the service CA. Empty means the
	// system pool is used. Only set when the referenced file exists.
	CACertPath string
}

// clientFile mirrors the flightctl client.yaml layout. Only the keys the
// bridge needs are mapped.
type clientFile struct {
	Service struct {
		Server             string `yaml:"server"`
		InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	} `yaml:"service"`
	Authentication struct {
		AuthProvider struct {
			Config struct {
				Server               string `yaml:"server"`
				ClientID             string `yaml:"client-id"`
				RefreshToken         string `yaml:"refresh-token"`
				CertificateAuthority string `yaml:"certificate-authority"`
			} `yaml:"config"`
		} `yaml:"auth-provider"`
	} `yaml:"authentication"`
}

// LoadClient reads the flightctl client configuration from path (empty
// means DefaultClientConfigPath) and applies environment overrides. A
// missing or unreadable file is not an error: the bridge degrades to
// environment-only configuration and lets Validate decide whether
// enough is present.
func LoadClient(path string, log *zap.SugaredLogger) *Client {
	if path == "" {
		path = DefaultClientConfigPath()
	}

	cfg := &Client{ClientID: DefaultClientID}

	content, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Infow("no flightctl client config found", "path", path)
	case err != nil:
		log.Warnw("failed to read flightctl client config", "path", path, "error", err)
	default:
		var file clientFile
		if err := yaml.Unmarshal(content, &file); err != nil {
			log.Warnw("failed to parse flightctl client config", "path", path, "error", err)
		} else {
			cfg.APIBaseURL = strings.TrimRight(file.Service.Server, "/")
			cfg.InsecureSkipVerify = file.Service.InsecureSkipVerify

			provider := file.Authentication.AuthProvider.Config
			cfg.OIDCTokenURL = strings.TrimRight(provider.Server, "/")
			if provider.ClientID != "" {
				cfg.ClientID = provider.ClientID
			}
			cfg.RefreshToken = provider.RefreshToken
			if provider.CertificateAuthority != "" {
				if _, statErr := os.Stat(provider.CertificateAuthority); statErr == nil {
					cfg.CACertPath = provider.CertificateAuthority
				}
			}
			log.Infow("loaded flightctl client config", "path", path)
		}
	}

	applyClientEnv(cfg, log)

	log.Infow("client configuration resolved",
		"api", cfg.APIBaseURL,
		"insecureSkipVerify", cfg.InsecureSkipVerify)
	return cfg
}

func applyClientEnv(cfg *Client, log *zap.SugaredLogger) {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
		log.Debugw("API_BASE_URL overridden by environment")
	}
	if v := os.Getenv("OIDC_TOKEN_URL"); v != "" {
		cfg.OIDCTokenURL = strings.TrimRight(v, "/")
		log.Debugw("OIDC_TOKEN_URL overridden by environment")
	}
	if v := os.Getenv("OIDC_CLIENT_ID"); v != "" {
		cfg.ClientID = v
		log.Debugw("OIDC_CLIENT_ID overridden by environment")
	}
	if v := os.Getenv("REFRESH_TOKEN"); v != "" {
		cfg.RefreshToken = v
		log.Debugw("REFRESH_TOKEN overridden by environment")
	}
	if v := os.Getenv("INSECURE_SKIP_VERIFY"); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			cfg.InsecureSkipVerify = true
		default:
			cfg.InsecureSkipVerify = false
		}
		log.Debugw("INSECURE_SKIP_VERIFY overridden by environment", "value", cfg.InsecureSkipVerify)
	}
	if v := os.Getenv("CA_CERT_PATH"); v != "" {
		if _, err := os.Stat(v); err == nil {
			cfg.CACertPath = v
			log.Debugw("CA_CERT_PATH overridden by environment", "path", v)
		} else {
			log.Warnw("CA_CERT_PATH points to a non-existent file", "path", v)
		}
	}
}

// Validate reports whether the client configuration carries everything
// required to reach the API and refresh tokens.
func (c *Client) Validate() error {
	if c.APIBaseURL == "" {
		return errors.NewConfigurationError("api_base_url",
			"not configured; set API_BASE_URL or run 'flightctl login'")
	}
	if c.OIDCTokenURL == "" {
		return errors.NewConfigurationError("oidc_token_url",
			"not configured; set OIDC_TOKEN_URL or run 'flightctl login'")
	}
	if c.RefreshToken == "" {
		return errors.NewConfigurationError("refresh_token",
			"not configured; set REFRESH_TOKEN or run 'flightctl login'")
	}
	return nil
}
