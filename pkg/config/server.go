package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Transport names accepted for MCP_TRANSPORT and transport.type.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Server is the bridge's own configuration: how to expose the MCP
// surface and which operational features to enable. Everything has a
// working default so the bridge runs with no file at all.
type Server struct {
	Transport Transport `yaml:"transport"`
	Logging   Logging   `yaml:"logging"`
	RateLimit RateLimit `yaml:"ratelimit"`
	CORS      CORS      `yaml:"cors"`
	CLI       CLI       `yaml:"cli"`
	Audit     Audit     `yaml:"audit"`
}

type Transport struct {
	Type string `yaml:"type"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Addr returns the host:port the HTTP transports bind to.
func (t Transport) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

type RateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type CORS struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

type CLI struct {
	Dir          string `yaml:"dir"`
	AutoDownload bool   `yaml:"autoDownload"`
}

type Audit struct {
	Enabled bool         `yaml:"enabled"`
	Kafka   AuditKafka   `yaml:"kafka"`
	Webhook AuditWebhook `yaml:"webhook"`
}

type AuditKafka struct {
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	TLS     AuditKafkaTLS `yaml:"tls"`
	SASL    AuditSASL     `yaml:"sasl"`
}

type AuditKafkaTLS struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"caFile"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

type AuditSASL struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type AuditWebhook struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// DefaultServer returns the configuration used when no file is present:
// stdio transport, info logging to stderr, audit to the log sink only.
func DefaultServer() Server {
	return Server{
		Transport: Transport{
			Type: TransportStdio,
			Host: "127.0.0.1",
			Port: 8000,
			Path: "/mcp",
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		RateLimit: RateLimit{
			Rate:  20,
			Burst: 50,
		},
		CLI: CLI{
			AutoDownload: true,
		},
		Audit: Audit{
			Enabled: true,
			Kafka: AuditKafka{
				Topic: "flightctl-mcp-audit",
			},
		},
	}
}

// LoadServer reads the bridge configuration from path (empty means
// DefaultServerConfigPath) and applies environment overrides. A missing
// file yields the defaults; a malformed one is an error so a broken
// deployment does not silently run misconfigured.
func LoadServer(path string, log *zap.SugaredLogger) (Server, error) {
	if path == "" {
		path = DefaultServerConfigPath()
	}

	cfg := DefaultServer()

	content, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Debugw("no bridge config file, using defaults", "path", path)
	case err != nil:
		return cfg, fmt.Errorf("reading bridge config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing bridge config %s: %w", path, err)
		}
		log.Infow("loaded bridge config", "path", path)
	}

	applyServerEnv(&cfg, log)
	cfg.Transport.Type = NormalizeTransport(cfg.Transport.Type, log)
	return cfg, nil
}

func applyServerEnv(cfg *Server, log *zap.SugaredLogger) {
	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		cfg.Transport.Type = v
	}
	if v := os.Getenv("MCP_HOST"); v != "" {
		cfg.Transport.Host = v
	}
	if v := os.Getenv("MCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			log.Warnw("ignoring invalid MCP_PORT", "value", v)
		} else {
			cfg.Transport.Port = port
		}
	}
	if v := os.Getenv("MCP_PATH"); v != "" {
		cfg.Transport.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// NormalizeTransport maps unknown transport names to stdio rather than
// refusing to start. "http" is accepted as shorthand for streamable-http.
func NormalizeTransport(name string, log *zap.SugaredLogger) string {
	switch name {
	case TransportStdio, TransportSSE, TransportStreamableHTTP:
		return name
	case "http":
		return TransportStreamableHTTP
	default:
		log.Warnw("unknown transport, falling back to stdio", "transport", name)
		return TransportStdio
	}
}
