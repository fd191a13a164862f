package config

import (
	"os"
	"path/filepath"
)

const (
	clientConfigDirName  = "flightctl"
	clientConfigFileName = "client.yaml"
	serverConfigDirName  = "flightctl-mcp"
	serverConfigFileName = "config.yaml"
)

// DefaultClientConfigPath returns the location where the flightctl CLI
// writes its client configuration after a successful login. The
// FLIGHTCTL_CONFIG environment variable takes precedence.
func DefaultClientConfigPath() string {
	if env := os.Getenv("FLIGHTCTL_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", clientConfigDirName, clientConfigFileName)
	}
	return filepath.Join(home, ".config", clientConfigDirName, clientConfigFileName)
}

// DefaultServerConfigPath returns the bridge's own configuration file path.
// The FLIGHTCTL_MCP_CONFIG environment variable takes precedence.
func DefaultServerConfigPath() string {
	if env := os.Getenv("FLIGHTCTL_MCP_CONFIG"); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, serverConfigDirName, serverConfigFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+serverConfigDirName, serverConfigFileName)
}

// DefaultLogPath returns where the bridge writes its rotating log file
// when the logging config does not name one.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", serverConfigDirName, serverConfigDirName+".log")
}
