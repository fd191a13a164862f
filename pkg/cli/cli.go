package cli

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/auth"
	"github.com/flightctl/flightctl-mcp/pkg/config"
	flighterrors "github.com/flightctl/flightctl-mcp/pkg/errors"
	"github.com/flightctl/flightctl-mcp/pkg/version"
)

const binaryName = "flightctl"

// ErrNotFound reports that no flightctl binary is installed anywhere the
// manager looks.
var ErrNotFound = errors.New("flightctl CLI not found")

var supportedPlatforms = map[string]bool{
	"linux/amd64":  true,
	"linux/arm64":  true,
	"darwin/amd64": true,
	"darwin/arm64": true,
}

// Manager finds or installs the flightctl binary. The install directory is
// the configured one, or FLIGHTCTL_CLI_DIR, or ~/.local/bin.
type Manager struct {
	http          *resty.Client
	apiBaseURL    string
	installDir    string
	dirConfigured bool
	autoDownload  bool
	log           *zap.SugaredLogger

	goos, goarch string
	lookPath     func(string) (string, error)
}

// NewManager builds a Manager sharing the API client's trust settings for
// artifact downloads.
func NewManager(clientCfg *config.Client, cliCfg config.CLI, log *zap.SugaredLogger) (*Manager, error) {
	httpClient, err := auth.NewHTTPClient(clientCfg.CACertPath, clientCfg.InsecureSkipVerify)
	if err != nil {
		return nil, flighterrors.NewConfigurationError("ca_cert_path", err.Error())
	}

	installDir := cliCfg.Dir
	if installDir == "" {
		installDir = os.Getenv("FLIGHTCTL_CLI_DIR")
	}
	dirConfigured := installDir != ""
	if installDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		installDir = filepath.Join(home, ".local", "bin")
	}

	return &Manager{
		http:          resty.NewWithClient(httpClient).SetHeader("User-Agent", version.UserAgent()),
		apiBaseURL:    clientCfg.APIBaseURL,
		installDir:    installDir,
		dirConfigured: dirConfigured,
		autoDownload:  cliCfg.AutoDownload,
		log:           log,
		goos:          runtime.GOOS,
		goarch:        runtime.GOARCH,
		lookPath:      exec.LookPath,
	}, nil
}

// Locate returns the path of an installed flightctl binary. A configured
// install directory wins over PATH; the default directory is only a
// fallback behind PATH.
func (m *Manager) Locate() (string, error) {
	installed := filepath.Join(m.installDir, binaryName)
	if m.dirConfigured && isExecutable(installed) {
		return installed, nil
	}
	if path, err := m.lookPath(binaryName); err == nil {
		return path, nil
	}
	if !m.dirConfigured && isExecutable(installed) {
		return installed, nil
	}
	return "", ErrNotFound
}

// EnsureInstalled returns the path to a usable flightctl binary, downloading
// one into the install directory when the host has none and auto-download
// is enabled.
func (m *Manager) EnsureInstalled(ctx context.Context) (string, error) {
	if path, err := m.Locate(); err == nil {
		m.log.Debugw("flightctl CLI found", "path", path)
		return path, nil
	}
	if !m.autoDownload {
		return "", ErrNotFound
	}

	artifactURL, err := m.artifactURL()
	if err != nil {
		return "", err
	}
	target := filepath.Join(m.installDir, binaryName)
	if err := m.fetch(ctx, artifactURL, target); err != nil {
		return "", err
	}
	m.log.Infow("flightctl CLI installed", "path", target)
	return target, nil
}

// artifactURL derives the download location from the API host: the CLI for
// https://api.flightctl.example.com lives on cli-artifacts.flightctl.example.com.
func (m *Manager) artifactURL() (string, error) {
	platform := m.goos + "/" + m.goarch
	if !supportedPlatforms[platform] {
		return "", fmt.Errorf("no flightctl CLI artifact for %s", platform)
	}
	parsed, err := url.Parse(m.apiBaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid API base URL: %w", err)
	}
	apex := strings.TrimPrefix(parsed.Host, "api.")
	return fmt.Sprintf("https://cli-artifacts.%s/%s/%s/%s-%s-%s.tar.gz",
		apex, m.goarch, m.goos, binaryName, m.goos, m.goarch), nil
}

// fetch downloads the artifact and installs the flightctl member at target.
func (m *Manager) fetch(ctx context.Context, artifactURL, target string) error {
	m.log.Infow("downloading flightctl CLI", "url", artifactURL)

	resp, err := m.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(artifactURL)
	if err != nil {
		return fmt.Errorf("downloading flightctl CLI: %w", err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("downloading flightctl CLI: HTTP %d", resp.StatusCode())
	}
	if err := os.MkdirAll(m.installDir, 0o755); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}
	return extractBinary(body, target)
}

// extractBinary pulls the flightctl member out of a gzipped tarball and
// writes it executable at target.
func extractBinary(r io.Reader, target string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading CLI archive: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("%s binary not found in archive", binaryName)
		}
		if err != nil {
			return fmt.Errorf("reading CLI archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != binaryName {
			continue
		}

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("writing %s binary: %w", binaryName, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return fmt.Errorf("writing %s binary: %w", binaryName, err)
		}
		return out.Close()
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
