package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTestCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "flightctl-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func tlsConfigOf(t *testing.T, client *http.Client) *tls.Config {
	t.Helper()
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.TLSClientConfig)
	return transport.TLSClientConfig
}

func TestNewHTTPClientDefaults(t *testing.T) {
	client, err := NewHTTPClient("", false)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, client.Timeout)

	cfg := tlsConfigOf(t, client)
	require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.False(t, cfg.InsecureSkipVerify)
	require.Nil(t, cfg.RootCAs)
}

func TestNewHTTPClientInsecure(t *testing.T) {
	client, err := NewHTTPClient("", true)
	require.NoError(t, err)

	cfg := tlsConfigOf(t, client)
	require.True(t, cfg.InsecureSkipVerify)
	require.Nil(t, cfg.RootCAs)
}

func TestNewHTTPClientCustomCA(t *testing.T) {
	client, err := NewHTTPClient(writeTestCA(t), false)
	require.NoError(t, err)

	cfg := tlsConfigOf(t, client)
	require.NotNil(t, cfg.RootCAs)
	require.False(t, cfg.InsecureSkipVerify)
	require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestNewHTTPClientMissingCAFile(t *testing.T) {
	_, err := NewHTTPClient(filepath.Join(t.TempDir(), "nope.pem"), false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read CA file")
}

func TestNewHTTPClientGarbageCAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	_, err := NewHTTPClient(path, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse CA file")
}
