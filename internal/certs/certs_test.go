package certs

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return parsed
}

func TestFileManager_GetOrCreateCertificate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		setup     func(t *testing.T, m *FileManager)
		name      string
		advance   time.Duration
		wantReuse bool
	}{
		{
			name:  "creates when missing",
			setup: func(_ *testing.T, _ *FileManager) {},
		},
		{
			name: "reuses a valid certificate",
			setup: func(t *testing.T, m *FileManager) {
				t.Helper()
				_, err := m.GetOrCreateCertificate()
				require.NoError(t, err)
			},
			advance:   100 * 24 * time.Hour,
			wantReuse: true,
		},
		{
			name: "renews near expiry",
			setup: func(t *testing.T, m *FileManager) {
				t.Helper()
				_, err := m.GetOrCreateCertificate()
				require.NoError(t, err)
			},
			advance: DefaultValidity - 10*24*time.Hour,
		},
		{
			name: "replaces corrupt files",
			setup: func(t *testing.T, m *FileManager) {
				t.Helper()
				require.NoError(t, os.MkdirAll(m.certDir, 0700))
				require.NoError(t, os.WriteFile(m.certFile, []byte("not a cert"), 0600))
				require.NoError(t, os.WriteFile(m.keyFile, []byte("not a key"), 0600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFileManager(filepath.Join(t.TempDir(), "certs"))
			m.now = func() time.Time { return now }
			tt.setup(t, m)

			var before []byte
			if data, err := os.ReadFile(m.certFile); err == nil {
				before = data
			}

			m.now = func() time.Time { return now.Add(tt.advance) }
			cert, err := m.GetOrCreateCertificate()
			require.NoError(t, err)

			parsed := leaf(t, cert)
			assert.Equal(t, "spice-harvest local API", parsed.Subject.Organization[0])
			assert.NoError(t, parsed.VerifyHostname("localhost"))
			assert.NoError(t, parsed.VerifyHostname("127.0.0.1"))
			assert.True(t, parsed.NotAfter.After(now.Add(tt.advance).Add(renewBefore)))

			after, err := os.ReadFile(m.certFile)
			require.NoError(t, err)
			if tt.wantReuse {
				assert.Equal(t, before, after)
			} else {
				assert.NotEqual(t, before, after)
			}
		})
	}
}

func TestFileManager_KeyPermissions(t *testing.T) {
	m := NewFileManager(filepath.Join(t.TempDir(), "certs"))
	_, err := m.GetOrCreateCertificate()
	require.NoError(t, err)

	info, err := os.Stat(m.keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Equal(t, m.certFile, m.CertFile())
}
