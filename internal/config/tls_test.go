// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-passkey/internal/testutil"
)

func TestLoadTLSConfig_Disabled(t *testing.T) {
	cfg := &TLSConfig{
		Enabled: false,
	}

	tlsConfig, err := cfg.LoadTLSConfig()

	if err != nil {
		t.Fatalf("LoadTLSConfig() error = %v, want nil", err)
	}

	if tlsConfig != nil {
		t.Errorf("LoadTLSConfig() = %v, want nil for disabled TLS", tlsConfig)
	}
}

func TestLoadTLSConfig_ValidConfig(t *testing.T) {
	ca, err := testutil.GenerateTestCA()
	if err != nil {
		t.Fatalf("Failed to generate CA: %v", err)
	}

	serverCert, err := testutil.GenerateTestServerCert(ca, "localhost")
	if err != nil {
		t.Fatalf("Failed to generate server cert: %v", err)
	}

	tmpDir := t.TempDir()
	certFile := filepath.Join(tmpDir, "cert.pem")
	keyFile := filepath.Join(tmpDir, "key.pem")

	if err := os.WriteFile(certFile, serverCert.CertPEM, 0644); err != nil {
		t.Fatalf("Failed to write cert file: %v", err)
	}
	if err := os.WriteFile(keyFile, serverCert.KeyPEM, 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	cfg := &TLSConfig{
		Enabled:    true,
		CertFile:   certFile,
		KeyFile:    keyFile,
		MinVersion: "TLS1.3",
	}

	tlsConfig, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("LoadTLSConfig() error = %v, want nil", err)
	}

	if len(tlsConfig.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(tlsConfig.Certificates))
	}
	if tlsConfig.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %v, want TLS 1.3", tlsConfig.MinVersion)
	}
}

func TestLoadTLSConfig_MissingCert(t *testing.T) {
	cfg := &TLSConfig{
		Enabled:  true,
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}

	if _, err := cfg.LoadTLSConfig(); err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}

func TestParseTLSVersion(t *testing.T) {
	tests := []struct {
		version  string
		expected uint16
	}{
		{"TLS1.0", tls.VersionTLS10},
		{"TLS1.1", tls.VersionTLS11},
		{"TLS1.2", tls.VersionTLS12},
		{"TLS1.3", tls.VersionTLS13},
		{"bogus", tls.VersionTLS12},
		{"", tls.VersionTLS12},
	}

	for _, tt := range tests {
		if got := parseTLSVersion(tt.version); got != tt.expected {
			t.Errorf("parseTLSVersion(%q) = %v, want %v", tt.version, got, tt.expected)
		}
	}
}
