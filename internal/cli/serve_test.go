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

package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func withConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestLoadServeConfig_Defaults(t *testing.T) {
	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("Port = %d, want 8443", cfg.Server.Port)
	}
	if cfg.RelyingParty.ID != "localhost" {
		t.Errorf("RelyingParty.ID = %v, want localhost", cfg.RelyingParty.ID)
	}
}

func TestLoadServeConfig_File(t *testing.T) {
	withConfigFile(t, `
server:
  port: 9443
relying_party:
  id: example.com
  name: Example
  origin: https://example.com
`)

	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Server.Port != 9443 {
		t.Errorf("Port = %d, want 9443", cfg.Server.Port)
	}
	if cfg.RelyingParty.ID != "example.com" {
		t.Errorf("RelyingParty.ID = %v, want example.com", cfg.RelyingParty.ID)
	}
}

func TestLoadServeConfig_EnvOverride(t *testing.T) {
	t.Setenv("PASSKEY_PORT", "7443")
	t.Setenv("PASSKEY_LOG_LEVEL", "debug")

	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Server.Port != 7443 {
		t.Errorf("Port = %d, want 7443", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadServeConfig_FlagOverride(t *testing.T) {
	flags := serveCmd.Flags()
	if err := flags.Set("port", "6443"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = flags.Set("port", "0")
	})

	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Server.Port != 6443 {
		t.Errorf("Port = %d, want 6443", cfg.Server.Port)
	}
}

func TestLoadServeConfig_InvalidOverride(t *testing.T) {
	t.Setenv("PASSKEY_LOG_LEVEL", "chatty")

	if _, err := loadServeConfig(); err == nil {
		t.Error("expected validation error for invalid log level")
	}
}
