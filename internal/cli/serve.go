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
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/server"
)

// serveViper layers serve flags over PASSKEY_* environment variables.
var serveViper = viper.New()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the passkey relying-party server",
	Long: `Starts the relying-party server and blocks until SIGINT or
SIGTERM, then drains in-flight requests before exiting.

Settings resolve in order: flags, PASSKEY_* environment variables,
the config file, built-in defaults.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("host", "", "listen host (overrides config)")
	flags.Int("port", 0, "listen port (overrides config)")
	flags.String("data-dir", "", "credential store directory (overrides config)")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides config)")

	serveViper.SetEnvPrefix("PASSKEY")
	serveViper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	serveViper.AutomaticEnv()
	for _, name := range []string{"host", "port", "data-dir", "log-level"} {
		if err := serveViper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	printVerbose("Server listening on %s", srv.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeoutSecs > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

// loadServeConfig resolves the effective configuration from the config
// file and the flag/env override layer.
func loadServeConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		printVerbose("Loaded configuration from %s", cfgFile)
	} else {
		cfg = config.Default()
	}

	if host := serveViper.GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port := serveViper.GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if dir := serveViper.GetString("data-dir"); dir != "" {
		cfg.Storage.Path = dir
	}
	if level := serveViper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
