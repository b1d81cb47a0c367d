// Package main implements deckterm, the client side of the terminal bridge:
// a panel that hosts one remote terminal session, a raw attach mode, and a
// few diagnostics commands.
package main

import (
	"fmt"
	"os"

	"github.com/deckterm/deckterm/internal/config"
	"github.com/spf13/cobra"
)

var version = "dev"

// Global flags
var (
	configPath string
	serverURL  string
	authToken  string
	logLevel   string
	logFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deckterm",
		Short: "Remote terminal panel",
		Long: `deckterm - remote terminal panel

Connects to a deckterm-server, creates a terminal session and renders it in a
small panel. Every start mounts a fresh session; it is released on exit.`,
		Example: `  # Open the panel against the default backend
  deckterm

  # Attach the current terminal to a new remote session (ctrl+] detaches)
  deckterm attach

  # Print the backend log
  deckterm logs --url ws://devbox:3555/ws --token secret

  # List sessions hosted by the backend
  deckterm sessions`,
		Version: version,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPanel()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "WebSocket URL of the backend (default: from config)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Auth token, if the backend requires one")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write client logs to this file")

	panelCmd := &cobra.Command{
		Use:   "panel",
		Short: "Open the terminal panel (default)",
		Long: `Open the terminal panel

Keys are forwarded to the remote shell except ctrl+l (logs overlay) and
ctrl+q (quit). The panel reconnects with backoff when the backend goes away
and mounts a new session once it is back.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPanel()
		},
	}

	attachCmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach this terminal to a new remote session",
		Long: `Attach this terminal to a new remote session

Puts the local terminal in raw mode and bridges it to a fresh backend session
until ctrl+] is pressed or the connection drops.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runAttach()
		},
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the backend log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.OutOrStdout())
		},
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List terminal sessions hosted by the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessions(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(panelCmd, attachCmd, logsCmd, sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Client.URL = serverURL
	}
	if authToken != "" {
		cfg.Client.Token = authToken
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
