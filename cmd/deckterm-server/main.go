package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/deckterm/deckterm/internal/config"
	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/ptyhost"
	"github.com/deckterm/deckterm/internal/server"
	flag "github.com/spf13/pflag"
)

// serverLogSize bounds the log history served by get_log.
const serverLogSize = 256 * 1024

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "Path to config file")
	host := flag.String("host", "", "Override listen host")
	port := flag.IntP("port", "p", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Run the built-in echo program instead of a shell")
	token := flag.String("token", "", "Require this auth token from clients")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	if err := run(*configPath, func(cfg *config.Config) {
		if *host != "" {
			cfg.Server.Host = *host
		}
		if *port > 0 {
			cfg.Server.Port = *port
		}
		if *mockMode {
			cfg.Terminal.Mock = true
		}
		if *token != "" {
			cfg.Server.AuthToken = *token
		}
		if *logLevel != "" {
			cfg.Log.Level = *logLevel
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "deckterm-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, override func(*config.Config)) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logs := ptyhost.NewRingBuffer(serverLogSize)
	logger := logging.New(io.MultiWriter(os.Stderr, logs), cfg.Log.Level, "server")

	opts := ptyhost.Options{
		BacklogSize:   cfg.Terminal.BacklogSize,
		DefaultSize:   ptyhost.Size{Rows: cfg.Terminal.DefaultRows, Cols: cfg.Terminal.DefaultCols},
		MaxSessions:   cfg.Terminal.MaxSessions,
		OrphanTimeout: cfg.Terminal.OrphanTimeout,
		ReapInterval:  cfg.Terminal.ReapInterval,
		Logger:        logger,
	}
	if cfg.Terminal.Mock {
		logger.Info("starting in mock mode")
	} else {
		shell, args := cfg.ShellCommand()
		logger.Info("starting with shell", "shell", shell, "args", args)
		opts.Spawn = ptyhost.ShellSpawner(shell, args, cfg.ShellEnv())
	}

	host := ptyhost.NewHost(opts)
	defer host.Close()

	srv := server.NewServer(host, logs, server.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxConnections: cfg.Server.MaxConnections,
		Logger:         logger,
	})
	defer srv.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go host.Run(ctx)

	err = server.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, srv.Handler(), logger)
	logger.Info("shutting down")
	return err
}
