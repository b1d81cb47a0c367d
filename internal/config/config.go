package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRows is the height of the sidebar panel.
const DefaultRows = 15

const (
	DefaultCols        = 80
	DefaultBacklogSize = 256 * 1024
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Terminal TerminalConfig `yaml:"terminal"`
	Client   ClientConfig   `yaml:"client"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

// TerminalConfig controls the backend's pseudo-terminal sessions.
type TerminalConfig struct {
	Shell         string            `yaml:"shell"`
	Args          []string          `yaml:"args"`
	Env           map[string]string `yaml:"env"`
	BacklogSize   int               `yaml:"backlog_size"`
	DefaultRows   int               `yaml:"default_rows"`
	DefaultCols   int               `yaml:"default_cols"`
	MaxSessions   int               `yaml:"max_sessions"`
	OrphanTimeout time.Duration     `yaml:"orphan_timeout"`
	ReapInterval  time.Duration     `yaml:"reap_interval"`
	Mock          bool              `yaml:"mock"`
}

// ClientConfig controls the bridge and its WebSocket transport.
type ClientConfig struct {
	URL                string        `yaml:"url"`
	Token              string        `yaml:"token"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	UnsubscribeTimeout time.Duration `yaml:"unsubscribe_timeout"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	InputQueue         int           `yaml:"input_queue"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3555,
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			Env: map[string]string{
				"TERM": "xterm-256color",
			},
			BacklogSize:   DefaultBacklogSize,
			DefaultRows:   DefaultRows,
			DefaultCols:   DefaultCols,
			MaxSessions:   16,
			OrphanTimeout: 30 * time.Second,
			ReapInterval:  5 * time.Second,
		},
		Client: ClientConfig{
			URL:                "ws://127.0.0.1:3555/ws",
			CallTimeout:        10 * time.Second,
			UnsubscribeTimeout: 2 * time.Second,
			DialTimeout:        5 * time.Second,
			InputQueue:         256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file does
// not exist. An empty path also yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case c.Server.MaxConnections < 0:
		return fmt.Errorf("server.max_connections must not be negative")
	case c.Terminal.BacklogSize <= 0:
		return fmt.Errorf("terminal.backlog_size must be positive")
	case c.Terminal.DefaultRows <= 0 || c.Terminal.DefaultCols <= 0:
		return fmt.Errorf("terminal.default_rows and default_cols must be positive")
	case c.Terminal.MaxSessions < 0:
		return fmt.Errorf("terminal.max_sessions must not be negative")
	case c.Terminal.ReapInterval <= 0:
		return fmt.Errorf("terminal.reap_interval must be positive")
	case c.Client.CallTimeout <= 0:
		return fmt.Errorf("client.call_timeout must be positive")
	case c.Client.InputQueue <= 0:
		return fmt.Errorf("client.input_queue must be positive")
	}
	return nil
}

// ShellCommand returns the program and arguments used for new sessions. An
// empty shell setting falls back to $SHELL, then /bin/sh.
func (c *Config) ShellCommand() (string, []string) {
	shell := c.Terminal.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return shell, c.Terminal.Args
}

// ShellEnv returns the extra session environment as sorted KEY=VALUE pairs.
func (c *Config) ShellEnv() []string {
	env := make([]string, 0, len(c.Terminal.Env))
	for k, v := range c.Terminal.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
