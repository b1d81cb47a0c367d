package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/app"
	"github.com/deckterm/deckterm/internal/bridge"
	"github.com/deckterm/deckterm/internal/client"
	"github.com/deckterm/deckterm/internal/config"
	"github.com/deckterm/deckterm/internal/display"
	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/deckterm/deckterm/internal/ptyhost"
)

// frontendLogSize bounds the log history shown in the panel's logs overlay.
const frontendLogSize = 128 * 1024

// clientLogger logs to sink and, with --log-file, to that file as well. The
// returned func closes the file.
func clientLogger(cfg *config.Config, sink io.Writer) (*log.Logger, func(), error) {
	if logFile == "" {
		return logging.New(sink, cfg.Log.Level, "deckterm"), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New(io.MultiWriter(sink, f), cfg.Log.Level, "deckterm"), func() { f.Close() }, nil
}

func bridgeOptions(cfg *config.Config) bridge.Options {
	return bridge.Options{
		CallTimeout:        cfg.Client.CallTimeout,
		UnsubscribeTimeout: cfg.Client.UnsubscribeTimeout,
		InputQueue:         cfg.Client.InputQueue,
	}
}

func runPanel() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ring := ptyhost.NewRingBuffer(frontendLogSize)
	logger, closeLog, err := clientLogger(cfg, ring)
	if err != nil {
		return err
	}
	defer closeLog()

	ws := client.NewWSClient(cfg.Client.URL, cfg.Client.Token, logger)
	m := app.New(ws, app.Options{
		Bridge: bridgeOptions(cfg),
		Rows:   cfg.Terminal.DefaultRows,
		Cols:   cfg.Terminal.DefaultCols,
		Logger: logger,
		Log:    ring,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("panel: %w", err)
	}
	return nil
}

func runAttach() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tty := display.NewTTY(os.Stdin, os.Stdout, int(os.Stdin.Fd()))
	if !tty.IsTerminal() {
		return errors.New("attach needs an interactive terminal")
	}

	// Raw mode owns the screen, so logs only go to --log-file.
	logger, closeLog, err := clientLogger(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws, err := dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := tty.MakeRaw(); err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer tty.Restore()

	b := bridge.New(ws, tty, bridgeOptions(cfg))
	defer b.Stop(context.Background())

	if err := b.Start(ctx); err != nil {
		return err
	}
	stopResize := watchResize(ctx, b, logger)
	defer stopResize()

	detached := make(chan error, 1)
	go func() { detached <- tty.Run() }()

	select {
	case err := <-detached:
		return err
	case <-ws.Done():
		if err := ws.Err(); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		return errors.New("connection closed by backend")
	}
}

func dial(ctx context.Context, cfg *config.Config, logger *log.Logger) (*client.WSClient, error) {
	ws := client.NewWSClient(cfg.Client.URL, cfg.Client.Token, logger)
	ctx, cancel := context.WithTimeout(ctx, cfg.Client.DialTimeout)
	defer cancel()
	if err := ws.Connect(ctx); err != nil {
		return nil, err
	}
	return ws, nil
}

func runLogs(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	ws, err := dial(ctx, cfg, logging.Discard())
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Client.CallTimeout)
	defer cancel()
	var text string
	if err := ws.Call(ctx, protocol.MethodGetLog, &text); err != nil {
		return err
	}
	_, err = io.WriteString(out, text)
	return err
}

func runSessions(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.CallTimeout)
	defer cancel()

	baseURL, err := client.BaseURL(cfg.Client.URL)
	if err != nil {
		return err
	}
	hc := client.NewHTTPClient(baseURL, cfg.Client.Token)
	sessions, err := hc.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}

	fmt.Fprintln(out, sessionTable(sessions))
	return nil
}

func sessionTable(sessions []protocol.SessionInfo) string {
	t := table.New().Headers("ID", "PID", "SIZE", "SUBS", "BACKLOG", "RSS", "CPU", "IDLE", "STATE")
	for _, s := range sessions {
		state := "running"
		if s.Exited {
			state = "exited"
		}
		pid, rss, cpu := "-", "-", "-"
		if s.PID > 0 {
			pid = fmt.Sprint(s.PID)
		}
		if s.RSSBytes > 0 {
			rss = fmt.Sprintf("%.1fM", float64(s.RSSBytes)/(1<<20))
			cpu = fmt.Sprintf("%.1f%%", s.CPUPercent)
		}
		t.Row(
			s.ID,
			pid,
			fmt.Sprintf("%dx%d", s.Rows, s.Cols),
			fmt.Sprint(s.Subscribers),
			fmt.Sprint(s.BacklogBytes),
			rss,
			cpu,
			time.Since(s.LastActivity).Round(time.Second).String(),
			state,
		)
	}
	return t.String()
}
