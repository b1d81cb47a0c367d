// Package app is the panel: a Bubble Tea program that mounts one terminal
// session through the bridge, renders it, and remounts a fresh session after
// the connection to the backend is restored.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/bridge"
	"github.com/deckterm/deckterm/internal/display"
	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/deckterm/deckterm/internal/theme"
	"github.com/deckterm/deckterm/internal/views/logs"
	"github.com/deckterm/deckterm/internal/views/status"
)

const (
	refreshInterval   = 100 * time.Millisecond
	reconnectBase     = 1 * time.Second
	reconnectMax      = 30 * time.Second
	statusBarHeight   = 3
	helpLineHeight    = 1
	defaultLogTimeout = 5 * time.Second
)

// Conn is the backend connection the panel mounts sessions on.
type Conn interface {
	bridge.Transport
	ConnectWithRetry(ctx context.Context) error
	Done() <-chan struct{}
	Close() error
}

// LogSource exposes the text of the frontend log.
type LogSource interface {
	Bytes() []byte
}

// Options configures the panel.
type Options struct {
	// Bridge is passed to every mounted session. Its Logger is replaced by
	// Logger.
	Bridge bridge.Options

	// Rows and Cols size the terminal until the first window size message.
	Rows, Cols int

	// Logger receives panel and bridge logs.
	Logger *log.Logger

	// Log is shown as the frontend log in the logs overlay.
	Log LogSource
}

type (
	connectedMsg    struct{}
	connectErrMsg   struct{ err error }
	reconnectMsg    struct{}
	disconnectedMsg struct{ gen int }
	startedMsg      struct {
		id  string
		err error
	}
	backendLogMsg struct {
		text string
		err  error
	}
	refitMsg struct{ err error }
	tickMsg  time.Time
)

// Model is the root Bubble Tea model.
type Model struct {
	conn   Conn
	opts   Options
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	screen  *display.Screen
	session *bridge.Bridge
	gen     int // bumped on every connect, so stale disconnects are ignored
	settled bool
	version uint64

	connected bool
	attempt   int
	overlay   bool

	statusBar status.Model
	logs      logs.Model
	viewport  viewport.Model
	spinner   spinner.Model
}

// New creates the root model.
func New(conn Conn, opts Options) Model {
	if opts.Rows <= 0 {
		opts.Rows = 15
	}
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	opts.Bridge.Logger = opts.Logger

	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorReady)

	return Model{
		conn:      conn,
		opts:      opts,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		screen:    display.NewScreen(opts.Rows, opts.Cols),
		statusBar: status.New(),
		logs:      logs.New(),
		viewport:  viewport.New(opts.Cols, opts.Rows),
		spinner:   sp,
	}
}

// Screen returns the display sessions render into.
func (m Model) Screen() *display.Screen {
	return m.screen
}

// Init starts connecting to the backend.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.connect(), m.spinner.Tick, tick())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case connectedMsg:
		m.connected = true
		m.attempt = 0
		m.gen++
		m.statusBar.Connected = true
		m.statusBar.Attempt = 0
		return m, m.mount()

	case connectErrMsg:
		// Only a cancelled context ends ConnectWithRetry.
		m.logger.Debug("connect abandoned", "err", msg.err)
		return m, nil

	case reconnectMsg:
		return m, m.connect()

	case disconnectedMsg:
		if msg.gen != m.gen || !m.connected {
			return m, nil
		}
		m.connected = false
		m.attempt++
		m.statusBar.Connected = false
		m.statusBar.Attempt = m.attempt
		m.unmount()
		delay := reconnectDelay(m.attempt)
		m.logger.Warn("backend connection lost", "retry", delay)
		return m, tea.Tick(delay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case startedMsg:
		if m.session == nil || msg.id != m.session.ID() {
			return m, nil
		}
		m.settled = true
		m.syncStatus()
		m.refreshScreen()
		if msg.err != nil {
			return m, nil
		}
		return m, m.refit()

	case refitMsg:
		if msg.err != nil {
			m.logger.Warn("resize failed", "err", msg.err)
		}
		return m, nil

	case backendLogMsg:
		if msg.err != nil {
			m.logs.BackendErr = msg.err.Error()
		} else {
			m.logs.SetBackend(msg.text)
		}
		return m, nil

	case spinner.TickMsg:
		if m.settled {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.syncStatus()
		m.refreshScreen()
		if m.overlay && m.opts.Log != nil {
			m.logs.SetFrontend(string(m.opts.Log.Bytes()))
		}
		return m, tick()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m.quit()
	}

	if m.overlay {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Logs):
			m.overlay = false
		case key.Matches(msg, m.keys.Switch):
			m.logs.Toggle()
			if m.logs.Source == logs.Backend {
				return m, m.fetchBackendLog()
			}
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchBackendLog()
		case key.Matches(msg, m.keys.Up):
			m.logs.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.logs.ScrollDown(1)
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.Logs) {
		m.overlay = true
		if m.opts.Log != nil {
			m.logs.SetFrontend(string(m.opts.Log.Bytes()))
		}
		return m, nil
	}

	if data := keyBytes(msg); data != "" {
		m.screen.Input(data)
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.unmount()
	m.cancel()
	if m.conn != nil {
		m.conn.Close()
	}
	return m, tea.Quit
}

func (m Model) resize(width, height int) (tea.Model, tea.Cmd) {
	m.width = width
	m.height = height
	m.statusBar.Width = width

	rows := max(height-statusBarHeight-helpLineHeight, 1)
	cols := max(width, 1)
	m.viewport.Width = cols
	m.viewport.Height = rows
	m.screen.SetSize(rows, cols)
	m.statusBar.Rows, m.statusBar.Cols = rows, cols
	m.refreshScreen()

	if m.session == nil || !m.settled {
		return m, nil
	}
	return m, m.refit()
}

// mount starts a new session on the current connection.
func (m *Model) mount() tea.Cmd {
	b := bridge.New(m.conn, m.screen, m.opts.Bridge)
	m.session = b
	m.settled = false
	m.syncStatus()
	m.logger.Info("mounting terminal", "session", b.ID())

	ctx := m.ctx
	done := m.conn.Done()
	gen := m.gen
	return tea.Batch(
		func() tea.Msg {
			return startedMsg{id: b.ID(), err: b.Start(ctx)}
		},
		func() tea.Msg {
			select {
			case <-done:
				return disconnectedMsg{gen: gen}
			case <-ctx.Done():
				return nil
			}
		},
		m.spinner.Tick,
	)
}

// unmount stops the current session, if any. The display is cleared before
// the next session writes to it.
func (m *Model) unmount() {
	if m.session == nil {
		return
	}
	m.session.Stop(context.Background())
	m.session = nil
	m.settled = false
	m.syncStatus()
}

func (m Model) connect() tea.Cmd {
	ctx, conn := m.ctx, m.conn
	return func() tea.Msg {
		if err := conn.ConnectWithRetry(ctx); err != nil {
			return connectErrMsg{err: err}
		}
		return connectedMsg{}
	}
}

func (m Model) refit() tea.Cmd {
	b, ctx := m.session, m.ctx
	return func() tea.Msg {
		return refitMsg{err: b.Refit(ctx)}
	}
}

func (m Model) fetchBackendLog() tea.Cmd {
	conn, ctx := m.conn, m.ctx
	timeout := m.opts.Bridge.CallTimeout
	if timeout <= 0 {
		timeout = defaultLogTimeout
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var text string
		err := conn.Call(ctx, protocol.MethodGetLog, &text)
		return backendLogMsg{text: text, err: err}
	}
}

func (m *Model) syncStatus() {
	if m.session == nil {
		m.statusBar.SetSession("", bridge.Closed.String())
		return
	}
	m.statusBar.SetSession(m.session.ID(), m.session.State().String())
}

func (m *Model) refreshScreen() {
	v := m.screen.Version()
	if v == m.version {
		return
	}
	m.version = v
	m.viewport.SetContent(strings.Join(m.screen.Lines(m.viewport.Height), "\n"))
	m.viewport.GotoBottom()
}

// View renders the panel.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	bodyHeight := max(m.height-statusBarHeight-helpLineHeight, 1)
	var body string
	switch {
	case m.overlay:
		body = m.logs.View(m.width, bodyHeight)
	case m.session == nil || !m.settled:
		body = lipgloss.NewStyle().Height(bodyHeight).
			Render(m.spinner.View() + " Loading terminal...")
	default:
		body = m.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  ctrl+l:logs  ctrl+q:quit"),
	)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// reconnectDelay doubles from reconnectBase per attempt, capped at
// reconnectMax.
func reconnectDelay(attempt int) time.Duration {
	delay := reconnectBase
	for i := 1; i < attempt && delay < reconnectMax; i++ {
		delay *= 2
	}
	return min(delay, reconnectMax)
}
