// Package ptyhost runs terminal sessions for the deckterm backend. Each
// session is a process on a pseudo-terminal (or an in-process echo program
// in mock mode) whose output is kept in a backlog and fanned out to
// subscribers.
package ptyhost

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Size is a terminal geometry in character cells.
type Size struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Valid reports whether both dimensions fit a pty window.
func (s Size) Valid() bool {
	return s.Rows > 0 && s.Cols > 0 && s.Rows <= 0xffff && s.Cols <= 0xffff
}

// Process is a program attached to a terminal. Read returns its output and
// Write delivers input. Read fails once the program has exited.
type Process interface {
	io.ReadWriter
	Resize(size Size) error
	PID() int
	// Close kills the program and releases the terminal. It is idempotent.
	Close() error
}

// Spawner starts a new process with the given initial geometry.
type Spawner func(size Size) (Process, error)

// ShellSpawner returns a Spawner that runs shell with args on a new pty.
// env entries are appended to the server's own environment.
func ShellSpawner(shell string, args, env []string) Spawner {
	return func(size Size) (Process, error) {
		if !size.Valid() {
			return nil, fmt.Errorf("invalid size %dx%d", size.Rows, size.Cols)
		}
		cmd := exec.Command(shell, args...)
		cmd.Env = append(os.Environ(), env...)

		f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(size.Rows), Cols: uint16(size.Cols)})
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", shell, err)
		}

		p := &ptyProcess{cmd: cmd, pty: f, exited: make(chan struct{})}
		go func() {
			_ = cmd.Wait()
			close(p.exited)
		}()
		return p, nil
	}
}

type ptyProcess struct {
	cmd *exec.Cmd
	pty *os.File

	exited chan struct{}

	closeOnce sync.Once
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	return p.pty.Read(b)
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	return p.pty.Write(b)
}

func (p *ptyProcess) Resize(size Size) error {
	if !size.Valid() {
		return fmt.Errorf("invalid size %dx%d", size.Rows, size.Cols)
	}
	return pty.Setsize(p.pty, &pty.Winsize{Rows: uint16(size.Rows), Cols: uint16(size.Cols)})
}

func (p *ptyProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		select {
		case <-p.exited:
		default:
			if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = fmt.Errorf("kill %d: %w", p.cmd.Process.Pid, kerr)
			}
		}
		if cerr := p.pty.Close(); cerr != nil && err == nil {
			err = cerr
		}
		<-p.exited
	})
	return err
}
