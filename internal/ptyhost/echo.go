package ptyhost

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

const (
	echoBanner = "deckterm mock terminal\r\n"
	echoPrompt = "$ "
)

// EchoSpawner returns a Spawner for an in-process line echo program. It needs
// no pty, which makes it useful for development and tests. It understands a
// few commands: "size" prints the geometry and "exit" ends the process; any
// other line is printed back.
func EchoSpawner() Spawner {
	return func(size Size) (Process, error) {
		if !size.Valid() {
			return nil, fmt.Errorf("invalid size %dx%d", size.Rows, size.Cols)
		}
		p := &echoProcess{size: size}
		p.cond = sync.NewCond(&p.mu)
		p.out.WriteString(echoBanner + echoPrompt)
		return p, nil
	}
}

type echoProcess struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    bytes.Buffer
	line   []byte
	size   Size
	closed bool
}

func (p *echoProcess) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.out.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.out.Len() == 0 {
		return 0, io.EOF
	}
	return p.out.Read(b)
}

func (p *echoProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}

	for _, c := range b {
		switch c {
		case '\r', '\n':
			p.out.WriteString("\r\n")
			p.run(string(p.line))
			p.line = p.line[:0]
			if p.closed {
				break
			}
			p.out.WriteString(echoPrompt)
		case 0x7f, '\b':
			if len(p.line) > 0 {
				p.line = p.line[:len(p.line)-1]
				p.out.WriteString("\b \b")
			}
		case 0x03:
			p.out.WriteString("^C\r\n" + echoPrompt)
			p.line = p.line[:0]
		default:
			p.line = append(p.line, c)
			p.out.WriteByte(c)
		}
		if p.closed {
			break
		}
	}
	p.cond.Broadcast()
	return len(b), nil
}

// run executes one input line. Called with mu held.
func (p *echoProcess) run(line string) {
	switch line {
	case "":
	case "size":
		fmt.Fprintf(&p.out, "%dx%d\r\n", p.size.Rows, p.size.Cols)
	case "exit":
		p.out.WriteString("logout\r\n")
		p.closed = true
	default:
		p.out.WriteString(line + "\r\n")
	}
}

func (p *echoProcess) Resize(size Size) error {
	if !size.Valid() {
		return fmt.Errorf("invalid size %dx%d", size.Rows, size.Cols)
	}
	p.mu.Lock()
	p.size = size
	p.mu.Unlock()
	return nil
}

func (p *echoProcess) PID() int {
	return 0
}

func (p *echoProcess) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}
