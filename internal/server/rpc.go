package server

import (
	"fmt"

	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/deckterm/deckterm/internal/ptyhost"
)

// dispatch runs one call for c and builds its result envelope.
func (s *Server) dispatch(c *conn, msg protocol.Message) protocol.Message {
	result, err := s.invoke(c, msg)
	if err != nil {
		c.logger.Debug("call failed", "method", msg.Method, "err", err)
		return protocol.NewErrorResult(msg.ID, err)
	}
	res, err := protocol.NewResult(msg.ID, result)
	if err != nil {
		return protocol.NewErrorResult(msg.ID, err)
	}
	return res
}

func (s *Server) invoke(c *conn, msg protocol.Message) (any, error) {
	switch msg.Method {
	case protocol.MethodCreateTerminal:
		var id string
		if err := protocol.DecodeArgs(msg.Args, &id); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Method, err)
		}
		return s.host.Create(id), nil

	case protocol.MethodSendTerminalInput:
		var id, data string
		if err := protocol.DecodeArgs(msg.Args, &id, &data); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Method, err)
		}
		c.logger.Debug("input", "session", id, "data", logging.Preview(data))
		return nil, s.host.Input(id, data)

	case protocol.MethodSubscribeTerminal:
		var id string
		if err := protocol.DecodeArgs(msg.Args, &id); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Method, err)
		}
		return s.host.Subscribe(id, c), nil

	case protocol.MethodSendTerminalBuffer:
		var id string
		if err := protocol.DecodeArgs(msg.Args, &id); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Method, err)
		}
		return s.host.SendBacklog(id, c), nil

	case protocol.MethodChangeWindowSize:
		var id string
		var rows, cols int
		if err := protocol.DecodeArgs(msg.Args, &id, &rows, &cols); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Method, err)
		}
		return nil, s.host.Resize(id, ptyhost.Size{Rows: rows, Cols: cols})

	case protocol.MethodUnsubscribeTerminal:
		var id string
		if err := protocol.DecodeArgs(msg.Args, &id); err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Method, err)
		}
		s.host.Release(id, c)
		return nil, nil

	case protocol.MethodGetLog:
		if s.logs == nil {
			return "", nil
		}
		return string(s.logs.Bytes()), nil

	default:
		return nil, fmt.Errorf("unknown method %q", msg.Method)
	}
}
