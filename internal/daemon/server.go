// Package daemon serves the control socket through which a running
// engine is paused, resumed, stopped, or inspected.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/promptpilot/promptpilot/internal/autopilot"
	"github.com/promptpilot/promptpilot/internal/ipc"
)

// Server accepts control connections and applies their operations to
// the engine. OnStop, when set, is called once after a stop operation
// succeeds, so the surrounding process can wind down its event loop.
type Server struct {
	engine *autopilot.Engine
	logger *slog.Logger

	OnStop func()

	stopOnce sync.Once
	active   sync.WaitGroup
}

// New creates a control server for the given engine.
func New(engine *autopilot.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Run creates a listener at the standard socket path and calls Serve.
func (s *Server) Run(ctx context.Context) error {
	sockPath, err := ipc.SocketPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(sockPath), 0700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := cleanStaleSocket(sockPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(sockPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	if err := writePidFile(); err != nil {
		ln.Close()
		return fmt.Errorf("write pid: %w", err)
	}
	defer func() {
		os.Remove(sockPath)
		if pidPath, err := ipc.PidPath(); err == nil {
			os.Remove(pidPath)
		}
	}()

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. The
// listener is closed on return. Exported for testability — tests pass
// a listener on a temp socket.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.active.Wait()
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	req, err := ipc.ReadRequest(conn)
	if err != nil {
		s.logger.Warn("control: bad request", "error", err)
		ipc.WriteResponse(conn, ipc.ControlResponse{
			State: string(s.engine.State()),
			Error: fmt.Sprintf("read request: %v", err),
		})
		return
	}

	by := req.TriggeredBy
	if by == "" {
		by = "control-socket"
	}

	var opErr error
	switch req.Op {
	case ipc.OpStatus:
		// State alone answers it.
	case ipc.OpPause:
		opErr = s.engine.Pause(by)
	case ipc.OpResume:
		opErr = s.engine.Resume(by)
	case ipc.OpStop:
		opErr = s.engine.Stop(by)
		if opErr == nil && s.OnStop != nil {
			s.stopOnce.Do(s.OnStop)
		}
	default:
		opErr = fmt.Errorf("unknown op %q", req.Op)
	}

	resp := ipc.ControlResponse{State: string(s.engine.State())}
	if opErr != nil {
		resp.Error = opErr.Error()
	}
	if err := ipc.WriteResponse(conn, resp); err != nil {
		s.logger.Warn("control: write response failed", "error", err)
	}
}
