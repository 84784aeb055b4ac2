package daemon

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/promptpilot/promptpilot/internal/autopilot"
	"github.com/promptpilot/promptpilot/internal/client"
	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/ipc"
	"github.com/promptpilot/promptpilot/internal/policy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testEngine(t *testing.T) *autopilot.Engine {
	t.Helper()
	noop := func(ctx context.Context, _ string) error { return nil }
	return autopilot.New(autopilot.Options{
		Policy: policy.Default(),
		Inject: noop,
		Route:  func(ctx context.Context, _ event.PromptEvent) error { return nil },
		Notify: noop,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func startServer(t *testing.T, s *Server) (string, func()) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "control.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	return sockPath, func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	}
}

func TestStatusOverSocket(t *testing.T) {
	s := New(testEngine(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	sockPath, shutdown := startServer(t, s)
	defer shutdown()

	resp, err := client.SendTo(sockPath, ipc.OpStatus, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "running" || resp.Error != "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPauseResumeOverSocket(t *testing.T) {
	e := testEngine(t)
	s := New(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sockPath, shutdown := startServer(t, s)
	defer shutdown()

	resp, err := client.SendTo(sockPath, ipc.OpPause, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "paused" || resp.Error != "" {
		t.Fatalf("pause resp = %+v", resp)
	}
	if e.State() != autopilot.StatePaused {
		t.Fatalf("engine state = %s", e.State())
	}

	// Invalid transition comes back as an error with current state.
	resp, err = client.SendTo(sockPath, ipc.OpPause, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" || resp.State != "paused" {
		t.Errorf("double pause resp = %+v", resp)
	}

	resp, err = client.SendTo(sockPath, ipc.OpResume, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "running" {
		t.Errorf("resume resp = %+v", resp)
	}
}

func TestStopTriggersCallback(t *testing.T) {
	e := testEngine(t)
	s := New(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
	stopped := make(chan struct{})
	s.OnStop = func() { close(stopped) }
	sockPath, shutdown := startServer(t, s)
	defer shutdown()

	resp, err := client.SendTo(sockPath, ipc.OpStop, "shutdown-test")
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "stopped" || resp.Error != "" {
		t.Errorf("stop resp = %+v", resp)
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Error("OnStop was not called")
	}
}

func TestUnknownOp(t *testing.T) {
	s := New(testEngine(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	sockPath, shutdown := startServer(t, s)
	defer shutdown()

	resp, err := client.SendTo(sockPath, "self-destruct", "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Errorf("unknown op should error: %+v", resp)
	}
}
