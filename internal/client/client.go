// Package client sends control operations to a running engine.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/promptpilot/promptpilot/internal/ipc"
)

const dialTimeout = 2 * time.Second

// Send connects to the control socket at the standard path and
// performs one operation.
func Send(op, triggeredBy string) (ipc.ControlResponse, error) {
	sockPath, err := ipc.SocketPath()
	if err != nil {
		return ipc.ControlResponse{}, err
	}
	return SendTo(sockPath, op, triggeredBy)
}

// SendTo performs one control operation against an explicit socket.
func SendTo(sockPath, op, triggeredBy string) (ipc.ControlResponse, error) {
	conn, err := net.DialTimeout("unix", sockPath, dialTimeout)
	if err != nil {
		return ipc.ControlResponse{}, fmt.Errorf("no running instance at %s: %w", sockPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(dialTimeout))
	if err := ipc.WriteRequest(conn, ipc.ControlRequest{Op: op, TriggeredBy: triggeredBy}); err != nil {
		return ipc.ControlResponse{}, err
	}
	return ipc.ReadResponse(conn)
}
