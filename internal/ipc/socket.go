package ipc

import (
	"os"
	"path/filepath"
)

// SocketDir returns the directory for the control socket.
// Prefers $XDG_RUNTIME_DIR/promptpilot/, falls back to
// ~/.local/share/promptpilot/.
func SocketDir() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "promptpilot"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "promptpilot"), nil
}

// SocketPath returns the full path to the control socket file.
func SocketPath() (string, error) {
	dir, err := SocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "control.sock"), nil
}

// PidPath returns the full path to the PID file.
func PidPath() (string, error) {
	dir, err := SocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "control.pid"), nil
}
