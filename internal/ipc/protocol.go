package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frame tags identify the type of each control message.
const (
	TagRequest  byte = 0x01 // C→S: JSON-encoded ControlRequest
	TagResponse byte = 0x10 // S→C: JSON-encoded ControlResponse
)

// maxFrameSize bounds a frame payload; control messages are tiny, so
// anything larger is a protocol violation.
const maxFrameSize = 1 << 16

// Control operations.
const (
	OpStatus = "status"
	OpPause  = "pause"
	OpResume = "resume"
	OpStop   = "stop"
)

// ControlRequest asks the running engine to report or change state.
type ControlRequest struct {
	Op          string `json:"op"`
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// ControlResponse reports the engine state after the operation.
type ControlResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// WriteFrame writes a tagged frame: [tag:1][len:4 big-endian][payload].
func WriteFrame(w io.Writer, tag byte, payload []byte) error {
	var header [5]byte
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one tagged frame, returning the tag and payload.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := binary.BigEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("frame too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return header[0], payload, nil
}

// WriteRequest sends a control request.
func WriteRequest(w io.Writer, req ControlRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal control request: %w", err)
	}
	return WriteFrame(w, TagRequest, data)
}

// ReadRequest reads a control request frame.
func ReadRequest(r io.Reader) (ControlRequest, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return ControlRequest{}, err
	}
	if tag != TagRequest {
		return ControlRequest{}, fmt.Errorf("unexpected frame tag 0x%02x", tag)
	}
	var req ControlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ControlRequest{}, fmt.Errorf("decode control request: %w", err)
	}
	return req, nil
}

// WriteResponse sends a control response.
func WriteResponse(w io.Writer, resp ControlResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal control response: %w", err)
	}
	return WriteFrame(w, TagResponse, data)
}

// ReadResponse reads a control response frame.
func ReadResponse(r io.Reader) (ControlResponse, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return ControlResponse{}, err
	}
	if tag != TagResponse {
		return ControlResponse{}, fmt.Errorf("unexpected frame tag 0x%02x", tag)
	}
	var resp ControlResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return ControlResponse{}, fmt.Errorf("decode control response: %w", err)
	}
	return resp, nil
}
