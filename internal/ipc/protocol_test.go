package ipc

import (
	"bytes"
	"strings"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := ControlRequest{Op: OpPause, TriggeredBy: "operator"}
	if err := WriteRequest(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("round trip: got %+v, want %+v", got, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := ControlResponse{State: "paused"}
	if err := WriteResponse(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("round trip: got %+v, want %+v", got, want)
	}
}

func TestReadRequestRejectsWrongTag(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResponse(&buf, ControlResponse{State: "running"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadRequest(&buf); err == nil || !strings.Contains(err.Error(), "unexpected frame tag") {
		t.Fatalf("got %v, want tag error", err)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	data := []byte{TagRequest, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, _, err := ReadFrame(bytes.NewReader(data)); err == nil || !strings.Contains(err.Error(), "frame too large") {
		t.Fatalf("got %v, want size error", err)
	}
}
