package capture

import (
	"errors"
	"testing"
	"time"
)

func TestRecorder_StartStopWithOverrideCommand(t *testing.T) {
	r := NewFFmpegRecorder(Options{
		CommandOverride: "head -c 6400 /dev/zero; exec sleep 5 > /dev/null",
	})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.Recording() {
		t.Fatalf("expected recording flag true after start")
	}
	// Give the reader time to drain the produced bytes.
	time.Sleep(100 * time.Millisecond)
	payload, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.Recording() {
		t.Fatalf("expected recording flag false after stop")
	}
	if len(payload) != 6400 {
		t.Fatalf("expected 6400 bytes, got %d", len(payload))
	}
}

func TestRecorder_LateBurstSurvivesStop(t *testing.T) {
	// Audio written just before Stop must still land in the payload: the
	// burst arrives after the startup grace window and Stop follows right
	// behind it, so any close racing the reader shows up as missing bytes.
	r := NewFFmpegRecorder(Options{
		CommandOverride: "sleep 0.3; head -c 64000 /dev/zero",
	})
	for i := 0; i < 10; i++ {
		if err := r.Start(); err != nil {
			t.Fatalf("iteration %d: start: %v", i, err)
		}
		time.Sleep(450 * time.Millisecond)
		payload, err := r.Stop()
		if err != nil {
			t.Fatalf("iteration %d: stop: %v", i, err)
		}
		if len(payload) != 64000 {
			t.Fatalf("iteration %d: got %d bytes, want 64000", i, len(payload))
		}
	}
}

func TestRecorder_StartIsIdempotent(t *testing.T) {
	r := NewFFmpegRecorder(Options{
		CommandOverride: "sleep 5",
	})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRecorder_StopWithoutStartIsNoop(t *testing.T) {
	r := NewFFmpegRecorder(Options{CommandOverride: "sleep 5"})
	payload, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected nil payload, got %d bytes", len(payload))
	}
}

func TestRecorder_PermissionDeniedSurfacesAtStart(t *testing.T) {
	r := NewFFmpegRecorder(Options{
		CommandOverride: "echo 'device: Permission denied' >&2; exit 1",
	})
	err := r.Start()
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if r.Recording() {
		t.Fatalf("recording flag must stay false on failed start")
	}
}

func TestRecorder_EarlyExitWithoutPermissionHint(t *testing.T) {
	r := NewFFmpegRecorder(Options{
		CommandOverride: "echo 'no such device' >&2; exit 1",
	})
	err := r.Start()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestRecorder_MissingBinary(t *testing.T) {
	r := NewFFmpegRecorder(Options{FFmpegPath: "definitely-not-a-real-ffmpeg"})
	err := r.Start()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}
