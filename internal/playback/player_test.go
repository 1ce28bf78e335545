package playback

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPlayer_PlaysThroughOverrideCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "played.bin")
	p := NewFFplayPlayer(Options{CommandOverride: "cat > " + out})
	if err := p.Play([]byte("fake-mp3-bytes")); err != nil {
		t.Fatalf("play: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.Playing() {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Playing() {
		t.Fatalf("expected playback to finish")
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fake-mp3-bytes" {
		t.Fatalf("payload mismatch: %q", data)
	}
}

func TestPlayer_MissingBinaryParksPayload(t *testing.T) {
	p := NewFFplayPlayer(Options{FFplayPath: "definitely-not-a-real-ffplay"})
	if err := p.Play([]byte{1, 2, 3}); err != nil {
		t.Fatalf("play must swallow failures, got %v", err)
	}
	if p.PendingCount() != 1 {
		t.Fatalf("expected 1 parked payload, got %d", p.PendingCount())
	}
}

func TestPlayer_PlayPendingDrains(t *testing.T) {
	out := filepath.Join(t.TempDir(), "deferred.bin")
	p := NewFFplayPlayer(Options{FFplayPath: "definitely-not-a-real-ffplay"})
	_ = p.Play([]byte("deferred"))
	if p.PendingCount() != 1 {
		t.Fatalf("expected parked payload")
	}

	// The platform unblocks: swap in a working command and retry.
	p.opts.CommandOverride = "cat > " + out
	p.PlayPending()
	if p.PendingCount() != 0 {
		t.Fatalf("expected pending drained, got %d", p.PendingCount())
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(out); err == nil && string(data) == "deferred" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("deferred payload never played")
}

func TestPlayer_EmptyPayloadIsNoop(t *testing.T) {
	p := NewFFplayPlayer(Options{FFplayPath: "definitely-not-a-real-ffplay"})
	if err := p.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	if p.PendingCount() != 0 {
		t.Fatalf("empty payload must not be parked")
	}
}
