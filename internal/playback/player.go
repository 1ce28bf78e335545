package playback

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

// Options configure an FFplayPlayer.
type Options struct {
	// FFplayPath is the playback binary. Defaults to "ffplay" on PATH.
	FFplayPath string
	// CommandOverride replaces the ffplay invocation with an arbitrary shell
	// command reading the audio payload from stdin. Used by tests.
	CommandOverride string
	Logger          *logging.Logger
}

// FFplayPlayer plays synthesized-speech payloads through an ffplay
// subprocess, one process per payload. Overlapping payloads play
// independently; there is no queue and no cutoff.
//
// Playback is an enhancement: every failure is logged and swallowed. When the
// player cannot start, the payload is parked and replayed on the next user
// interaction via PlayPending.
type FFplayPlayer struct {
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	active  int
	pending [][]byte
}

// NewFFplayPlayer constructs a player with defaults filled in.
func NewFFplayPlayer(opts Options) *FFplayPlayer {
	if opts.FFplayPath == "" {
		opts.FFplayPath = "ffplay"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &FFplayPlayer{opts: opts, log: opts.Logger.WithComponent("playback")}
}

// Playing reports whether at least one payload is still being played.
func (p *FFplayPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active > 0
}

// Play starts playback of one payload. It never returns an error to the
// caller; failures are logged and the payload is parked for PlayPending.
func (p *FFplayPlayer) Play(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	cmd, err := p.buildCommand()
	if err != nil {
		p.park(audio, err)
		return nil
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.park(audio, err)
		return nil
	}
	if err := cmd.Start(); err != nil {
		p.park(audio, err)
		return nil
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()

	go func() {
		_, _ = io.Copy(stdin, bytes.NewReader(audio))
		_ = stdin.Close()
		if werr := cmd.Wait(); werr != nil {
			p.log.Warn("playback process failed", "error", werr)
		}
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()
	return nil
}

// PlayPending retries payloads parked by earlier failed Play calls. Meant to
// be invoked on a user interaction, where platforms that block unprompted
// audio will allow it.
func (p *FFplayPlayer) PlayPending() {
	p.mu.Lock()
	parked := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, audio := range parked {
		_ = p.Play(audio)
	}
}

// PendingCount reports how many payloads are parked.
func (p *FFplayPlayer) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *FFplayPlayer) park(audio []byte, cause error) {
	p.log.Warn("playback deferred", "error", cause)
	p.mu.Lock()
	p.pending = append(p.pending, audio)
	p.mu.Unlock()
}

func (p *FFplayPlayer) buildCommand() (*exec.Cmd, error) {
	if override := strings.TrimSpace(p.opts.CommandOverride); override != "" {
		return exec.Command("/bin/sh", "-lc", override), nil
	}
	path, err := exec.LookPath(p.opts.FFplayPath)
	if err != nil {
		return nil, fmt.Errorf("%s not found", p.opts.FFplayPath)
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-autoexit",
		"-nodisp",
		"-i", "-",
	}
	return exec.Command(path, args...), nil
}
