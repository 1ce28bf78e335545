package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

var (
	// ErrPermissionDenied means the host refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no capture device or capture tool exists.
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
)

// startupGrace is how long Start waits for the capture process to fail fast,
// so permission and device errors surface to the caller instead of at Stop.
const startupGrace = 250 * time.Millisecond

// Options configure an FFmpegRecorder.
type Options struct {
	// FFmpegPath is the capture binary. Defaults to "ffmpeg" on PATH.
	FFmpegPath string
	// Device selects the input device (avfoundation index on darwin, ALSA
	// device elsewhere). Defaults to the host default device.
	Device string
	// CommandOverride replaces the ffmpeg invocation with an arbitrary shell
	// command writing s16le mono 16kHz PCM to stdout. Used by tests and hosts
	// without ffmpeg.
	CommandOverride string
	// SampleRate defaults to 16000.
	SampleRate int
	// NoiseSuppression adds an afftdn denoise filter when supported.
	NoiseSuppression bool
	Logger           *logging.Logger
}

// FFmpegRecorder records one utterance at a time from the microphone via an
// ffmpeg subprocess, buffering encoded chunks in memory until Stop.
type FFmpegRecorder struct {
	opts Options
	log  *logging.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	recording  bool
	chunks     [][]byte
	readDone   chan struct{}
	stderrDone chan struct{}
	stderrTail *bytes.Buffer
}

// NewFFmpegRecorder constructs a recorder with defaults filled in.
func NewFFmpegRecorder(opts Options) *FFmpegRecorder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &FFmpegRecorder{opts: opts, log: opts.Logger.WithComponent("capture")}
}

// Recording reports whether an utterance is currently being captured.
func (r *FFmpegRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Start acquires the microphone and begins buffering audio. Calling Start
// while already recording is a no-op.
func (r *FFmpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return nil
	}

	cmd, err := r.buildCommand()
	if err != nil {
		return err
	}
	// The pipes are created by hand rather than via StdoutPipe: Wait closes
	// StdoutPipe's read end when the process exits, racing the reader and
	// losing whatever audio the kernel still buffers. Wait never touches
	// pipes it did not create.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("capture stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return fmt.Errorf("capture stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stdoutW.Close()
		stderr.Close()
		stderrW.Close()
		return fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, r.opts.FFmpegPath, err)
	}
	// The child holds duplicates of the write ends; dropping ours makes the
	// readers see EOF once the process exits and the buffers drain.
	stdoutW.Close()
	stderrW.Close()

	tail := &bytes.Buffer{}
	readDone := make(chan struct{})
	stderrDone := make(chan struct{})
	chunksCh := make(chan []byte, 64)

	go func() {
		defer close(stderrDone)
		defer stderr.Close()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if tail.Len() < 4096 {
				tail.WriteString(line)
				tail.WriteByte('\n')
			}
		}
	}()
	go func() {
		defer close(readDone)
		defer close(chunksCh)
		defer stdout.Close()
		reader := bufio.NewReaderSize(stdout, 64*1024)
		tmp := make([]byte, 16*1024)
		for {
			n, rerr := reader.Read(tmp)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, tmp[:n])
				chunksCh <- chunk
			}
			if rerr != nil {
				return
			}
		}
	}()

	// Fail fast if the process dies during the grace window; this is where
	// permission refusals show up with subprocess capture.
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	select {
	case err := <-waitErr:
		<-readDone
		<-stderrDone
		drainChunks(chunksCh)
		return classifyStartFailure(tail.String(), err)
	case <-time.After(startupGrace):
	}

	r.cmd = cmd
	r.chunks = nil
	r.recording = true
	r.stderrTail = tail
	r.stderrDone = stderrDone
	// Stop must see every chunk, so it waits for collection, not just the
	// pipe reader.
	collectDone := make(chan struct{})
	r.readDone = collectDone
	go func() {
		r.collect(chunksCh)
		close(collectDone)
	}()
	go func() { <-waitErr }() // reap on eventual exit
	r.log.Debug("recording started", "rate", r.opts.SampleRate)
	return nil
}

// Stop finalizes the recording into one payload and releases the device.
// Calling Stop while not recording is a no-op.
func (r *FFmpegRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, nil
	}
	r.recording = false
	cmd := r.cmd
	readDone := r.readDone
	stderrDone := r.stderrDone
	r.cmd = nil
	r.stderrDone = nil
	r.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if readDone != nil {
		<-readDone
	}
	if stderrDone != nil {
		<-stderrDone
	}

	r.mu.Lock()
	payload := concat(r.chunks)
	r.chunks = nil
	tail := ""
	if r.stderrTail != nil {
		tail = r.stderrTail.String()
		r.stderrTail = nil
	}
	r.mu.Unlock()

	if len(payload) == 0 && looksLikePermissionFailure(tail) {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(tail))
	}
	r.log.Debug("recording stopped", "bytes", len(payload))
	return payload, nil
}

func (r *FFmpegRecorder) collect(ch <-chan []byte) {
	for chunk := range ch {
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
	}
}

func (r *FFmpegRecorder) buildCommand() (*exec.Cmd, error) {
	if override := strings.TrimSpace(r.opts.CommandOverride); override != "" {
		return exec.Command("/bin/sh", "-lc", override), nil
	}
	path, err := exec.LookPath(r.opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, r.opts.FFmpegPath)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	switch runtime.GOOS {
	case "darwin":
		dev := r.opts.Device
		if dev == "" {
			dev = "0"
		}
		// `none:<index>` keeps the camera closed.
		args = append(args, "-f", "avfoundation", "-i", "none:"+dev)
	default:
		dev := r.opts.Device
		if dev == "" {
			dev = "default"
		}
		args = append(args, "-f", "alsa", "-i", dev)
	}
	if r.opts.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	args = append(args,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", r.opts.SampleRate),
		"-f", "s16le",
		"-",
	)
	return exec.Command(path, args...), nil
}

func classifyStartFailure(stderr string, waitErr error) error {
	if looksLikePermissionFailure(stderr) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(stderr))
	}
	if line := firstLine(stderr); line != "" {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, line)
	}
	return fmt.Errorf("%w: capture process exited: %v", ErrDeviceUnavailable, waitErr)
}

func looksLikePermissionFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{"permission denied", "not permitted", "not authorized", "access denied"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func concat(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total == 0 {
		return nil
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func drainChunks(ch <-chan []byte) {
	for range ch {
	}
}
